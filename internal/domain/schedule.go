package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ScheduleType is the recurrence rule of a scheduled payment.
type ScheduleType string

const (
	ScheduleDaily    ScheduleType = "daily"
	ScheduleWeekly   ScheduleType = "weekly"
	ScheduleBiweekly ScheduleType = "biweekly"
	ScheduleMonthly  ScheduleType = "monthly"
	ScheduleCustom   ScheduleType = "custom"
)

// ScheduledPaymentStatus is the lifecycle state of a scheduled payment.
type ScheduledPaymentStatus string

const (
	ScheduleActive    ScheduledPaymentStatus = "active"
	SchedulePaused    ScheduledPaymentStatus = "paused"
	ScheduleCancelled ScheduledPaymentStatus = "cancelled"
)

// ScheduleConfig pins the recurrence rule to a concrete clock time.
// DayOfWeek follows time.Weekday numbering (Sunday = 0). DayOfMonth is
// clamped to the last day of short months at computation time.
type ScheduleConfig struct {
	DayOfWeek    int    `json:"dayOfWeek,omitempty"`
	DayOfMonth   int    `json:"dayOfMonth,omitempty"`
	Hour         int    `json:"hour"`
	Minute       int    `json:"minute"`
	Timezone     string `json:"timezone"`
	IntervalDays int    `json:"intervalDays,omitempty"` // custom schedules only
}

// ScheduledPayment is a recurring payout definition.
//
// Invariants: NextExecution is strictly in the future for active
// records immediately after any mutation; TotalExecutions only
// increases.
type ScheduledPayment struct {
	ID              uuid.UUID              `json:"id"`
	OwnerAddress    string                 `json:"ownerAddress"`
	FromAddress     string                 `json:"fromAddress"`
	Recipients      []Recipient            `json:"recipients"`
	ScheduleType    ScheduleType           `json:"scheduleType"`
	ScheduleConfig  ScheduleConfig         `json:"scheduleConfig"`
	Status          ScheduledPaymentStatus `json:"status"`
	NextExecution   time.Time              `json:"nextExecution"`
	TotalExecutions int                    `json:"totalExecutions"`
	MaxExecutions   *int                   `json:"maxExecutions,omitempty"`
	ChainID         uint64                 `json:"chainId"`
	Token           string                 `json:"token"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// ExecutionStatus classifies one scheduled execution attempt.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionPartial ExecutionStatus = "partial"
	ExecutionFailed  ExecutionStatus = "failed"
)

// RecipientOutcome is the per-recipient detail row of one execution.
type RecipientOutcome struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
	Success bool            `json:"success"`
	TxHash  string          `json:"txHash,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ScheduledPaymentLog is the append-only audit trail: one row per
// execution attempt.
type ScheduledPaymentLog struct {
	ID              uuid.UUID          `json:"id"`
	ScheduleID      uuid.UUID          `json:"scheduleId"`
	ExecutionTime   time.Time          `json:"executionTime"`
	Status          ExecutionStatus    `json:"status"`
	TotalAmount     decimal.Decimal    `json:"totalAmount"`
	RecipientCount  int                `json:"recipientCount"`
	SuccessfulCount int                `json:"successfulCount"`
	FailedCount     int                `json:"failedCount"`
	Outcomes        []RecipientOutcome `json:"outcomes,omitempty"`
	TxHash          string             `json:"txHash,omitempty"`
	Error           string             `json:"error,omitempty"`
}

// CronExecutionSummary aggregates one sweep over all due payments. The
// sweep always returns a complete summary; one payment's failure never
// aborts the rest.
type CronExecutionSummary struct {
	Executed  int      `json:"executed"`
	Succeeded int      `json:"succeeded"`
	Partial   int      `json:"partial"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// ScheduledPaymentRepository persists scheduled payment definitions.
type ScheduledPaymentRepository interface {
	Create(ctx context.Context, sp *ScheduledPayment) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScheduledPayment, error)
	ListByOwner(ctx context.Context, owner string) ([]*ScheduledPayment, error)
	Update(ctx context.Context, sp *ScheduledPayment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status ScheduledPaymentStatus) error
	// ListDue returns active payments whose NextExecution has arrived,
	// without claiming them.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*ScheduledPayment, error)
	// ClaimDue atomically marks up to limit due payments as in-flight
	// and returns them. A payment claimed by one sweep is invisible to a
	// concurrent sweep until released.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*ScheduledPayment, error)
	// Release clears the in-flight claim after the execution finishes,
	// persisting the advanced NextExecution and counters.
	Release(ctx context.Context, sp *ScheduledPayment) error
	// ReleaseStale clears claims older than cutoff, returning how many
	// were cleared. A sweep that crashed between ClaimDue and Release
	// must not strand its payments as permanently in-flight.
	ReleaseStale(ctx context.Context, cutoff time.Time) (int, error)
}

// ScheduledPaymentLogRepository persists the append-only execution log.
type ScheduledPaymentLogRepository interface {
	Create(ctx context.Context, log *ScheduledPaymentLog) error
	ListBySchedule(ctx context.Context, scheduleID uuid.UUID, limit int) ([]*ScheduledPaymentLog, error)
}
