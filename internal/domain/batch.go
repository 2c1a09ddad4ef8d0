package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchJobStatus is the lifecycle state of a batch job. The string
// values are part of the external contract — dashboards match on them.
type BatchJobStatus string

const (
	JobQueued          BatchJobStatus = "queued"
	JobParsing         BatchJobStatus = "parsing"
	JobPendingApproval BatchJobStatus = "pending_approval"
	JobProcessing      BatchJobStatus = "processing"
	JobCompleted       BatchJobStatus = "completed"
	JobFailed          BatchJobStatus = "failed"
)

// ParseSummary captures the outcome of parsing an uploaded file.
type ParseSummary struct {
	ValidCount   int         `json:"validCount"`
	InvalidCount int         `json:"invalidCount"`
	Preview      []Recipient `json:"preview,omitempty"`
}

// BatchJob tracks one uploaded recipient file from ingestion through
// approval to execution. Owned exclusively by the pipeline; callers
// observe it via point-in-time status reads.
type BatchJob struct {
	ID           uuid.UUID      `json:"id"`
	OwnerAddress string         `json:"ownerAddress"`
	FromAddress  string         `json:"fromAddress"`
	Status       BatchJobStatus `json:"status"`
	TotalLines   int            `json:"totalLines"`
	ParsedCount  int            `json:"parsedCount"`
	InvalidCount int            `json:"invalidCount"`
	ChunkCount   int            `json:"chunkCount"`
	SuccessCount int            `json:"successCount"`
	FailCount    int            `json:"failCount"`
	Error        *string        `json:"error,omitempty"`
	Summary      *ParseSummary  `json:"summary,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Terminal reports whether the job has reached a terminal state.
func (j *BatchJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// FailedItem is a durable, retry-eligible record of one payment line
// whose most recent attempt failed. Idempotent by ID: the same logical
// line never produces two items.
type FailedItem struct {
	ID           uuid.UUID       `json:"id"`
	JobID        uuid.UUID       `json:"jobId"`
	OwnerAddress string          `json:"ownerAddress"`
	Recipient    string          `json:"recipient"`
	Amount       decimal.Decimal `json:"amount"`
	Token        string          `json:"token"`
	ChainID      uint64          `json:"chainId"`
	Error        string          `json:"error"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// BatchJobRepository persists batch jobs and their parsed lines.
type BatchJobRepository interface {
	Create(ctx context.Context, job *BatchJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*BatchJob, error)
	// UpdateStatus transitions the job only if it is currently in the
	// expected state; returns ErrInvalidJobState otherwise. Transitions
	// are atomic — a concurrent status read never sees a half-written
	// job.
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next BatchJobStatus, reason *string) error
	// SetParseResult stores the parsed lines and counts, moving the job
	// to pending_approval (or failed when no valid lines remain).
	SetParseResult(ctx context.Context, id uuid.UUID, lines []Recipient, summary ParseSummary, totalLines, chunkCount int) error
	ListLines(ctx context.Context, id uuid.UUID) ([]Recipient, error)
	// RecordOutcome increments the success/fail counters.
	RecordOutcome(ctx context.Context, id uuid.UUID, succeeded bool) error
}

// FailedItemRepository persists retry-eligible failed lines.
type FailedItemRepository interface {
	// Upsert creates the item or, when the ID already exists, replaces
	// its error message with the latest failure reason.
	Upsert(ctx context.Context, item *FailedItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*FailedItem, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*FailedItem, error)
	ListByOwner(ctx context.Context, owner string) ([]*FailedItem, error)
}
