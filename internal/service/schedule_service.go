package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meridianpay/meridian-backend/internal/dispatch"
	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/meridianpay/meridian-backend/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ScheduleService manages recurring payout definitions and executes
// them when due. Executions go through the same dispatch path as batch
// jobs, so the circuit breaker and fallback behavior are shared.
type ScheduleService struct {
	schedules  domain.ScheduledPaymentRepository
	logs       domain.ScheduledPaymentLogRepository
	payments   domain.PaymentRepository
	ledger     domain.LedgerRepository
	dispatcher Dispatcher
	registry   *domain.Registry
	publisher  websocket.EventPublisher
	logger     zerolog.Logger
	now        func() time.Time
}

// NewScheduleService creates a new ScheduleService
func NewScheduleService(
	schedules domain.ScheduledPaymentRepository,
	logs domain.ScheduledPaymentLogRepository,
	payments domain.PaymentRepository,
	ledger domain.LedgerRepository,
	dispatcher Dispatcher,
	registry *domain.Registry,
	logger zerolog.Logger,
) *ScheduleService {
	return &ScheduleService{
		schedules:  schedules,
		logs:       logs,
		payments:   payments,
		ledger:     ledger,
		dispatcher: dispatcher,
		registry:   registry,
		publisher:  &websocket.NoOpPublisher{},
		logger:     logger.With().Str("component", "scheduler").Logger(),
		now:        time.Now,
	}
}

// SetEventPublisher sets the publisher for real-time schedule updates
func (s *ScheduleService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.publisher = publisher
}

// Create validates and stores a new scheduled payment. The first
// NextExecution is always strictly in the future.
func (s *ScheduleService) Create(ctx context.Context, sp *domain.ScheduledPayment) (*domain.ScheduledPayment, error) {
	if err := s.validate(sp); err != nil {
		return nil, err
	}

	next, err := FirstExecution(s.now(), sp.ScheduleType, sp.ScheduleConfig)
	if err != nil {
		return nil, err
	}

	sp.ID = uuid.New()
	sp.Status = domain.ScheduleActive
	sp.NextExecution = next
	sp.TotalExecutions = 0

	if err := s.schedules.Create(ctx, sp); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("schedule_id", sp.ID.String()).
		Str("type", string(sp.ScheduleType)).
		Time("next_execution", next).
		Msg("Scheduled payment created")

	return sp, nil
}

// Get returns one scheduled payment.
func (s *ScheduleService) Get(ctx context.Context, id uuid.UUID) (*domain.ScheduledPayment, error) {
	return s.schedules.GetByID(ctx, id)
}

// ListByOwner returns all scheduled payments for an owner.
func (s *ScheduleService) ListByOwner(ctx context.Context, owner string) ([]*domain.ScheduledPayment, error) {
	return s.schedules.ListByOwner(ctx, owner)
}

// Logs returns the most recent execution log rows for a schedule.
func (s *ScheduleService) Logs(ctx context.Context, id uuid.UUID, limit int) ([]*domain.ScheduledPaymentLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.logs.ListBySchedule(ctx, id, limit)
}

// Update replaces the recipients and recurrence rule of a non-cancelled
// schedule and recomputes NextExecution from the new rule.
func (s *ScheduleService) Update(ctx context.Context, id uuid.UUID, recipients []domain.Recipient, scheduleType domain.ScheduleType, cfg domain.ScheduleConfig, maxExecutions *int) (*domain.ScheduledPayment, error) {
	sp, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp.Status == domain.ScheduleCancelled {
		return nil, domain.ErrScheduleCancelled
	}

	sp.Recipients = recipients
	sp.ScheduleType = scheduleType
	sp.ScheduleConfig = cfg
	sp.MaxExecutions = maxExecutions
	if err := s.validate(sp); err != nil {
		return nil, err
	}

	next, err := FirstExecution(s.now(), scheduleType, cfg)
	if err != nil {
		return nil, err
	}
	sp.NextExecution = next

	if err := s.schedules.Update(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

// Pause stops future executions without losing the definition.
func (s *ScheduleService) Pause(ctx context.Context, id uuid.UUID) error {
	sp, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sp.Status != domain.ScheduleActive {
		return domain.ErrScheduleNotActive
	}
	return s.schedules.UpdateStatus(ctx, id, domain.SchedulePaused)
}

// Resume reactivates a paused schedule. NextExecution is recomputed so
// a long pause never causes a burst of catch-up executions.
func (s *ScheduleService) Resume(ctx context.Context, id uuid.UUID) error {
	sp, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sp.Status != domain.SchedulePaused {
		return fmt.Errorf("%w: only paused schedules can be resumed", domain.ErrInvalidJobState)
	}

	next, err := FirstExecution(s.now(), sp.ScheduleType, sp.ScheduleConfig)
	if err != nil {
		return err
	}
	sp.Status = domain.ScheduleActive
	sp.NextExecution = next
	return s.schedules.Update(ctx, sp)
}

// Cancel permanently stops a schedule. Cancellation is terminal.
func (s *ScheduleService) Cancel(ctx context.Context, id uuid.UUID) error {
	sp, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sp.Status == domain.ScheduleCancelled {
		return domain.ErrScheduleCancelled
	}
	return s.schedules.UpdateStatus(ctx, id, domain.ScheduleCancelled)
}

// GetDuePayments lists active payments whose execution time has
// arrived, without claiming them.
func (s *ScheduleService) GetDuePayments(ctx context.Context, limit int) ([]*domain.ScheduledPayment, error) {
	return s.schedules.ListDue(ctx, s.now(), limit)
}

// staleClaimAge is how long an execution claim may stand before a
// sweep reclaims it. Several sweep intervals, so only a crashed sweep
// ever trips it.
const staleClaimAge = 10 * time.Minute

// ExecuteAllDue claims and executes every due payment, independently.
// The summary is always complete; a failure in one payment is recorded
// and the sweep continues.
func (s *ScheduleService) ExecuteAllDue(ctx context.Context, limit int) *domain.CronExecutionSummary {
	summary := &domain.CronExecutionSummary{}

	if n, err := s.schedules.ReleaseStale(ctx, s.now().Add(-staleClaimAge)); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("release stale claims: %v", err))
	} else if n > 0 {
		s.logger.Warn().Int("reclaimed", n).Msg("Cleared stale execution claims")
	}

	due, err := s.schedules.ClaimDue(ctx, s.now(), limit)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("claim due payments: %v", err))
		return summary
	}

	for _, sp := range due {
		if sp.MaxExecutions != nil && sp.TotalExecutions >= *sp.MaxExecutions {
			// Already exhausted; close it out instead of executing.
			sp.Status = domain.ScheduleCancelled
			if err := s.schedules.Release(ctx, sp); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("release %s: %v", sp.ID, err))
			}
			summary.Skipped++
			continue
		}

		status := s.executeOne(ctx, sp)
		summary.Executed++
		switch status {
		case domain.ExecutionSuccess:
			summary.Succeeded++
		case domain.ExecutionPartial:
			summary.Partial++
		default:
			summary.Failed++
		}

		sp.TotalExecutions++
		if sp.MaxExecutions != nil && sp.TotalExecutions >= *sp.MaxExecutions {
			sp.Status = domain.ScheduleCancelled
		} else {
			next, err := advanceExecution(sp.NextExecution, s.now(), sp.ScheduleType, sp.ScheduleConfig)
			if err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("advance %s: %v", sp.ID, err))
			} else {
				sp.NextExecution = next
			}
		}

		if err := s.schedules.Release(ctx, sp); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("release %s: %v", sp.ID, err))
		}
	}

	if summary.Executed > 0 || len(summary.Errors) > 0 {
		s.logger.Info().
			Int("executed", summary.Executed).
			Int("succeeded", summary.Succeeded).
			Int("partial", summary.Partial).
			Int("failed", summary.Failed).
			Int("skipped", summary.Skipped).
			Int("errors", len(summary.Errors)).
			Msg("Due payment sweep finished")
	}

	return summary
}

// executeOne runs one scheduled payment and writes its log row.
func (s *ScheduleService) executeOne(ctx context.Context, sp *domain.ScheduledPayment) domain.ExecutionStatus {
	logRow := &domain.ScheduledPaymentLog{
		ID:             uuid.New(),
		ScheduleID:     sp.ID,
		ExecutionTime:  s.now(),
		RecipientCount: len(sp.Recipients),
	}

	total := decimal.Zero
	for _, r := range sp.Recipients {
		total = total.Add(r.Amount)
	}
	logRow.TotalAmount = total

	responses, err := s.dispatcher.Dispatch(ctx, sp.FromAddress, sp.Recipients, dispatch.Options{})
	if err != nil {
		logRow.Status = domain.ExecutionFailed
		logRow.Error = err.Error()
		logRow.FailedCount = len(sp.Recipients)
		s.writeLog(ctx, logRow)
		return domain.ExecutionFailed
	}

	outcomes := make([]domain.RecipientOutcome, len(responses))
	for i, resp := range responses {
		r := sp.Recipients[i]
		outcomes[i] = domain.RecipientOutcome{
			Address: r.Address,
			Amount:  r.Amount,
			Success: resp.Success,
			TxHash:  resp.TxHash,
			Error:   resp.Error,
		}
		if resp.Success {
			logRow.SuccessfulCount++
			s.recordPayment(ctx, sp, r, resp)
		} else {
			logRow.FailedCount++
		}
	}
	logRow.Outcomes = outcomes

	switch {
	case logRow.FailedCount == 0:
		logRow.Status = domain.ExecutionSuccess
	case logRow.SuccessfulCount == 0:
		logRow.Status = domain.ExecutionFailed
	default:
		logRow.Status = domain.ExecutionPartial
	}

	s.writeLog(ctx, logRow)
	s.publisher.Publish(sp.OwnerAddress, websocket.ScheduledPaymentExecuted(logRow))
	return logRow.Status
}

func (s *ScheduleService) recordPayment(ctx context.Context, sp *domain.ScheduledPayment, r domain.Recipient, resp domain.PayoutResponse) {
	info, _ := s.registry.Chain(r.ChainID)

	record := &domain.PaymentRecord{
		ID:           uuid.New().String(),
		OwnerAddress: sp.OwnerAddress,
		ToAddress:    r.Address,
		Amount:       r.Amount,
		Token:        r.Token,
		Chain:        info.Slug(),
		TxHash:       resp.TxHash,
		ExecutedBy:   resp.ExecutedBy,
	}
	if err := s.payments.CreatePaymentRecord(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("tx_hash", resp.TxHash).Msg("Failed to write payment record")
	}

	entry := &domain.LedgerEntry{
		Account:   sp.OwnerAddress,
		Token:     r.Token,
		Chain:     info.Slug(),
		EntryType: domain.EntryDebit,
		Amount:    r.Amount,
		Reference: resp.TxHash,
	}
	if err := s.ledger.CreateEntry(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("tx_hash", resp.TxHash).Msg("Failed to write ledger entry")
	}
}

func (s *ScheduleService) writeLog(ctx context.Context, row *domain.ScheduledPaymentLog) {
	if err := s.logs.Create(ctx, row); err != nil {
		s.logger.Error().Err(err).Str("schedule_id", row.ScheduleID.String()).Msg("Failed to write execution log")
	}
}

func (s *ScheduleService) validate(sp *domain.ScheduledPayment) error {
	if sp.OwnerAddress == "" || sp.FromAddress == "" {
		return domain.ErrInvalidInput
	}
	if len(sp.Recipients) == 0 {
		return domain.ErrEmptyRecipients
	}
	if len(sp.Recipients) > domain.MaxRecipientsBatch {
		return fmt.Errorf("%w: at most %d recipients", domain.ErrInvalidInput, domain.MaxRecipientsBatch)
	}
	for i, r := range sp.Recipients {
		if r.Amount.Sign() <= 0 {
			return fmt.Errorf("%w: recipient %d", domain.ErrInvalidAmount, i)
		}
		info, ok := s.registry.Chain(r.ChainID)
		if !ok {
			return fmt.Errorf("%w: recipient %d chain %d", domain.ErrUnknownChain, i, r.ChainID)
		}
		if _, ok := s.registry.Token(r.ChainID, r.Token); !ok {
			return fmt.Errorf("%w: recipient %d token %s on %s", domain.ErrUnsupportedToken, i, r.Token, info.Name)
		}
	}
	if sp.MaxExecutions != nil && *sp.MaxExecutions <= 0 {
		return fmt.Errorf("%w: maxExecutions must be positive", domain.ErrInvalidSchedule)
	}
	return validateScheduleConfig(sp.ScheduleType, sp.ScheduleConfig)
}

func validateScheduleConfig(st domain.ScheduleType, cfg domain.ScheduleConfig) error {
	if cfg.Hour < 0 || cfg.Hour > 23 || cfg.Minute < 0 || cfg.Minute > 59 {
		return fmt.Errorf("%w: hour/minute out of range", domain.ErrInvalidSchedule)
	}
	if _, err := loadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", domain.ErrInvalidSchedule, cfg.Timezone)
	}
	switch st {
	case domain.ScheduleDaily:
		return nil
	case domain.ScheduleWeekly, domain.ScheduleBiweekly:
		if cfg.DayOfWeek < 0 || cfg.DayOfWeek > 6 {
			return fmt.Errorf("%w: dayOfWeek must be 0..6", domain.ErrInvalidSchedule)
		}
		return nil
	case domain.ScheduleMonthly:
		if cfg.DayOfMonth < 1 || cfg.DayOfMonth > 31 {
			return fmt.Errorf("%w: dayOfMonth must be 1..31", domain.ErrInvalidSchedule)
		}
		return nil
	case domain.ScheduleCustom:
		if cfg.IntervalDays < 1 {
			return fmt.Errorf("%w: intervalDays must be at least 1", domain.ErrInvalidSchedule)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown schedule type %q", domain.ErrInvalidSchedule, st)
	}
}

func loadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

// FirstExecution computes the first execution strictly after "from" for
// a fresh or resumed schedule, in the schedule's timezone.
func FirstExecution(from time.Time, st domain.ScheduleType, cfg domain.ScheduleConfig) (time.Time, error) {
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unknown timezone %q", domain.ErrInvalidSchedule, cfg.Timezone)
	}
	now := from.In(loc)

	switch st {
	case domain.ScheduleDaily, domain.ScheduleCustom:
		candidate := time.Date(now.Year(), now.Month(), now.Day(), cfg.Hour, cfg.Minute, 0, 0, loc)
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, nil

	case domain.ScheduleWeekly, domain.ScheduleBiweekly:
		candidate := time.Date(now.Year(), now.Month(), now.Day(), cfg.Hour, cfg.Minute, 0, 0, loc)
		offset := (cfg.DayOfWeek - int(candidate.Weekday()) + 7) % 7
		candidate = candidate.AddDate(0, 0, offset)
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 7)
		}
		return candidate, nil

	case domain.ScheduleMonthly:
		candidate := monthlyOccurrence(now.Year(), now.Month(), cfg, loc)
		if !candidate.After(now) {
			candidate = monthlyOccurrence(now.Year(), now.Month()+1, cfg, loc)
		}
		return candidate, nil

	default:
		return time.Time{}, fmt.Errorf("%w: unknown schedule type %q", domain.ErrInvalidSchedule, st)
	}
}

// advanceExecution steps the schedule forward from its last planned
// execution until the result is strictly after "now". Stepping from the
// planned slot rather than from now keeps monthly payments anchored to
// their configured day even after a late sweep.
func advanceExecution(last, now time.Time, st domain.ScheduleType, cfg domain.ScheduleConfig) (time.Time, error) {
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unknown timezone %q", domain.ErrInvalidSchedule, cfg.Timezone)
	}

	candidate := last.In(loc)
	for !candidate.After(now.In(loc)) {
		switch st {
		case domain.ScheduleDaily:
			candidate = candidate.AddDate(0, 0, 1)
		case domain.ScheduleWeekly:
			candidate = candidate.AddDate(0, 0, 7)
		case domain.ScheduleBiweekly:
			candidate = candidate.AddDate(0, 0, 14)
		case domain.ScheduleCustom:
			candidate = candidate.AddDate(0, 0, cfg.IntervalDays)
		case domain.ScheduleMonthly:
			candidate = monthlyOccurrence(candidate.Year(), candidate.Month()+1, cfg, loc)
		default:
			return time.Time{}, fmt.Errorf("%w: unknown schedule type %q", domain.ErrInvalidSchedule, st)
		}
	}
	return candidate, nil
}

// monthlyOccurrence returns the configured clock time on the configured
// day of the given month, clamping day 29..31 to the month's last day.
func monthlyOccurrence(year int, month time.Month, cfg domain.ScheduleConfig, loc *time.Location) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	day := cfg.DayOfMonth
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, cfg.Hour, cfg.Minute, 0, 0, loc)
}
