package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meridianpay/meridian-backend/internal/dispatch"
	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/rs/zerolog"
)

// RetryResult reports the outcome of one retry request.
type RetryResult struct {
	Succeeded   []uuid.UUID `json:"succeeded"`
	StillFailed []uuid.UUID `json:"stillFailed"`
}

// RetryService replays previously failed payment lines through the same
// dispatch path as first attempts. A successful retry removes the
// failed item; a repeat failure overwrites its error with the latest
// reason, so each logical line keeps exactly one record.
type RetryService struct {
	failed     domain.FailedItemRepository
	jobs       domain.BatchJobRepository
	payments   domain.PaymentRepository
	ledger     domain.LedgerRepository
	dispatcher Dispatcher
	registry   *domain.Registry
	logger     zerolog.Logger
}

// NewRetryService creates a new RetryService
func NewRetryService(
	failed domain.FailedItemRepository,
	jobs domain.BatchJobRepository,
	payments domain.PaymentRepository,
	ledger domain.LedgerRepository,
	dispatcher Dispatcher,
	registry *domain.Registry,
	logger zerolog.Logger,
) *RetryService {
	return &RetryService{
		failed:     failed,
		jobs:       jobs,
		payments:   payments,
		ledger:     ledger,
		dispatcher: dispatcher,
		registry:   registry,
		logger:     logger.With().Str("component", "retry_tracker").Logger(),
	}
}

// ListByJob returns the failed items recorded for a job.
func (s *RetryService) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.FailedItem, error) {
	return s.failed.ListByJob(ctx, jobID)
}

// ListByOwner returns every failed item across an owner's jobs.
func (s *RetryService) ListByOwner(ctx context.Context, owner string) ([]*domain.FailedItem, error) {
	return s.failed.ListByOwner(ctx, owner)
}

// Retry replays the given failed items for the owner. Items that do not
// exist or belong to another owner are skipped with a warning rather
// than failing the whole call; each retried item succeeds or fails
// independently.
func (s *RetryService) Retry(ctx context.Context, owner string, ids []uuid.UUID) (*RetryResult, error) {
	if len(ids) == 0 {
		return nil, domain.ErrInvalidInput
	}

	result := &RetryResult{}
	for _, id := range ids {
		item, err := s.failed.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrFailedItemNotFound) {
				s.logger.Warn().Str("item_id", id.String()).Msg("Retry requested for unknown item")
				continue
			}
			return nil, err
		}
		if item.OwnerAddress != owner {
			s.logger.Warn().Str("item_id", id.String()).Msg("Retry requested for item of another owner")
			continue
		}

		if s.retryOne(ctx, item) {
			result.Succeeded = append(result.Succeeded, id)
		} else {
			result.StillFailed = append(result.StillFailed, id)
		}
	}

	return result, nil
}

// retryOne replays one item and returns whether it succeeded.
func (s *RetryService) retryOne(ctx context.Context, item *domain.FailedItem) bool {
	job, err := s.jobs.GetByID(ctx, item.JobID)
	if err != nil {
		s.logger.Error().Err(err).Str("item_id", item.ID.String()).Msg("Failed to load parent job")
		return false
	}

	recipient := domain.Recipient{
		Address: item.Recipient,
		Amount:  item.Amount,
		Token:   item.Token,
		ChainID: item.ChainID,
	}

	responses, err := s.dispatcher.Dispatch(ctx, job.FromAddress, []domain.Recipient{recipient}, dispatch.Options{})
	if err != nil {
		s.recordRepeatFailure(ctx, item, err.Error())
		return false
	}

	resp := responses[0]
	if !resp.Success {
		s.recordRepeatFailure(ctx, item, resp.Error)
		return false
	}

	info, _ := s.registry.Chain(item.ChainID)
	record := &domain.PaymentRecord{
		ID:           uuid.New().String(),
		OwnerAddress: item.OwnerAddress,
		ToAddress:    item.Recipient,
		Amount:       item.Amount,
		Token:        item.Token,
		Chain:        info.Slug(),
		TxHash:       resp.TxHash,
		ExecutedBy:   resp.ExecutedBy,
	}
	if err := s.payments.CreatePaymentRecord(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("tx_hash", resp.TxHash).Msg("Failed to write payment record")
	}

	entry := &domain.LedgerEntry{
		Account:   item.OwnerAddress,
		Token:     item.Token,
		Chain:     info.Slug(),
		EntryType: domain.EntryDebit,
		Amount:    item.Amount,
		Reference: resp.TxHash,
	}
	if err := s.ledger.CreateEntry(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("tx_hash", resp.TxHash).Msg("Failed to write ledger entry")
	}

	if err := s.failed.Delete(ctx, item.ID); err != nil {
		s.logger.Error().Err(err).Str("item_id", item.ID.String()).Msg("Failed to clear retried item")
	}

	s.logger.Info().
		Str("item_id", item.ID.String()).
		Str("tx_hash", resp.TxHash).
		Msg("Failed item retried successfully")

	return true
}

func (s *RetryService) recordRepeatFailure(ctx context.Context, item *domain.FailedItem, reason string) {
	item.Error = reason
	if err := s.failed.Upsert(ctx, item); err != nil {
		s.logger.Error().Err(err).Str("item_id", item.ID.String()).Msg("Failed to update failed item")
	}
}
