package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/meridianpay/meridian-backend/internal/chain"
	"github.com/meridianpay/meridian-backend/internal/dispatch"
	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/meridianpay/meridian-backend/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// batchChunkSize is the number of lines per execution chunk, used
	// only for progress reporting.
	batchChunkSize = 100

	// parsePreviewSize is the number of parsed rows included in the
	// parse summary preview.
	parsePreviewSize = 5
)

// Dispatcher routes a recipient list to the execution bridge. Satisfied
// by dispatch.Router.
type Dispatcher interface {
	Dispatch(ctx context.Context, fromAddress string, recipients []domain.Recipient, opts dispatch.Options) ([]domain.PayoutResponse, error)
}

// BatchService drives an uploaded recipient file from ingestion through
// human approval to execution. Approval is a hard gate: no funds move
// until an explicit Approve call.
type BatchService struct {
	jobs       domain.BatchJobRepository
	failed     domain.FailedItemRepository
	payments   domain.PaymentRepository
	ledger     domain.LedgerRepository
	dispatcher Dispatcher
	registry   *domain.Registry
	publisher  websocket.EventPublisher
	logger     zerolog.Logger
}

// NewBatchService creates a new BatchService
func NewBatchService(
	jobs domain.BatchJobRepository,
	failed domain.FailedItemRepository,
	payments domain.PaymentRepository,
	ledger domain.LedgerRepository,
	dispatcher Dispatcher,
	registry *domain.Registry,
	logger zerolog.Logger,
) *BatchService {
	return &BatchService{
		jobs:       jobs,
		failed:     failed,
		payments:   payments,
		ledger:     ledger,
		dispatcher: dispatcher,
		registry:   registry,
		publisher:  &websocket.NoOpPublisher{},
		logger:     logger.With().Str("component", "batch_pipeline").Logger(),
	}
}

// SetEventPublisher sets the publisher for real-time job updates
func (s *BatchService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.publisher = publisher
}

// Submit ingests an uploaded recipient file and returns the new job.
// Parsing runs asynchronously; callers observe progress via Status.
func (s *BatchService) Submit(ctx context.Context, ownerAddress, fromAddress string, file io.Reader) (*domain.BatchJob, error) {
	if ownerAddress == "" || fromAddress == "" {
		return nil, domain.ErrInvalidInput
	}

	// Consume the upload before returning; the reader is only valid for
	// the duration of the request.
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable file: %v", domain.ErrInvalidInput, err)
	}

	job := &domain.BatchJob{
		ID:           uuid.New(),
		OwnerAddress: ownerAddress,
		FromAddress:  fromAddress,
		Status:       domain.JobQueued,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	go s.parse(context.Background(), job.ID, ownerAddress, records)

	return job, nil
}

// Status returns a point-in-time view of the job. Safe to call
// concurrently with a state transition.
func (s *BatchService) Status(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// Approve moves a parsed job into processing and begins execution.
func (s *BatchService) Approve(ctx context.Context, id uuid.UUID, opts dispatch.Options) (*domain.BatchJob, error) {
	if err := s.jobs.UpdateStatus(ctx, id, domain.JobPendingApproval, domain.JobProcessing, nil); err != nil {
		return nil, err
	}

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(job.OwnerAddress, websocket.BatchJobApproved(job))
	go s.process(context.Background(), job, opts)

	return job, nil
}

// Cancel aborts a job that has not been approved yet. Once a job is
// processing it runs to completion; there is nothing to compensate
// before approval since no funds have moved.
func (s *BatchService) Cancel(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error) {
	reason := "cancelled by owner before approval"
	if err := s.jobs.UpdateStatus(ctx, id, domain.JobPendingApproval, domain.JobFailed, &reason); err != nil {
		return nil, err
	}
	return s.jobs.GetByID(ctx, id)
}

type lineError struct {
	line int
	msg  string
}

// parse validates every row, counting malformed rows instead of
// silently dropping them, and moves the job to pending_approval.
func (s *BatchService) parse(ctx context.Context, jobID uuid.UUID, ownerAddress string, records [][]string) {
	if err := s.jobs.UpdateStatus(ctx, jobID, domain.JobQueued, domain.JobParsing, nil); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID.String()).Msg("Failed to start parsing")
		return
	}

	var (
		valid   []domain.Recipient
		invalid []lineError
		total   int
	)

	for i, row := range records {
		if i == 0 && isHeaderRow(row) {
			continue
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		total++

		recipient, err := s.parseRow(row)
		if err != nil {
			invalid = append(invalid, lineError{line: i + 1, msg: err.Error()})
			continue
		}
		valid = append(valid, recipient)
	}

	if len(valid) == 0 {
		reason := domain.ErrNoValidLines.Error()
		if len(invalid) > 0 {
			reason = fmt.Sprintf("%s (%d invalid rows, first: line %d: %s)",
				reason, len(invalid), invalid[0].line, invalid[0].msg)
		}
		if err := s.jobs.UpdateStatus(ctx, jobID, domain.JobParsing, domain.JobFailed, &reason); err != nil {
			s.logger.Error().Err(err).Str("job_id", jobID.String()).Msg("Failed to fail empty job")
		}
		s.publisher.Publish(ownerAddress, websocket.BatchJobFailed(map[string]string{"jobId": jobID.String(), "error": reason}))
		return
	}

	preview := valid
	if len(preview) > parsePreviewSize {
		preview = preview[:parsePreviewSize]
	}
	summary := domain.ParseSummary{
		ValidCount:   len(valid),
		InvalidCount: len(invalid),
		Preview:      preview,
	}
	chunks := (len(valid) + batchChunkSize - 1) / batchChunkSize

	if err := s.jobs.SetParseResult(ctx, jobID, valid, summary, total, chunks); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID.String()).Msg("Failed to store parse result")
		return
	}

	s.logger.Info().
		Str("job_id", jobID.String()).
		Int("valid", len(valid)).
		Int("invalid", len(invalid)).
		Msg("Batch file parsed, awaiting approval")

	s.publisher.Publish(ownerAddress, websocket.BatchJobParsed(summary))
}

// parseRow parses one CSV row: address, amount, token, chain_id
// [, name [, memo]].
func (s *BatchService) parseRow(row []string) (domain.Recipient, error) {
	if len(row) < 4 {
		return domain.Recipient{}, fmt.Errorf("expected at least 4 columns, got %d", len(row))
	}

	address := strings.TrimSpace(row[0])
	amountStr := strings.TrimSpace(row[1])
	token := strings.ToUpper(strings.TrimSpace(row[2]))
	chainStr := strings.TrimSpace(row[3])

	chainID, err := strconv.ParseUint(chainStr, 10, 64)
	if err != nil {
		return domain.Recipient{}, fmt.Errorf("invalid chain id %q", chainStr)
	}

	info, ok := s.registry.Chain(chainID)
	if !ok {
		return domain.Recipient{}, fmt.Errorf("unknown chain id %d", chainID)
	}

	switch info.Family {
	case domain.FamilyTron:
		if !chain.IsTronAddress(address) {
			return domain.Recipient{}, fmt.Errorf("invalid TRON address %q", address)
		}
	default:
		if !chain.IsHexAddress(address) {
			return domain.Recipient{}, fmt.Errorf("invalid EVM address %q", address)
		}
	}

	if _, ok := s.registry.Token(chainID, token); !ok {
		return domain.Recipient{}, fmt.Errorf("token %s not supported on %s", token, info.Name)
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil || amount.Sign() <= 0 {
		return domain.Recipient{}, fmt.Errorf("invalid amount %q", amountStr)
	}

	recipient := domain.Recipient{
		Address: address,
		Amount:  amount,
		Token:   token,
		ChainID: chainID,
	}
	if len(row) > 4 {
		recipient.Name = strings.TrimSpace(row[4])
	}
	if len(row) > 5 {
		memo := strings.TrimSpace(row[5])
		if len(memo) > domain.MaxMemoLength {
			return domain.Recipient{}, fmt.Errorf("memo exceeds %d characters", domain.MaxMemoLength)
		}
		recipient.Memo = memo
	}

	return recipient, nil
}

// process drives every valid line through the dispatch router. Partial
// success is still "completed" at the job level; per-line failures are
// recorded as retry-eligible failed items.
func (s *BatchService) process(ctx context.Context, job *domain.BatchJob, opts dispatch.Options) {
	recipients, err := s.jobs.ListLines(ctx, job.ID)
	if err != nil {
		s.failJob(ctx, job, fmt.Sprintf("failed to load lines: %v", err))
		return
	}

	responses, err := s.dispatcher.Dispatch(ctx, job.FromAddress, recipients, opts)
	if err != nil {
		// Precondition failure (unsupported token/chain combination):
		// nothing was signed, the job halts with a diagnostic.
		s.failJob(ctx, job, err.Error())
		return
	}

	for i, resp := range responses {
		recipient := recipients[i]
		if resp.Success {
			s.recordSuccess(ctx, job, recipient, resp)
		} else {
			s.recordFailure(ctx, job, i, recipient, resp.Error)
		}
		s.publisher.Publish(job.OwnerAddress, websocket.BatchJobProgress(map[string]interface{}{
			"jobId":     job.ID.String(),
			"processed": i + 1,
			"total":     len(responses),
		}))
	}

	if err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobProcessing, domain.JobCompleted, nil); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("Failed to complete job")
		return
	}

	final, err := s.jobs.GetByID(ctx, job.ID)
	if err == nil {
		s.logger.Info().
			Str("job_id", job.ID.String()).
			Int("succeeded", final.SuccessCount).
			Int("failed", final.FailCount).
			Msg("Batch job completed")
		s.publisher.Publish(job.OwnerAddress, websocket.BatchJobCompleted(final))
	}
}

func (s *BatchService) recordSuccess(ctx context.Context, job *domain.BatchJob, recipient domain.Recipient, resp domain.PayoutResponse) {
	info, _ := s.registry.Chain(recipient.ChainID)

	record := &domain.PaymentRecord{
		ID:           uuid.New().String(),
		OwnerAddress: job.OwnerAddress,
		ToAddress:    recipient.Address,
		Amount:       recipient.Amount,
		Token:        recipient.Token,
		Chain:        info.Slug(),
		TxHash:       resp.TxHash,
		ExecutedBy:   resp.ExecutedBy,
	}
	if err := s.payments.CreatePaymentRecord(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("tx_hash", resp.TxHash).Msg("Failed to write payment record")
	}

	entry := &domain.LedgerEntry{
		Account:   job.OwnerAddress,
		Token:     recipient.Token,
		Chain:     info.Slug(),
		EntryType: domain.EntryDebit,
		Amount:    recipient.Amount,
		Reference: resp.TxHash,
	}
	if err := s.ledger.CreateEntry(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("tx_hash", resp.TxHash).Msg("Failed to write ledger entry")
	}

	if err := s.jobs.RecordOutcome(ctx, job.ID, true); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("Failed to record outcome")
	}
}

func (s *BatchService) recordFailure(ctx context.Context, job *domain.BatchJob, index int, recipient domain.Recipient, reason string) {
	item := &domain.FailedItem{
		ID:           LineItemID(job.ID, index),
		JobID:        job.ID,
		OwnerAddress: job.OwnerAddress,
		Recipient:    recipient.Address,
		Amount:       recipient.Amount,
		Token:        recipient.Token,
		ChainID:      recipient.ChainID,
		Error:        reason,
	}
	if err := s.failed.Upsert(ctx, item); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID.String()).Int("line", index).Msg("Failed to record failed item")
	}
	if err := s.jobs.RecordOutcome(ctx, job.ID, false); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("Failed to record outcome")
	}
}

func (s *BatchService) failJob(ctx context.Context, job *domain.BatchJob, reason string) {
	if err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobProcessing, domain.JobFailed, &reason); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("Failed to mark job failed")
		return
	}
	s.logger.Warn().Str("job_id", job.ID.String()).Str("reason", reason).Msg("Batch job failed")
	s.publisher.Publish(job.OwnerAddress, websocket.BatchJobFailed(map[string]string{"jobId": job.ID.String(), "error": reason}))
}

// LineItemID derives the stable failed-item id for one logical line of
// a job. Re-processing the same line always yields the same id, which
// is what makes failure records idempotent.
func LineItemID(jobID uuid.UUID, index int) uuid.UUID {
	return uuid.NewSHA1(jobID, []byte(fmt.Sprintf("line:%d", index)))
}

func isHeaderRow(row []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "address")
}
