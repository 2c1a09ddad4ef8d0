package service

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/meridianpay/meridian-backend/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SettlementService reconciles internal ledger totals against reported
// on-chain balances over closed periods. All arithmetic is exact
// decimal; the tolerance threshold is the only place approximation
// enters.
type SettlementService struct {
	ledger      domain.LedgerRepository
	settlements domain.SettlementRepository
	tolerance   decimal.Decimal
	publisher   websocket.EventPublisher
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSettlementService creates a new SettlementService
func NewSettlementService(
	ledger domain.LedgerRepository,
	settlements domain.SettlementRepository,
	tolerance decimal.Decimal,
	logger zerolog.Logger,
) *SettlementService {
	if tolerance.Sign() < 0 {
		tolerance = decimal.Zero
	}
	return &SettlementService{
		ledger:      ledger,
		settlements: settlements,
		tolerance:   tolerance,
		publisher:   &websocket.NoOpPublisher{},
		logger:      logger.With().Str("component", "reconciliation").Logger(),
		now:         time.Now,
	}
}

// SetEventPublisher sets the publisher for real-time settlement updates
func (s *SettlementService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.publisher = publisher
}

// RecordEntry appends one immutable ledger entry.
func (s *SettlementService) RecordEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	if entry.Account == "" || entry.Token == "" || entry.Chain == "" {
		return domain.ErrInvalidInput
	}
	if entry.Amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	if entry.EntryType != domain.EntryDebit && entry.EntryType != domain.EntryCredit {
		return fmt.Errorf("%w: entry type must be DEBIT or CREDIT", domain.ErrInvalidInput)
	}
	return s.ledger.CreateEntry(ctx, entry)
}

// Balance returns the cumulative ledger balance for one account, token
// and chain.
func (s *SettlementService) Balance(ctx context.Context, account, token, chain string) (decimal.Decimal, error) {
	return s.ledger.Balance(ctx, account, token, chain)
}

// CreateSettlement reconciles one closed period [periodStart,
// periodEnd) for an account. onChainBalance, when provided, is the
// externally observed balance to compare the ledger against; without it
// the record stays pending for later comparison.
func (s *SettlementService) CreateSettlement(ctx context.Context, userAddress, token, chain string, periodStart, periodEnd time.Time, onChainBalance *decimal.Decimal) (*domain.SettlementRecord, error) {
	if userAddress == "" || token == "" || chain == "" {
		return nil, domain.ErrInvalidInput
	}
	if !periodStart.Before(periodEnd) {
		return nil, domain.ErrInvalidPeriod
	}

	totals, err := s.ledger.SumPeriod(ctx, userAddress, token, chain, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	ledgerBalance, err := s.ledger.Balance(ctx, userAddress, token, chain)
	if err != nil {
		return nil, err
	}

	id, err := s.nextID(ctx)
	if err != nil {
		return nil, err
	}

	record := &domain.SettlementRecord{
		ID:             id,
		UserAddress:    userAddress,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		Token:          token,
		Chain:          chain,
		TotalDebits:    totals.Debits,
		TotalCredits:   totals.Credits,
		NetAmount:      totals.Credits.Sub(totals.Debits),
		OnChainBalance: onChainBalance,
		LedgerBalance:  ledgerBalance,
		EntryCount:     totals.EntryCount,
		Status:         domain.SettlementPending,
	}

	if onChainBalance != nil {
		s.classify(record, *onChainBalance)
	}

	if err := s.settlements.Create(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("settlement_id", record.ID).
		Str("status", string(record.Status)).
		Str("net_amount", record.NetAmount.String()).
		Int("entries", record.EntryCount).
		Msg("Settlement record created")

	s.publisher.Publish(userAddress, websocket.SettlementCreated(record))
	return record, nil
}

// classify compares the ledger balance against the on-chain balance.
// A discrepancy within tolerance is normalized to zero so downstream
// consumers never see dust-level noise.
func (s *SettlementService) classify(record *domain.SettlementRecord, onChain decimal.Decimal) {
	discrepancy := onChain.Sub(record.LedgerBalance)
	if discrepancy.Abs().LessThanOrEqual(s.tolerance) {
		zero := decimal.Zero
		record.Discrepancy = &zero
		record.Status = domain.SettlementReconciled
		return
	}
	record.Discrepancy = &discrepancy
	record.Status = domain.SettlementDiscrepancyFound
}

// Compare attaches an on-chain balance to a pending settlement record
// and classifies it.
func (s *SettlementService) Compare(ctx context.Context, id string, onChainBalance decimal.Decimal) (*domain.SettlementRecord, error) {
	record, err := s.settlements.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != domain.SettlementPending && record.Status != domain.SettlementProcessing {
		return nil, fmt.Errorf("%w: settlement %s is %s", domain.ErrInvalidJobState, id, record.Status)
	}

	record.OnChainBalance = &onChainBalance
	s.classify(record, onChainBalance)

	if err := s.settlements.Update(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Get returns one settlement record.
func (s *SettlementService) Get(ctx context.Context, id string) (*domain.SettlementRecord, error) {
	return s.settlements.GetByID(ctx, id)
}

// List returns the most recent settlement records for a user.
func (s *SettlementService) List(ctx context.Context, userAddress string, limit int) ([]*domain.SettlementRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.settlements.List(ctx, userAddress, limit)
}

// ListDiscrepancies returns unresolved discrepancy records across all
// users, for the operations dashboard.
func (s *SettlementService) ListDiscrepancies(ctx context.Context, limit int) ([]*domain.SettlementRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.settlements.ListDiscrepancies(ctx, limit)
}

// ResolveDiscrepancy marks a discrepancy_found record resolved. Only a
// human decision moves a record out of discrepancy_found; the engine
// never auto-resolves.
func (s *SettlementService) ResolveDiscrepancy(ctx context.Context, id, resolvedBy, note string) (*domain.SettlementRecord, error) {
	if resolvedBy == "" || note == "" {
		return nil, fmt.Errorf("%w: resolver and note are required", domain.ErrInvalidInput)
	}

	record, err := s.settlements.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != domain.SettlementDiscrepancyFound {
		return nil, domain.ErrNotDiscrepant
	}

	resolvedAt := s.now()
	record.Status = domain.SettlementResolved
	record.ResolvedBy = &resolvedBy
	record.ResolutionNote = &note
	record.ResolvedAt = &resolvedAt

	if err := s.settlements.Update(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("settlement_id", record.ID).
		Str("resolved_by", resolvedBy).
		Msg("Settlement discrepancy resolved")

	s.publisher.Publish(record.UserAddress, websocket.SettlementResolved(record))
	return record, nil
}

// nextID generates a settlement id of the form STL-YYYYMMDD-NNN with a
// per-day sequence.
func (s *SettlementService) nextID(ctx context.Context) (string, error) {
	day := s.now().UTC()
	seq, err := s.settlements.NextSequence(ctx, day)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("STL-%s-%03d", day.Format("20060102"), seq), nil
}
