package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meridianpay/meridian-backend/internal/chain"
	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// MockBatchJobRepository is a mock implementation of domain.BatchJobRepository
type MockBatchJobRepository struct {
	mu    sync.Mutex
	Jobs  map[uuid.UUID]*domain.BatchJob
	Lines map[uuid.UUID][]domain.Recipient
}

// NewMockBatchJobRepository creates a new MockBatchJobRepository
func NewMockBatchJobRepository() *MockBatchJobRepository {
	return &MockBatchJobRepository{
		Jobs:  make(map[uuid.UUID]*domain.BatchJob),
		Lines: make(map[uuid.UUID][]domain.Recipient),
	}
}

// Create inserts a new batch job
func (m *MockBatchJobRepository) Create(ctx context.Context, job *domain.BatchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	copied := *job
	m.Jobs[job.ID] = &copied
	return nil
}

// GetByID retrieves a batch job by ID
func (m *MockBatchJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.Jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

// UpdateStatus transitions the job only when it is in the expected state
func (m *MockBatchJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next domain.BatchJobStatus, reason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.Jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != expected {
		return domain.ErrInvalidJobState
	}
	job.Status = next
	if reason != nil {
		job.Error = reason
	}
	job.UpdatedAt = time.Now()
	return nil
}

// SetParseResult stores the parsed lines and counts
func (m *MockBatchJobRepository) SetParseResult(ctx context.Context, id uuid.UUID, lines []domain.Recipient, summary domain.ParseSummary, totalLines, chunkCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.Jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != domain.JobParsing {
		return domain.ErrInvalidJobState
	}
	job.Status = domain.JobPendingApproval
	job.TotalLines = totalLines
	job.ParsedCount = len(lines)
	job.InvalidCount = summary.InvalidCount
	job.ChunkCount = chunkCount
	job.Summary = &summary
	m.Lines[id] = append([]domain.Recipient(nil), lines...)
	return nil
}

// ListLines returns the parsed lines of a job
func (m *MockBatchJobRepository) ListLines(ctx context.Context, id uuid.UUID) ([]domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Jobs[id]; !ok {
		return nil, domain.ErrJobNotFound
	}
	return append([]domain.Recipient(nil), m.Lines[id]...), nil
}

// RecordOutcome increments the success or fail counter
func (m *MockBatchJobRepository) RecordOutcome(ctx context.Context, id uuid.UUID, succeeded bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.Jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if succeeded {
		job.SuccessCount++
	} else {
		job.FailCount++
	}
	return nil
}

// MockFailedItemRepository is a mock implementation of domain.FailedItemRepository
type MockFailedItemRepository struct {
	mu    sync.Mutex
	Items map[uuid.UUID]*domain.FailedItem
}

// NewMockFailedItemRepository creates a new MockFailedItemRepository
func NewMockFailedItemRepository() *MockFailedItemRepository {
	return &MockFailedItemRepository{Items: make(map[uuid.UUID]*domain.FailedItem)}
}

// Upsert creates the item or replaces the error of an existing one
func (m *MockFailedItemRepository) Upsert(ctx context.Context, item *domain.FailedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.Items[item.ID]; ok {
		existing.Error = item.Error
		existing.UpdatedAt = time.Now()
		return nil
	}
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	copied := *item
	m.Items[item.ID] = &copied
	return nil
}

// GetByID retrieves a failed item by ID
func (m *MockFailedItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.FailedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.Items[id]
	if !ok {
		return nil, domain.ErrFailedItemNotFound
	}
	copied := *item
	return &copied, nil
}

// Delete removes a failed item
func (m *MockFailedItemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Items[id]; !ok {
		return domain.ErrFailedItemNotFound
	}
	delete(m.Items, id)
	return nil
}

// ListByJob returns all failed items for a job
func (m *MockFailedItemRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.FailedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*domain.FailedItem
	for _, item := range m.Items {
		if item.JobID == jobID {
			copied := *item
			items = append(items, &copied)
		}
	}
	return items, nil
}

// ListByOwner returns all failed items for an owner
func (m *MockFailedItemRepository) ListByOwner(ctx context.Context, owner string) ([]*domain.FailedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*domain.FailedItem
	for _, item := range m.Items {
		if item.OwnerAddress == owner {
			copied := *item
			items = append(items, &copied)
		}
	}
	return items, nil
}

// MockPaymentRepository is a mock implementation of domain.PaymentRepository
type MockPaymentRepository struct {
	mu      sync.Mutex
	Records []*domain.PaymentRecord
}

// NewMockPaymentRepository creates a new MockPaymentRepository
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{}
}

// CreatePaymentRecord appends one audit row
func (m *MockPaymentRepository) CreatePaymentRecord(ctx context.Context, record *domain.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.CreatedAt = time.Now()
	copied := *record
	m.Records = append(m.Records, &copied)
	return nil
}

// MockLedgerRepository is an in-memory implementation of domain.LedgerRepository
// that aggregates with real decimal arithmetic
type MockLedgerRepository struct {
	mu      sync.Mutex
	Entries []*domain.LedgerEntry
	nextID  int64
}

// NewMockLedgerRepository creates a new MockLedgerRepository
func NewMockLedgerRepository() *MockLedgerRepository {
	return &MockLedgerRepository{}
}

// CreateEntry appends one ledger entry
func (m *MockLedgerRepository) CreateEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	copied := *entry
	m.Entries = append(m.Entries, &copied)
	return nil
}

// SumPeriod aggregates entries within [from, to)
func (m *MockLedgerRepository) SumPeriod(ctx context.Context, account, token, chainName string, from, to time.Time) (*domain.LedgerTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := &domain.LedgerTotals{Debits: decimal.Zero, Credits: decimal.Zero}
	for _, e := range m.Entries {
		if e.Account != account || e.Token != token || e.Chain != chainName {
			continue
		}
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		totals.EntryCount++
		if e.EntryType == domain.EntryDebit {
			totals.Debits = totals.Debits.Add(e.Amount)
		} else {
			totals.Credits = totals.Credits.Add(e.Amount)
		}
	}
	return totals, nil
}

// Balance returns credits minus debits over all entries
func (m *MockLedgerRepository) Balance(ctx context.Context, account, token, chainName string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance := decimal.Zero
	for _, e := range m.Entries {
		if e.Account != account || e.Token != token || e.Chain != chainName {
			continue
		}
		if e.EntryType == domain.EntryCredit {
			balance = balance.Add(e.Amount)
		} else {
			balance = balance.Sub(e.Amount)
		}
	}
	return balance, nil
}

// MockScheduledPaymentRepository is a mock implementation of domain.ScheduledPaymentRepository
type MockScheduledPaymentRepository struct {
	mu       sync.Mutex
	Payments map[uuid.UUID]*domain.ScheduledPayment
	claimed  map[uuid.UUID]time.Time
}

// NewMockScheduledPaymentRepository creates a new MockScheduledPaymentRepository
func NewMockScheduledPaymentRepository() *MockScheduledPaymentRepository {
	return &MockScheduledPaymentRepository{
		Payments: make(map[uuid.UUID]*domain.ScheduledPayment),
		claimed:  make(map[uuid.UUID]time.Time),
	}
}

// Create inserts a new scheduled payment
func (m *MockScheduledPaymentRepository) Create(ctx context.Context, sp *domain.ScheduledPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp.CreatedAt = time.Now()
	sp.UpdatedAt = sp.CreatedAt
	copied := *sp
	m.Payments[sp.ID] = &copied
	return nil
}

// GetByID retrieves a scheduled payment by ID
func (m *MockScheduledPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.Payments[id]
	if !ok {
		return nil, domain.ErrScheduleNotFound
	}
	copied := *sp
	return &copied, nil
}

// ListByOwner returns all scheduled payments for an owner
func (m *MockScheduledPaymentRepository) ListByOwner(ctx context.Context, owner string) ([]*domain.ScheduledPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.ScheduledPayment
	for _, sp := range m.Payments {
		if sp.OwnerAddress == owner {
			copied := *sp
			result = append(result, &copied)
		}
	}
	return result, nil
}

// Update replaces the mutable fields of a scheduled payment
func (m *MockScheduledPaymentRepository) Update(ctx context.Context, sp *domain.ScheduledPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Payments[sp.ID]; !ok {
		return domain.ErrScheduleNotFound
	}
	sp.UpdatedAt = time.Now()
	copied := *sp
	m.Payments[sp.ID] = &copied
	return nil
}

// UpdateStatus updates only the lifecycle status
func (m *MockScheduledPaymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ScheduledPaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.Payments[id]
	if !ok {
		return domain.ErrScheduleNotFound
	}
	sp.Status = status
	sp.UpdatedAt = time.Now()
	return nil
}

// ListDue returns active unclaimed payments due at or before now
func (m *MockScheduledPaymentRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*domain.ScheduledPayment
	for _, sp := range m.Payments {
		if len(due) >= limit {
			break
		}
		if _, taken := m.claimed[sp.ID]; taken {
			continue
		}
		if sp.Status == domain.ScheduleActive && !sp.NextExecution.After(now) {
			copied := *sp
			due = append(due, &copied)
		}
	}
	return due, nil
}

// ClaimDue atomically claims due payments; a claimed payment is
// invisible to a concurrent sweep until released
func (m *MockScheduledPaymentRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*domain.ScheduledPayment
	for _, sp := range m.Payments {
		if len(due) >= limit {
			break
		}
		if _, taken := m.claimed[sp.ID]; taken {
			continue
		}
		if sp.Status == domain.ScheduleActive && !sp.NextExecution.After(now) {
			m.claimed[sp.ID] = now
			copied := *sp
			due = append(due, &copied)
		}
	}
	return due, nil
}

// Release persists the advanced state and clears the claim
func (m *MockScheduledPaymentRepository) Release(ctx context.Context, sp *domain.ScheduledPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Payments[sp.ID]; !ok {
		return domain.ErrScheduleNotFound
	}
	delete(m.claimed, sp.ID)
	sp.UpdatedAt = time.Now()
	copied := *sp
	m.Payments[sp.ID] = &copied
	return nil
}

// ReleaseStale clears claims taken before cutoff
func (m *MockScheduledPaymentRepository) ReleaseStale(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cleared := 0
	for id, at := range m.claimed {
		if at.Before(cutoff) {
			delete(m.claimed, id)
			cleared++
		}
	}
	return cleared, nil
}

// ClaimedCount returns the number of currently claimed payments
func (m *MockScheduledPaymentRepository) ClaimedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.claimed)
}

// MockScheduledPaymentLogRepository is a mock implementation of domain.ScheduledPaymentLogRepository
type MockScheduledPaymentLogRepository struct {
	mu   sync.Mutex
	Logs []*domain.ScheduledPaymentLog
}

// NewMockScheduledPaymentLogRepository creates a new MockScheduledPaymentLogRepository
func NewMockScheduledPaymentLogRepository() *MockScheduledPaymentLogRepository {
	return &MockScheduledPaymentLogRepository{}
}

// Create appends one log row
func (m *MockScheduledPaymentLogRepository) Create(ctx context.Context, log *domain.ScheduledPaymentLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *log
	m.Logs = append(m.Logs, &copied)
	return nil
}

// ListBySchedule returns log rows for a schedule, newest first
func (m *MockScheduledPaymentLogRepository) ListBySchedule(ctx context.Context, scheduleID uuid.UUID, limit int) ([]*domain.ScheduledPaymentLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var logs []*domain.ScheduledPaymentLog
	for i := len(m.Logs) - 1; i >= 0 && len(logs) < limit; i-- {
		if m.Logs[i].ScheduleID == scheduleID {
			copied := *m.Logs[i]
			logs = append(logs, &copied)
		}
	}
	return logs, nil
}

// MockSettlementRepository is a mock implementation of domain.SettlementRepository
type MockSettlementRepository struct {
	mu      sync.Mutex
	Records map[string]*domain.SettlementRecord
	seqs    map[string]int
}

// NewMockSettlementRepository creates a new MockSettlementRepository
func NewMockSettlementRepository() *MockSettlementRepository {
	return &MockSettlementRepository{
		Records: make(map[string]*domain.SettlementRecord),
		seqs:    make(map[string]int),
	}
}

// Create inserts a new settlement record
func (m *MockSettlementRepository) Create(ctx context.Context, record *domain.SettlementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.CreatedAt = time.Now()
	copied := *record
	m.Records[record.ID] = &copied
	return nil
}

// GetByID retrieves a settlement record by ID
func (m *MockSettlementRepository) GetByID(ctx context.Context, id string) (*domain.SettlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.Records[id]
	if !ok {
		return nil, domain.ErrSettlementNotFound
	}
	copied := *record
	return &copied, nil
}

// List returns settlement records for a user
func (m *MockSettlementRepository) List(ctx context.Context, userAddress string, limit int) ([]*domain.SettlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []*domain.SettlementRecord
	for _, record := range m.Records {
		if len(records) >= limit {
			break
		}
		if record.UserAddress == userAddress {
			copied := *record
			records = append(records, &copied)
		}
	}
	return records, nil
}

// ListDiscrepancies returns records in discrepancy_found state
func (m *MockSettlementRepository) ListDiscrepancies(ctx context.Context, limit int) ([]*domain.SettlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []*domain.SettlementRecord
	for _, record := range m.Records {
		if len(records) >= limit {
			break
		}
		if record.Status == domain.SettlementDiscrepancyFound {
			copied := *record
			records = append(records, &copied)
		}
	}
	return records, nil
}

// Update replaces a settlement record
func (m *MockSettlementRepository) Update(ctx context.Context, record *domain.SettlementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Records[record.ID]; !ok {
		return domain.ErrSettlementNotFound
	}
	copied := *record
	m.Records[record.ID] = &copied
	return nil
}

// NextSequence returns the next per-day sequence number
func (m *MockSettlementRepository) NextSequence(ctx context.Context, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := day.Format("2006-01-02")
	m.seqs[key]++
	return m.seqs[key], nil
}

// MockWallet is a scriptable chain.Wallet that records every network switch
type MockWallet struct {
	mu        sync.Mutex
	active    uint64
	Switches  []uint64
	SwitchErr error
}

// NewMockWallet creates a wallet with the given active chain
func NewMockWallet(active uint64) *MockWallet {
	return &MockWallet{active: active}
}

// ActiveChain returns the current signing network
func (m *MockWallet) ActiveChain() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// SwitchChain records the switch and changes the active network
func (m *MockWallet) SwitchChain(ctx context.Context, chainID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SwitchErr != nil {
		return m.SwitchErr
	}
	m.Switches = append(m.Switches, chainID)
	m.active = chainID
	return nil
}

// MockTransferClient is a scriptable chain.TransferClient
type MockTransferClient struct {
	mu                    sync.Mutex
	SignAndBroadcastFn    func(ctx context.Context, req chain.TransferRequest) (string, error)
	WaitForConfirmationFn func(ctx context.Context, chainID uint64, txHash string) (*chain.Receipt, error)
	BatchTransferFn       func(ctx context.Context, req chain.BatchTransferRequest) (*chain.BatchTransferResult, error)
	TransferCalls         int
	ConfirmCalls          int
	BatchCalls            int
}

// NewMockTransferClient creates a client that confirms every transfer
func NewMockTransferClient() *MockTransferClient {
	return &MockTransferClient{}
}

// SignAndBroadcast signs and broadcasts one transfer
func (m *MockTransferClient) SignAndBroadcast(ctx context.Context, req chain.TransferRequest) (string, error) {
	m.mu.Lock()
	m.TransferCalls++
	n := m.TransferCalls
	fn := m.SignAndBroadcastFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return fmt.Sprintf("0xmock%d", n), nil
}

// WaitForConfirmation confirms immediately
func (m *MockTransferClient) WaitForConfirmation(ctx context.Context, chainID uint64, txHash string) (*chain.Receipt, error) {
	m.mu.Lock()
	m.ConfirmCalls++
	fn := m.WaitForConfirmationFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, chainID, txHash)
	}
	return &chain.Receipt{TxHash: txHash, BlockNumber: 1, Confirmed: true}, nil
}

// BatchTransfer executes one batch-transfer call
func (m *MockTransferClient) BatchTransfer(ctx context.Context, req chain.BatchTransferRequest) (*chain.BatchTransferResult, error) {
	m.mu.Lock()
	m.BatchCalls++
	n := m.BatchCalls
	fn := m.BatchTransferFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return &chain.BatchTransferResult{Success: true, TxHash: fmt.Sprintf("0xbatch%d", n)}, nil
}
