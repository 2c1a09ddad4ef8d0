package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/meridianpay/meridian-backend/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	testToken = "USDC"
	testChain = "ethereum"
)

type settlementFixture struct {
	svc         *SettlementService
	ledger      *testutil.MockLedgerRepository
	settlements *testutil.MockSettlementRepository
}

func newSettlementFixture(now time.Time, tolerance string) *settlementFixture {
	f := &settlementFixture{
		ledger:      testutil.NewMockLedgerRepository(),
		settlements: testutil.NewMockSettlementRepository(),
	}
	f.svc = NewSettlementService(f.ledger, f.settlements, decimal.RequireFromString(tolerance), zerolog.Nop())
	f.svc.now = func() time.Time { return now }
	return f
}

func (f *settlementFixture) seedEntry(t *testing.T, entryType domain.EntryType, amount string, at time.Time) {
	t.Helper()
	err := f.ledger.CreateEntry(context.Background(), &domain.LedgerEntry{
		Account:   testOwner,
		Token:     testToken,
		Chain:     testChain,
		EntryType: entryType,
		Amount:    decimal.RequireFromString(amount),
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("failed to seed entry: %v", err)
	}
}

func marchPeriod() (time.Time, time.Time) {
	return time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
}

func TestRecordEntry_Validation(t *testing.T) {
	f := newSettlementFixture(time.Now(), "0")

	err := f.svc.RecordEntry(context.Background(), &domain.LedgerEntry{
		Token: testToken, Chain: testChain, EntryType: domain.EntryDebit, Amount: decimal.RequireFromString("1"),
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for missing account, got %v", err)
	}

	err = f.svc.RecordEntry(context.Background(), &domain.LedgerEntry{
		Account: testOwner, Token: testToken, Chain: testChain, EntryType: domain.EntryDebit, Amount: decimal.Zero,
	})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}

	err = f.svc.RecordEntry(context.Background(), &domain.LedgerEntry{
		Account: testOwner, Token: testToken, Chain: testChain, EntryType: "TRANSFER", Amount: decimal.RequireFromString("1"),
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad entry type, got %v", err)
	}
}

func TestCreateSettlement_PeriodTotals(t *testing.T) {
	now := time.Date(2026, time.April, 2, 10, 0, 0, 0, time.UTC)
	f := newSettlementFixture(now, "0.01")
	start, end := marchPeriod()

	f.seedEntry(t, domain.EntryCredit, "1500", start.Add(24*time.Hour))
	f.seedEntry(t, domain.EntryDebit, "600", start.Add(48*time.Hour))
	f.seedEntry(t, domain.EntryDebit, "400", start.Add(72*time.Hour))
	// Outside the period: counted in the balance, not in the totals.
	f.seedEntry(t, domain.EntryCredit, "100", start.Add(-24*time.Hour))

	record, err := f.svc.CreateSettlement(context.Background(), testOwner, testToken, testChain, start, end, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != domain.SettlementPending {
		t.Errorf("expected pending without on-chain balance, got %s", record.Status)
	}
	if !record.TotalDebits.Equal(decimal.RequireFromString("1000")) {
		t.Errorf("total debits %s, want 1000", record.TotalDebits)
	}
	if !record.TotalCredits.Equal(decimal.RequireFromString("1500")) {
		t.Errorf("total credits %s, want 1500", record.TotalCredits)
	}
	if !record.NetAmount.Equal(decimal.RequireFromString("500")) {
		t.Errorf("net amount %s, want 500", record.NetAmount)
	}
	if record.EntryCount != 3 {
		t.Errorf("entry count %d, want 3", record.EntryCount)
	}
	if !record.LedgerBalance.Equal(decimal.RequireFromString("600")) {
		t.Errorf("ledger balance %s, want 600", record.LedgerBalance)
	}
}

func TestCreateSettlement_WithinToleranceReconciles(t *testing.T) {
	now := time.Date(2026, time.April, 2, 10, 0, 0, 0, time.UTC)
	f := newSettlementFixture(now, "0.01")
	start, end := marchPeriod()
	f.seedEntry(t, domain.EntryCredit, "500", start.Add(time.Hour))

	onChain := decimal.RequireFromString("500.005")
	record, err := f.svc.CreateSettlement(context.Background(), testOwner, testToken, testChain, start, end, &onChain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != domain.SettlementReconciled {
		t.Fatalf("expected reconciled, got %s", record.Status)
	}
	// Dust inside the tolerance is reported as exactly zero.
	if record.Discrepancy == nil || !record.Discrepancy.IsZero() {
		t.Errorf("expected zero discrepancy, got %v", record.Discrepancy)
	}
}

func TestCreateSettlement_ToleranceBoundary(t *testing.T) {
	now := time.Date(2026, time.April, 2, 10, 0, 0, 0, time.UTC)
	f := newSettlementFixture(now, "0.01")
	start, end := marchPeriod()
	f.seedEntry(t, domain.EntryCredit, "500", start.Add(time.Hour))

	// Exactly at the threshold still reconciles.
	onChain := decimal.RequireFromString("499.99")
	record, err := f.svc.CreateSettlement(context.Background(), testOwner, testToken, testChain, start, end, &onChain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != domain.SettlementReconciled {
		t.Errorf("expected reconciled at the boundary, got %s", record.Status)
	}
}

func TestCreateSettlement_DiscrepancyFound(t *testing.T) {
	now := time.Date(2026, time.April, 2, 10, 0, 0, 0, time.UTC)
	f := newSettlementFixture(now, "0.01")
	start, end := marchPeriod()
	f.seedEntry(t, domain.EntryCredit, "500", start.Add(time.Hour))

	onChain := decimal.RequireFromString("500.02")
	record, err := f.svc.CreateSettlement(context.Background(), testOwner, testToken, testChain, start, end, &onChain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != domain.SettlementDiscrepancyFound {
		t.Fatalf("expected discrepancy_found, got %s", record.Status)
	}
	// Signed as on-chain minus ledger.
	if record.Discrepancy == nil || !record.Discrepancy.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("expected discrepancy 0.02, got %v", record.Discrepancy)
	}
}

func TestCreateSettlement_InvalidPeriod(t *testing.T) {
	f := newSettlementFixture(time.Now(), "0")
	start, _ := marchPeriod()

	if _, err := f.svc.CreateSettlement(context.Background(), testOwner, testToken, testChain, start, start, nil); !errors.Is(err, domain.ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestSettlementIDSequence(t *testing.T) {
	now := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	f := newSettlementFixture(now, "0")
	start, end := marchPeriod()

	first, err := f.svc.CreateSettlement(context.Background(), testOwner, testToken, testChain, start, end, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != "STL-20260310-001" {
		t.Errorf("unexpected id %s", first.ID)
	}

	second, err := f.svc.CreateSettlement(context.Background(), testOwner, testToken, testChain, start, end, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID != "STL-20260310-002" {
		t.Errorf("unexpected id %s", second.ID)
	}
}

func TestCompare_ClassifiesPendingRecord(t *testing.T) {
	now := time.Date(2026, time.April, 2, 10, 0, 0, 0, time.UTC)
	f := newSettlementFixture(now, "0.01")
	start, end := marchPeriod()
	f.seedEntry(t, domain.EntryCredit, "500", start.Add(time.Hour))

	pending, err := f.svc.CreateSettlement(context.Background(), testOwner, testToken, testChain, start, end, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record, err := f.svc.Compare(context.Background(), pending.ID, decimal.RequireFromString("480"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != domain.SettlementDiscrepancyFound {
		t.Fatalf("expected discrepancy_found, got %s", record.Status)
	}

	// A classified record cannot be compared again.
	if _, err := f.svc.Compare(context.Background(), pending.ID, decimal.RequireFromString("500")); err == nil {
		t.Error("expected second compare to be rejected")
	}
}

func TestResolveDiscrepancy(t *testing.T) {
	now := time.Date(2026, time.April, 2, 10, 0, 0, 0, time.UTC)
	f := newSettlementFixture(now, "0.01")
	start, end := marchPeriod()
	f.seedEntry(t, domain.EntryCredit, "500", start.Add(time.Hour))

	onChain := decimal.RequireFromString("480")
	record, err := f.svc.CreateSettlement(context.Background(), testOwner, testToken, testChain, start, end, &onChain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.svc.ResolveDiscrepancy(context.Background(), record.ID, "", "note"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput without resolver, got %v", err)
	}

	resolved, err := f.svc.ResolveDiscrepancy(context.Background(), record.ID, "ops@meridianpay.io", "pending bridge deposit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Status != domain.SettlementResolved {
		t.Fatalf("expected resolved, got %s", resolved.Status)
	}
	if resolved.ResolvedBy == nil || *resolved.ResolvedBy != "ops@meridianpay.io" {
		t.Errorf("unexpected resolver %v", resolved.ResolvedBy)
	}
	if resolved.ResolvedAt == nil || !resolved.ResolvedAt.Equal(now) {
		t.Errorf("unexpected resolution time %v", resolved.ResolvedAt)
	}

	// Resolution is terminal.
	if _, err := f.svc.ResolveDiscrepancy(context.Background(), record.ID, "ops@meridianpay.io", "again"); !errors.Is(err, domain.ErrNotDiscrepant) {
		t.Errorf("expected ErrNotDiscrepant, got %v", err)
	}
}

func TestResolveDiscrepancy_OnlyFromDiscrepancyFound(t *testing.T) {
	now := time.Date(2026, time.April, 2, 10, 0, 0, 0, time.UTC)
	f := newSettlementFixture(now, "0.01")
	start, end := marchPeriod()
	f.seedEntry(t, domain.EntryCredit, "500", start.Add(time.Hour))

	onChain := decimal.RequireFromString("500")
	record, err := f.svc.CreateSettlement(context.Background(), testOwner, testToken, testChain, start, end, &onChain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != domain.SettlementReconciled {
		t.Fatalf("expected reconciled, got %s", record.Status)
	}

	if _, err := f.svc.ResolveDiscrepancy(context.Background(), record.ID, "ops", "note"); !errors.Is(err, domain.ErrNotDiscrepant) {
		t.Errorf("expected ErrNotDiscrepant, got %v", err)
	}
}

func TestCreateSettlement_RepeatObservationIsIdempotent(t *testing.T) {
	now := time.Date(2026, time.April, 2, 10, 0, 0, 0, time.UTC)
	f := newSettlementFixture(now, "0.01")
	start, end := marchPeriod()

	f.seedEntry(t, domain.EntryCredit, "750", start.Add(24*time.Hour))
	f.seedEntry(t, domain.EntryDebit, "250", start.Add(48*time.Hour))

	onChain := decimal.RequireFromString("500.005")
	first, err := f.svc.CreateSettlement(context.Background(), testOwner, testToken, testChain, start, end, &onChain)
	if err != nil {
		t.Fatalf("first run: unexpected error: %v", err)
	}
	second, err := f.svc.CreateSettlement(context.Background(), testOwner, testToken, testChain, start, end, &onChain)
	if err != nil {
		t.Fatalf("second run: unexpected error: %v", err)
	}

	// Re-running over an unchanged ledger and the same observation
	// yields the same verdict; only the record id advances.
	if first.Status != second.Status {
		t.Errorf("status diverged: %s vs %s", first.Status, second.Status)
	}
	if first.Status != domain.SettlementReconciled {
		t.Errorf("expected reconciled, got %s", first.Status)
	}
	if !first.Discrepancy.Equal(*second.Discrepancy) {
		t.Errorf("discrepancy diverged: %s vs %s", first.Discrepancy, second.Discrepancy)
	}
	if !first.NetAmount.Equal(second.NetAmount) {
		t.Errorf("net amount diverged: %s vs %s", first.NetAmount, second.NetAmount)
	}
	if !first.LedgerBalance.Equal(second.LedgerBalance) {
		t.Errorf("ledger balance diverged: %s vs %s", first.LedgerBalance, second.LedgerBalance)
	}
	if first.EntryCount != second.EntryCount {
		t.Errorf("entry count diverged: %d vs %d", first.EntryCount, second.EntryCount)
	}
	if first.ID == second.ID {
		t.Errorf("expected distinct record ids, both %s", first.ID)
	}
}
