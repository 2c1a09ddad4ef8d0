package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/meridianpay/meridian-backend/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type retryFixture struct {
	svc        *RetryService
	jobs       *testutil.MockBatchJobRepository
	failed     *testutil.MockFailedItemRepository
	payments   *testutil.MockPaymentRepository
	ledger     *testutil.MockLedgerRepository
	dispatcher *stubDispatcher
}

func newRetryFixture() *retryFixture {
	f := &retryFixture{
		jobs:       testutil.NewMockBatchJobRepository(),
		failed:     testutil.NewMockFailedItemRepository(),
		payments:   testutil.NewMockPaymentRepository(),
		ledger:     testutil.NewMockLedgerRepository(),
		dispatcher: &stubDispatcher{},
	}
	f.svc = NewRetryService(f.failed, f.jobs, f.payments, f.ledger, f.dispatcher, domain.DefaultRegistry(), zerolog.Nop())
	return f
}

// seedFailedItem creates a parent job and one failed line under it.
func (f *retryFixture) seedFailedItem(t *testing.T, owner string) *domain.FailedItem {
	t.Helper()
	job := &domain.BatchJob{
		ID:           uuid.New(),
		OwnerAddress: owner,
		FromAddress:  testFrom,
		Status:       domain.JobCompleted,
	}
	if err := f.jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	item := &domain.FailedItem{
		ID:           LineItemID(job.ID, 0),
		JobID:        job.ID,
		OwnerAddress: owner,
		Recipient:    fmt.Sprintf("0x%040d", 1),
		Amount:       decimal.RequireFromString("42.75"),
		Token:        "USDC",
		ChainID:      1,
		Error:        "insufficient funds",
	}
	if err := f.failed.Upsert(context.Background(), item); err != nil {
		t.Fatalf("failed to seed item: %v", err)
	}
	return item
}

func TestRetry_SuccessClearsItem(t *testing.T) {
	f := newRetryFixture()
	item := f.seedFailedItem(t, testOwner)

	result, err := f.svc.Retry(context.Background(), testOwner, []uuid.UUID{item.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Succeeded) != 1 || len(result.StillFailed) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	if _, err := f.failed.GetByID(context.Background(), item.ID); !errors.Is(err, domain.ErrFailedItemNotFound) {
		t.Error("expected successful retry to remove the failed item")
	}
	if len(f.payments.Records) != 1 {
		t.Fatalf("expected 1 payment record, got %d", len(f.payments.Records))
	}
	if !f.payments.Records[0].Amount.Equal(item.Amount) {
		t.Errorf("payment amount %s, want %s", f.payments.Records[0].Amount, item.Amount)
	}
	if len(f.ledger.Entries) != 1 || f.ledger.Entries[0].EntryType != domain.EntryDebit {
		t.Errorf("expected one debit ledger entry, got %+v", f.ledger.Entries)
	}
}

func TestRetry_RepeatFailureOverwritesError(t *testing.T) {
	f := newRetryFixture()
	item := f.seedFailedItem(t, testOwner)
	f.dispatcher.fail = map[string]string{item.Recipient: "gas estimation failed"}

	result, err := f.svc.Retry(context.Background(), testOwner, []uuid.UUID{item.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.StillFailed) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	got, err := f.failed.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("expected item to survive: %v", err)
	}
	if got.Error != "gas estimation failed" {
		t.Errorf("expected latest error, got %q", got.Error)
	}
	if len(f.payments.Records) != 0 {
		t.Errorf("expected no payment records, got %d", len(f.payments.Records))
	}
}

func TestRetry_SkipsForeignAndUnknownItems(t *testing.T) {
	f := newRetryFixture()
	mine := f.seedFailedItem(t, testOwner)
	other := f.seedFailedItem(t, "0xcccccccccccccccccccccccccccccccccccccccc")

	result, err := f.svc.Retry(context.Background(), testOwner, []uuid.UUID{mine.ID, other.ID, uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Succeeded) != 1 || result.Succeeded[0] != mine.ID {
		t.Errorf("expected only own item retried, got %+v", result)
	}

	// The foreign item is untouched.
	if _, err := f.failed.GetByID(context.Background(), other.ID); err != nil {
		t.Errorf("expected foreign item to survive: %v", err)
	}
}

func TestRetry_EmptyRequest(t *testing.T) {
	f := newRetryFixture()
	if _, err := f.svc.Retry(context.Background(), testOwner, nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
