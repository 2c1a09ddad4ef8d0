package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/meridianpay/meridian-backend/internal/dispatch"
	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/meridianpay/meridian-backend/internal/testutil"
	"github.com/rs/zerolog"
)

const (
	testOwner = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testFrom  = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// stubDispatcher returns one response per recipient, scripted to fail
// for specific addresses.
type stubDispatcher struct {
	calls [][]domain.Recipient
	fail  map[string]string
	err   error
}

func (s *stubDispatcher) Dispatch(ctx context.Context, fromAddress string, recipients []domain.Recipient, opts dispatch.Options) ([]domain.PayoutResponse, error) {
	s.calls = append(s.calls, recipients)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.PayoutResponse, len(recipients))
	for i, r := range recipients {
		if msg, ok := s.fail[r.Address]; ok {
			out[i] = domain.PayoutResponse{Success: false, Error: msg, ToAddress: r.Address}
			continue
		}
		out[i] = domain.PayoutResponse{
			Success:    true,
			TxHash:     fmt.Sprintf("0xtx%d", i),
			ExecutedBy: domain.ExecutedByRemote,
			ToAddress:  r.Address,
		}
	}
	return out, nil
}

type batchFixture struct {
	svc        *BatchService
	jobs       *testutil.MockBatchJobRepository
	failed     *testutil.MockFailedItemRepository
	payments   *testutil.MockPaymentRepository
	ledger     *testutil.MockLedgerRepository
	dispatcher *stubDispatcher
}

func newBatchFixture() *batchFixture {
	f := &batchFixture{
		jobs:       testutil.NewMockBatchJobRepository(),
		failed:     testutil.NewMockFailedItemRepository(),
		payments:   testutil.NewMockPaymentRepository(),
		ledger:     testutil.NewMockLedgerRepository(),
		dispatcher: &stubDispatcher{},
	}
	f.svc = NewBatchService(f.jobs, f.failed, f.payments, f.ledger, f.dispatcher, domain.DefaultRegistry(), zerolog.Nop())
	return f
}

// queuedJob creates a job in the queued state, as Submit would.
func (f *batchFixture) queuedJob(t *testing.T) *domain.BatchJob {
	t.Helper()
	job := &domain.BatchJob{
		ID:           uuid.New(),
		OwnerAddress: testOwner,
		FromAddress:  testFrom,
		Status:       domain.JobQueued,
	}
	if err := f.jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	return job
}

func validRow(i int) []string {
	return []string{fmt.Sprintf("0x%040d", i), "10.50", "USDC", "1"}
}

func TestSubmit_RequiresOwnerAndSource(t *testing.T) {
	f := newBatchFixture()

	_, err := f.svc.Submit(context.Background(), "", testFrom, strings.NewReader(""))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty owner, got %v", err)
	}

	_, err = f.svc.Submit(context.Background(), testOwner, testFrom, strings.NewReader("a,b,c\nd,e"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for malformed csv, got %v", err)
	}
}

func TestParse_ValidAndInvalidRows(t *testing.T) {
	f := newBatchFixture()
	job := f.queuedJob(t)

	records := [][]string{{"address", "amount", "token", "chain_id"}}
	for i := 0; i < 10; i++ {
		records = append(records, validRow(i))
	}
	records = append(records,
		[]string{"not-an-address", "10", "USDC", "1"},
		[]string{fmt.Sprintf("0x%040d", 99), "-5", "USDC", "1"},
	)

	f.svc.parse(context.Background(), job.ID, testOwner, records)

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("failed to load job: %v", err)
	}
	if got.Status != domain.JobPendingApproval {
		t.Fatalf("expected pending_approval, got %s", got.Status)
	}
	if got.TotalLines != 12 {
		t.Errorf("expected 12 total lines, got %d", got.TotalLines)
	}
	if got.ParsedCount != 10 {
		t.Errorf("expected 10 parsed lines, got %d", got.ParsedCount)
	}
	if got.InvalidCount != 2 {
		t.Errorf("expected 2 invalid lines, got %d", got.InvalidCount)
	}
	if got.ChunkCount != 1 {
		t.Errorf("expected 1 chunk, got %d", got.ChunkCount)
	}
	if got.Summary == nil {
		t.Fatal("expected parse summary")
	}
	if len(got.Summary.Preview) != 5 {
		t.Errorf("expected preview of 5 rows, got %d", len(got.Summary.Preview))
	}
}

func TestParse_NoValidLinesFailsJob(t *testing.T) {
	f := newBatchFixture()
	job := f.queuedJob(t)

	records := [][]string{
		{"address", "amount", "token", "chain_id"},
		{"garbage", "10", "USDC", "1"},
	}
	f.svc.parse(context.Background(), job.ID, testOwner, records)

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("failed to load job: %v", err)
	}
	if got.Status != domain.JobFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Error == nil || !strings.Contains(*got.Error, "line 2") {
		t.Errorf("expected diagnostic naming the first invalid line, got %v", got.Error)
	}
}

func TestParseRow_MemoAndName(t *testing.T) {
	f := newBatchFixture()

	row := append(validRow(1), "Alice", "march payroll")
	recipient, err := f.svc.parseRow(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recipient.Name != "Alice" || recipient.Memo != "march payroll" {
		t.Errorf("unexpected recipient %+v", recipient)
	}

	long := append(validRow(1), "", strings.Repeat("x", domain.MaxMemoLength+1))
	if _, err := f.svc.parseRow(long); err == nil {
		t.Error("expected oversized memo to be rejected")
	}
}

func TestApprove_RequiresPendingApproval(t *testing.T) {
	f := newBatchFixture()
	job := f.queuedJob(t)

	_, err := f.svc.Approve(context.Background(), job.ID, dispatch.Options{})
	if !errors.Is(err, domain.ErrInvalidJobState) {
		t.Errorf("expected ErrInvalidJobState for queued job, got %v", err)
	}
	if len(f.dispatcher.calls) != 0 {
		t.Error("no funds may move before approval")
	}
}

func TestProcess_RecordsOutcomes(t *testing.T) {
	f := newBatchFixture()
	job := f.queuedJob(t)

	bad := validRow(1)
	f.dispatcher.fail = map[string]string{bad[0]: "insufficient funds"}

	records := [][]string{validRow(0), bad, validRow(2)}
	f.svc.parse(context.Background(), job.ID, testOwner, records)
	if err := f.jobs.UpdateStatus(context.Background(), job.ID, domain.JobPendingApproval, domain.JobProcessing, nil); err != nil {
		t.Fatalf("failed to approve: %v", err)
	}

	f.svc.process(context.Background(), job, dispatch.Options{})

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("failed to load job: %v", err)
	}
	if got.Status != domain.JobCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.SuccessCount != 2 || got.FailCount != 1 {
		t.Errorf("expected 2 succeeded / 1 failed, got %d / %d", got.SuccessCount, got.FailCount)
	}
	if got.SuccessCount+got.FailCount != got.ParsedCount {
		t.Errorf("outcome counts %d+%d do not cover %d parsed lines", got.SuccessCount, got.FailCount, got.ParsedCount)
	}

	// The failed line gets its stable id so a re-run cannot duplicate it.
	item, err := f.failed.GetByID(context.Background(), LineItemID(job.ID, 1))
	if err != nil {
		t.Fatalf("expected failed item for line 1: %v", err)
	}
	if item.Error != "insufficient funds" {
		t.Errorf("unexpected failed item error %q", item.Error)
	}

	if len(f.payments.Records) != 2 {
		t.Errorf("expected 2 payment records, got %d", len(f.payments.Records))
	}
	if len(f.ledger.Entries) != 2 {
		t.Errorf("expected 2 ledger entries, got %d", len(f.ledger.Entries))
	}
	for _, e := range f.ledger.Entries {
		if e.EntryType != domain.EntryDebit {
			t.Errorf("expected debit entry, got %s", e.EntryType)
		}
		if e.Account != testOwner {
			t.Errorf("expected owner account, got %s", e.Account)
		}
	}
}

func TestProcess_DispatchPreconditionFailsJob(t *testing.T) {
	f := newBatchFixture()
	job := f.queuedJob(t)

	f.svc.parse(context.Background(), job.ID, testOwner, [][]string{validRow(0)})
	if err := f.jobs.UpdateStatus(context.Background(), job.ID, domain.JobPendingApproval, domain.JobProcessing, nil); err != nil {
		t.Fatalf("failed to approve: %v", err)
	}

	f.dispatcher.err = domain.ErrUnsupportedToken
	f.svc.process(context.Background(), job, dispatch.Options{})

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("failed to load job: %v", err)
	}
	if got.Status != domain.JobFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if len(f.payments.Records) != 0 {
		t.Errorf("expected no payments, got %d", len(f.payments.Records))
	}
}

func TestCancel_BeforeApprovalOnly(t *testing.T) {
	f := newBatchFixture()
	job := f.queuedJob(t)
	f.svc.parse(context.Background(), job.ID, testOwner, [][]string{validRow(0)})

	got, err := f.svc.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.JobFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Error == nil || !strings.Contains(*got.Error, "cancelled") {
		t.Errorf("expected cancellation reason, got %v", got.Error)
	}

	// A second cancel has nothing to cancel.
	if _, err := f.svc.Cancel(context.Background(), job.ID); !errors.Is(err, domain.ErrInvalidJobState) {
		t.Errorf("expected ErrInvalidJobState, got %v", err)
	}
}

func TestLineItemID_Deterministic(t *testing.T) {
	f := newBatchFixture()
	job := f.queuedJob(t)

	a := LineItemID(job.ID, 7)
	b := LineItemID(job.ID, 7)
	if a != b {
		t.Error("expected stable id for the same job line")
	}
	if a == LineItemID(job.ID, 8) {
		t.Error("expected distinct ids for distinct lines")
	}
}
