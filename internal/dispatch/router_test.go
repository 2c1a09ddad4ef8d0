package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/meridianpay/meridian-backend/internal/chain"
	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/meridianpay/meridian-backend/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type stubExecutor struct {
	calls []domain.PayoutRequest
	fail  map[string]string // to-address -> error message
}

func (s *stubExecutor) ExecutePayout(ctx context.Context, req domain.PayoutRequest) domain.PayoutResponse {
	s.calls = append(s.calls, req)
	if msg, ok := s.fail[req.ToAddress]; ok {
		return domain.PayoutResponse{Success: false, Error: msg, ExecutedBy: domain.ExecutedByRemote, ToAddress: req.ToAddress}
	}
	return domain.PayoutResponse{
		Success:    true,
		TxHash:     fmt.Sprintf("0xseq%d", len(s.calls)),
		ExecutedBy: domain.ExecutedByRemote,
		ToAddress:  req.ToAddress,
	}
}

func evmRecipient(i int, chainID uint64, token string) domain.Recipient {
	return domain.Recipient{
		Address: fmt.Sprintf("0x%040d", i),
		Amount:  decimal.RequireFromString("10"),
		Token:   token,
		ChainID: chainID,
	}
}

func tronRecipient(i int) domain.Recipient {
	return domain.Recipient{
		Address: fmt.Sprintf("TJRabPrwbZy45sbavfcjinPJC18kjpR%03d", i),
		Amount:  decimal.RequireFromString("5"),
		Token:   "USDT",
		ChainID: 728126428,
	}
}

func newTestRouter(executor Executor, wallet *testutil.MockWallet) (*Router, *testutil.MockTransferClient) {
	client := testutil.NewMockTransferClient()
	// A nil *MockWallet must stay a nil chain.Wallet interface.
	var w chain.Wallet
	if wallet != nil {
		w = wallet
	}
	return NewRouter(executor, w, client, domain.DefaultRegistry(), zerolog.Nop()), client
}

func TestDispatch_MixedFamiliesInOrder(t *testing.T) {
	executor := &stubExecutor{}
	wallet := testutil.NewMockWallet(137)
	router, _ := newTestRouter(executor, wallet)

	recipients := []domain.Recipient{
		evmRecipient(0, 137, "USDC"),
		tronRecipient(1),
		evmRecipient(2, 137, "USDC"),
		evmRecipient(3, 137, "USDT"),
		tronRecipient(4),
		evmRecipient(5, 137, "USDC"),
		evmRecipient(6, 137, "USDC"),
	}

	responses, err := router.Dispatch(context.Background(), "0xfrom", recipients, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(responses) != 7 {
		t.Fatalf("expected 7 responses, got %d", len(responses))
	}
	for i, resp := range responses {
		if !resp.Success {
			t.Errorf("recipient %d failed: %s", i, resp.Error)
		}
		if resp.ToAddress != recipients[i].Address {
			t.Errorf("recipient %d: response out of order, got %s", i, resp.ToAddress)
		}
	}
	for _, i := range []int{1, 4} {
		if responses[i].ChainFamily != domain.FamilyTron {
			t.Errorf("expected tron family on recipient %d", i)
		}
	}

	// One switch to TRON, then a restore back to the original network.
	if len(wallet.Switches) != 2 {
		t.Fatalf("expected 2 network switches, got %v", wallet.Switches)
	}
	if wallet.Switches[0] != 728126428 || wallet.Switches[1] != 137 {
		t.Errorf("unexpected switch sequence %v", wallet.Switches)
	}
	if wallet.ActiveChain() != 137 {
		t.Errorf("expected original network restored, got %d", wallet.ActiveChain())
	}
}

func TestDispatch_RejectsUnsupportedTokenUpFront(t *testing.T) {
	executor := &stubExecutor{}
	wallet := testutil.NewMockWallet(1)
	router, _ := newTestRouter(executor, wallet)

	recipients := []domain.Recipient{
		evmRecipient(0, 1, "USDC"),
		{Address: tronRecipient(1).Address, Amount: decimal.RequireFromString("5"), Token: "USDC", ChainID: 728126428},
	}

	_, err := router.Dispatch(context.Background(), "0xfrom", recipients, Options{})
	if !errors.Is(err, domain.ErrUnsupportedToken) {
		t.Fatalf("expected ErrUnsupportedToken, got %v", err)
	}
	if len(executor.calls) != 0 {
		t.Errorf("expected no execution before validation, got %d calls", len(executor.calls))
	}
	if len(wallet.Switches) != 0 {
		t.Errorf("expected no network switches, got %v", wallet.Switches)
	}
}

func TestDispatch_RejectsUnknownChain(t *testing.T) {
	executor := &stubExecutor{}
	router, _ := newTestRouter(executor, testutil.NewMockWallet(1))

	recipients := []domain.Recipient{evmRecipient(0, 555, "USDC")}
	_, err := router.Dispatch(context.Background(), "0xfrom", recipients, Options{})
	if !errors.Is(err, domain.ErrUnknownChain) {
		t.Fatalf("expected ErrUnknownChain, got %v", err)
	}
}

func TestDispatch_SingleSignatureBatch(t *testing.T) {
	executor := &stubExecutor{}
	wallet := testutil.NewMockWallet(8453)
	router, client := newTestRouter(executor, wallet)

	recipients := []domain.Recipient{
		evmRecipient(0, 8453, "USDC"),
		evmRecipient(1, 8453, "USDC"),
		evmRecipient(2, 8453, "USDC"),
	}

	responses, err := router.Dispatch(context.Background(), "0xfrom", recipients, Options{SingleSignatureBatch: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.BatchCalls != 1 {
		t.Fatalf("expected 1 batch call, got %d", client.BatchCalls)
	}
	if len(executor.calls) != 0 {
		t.Errorf("expected no sequential execution, got %d calls", len(executor.calls))
	}
	for i, resp := range responses {
		if !resp.Success {
			t.Errorf("recipient %d failed: %s", i, resp.Error)
		}
		if resp.TxHash != "0xbatch1" {
			t.Errorf("recipient %d: expected shared batch tx hash, got %s", i, resp.TxHash)
		}
	}
}

func TestDispatch_BatchRequiresCapability(t *testing.T) {
	executor := &stubExecutor{}
	router, client := newTestRouter(executor, testutil.NewMockWallet(137))

	// Polygon has no single-signature batch capability; the flag is a
	// request, not a guarantee.
	recipients := []domain.Recipient{
		evmRecipient(0, 137, "USDC"),
		evmRecipient(1, 137, "USDC"),
	}

	_, err := router.Dispatch(context.Background(), "0xfrom", recipients, Options{SingleSignatureBatch: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.BatchCalls != 0 {
		t.Errorf("expected no batch call on Polygon, got %d", client.BatchCalls)
	}
	if len(executor.calls) != 2 {
		t.Errorf("expected 2 sequential executions, got %d", len(executor.calls))
	}
}

func TestDispatch_BatchRequiresUniformToken(t *testing.T) {
	executor := &stubExecutor{}
	router, client := newTestRouter(executor, testutil.NewMockWallet(8453))

	recipients := []domain.Recipient{
		evmRecipient(0, 8453, "USDC"),
		evmRecipient(1, 8453, "ETH"),
	}

	_, err := router.Dispatch(context.Background(), "0xfrom", recipients, Options{SingleSignatureBatch: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.BatchCalls != 0 {
		t.Errorf("expected mixed-token partition to go sequential, got %d batch calls", client.BatchCalls)
	}
	if len(executor.calls) != 2 {
		t.Errorf("expected 2 sequential executions, got %d", len(executor.calls))
	}
}

func TestDispatch_SequentialFailureDoesNotAbort(t *testing.T) {
	bad := evmRecipient(1, 137, "USDC")
	executor := &stubExecutor{fail: map[string]string{bad.Address: "insufficient funds"}}
	router, _ := newTestRouter(executor, testutil.NewMockWallet(137))

	recipients := []domain.Recipient{
		evmRecipient(0, 137, "USDC"),
		bad,
		evmRecipient(2, 137, "USDC"),
	}

	responses, err := router.Dispatch(context.Background(), "0xfrom", recipients, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !responses[0].Success || !responses[2].Success {
		t.Error("expected surrounding recipients to succeed")
	}
	if responses[1].Success {
		t.Error("expected middle recipient to fail")
	}
	if responses[1].Error != "insufficient funds" {
		t.Errorf("unexpected error %q", responses[1].Error)
	}
	if len(executor.calls) != 3 {
		t.Errorf("expected all 3 recipients attempted, got %d", len(executor.calls))
	}
}

func TestDispatch_NoWalletFailsPartition(t *testing.T) {
	executor := &stubExecutor{}
	router, _ := newTestRouter(executor, nil)

	recipients := []domain.Recipient{
		evmRecipient(0, 1, "USDC"),
		tronRecipient(1),
	}

	responses, err := router.Dispatch(context.Background(), "0xfrom", recipients, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, resp := range responses {
		if resp.Success {
			t.Errorf("recipient %d: expected failure without a wallet", i)
		}
		if resp.Error != domain.ErrNoWallet.Error() {
			t.Errorf("recipient %d: unexpected error %q", i, resp.Error)
		}
	}
	if len(executor.calls) != 0 {
		t.Errorf("expected no execution without a wallet, got %d calls", len(executor.calls))
	}
}

func TestDispatch_SwitchFailureFailsPartition(t *testing.T) {
	executor := &stubExecutor{}
	wallet := testutil.NewMockWallet(1)
	wallet.SwitchErr = errors.New("user rejected")
	router, _ := newTestRouter(executor, wallet)

	recipients := []domain.Recipient{tronRecipient(0)}
	responses, err := router.Dispatch(context.Background(), "0xfrom", recipients, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if responses[0].Success {
		t.Error("expected failure when the network switch is rejected")
	}
	if len(executor.calls) != 0 {
		t.Errorf("expected no execution after switch failure, got %d calls", len(executor.calls))
	}
}
