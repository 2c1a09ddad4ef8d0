// Package dispatch classifies recipients by chain family, decides
// between a single on-chain batch call and sequential per-recipient
// transfers, and sequences the wallet network switches in between.
package dispatch

import (
	"context"
	"fmt"

	"github.com/meridianpay/meridian-backend/internal/chain"
	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/rs/zerolog"
)

// Executor executes a single payout request. Satisfied by the execution
// bridge.
type Executor interface {
	ExecutePayout(ctx context.Context, req domain.PayoutRequest) domain.PayoutResponse
}

// Options control one dispatch call.
type Options struct {
	// SingleSignatureBatch opts the EVM partition into the
	// approve-then-transfer batch path when the chain supports it and
	// every token is bridge-compatible.
	SingleSignatureBatch bool
}

// Router routes a recipient list to the execution bridge, partitioned
// by chain family.
type Router struct {
	executor    Executor
	wallet      chain.Wallet
	batchClient chain.TransferClient
	registry    *domain.Registry
	logger      zerolog.Logger
}

// NewRouter creates a Router. wallet may be nil when no signing wallet
// is connected; dispatch then fails per partition with ErrNoWallet.
func NewRouter(executor Executor, wallet chain.Wallet, batchClient chain.TransferClient, registry *domain.Registry, logger zerolog.Logger) *Router {
	return &Router{
		executor:    executor,
		wallet:      wallet,
		batchClient: batchClient,
		registry:    registry,
		logger:      logger.With().Str("component", "dispatch_router").Logger(),
	}
}

type indexedRecipient struct {
	index int
	r     domain.Recipient
}

// Dispatch executes every recipient and returns one PayoutResponse per
// recipient in input order. An error on one sequential recipient never
// aborts the rest; only an unsupported token/chain combination rejects
// the whole call before any signature is requested.
func (d *Router) Dispatch(ctx context.Context, fromAddress string, recipients []domain.Recipient, opts Options) ([]domain.PayoutResponse, error) {
	// Reject incompatible token/chain combinations up front — never
	// mid-batch after some signatures have been requested.
	var evm, tron []indexedRecipient
	for i, r := range recipients {
		info, ok := d.registry.Chain(r.ChainID)
		if !ok {
			return nil, fmt.Errorf("%w: recipient %d chain %d", domain.ErrUnknownChain, i, r.ChainID)
		}
		if _, ok := d.registry.Token(r.ChainID, r.Token); !ok {
			return nil, fmt.Errorf("%w: recipient %d token %s on %s", domain.ErrUnsupportedToken, i, r.Token, info.Name)
		}
		if info.Family == domain.FamilyTron {
			tron = append(tron, indexedRecipient{index: i, r: r})
		} else {
			evm = append(evm, indexedRecipient{index: i, r: r})
		}
	}

	responses := make([]domain.PayoutResponse, len(recipients))

	// Restore the original signing network on completion, success or
	// failure, so wallet state is left exactly as found.
	var original uint64
	switched := false
	if d.wallet != nil {
		original = d.wallet.ActiveChain()
		defer func() {
			if switched && d.wallet.ActiveChain() != original {
				if err := d.wallet.SwitchChain(ctx, original); err != nil {
					d.logger.Warn().Err(err).Uint64("chain_id", original).Msg("Failed to restore original network")
				}
			}
		}()
	}

	if len(evm) > 0 {
		swapped, err := d.ensureNetwork(ctx, evm[0].r.ChainID)
		switched = switched || swapped
		if err != nil {
			d.failPartition(responses, evm, domain.FamilyEVM, err)
		} else if opts.SingleSignatureBatch && d.batchEligible(evm) {
			d.dispatchBatch(ctx, fromAddress, evm, responses)
		} else {
			d.dispatchSequential(ctx, fromAddress, evm, domain.FamilyEVM, responses)
		}
	}

	if len(tron) > 0 {
		swapped, err := d.ensureNetwork(ctx, tron[0].r.ChainID)
		switched = switched || swapped
		if err != nil {
			d.failPartition(responses, tron, domain.FamilyTron, err)
		} else {
			d.dispatchSequential(ctx, fromAddress, tron, domain.FamilyTron, responses)
		}
	}

	return responses, nil
}

// ensureNetwork switches the wallet to chainID if needed. Returns
// whether a switch happened.
func (d *Router) ensureNetwork(ctx context.Context, chainID uint64) (bool, error) {
	if d.wallet == nil {
		return false, domain.ErrNoWallet
	}
	if d.wallet.ActiveChain() == chainID {
		return false, nil
	}
	if err := d.wallet.SwitchChain(ctx, chainID); err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrNoWallet, err)
	}
	return true, nil
}

// batchEligible reports whether the whole EVM partition can go through
// one approve-then-transfer call: one chain, batch capability on that
// chain, and every token bridge-compatible.
func (d *Router) batchEligible(part []indexedRecipient) bool {
	chainID := part[0].r.ChainID
	info, _ := d.registry.Chain(chainID)
	if !info.SupportsBatchTransfer {
		return false
	}
	token := part[0].r.Token
	for _, ir := range part {
		if ir.r.ChainID != chainID || ir.r.Token != token {
			return false
		}
		ti, _ := d.registry.Token(ir.r.ChainID, ir.r.Token)
		if !ti.BridgeCompatible {
			return false
		}
	}
	return true
}

// dispatchBatch executes the partition as one on-chain batch-transfer
// call under a single signature.
func (d *Router) dispatchBatch(ctx context.Context, from string, part []indexedRecipient, responses []domain.PayoutResponse) {
	chainID := part[0].r.ChainID
	token, _ := d.registry.Token(chainID, part[0].r.Token)

	batch := make([]chain.BatchRecipient, 0, len(part))
	for _, ir := range part {
		base, err := chain.ToBaseUnits(ir.r.Amount, token.Decimals)
		if err != nil {
			// A bad amount disqualifies the batch path; fall back to
			// sequential so the one bad line fails alone.
			d.dispatchSequential(ctx, from, part, domain.FamilyEVM, responses)
			return
		}
		batch = append(batch, chain.BatchRecipient{To: ir.r.Address, AmountBase: base})
	}

	result, err := d.batchClient.BatchTransfer(ctx, chain.BatchTransferRequest{
		ChainID:      chainID,
		Token:        token.Symbol,
		TokenAddress: token.Address,
		From:         from,
		Recipients:   batch,
	})

	if err != nil || !result.Success {
		msg := "batch transfer failed"
		if err != nil {
			msg = err.Error()
		} else if result.ErrorMessage != "" {
			msg = result.ErrorMessage
		}
		for _, ir := range part {
			responses[ir.index] = domain.PayoutResponse{
				Success:     false,
				Error:       msg,
				ExecutedBy:  domain.ExecutedByLocal,
				ChainFamily: domain.FamilyEVM,
				ToAddress:   ir.r.Address,
			}
		}
		return
	}

	d.logger.Info().
		Str("tx_hash", result.TxHash).
		Int("recipients", len(part)).
		Uint64("chain_id", chainID).
		Msg("Batch transfer confirmed")

	for _, ir := range part {
		responses[ir.index] = domain.PayoutResponse{
			Success:     true,
			TxHash:      result.TxHash,
			ExecutedBy:  domain.ExecutedByLocal,
			ChainFamily: domain.FamilyEVM,
			ToAddress:   ir.r.Address,
		}
	}
}

// dispatchSequential executes the partition one recipient at a time in
// stable input order. Order determines which partial prefix succeeded
// when a mid-batch failure occurs.
func (d *Router) dispatchSequential(ctx context.Context, from string, part []indexedRecipient, family domain.ChainFamily, responses []domain.PayoutResponse) {
	for _, ir := range part {
		resp := d.executor.ExecutePayout(ctx, domain.PayoutRequest{
			FromAddress: from,
			ToAddress:   ir.r.Address,
			Amount:      ir.r.Amount,
			Token:       ir.r.Token,
			ChainID:     ir.r.ChainID,
			Memo:        ir.r.Memo,
		})
		resp.ChainFamily = family
		responses[ir.index] = resp
	}
}

// failPartition marks every recipient of a partition failed with a
// precondition error (missing signer for the whole partition).
func (d *Router) failPartition(responses []domain.PayoutResponse, part []indexedRecipient, family domain.ChainFamily, err error) {
	for _, ir := range part {
		responses[ir.index] = domain.PayoutResponse{
			Success:     false,
			Error:       err.Error(),
			ChainFamily: family,
			ToAddress:   ir.r.Address,
		}
	}
}
