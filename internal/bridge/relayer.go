package bridge

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/meridianpay/meridian-backend/internal/chain"
	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// confirmWait bounds how long a local broadcast waits for its receipt.
// The remote engine confirms its own transactions; the local path must
// match so success means the same thing on both.
const confirmWait = 30 * time.Second

// Relayer is the local fallback execution path: it signs and broadcasts
// transfers directly with a process-held key when the remote engine is
// unavailable. It fails closed when no key is configured for the
// requested chain family.
//
// Broadcasts are serialized per chain. The signing key is a single
// shared credential; concurrent broadcasts on the same chain would race
// on the account nonce.
type Relayer struct {
	client   chain.TransferClient
	registry *domain.Registry
	evmKey   string
	tronKey  string
	limiter  *rate.Limiter
	logger   zerolog.Logger

	mu     sync.Mutex
	chainL map[uint64]*sync.Mutex
}

// NewRelayer creates a Relayer. Either key may be empty, in which case
// payouts for that chain family fail closed.
func NewRelayer(client chain.TransferClient, registry *domain.Registry, evmKey, tronKey string, logger zerolog.Logger) *Relayer {
	return &Relayer{
		client:   client,
		registry: registry,
		evmKey:   evmKey,
		tronKey:  tronKey,
		// Broadcast throttle: public RPC endpoints rate-limit aggressively.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		logger:  logger.With().Str("component", "relayer").Logger(),
		chainL:  make(map[uint64]*sync.Mutex),
	}
}

// Execute signs and broadcasts one transfer. amountBase is the amount
// already converted to token base units.
func (r *Relayer) Execute(ctx context.Context, req domain.PayoutRequest, amountBase *big.Int) (string, error) {
	info, ok := r.registry.Chain(req.ChainID)
	if !ok {
		return "", fmt.Errorf("%w: %d", domain.ErrUnknownChain, req.ChainID)
	}

	key := r.signingKey(info.Family)
	if key == "" {
		return "", domain.ErrRelayerNotConfigured
	}

	token, ok := r.registry.Token(req.ChainID, req.Token)
	if !ok {
		return "", fmt.Errorf("%w: %s on chain %d", domain.ErrUnsupportedToken, req.Token, req.ChainID)
	}

	lock := r.chainLock(req.ChainID)
	lock.Lock()
	defer lock.Unlock()

	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}

	txHash, err := r.client.SignAndBroadcast(ctx, chain.TransferRequest{
		ChainID:      req.ChainID,
		Token:        token.Symbol,
		TokenAddress: token.Address,
		From:         req.FromAddress,
		To:           req.ToAddress,
		AmountBase:   amountBase,
		SigningKey:   key,
		Memo:         req.Memo,
	})
	if err != nil {
		return "", fmt.Errorf("local broadcast failed: %w", err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, confirmWait)
	receipt, err := r.client.WaitForConfirmation(confirmCtx, req.ChainID, txHash)
	cancel()
	if err != nil {
		return "", fmt.Errorf("confirmation wait for %s: %w", txHash, err)
	}
	if !receipt.Confirmed {
		return "", fmt.Errorf("transaction %s was broadcast but not confirmed", txHash)
	}

	r.logger.Info().
		Str("tx_hash", txHash).
		Str("to", req.ToAddress).
		Str("token", token.Symbol).
		Uint64("chain_id", req.ChainID).
		Int64("block", receipt.BlockNumber).
		Msg("Broadcast via local relayer")

	return txHash, nil
}

func (r *Relayer) signingKey(family domain.ChainFamily) string {
	if family == domain.FamilyTron {
		// Prefer the dedicated TRON key, fall back to the shared one.
		if r.tronKey != "" {
			return r.tronKey
		}
	}
	return r.evmKey
}

// chainLock returns the mutex serializing broadcasts on one chain.
func (r *Relayer) chainLock(chainID uint64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.chainL[chainID]; ok {
		return l
	}
	l := &sync.Mutex{}
	r.chainL[chainID] = l
	return l
}
