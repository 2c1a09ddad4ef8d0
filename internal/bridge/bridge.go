package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/meridianpay/meridian-backend/internal/chain"
	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/rs/zerolog"
)

// FallbackEvent records one fall-through from the remote engine to the
// local relayer, for observability.
type FallbackEvent struct {
	Service   string        `json:"service"`
	Reason    string        `json:"reason"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// fallbackRing is a bounded buffer of the most recent fallback events.
// Owned by the bridge instance so multiple bridges do not interfere.
type fallbackRing struct {
	mu     sync.Mutex
	events []FallbackEvent
	next   int
	full   bool
}

func newFallbackRing(capacity int) *fallbackRing {
	if capacity < 1 {
		capacity = 1
	}
	return &fallbackRing{events: make([]FallbackEvent, capacity)}
}

func (r *fallbackRing) record(e FallbackEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[r.next] = e
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
}

// snapshot returns the recorded events, oldest first.
func (r *fallbackRing) snapshot() []FallbackEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]FallbackEvent, r.next)
		copy(out, r.events[:r.next])
		return out
	}
	out := make([]FallbackEvent, 0, len(r.events))
	out = append(out, r.events[r.next:]...)
	out = append(out, r.events[:r.next]...)
	return out
}

// DefaultFallbackEventCapacity bounds the fallback event buffer.
const DefaultFallbackEventCapacity = 100

// ExecutionBridge routes payout requests to the remote payout engine
// behind a circuit breaker, falling back to the local relayer on any
// remote failure. Both paths return the same PayoutResponse shape; the
// caller only sees the distinction in the ExecutedBy tag.
type ExecutionBridge struct {
	remote        RemoteEngine
	relayer       *Relayer
	breaker       *Breaker
	registry      *domain.Registry
	remoteTimeout time.Duration
	events        *fallbackRing
	logger        zerolog.Logger
}

// NewExecutionBridge creates an ExecutionBridge.
func NewExecutionBridge(
	remote RemoteEngine,
	relayer *Relayer,
	breaker *Breaker,
	registry *domain.Registry,
	remoteTimeout time.Duration,
	logger zerolog.Logger,
) *ExecutionBridge {
	return &ExecutionBridge{
		remote:        remote,
		relayer:       relayer,
		breaker:       breaker,
		registry:      registry,
		remoteTimeout: remoteTimeout,
		events:        newFallbackRing(DefaultFallbackEventCapacity),
		logger:        logger.With().Str("component", "execution_bridge").Logger(),
	}
}

// ExecutePayout executes one payout request, preferring the remote
// engine and transparently falling back to the local relayer.
func (b *ExecutionBridge) ExecutePayout(ctx context.Context, req domain.PayoutRequest) domain.PayoutResponse {
	// Validation failures carry no ExecutedBy tag: neither execution
	// path ran.
	info, ok := b.registry.Chain(req.ChainID)
	if !ok {
		return failure(req, "", "", "unknown chain id")
	}

	token, ok := b.registry.Token(req.ChainID, req.Token)
	if !ok {
		return failure(req, info.Family, "", "token "+req.Token+" not supported on "+info.Name)
	}

	amountBase, err := chain.ToBaseUnits(req.Amount, token.Decimals)
	if err != nil {
		return failure(req, info.Family, "", err.Error())
	}

	if b.breaker.Allow() {
		start := time.Now()
		remoteCtx, cancel := context.WithTimeout(ctx, b.remoteTimeout)
		result, err := b.remote.ExecutePayout(remoteCtx, req, amountBase.String())
		cancel()

		if err == nil {
			b.breaker.RecordSuccess()
			return domain.PayoutResponse{
				Success:     true,
				TxHash:      result.TxHash,
				ExecutedBy:  domain.ExecutedByRemote,
				ChainFamily: info.Family,
				ToAddress:   req.ToAddress,
			}
		}

		b.breaker.RecordFailure()
		b.recordFallback(err.Error(), time.Since(start))
		b.logger.Warn().
			Err(err).
			Str("to", req.ToAddress).
			Str("breaker_state", b.breaker.State().String()).
			Msg("Remote payout failed, falling back to local relayer")
	} else {
		b.recordFallback("circuit open, failing fast", 0)
		b.logger.Debug().
			Str("to", req.ToAddress).
			Msg("Circuit open, serving payout via local relayer")
	}

	txHash, err := b.relayer.Execute(ctx, req, amountBase)
	if err != nil {
		return failure(req, info.Family, domain.ExecutedByLocal, err.Error())
	}

	return domain.PayoutResponse{
		Success:     true,
		TxHash:      txHash,
		ExecutedBy:  domain.ExecutedByLocal,
		ChainFamily: info.Family,
		ToAddress:   req.ToAddress,
	}
}

// FallbackEvents returns the most recent fallback events, oldest first.
func (b *ExecutionBridge) FallbackEvents() []FallbackEvent {
	return b.events.snapshot()
}

func (b *ExecutionBridge) recordFallback(reason string, d time.Duration) {
	b.events.record(FallbackEvent{
		Service:   "payout-engine",
		Reason:    reason,
		Duration:  d,
		Timestamp: time.Now().UTC(),
	})
}

func failure(req domain.PayoutRequest, family domain.ChainFamily, executedBy domain.ExecutedBy, msg string) domain.PayoutResponse {
	return domain.PayoutResponse{
		Success:     false,
		Error:       msg,
		ExecutedBy:  executedBy,
		ChainFamily: family,
		ToAddress:   req.ToAddress,
	}
}
