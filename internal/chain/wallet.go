package chain

import (
	"context"
	"sync"
)

// MemoryWallet is an in-process Wallet tracking the active signing
// network. Network selection is process-local state; the actual signing
// happens in the TransferClient.
type MemoryWallet struct {
	mu     sync.Mutex
	active uint64
}

// NewMemoryWallet creates a wallet with the given initial network.
func NewMemoryWallet(initial uint64) *MemoryWallet {
	return &MemoryWallet{active: initial}
}

// ActiveChain returns the current signing network.
func (w *MemoryWallet) ActiveChain() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// SwitchChain changes the active signing network.
func (w *MemoryWallet) SwitchChain(ctx context.Context, chainID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active = chainID
	return nil
}
