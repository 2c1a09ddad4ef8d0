// Package chain is the boundary to the external chain transfer
// primitive. The engine never talks to a blockchain node directly; it
// signs and broadcasts through implementations of these interfaces.
package chain

import (
	"context"
	"math/big"
)

// TransferRequest describes a single-recipient transfer in token base
// units.
type TransferRequest struct {
	ChainID      uint64
	Token        string
	TokenAddress string // empty for the native token
	From         string
	To           string
	AmountBase   *big.Int
	SigningKey   string
	Memo         string
}

// BatchRecipient is one line of a single-signature batch transfer.
type BatchRecipient struct {
	To         string
	AmountBase *big.Int
}

// BatchTransferRequest describes an approve-then-transfer batch call
// covering many recipients under one signature.
type BatchTransferRequest struct {
	ChainID      uint64
	Token        string
	TokenAddress string
	From         string
	Recipients   []BatchRecipient
}

// BatchTransferResult is the outcome of a batch-transfer call.
type BatchTransferResult struct {
	Success      bool
	TxHash       string
	ErrorMessage string
}

// Receipt is a confirmed transaction receipt.
type Receipt struct {
	TxHash      string
	BlockNumber int64
	Confirmed   bool
}

// TransferClient signs and broadcasts transfers on a named chain. A
// call either confirms, reverts, or times out; the engine treats it as
// an atomic external primitive.
type TransferClient interface {
	SignAndBroadcast(ctx context.Context, req TransferRequest) (txHash string, err error)
	WaitForConfirmation(ctx context.Context, chainID uint64, txHash string) (*Receipt, error)
	BatchTransfer(ctx context.Context, req BatchTransferRequest) (*BatchTransferResult, error)
}

// Wallet is the active signing network. Dispatch switches it before
// each chain-family partition and restores it afterwards so global
// wallet state is left exactly as found.
type Wallet interface {
	ActiveChain() uint64
	SwitchChain(ctx context.Context, chainID uint64) error
}
