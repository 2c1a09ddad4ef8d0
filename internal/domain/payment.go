package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ExecutedBy records which execution path serviced a payout request.
type ExecutedBy string

const (
	ExecutedByRemote ExecutedBy = "remote"
	ExecutedByLocal  ExecutedBy = "local"
)

// Recipient is one payment line: who gets how much of which token on
// which chain. Order matters — recipients execute in input order within
// a chain-family partition.
type Recipient struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
	Token   string          `json:"token"`
	ChainID uint64          `json:"chainId"`
	Name    string          `json:"name,omitempty"`
	Memo    string          `json:"memo,omitempty"`
}

// PayoutRequest is the transient value object handed to the execution
// bridge, one per recipient per attempt. Never persisted directly.
type PayoutRequest struct {
	FromAddress string
	ToAddress   string
	Amount      decimal.Decimal
	Token       string
	ChainID     uint64
	Memo        string
}

// PayoutResponse is the uniform result of a payout attempt, identical
// in shape whether the remote engine or the local fallback serviced it.
type PayoutResponse struct {
	Success     bool        `json:"success"`
	TxHash      string      `json:"txHash,omitempty"`
	Error       string      `json:"error,omitempty"`
	ExecutedBy  ExecutedBy  `json:"executedBy"`
	ChainFamily ChainFamily `json:"chainFamily"`
	ToAddress   string      `json:"toAddress"`
}

// PaymentRecord is the durable audit row written for every confirmed
// on-chain transfer.
type PaymentRecord struct {
	ID           string          `json:"id"`
	OwnerAddress string          `json:"ownerAddress"`
	ToAddress    string          `json:"toAddress"`
	Amount       decimal.Decimal `json:"amount"`
	Token        string          `json:"token"`
	Chain        string          `json:"chain"`
	TxHash       string          `json:"txHash"`
	ExecutedBy   ExecutedBy      `json:"executedBy"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// PaymentRepository persists confirmed transfer audit rows.
type PaymentRepository interface {
	CreatePaymentRecord(ctx context.Context, record *PaymentRecord) error
}
