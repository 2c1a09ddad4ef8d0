package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType is the direction of a ledger entry.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// LedgerEntry is the immutable atomic unit the reconciliation engine
// aggregates. Amounts are exact decimals, never floats.
type LedgerEntry struct {
	ID        int64           `json:"id"`
	Account   string          `json:"account"`
	Token     string          `json:"token"`
	Chain     string          `json:"chain"`
	EntryType EntryType       `json:"entryType"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// SettlementStatus is the lifecycle state of a settlement record. The
// string values are part of the external contract.
type SettlementStatus string

const (
	SettlementPending          SettlementStatus = "pending"
	SettlementProcessing       SettlementStatus = "processing"
	SettlementReconciled       SettlementStatus = "reconciled"
	SettlementDiscrepancyFound SettlementStatus = "discrepancy_found"
	SettlementResolved         SettlementStatus = "resolved"
)

// SettlementRecord is one reconciliation run over a closed period.
// Mutated only by discrepancy resolution; terminal at reconciled or
// resolved.
type SettlementRecord struct {
	ID             string           `json:"id"` // STL-<date>-<seq>
	UserAddress    string           `json:"userAddress"`
	PeriodStart    time.Time        `json:"periodStart"`
	PeriodEnd      time.Time        `json:"periodEnd"`
	Token          string           `json:"token"`
	Chain          string           `json:"chain"`
	TotalDebits    decimal.Decimal  `json:"totalDebits"`
	TotalCredits   decimal.Decimal  `json:"totalCredits"`
	NetAmount      decimal.Decimal  `json:"netAmount"`
	OnChainBalance *decimal.Decimal `json:"onChainBalance,omitempty"`
	LedgerBalance  decimal.Decimal  `json:"ledgerBalance"`
	Discrepancy    *decimal.Decimal `json:"discrepancy,omitempty"`
	EntryCount     int              `json:"entryCount"`
	Status         SettlementStatus `json:"status"`
	ResolvedBy     *string          `json:"resolvedBy,omitempty"`
	ResolutionNote *string          `json:"resolutionNote,omitempty"`
	ResolvedAt     *time.Time       `json:"resolvedAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// LedgerTotals aggregates one period's entries by direction.
type LedgerTotals struct {
	Debits     decimal.Decimal
	Credits    decimal.Decimal
	EntryCount int
}

// LedgerRepository persists and aggregates immutable ledger entries.
type LedgerRepository interface {
	CreateEntry(ctx context.Context, entry *LedgerEntry) error
	// SumPeriod aggregates entries for account/token/chain within
	// [from, to).
	SumPeriod(ctx context.Context, account, token, chain string, from, to time.Time) (*LedgerTotals, error)
	// Balance returns the cumulative ledger balance (credits − debits)
	// for account/token/chain over all time.
	Balance(ctx context.Context, account, token, chain string) (decimal.Decimal, error)
}

// SettlementRepository persists settlement records.
type SettlementRepository interface {
	Create(ctx context.Context, record *SettlementRecord) error
	GetByID(ctx context.Context, id string) (*SettlementRecord, error)
	List(ctx context.Context, userAddress string, limit int) ([]*SettlementRecord, error)
	ListDiscrepancies(ctx context.Context, limit int) ([]*SettlementRecord, error)
	Update(ctx context.Context, record *SettlementRecord) error
	// NextSequence returns the next per-day sequence number used in
	// generated settlement ids.
	NextSequence(ctx context.Context, day time.Time) (int, error)
}
