package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// LedgerRepository implements domain.LedgerRepository using PostgreSQL
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// CreateEntry appends one immutable ledger entry
func (r *LedgerRepository) CreateEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	amount, err := decimalToPgNumeric(entry.Amount)
	if err != nil {
		return err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO ledger_entries (account, token, chain, entry_type, amount, reference)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		entry.Account, entry.Token, entry.Chain, string(entry.EntryType), amount, entry.Reference,
	)
	return row.Scan(&entry.ID, &entry.CreatedAt)
}

// SumPeriod aggregates entries for account/token/chain within [from, to).
// The sums are computed in SQL as exact numerics; no float arithmetic
// anywhere on the path.
func (r *LedgerRepository) SumPeriod(ctx context.Context, account, token, chain string, from, to time.Time) (*domain.LedgerTotals, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'DEBIT'), 0),
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'CREDIT'), 0),
			COUNT(*)
		FROM ledger_entries
		WHERE account = $1 AND token = $2 AND chain = $3
		  AND created_at >= $4 AND created_at < $5`,
		account, token, chain, from, to,
	)

	var (
		debits  pgtype.Numeric
		credits pgtype.Numeric
		count   int64
	)
	if err := row.Scan(&debits, &credits, &count); err != nil {
		return nil, err
	}

	return &domain.LedgerTotals{
		Debits:     pgNumericToDecimal(debits),
		Credits:    pgNumericToDecimal(credits),
		EntryCount: int(count),
	}, nil
}

// Balance returns the cumulative ledger balance (credits minus debits)
func (r *LedgerRepository) Balance(ctx context.Context, account, token, chain string) (decimal.Decimal, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(
			CASE WHEN entry_type = 'CREDIT' THEN amount ELSE -amount END
		), 0)
		FROM ledger_entries
		WHERE account = $1 AND token = $2 AND chain = $3`,
		account, token, chain,
	)

	var balance pgtype.Numeric
	if err := row.Scan(&balance); err != nil {
		return decimal.Zero, err
	}
	return pgNumericToDecimal(balance), nil
}
