package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianpay/meridian-backend/internal/domain"
)

// SettlementRepository implements domain.SettlementRepository using PostgreSQL
type SettlementRepository struct {
	pool *pgxpool.Pool
}

// NewSettlementRepository creates a new SettlementRepository
func NewSettlementRepository(pool *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{pool: pool}
}

// Create inserts a new settlement record
func (r *SettlementRepository) Create(ctx context.Context, record *domain.SettlementRecord) error {
	totalDebits, err := decimalToPgNumeric(record.TotalDebits)
	if err != nil {
		return err
	}
	totalCredits, err := decimalToPgNumeric(record.TotalCredits)
	if err != nil {
		return err
	}
	netAmount, err := decimalToPgNumeric(record.NetAmount)
	if err != nil {
		return err
	}
	ledgerBalance, err := decimalToPgNumeric(record.LedgerBalance)
	if err != nil {
		return err
	}

	var onChain, discrepancy pgtype.Numeric
	if record.OnChainBalance != nil {
		if onChain, err = decimalToPgNumeric(*record.OnChainBalance); err != nil {
			return err
		}
	}
	if record.Discrepancy != nil {
		if discrepancy, err = decimalToPgNumeric(*record.Discrepancy); err != nil {
			return err
		}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO settlements (
			id, user_address, period_start, period_end, token, chain,
			total_debits, total_credits, net_amount, on_chain_balance,
			ledger_balance, discrepancy, entry_count, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at`,
		record.ID, record.UserAddress, record.PeriodStart, record.PeriodEnd,
		record.Token, record.Chain, totalDebits, totalCredits, netAmount,
		onChain, ledgerBalance, discrepancy, record.EntryCount, string(record.Status),
	)
	return row.Scan(&record.CreatedAt)
}

// GetByID retrieves a settlement record by ID
func (r *SettlementRepository) GetByID(ctx context.Context, id string) (*domain.SettlementRecord, error) {
	row := r.pool.QueryRow(ctx, settlementSelect+` WHERE id = $1`, id)
	record, err := scanSettlement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSettlementNotFound
		}
		return nil, err
	}
	return record, nil
}

// List returns the most recent settlement records for a user
func (r *SettlementRepository) List(ctx context.Context, userAddress string, limit int) ([]*domain.SettlementRecord, error) {
	rows, err := r.pool.Query(ctx, settlementSelect+`
		WHERE user_address = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userAddress, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSettlements(rows)
}

// ListDiscrepancies returns unresolved discrepancy records across all users
func (r *SettlementRepository) ListDiscrepancies(ctx context.Context, limit int) ([]*domain.SettlementRecord, error) {
	rows, err := r.pool.Query(ctx, settlementSelect+`
		WHERE status = 'discrepancy_found'
		ORDER BY created_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSettlements(rows)
}

// Update replaces the mutable fields of a settlement record
func (r *SettlementRepository) Update(ctx context.Context, record *domain.SettlementRecord) error {
	var onChain, discrepancy pgtype.Numeric
	var err error
	if record.OnChainBalance != nil {
		if onChain, err = decimalToPgNumeric(*record.OnChainBalance); err != nil {
			return err
		}
	}
	if record.Discrepancy != nil {
		if discrepancy, err = decimalToPgNumeric(*record.Discrepancy); err != nil {
			return err
		}
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE settlements
		SET status = $2, on_chain_balance = $3, discrepancy = $4,
		    resolved_by = $5, resolution_note = $6, resolved_at = $7
		WHERE id = $1`,
		record.ID, string(record.Status), onChain, discrepancy,
		record.ResolvedBy, record.ResolutionNote, record.ResolvedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSettlementNotFound
	}
	return nil
}

// NextSequence returns the next per-day sequence for settlement ids
func (r *SettlementRepository) NextSequence(ctx context.Context, day time.Time) (int, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO settlement_sequences (day, seq)
		VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET seq = settlement_sequences.seq + 1
		RETURNING seq`,
		day.Format("2006-01-02"),
	)
	var seq int
	if err := row.Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

const settlementSelect = `
	SELECT id, user_address, period_start, period_end, token, chain,
	       total_debits, total_credits, net_amount, on_chain_balance,
	       ledger_balance, discrepancy, entry_count, status,
	       resolved_by, resolution_note, resolved_at, created_at
	FROM settlements`

func scanSettlement(row pgx.Row) (*domain.SettlementRecord, error) {
	var (
		record        domain.SettlementRecord
		totalDebits   pgtype.Numeric
		totalCredits  pgtype.Numeric
		netAmount     pgtype.Numeric
		onChain       pgtype.Numeric
		ledgerBalance pgtype.Numeric
		discrepancy   pgtype.Numeric
	)
	err := row.Scan(
		&record.ID, &record.UserAddress, &record.PeriodStart, &record.PeriodEnd,
		&record.Token, &record.Chain, &totalDebits, &totalCredits, &netAmount,
		&onChain, &ledgerBalance, &discrepancy, &record.EntryCount, &record.Status,
		&record.ResolvedBy, &record.ResolutionNote, &record.ResolvedAt, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.TotalDebits = pgNumericToDecimal(totalDebits)
	record.TotalCredits = pgNumericToDecimal(totalCredits)
	record.NetAmount = pgNumericToDecimal(netAmount)
	record.LedgerBalance = pgNumericToDecimal(ledgerBalance)
	record.OnChainBalance = pgNumericPtrToDecimal(onChain)
	record.Discrepancy = pgNumericPtrToDecimal(discrepancy)
	return &record, nil
}

func collectSettlements(rows pgx.Rows) ([]*domain.SettlementRecord, error) {
	var records []*domain.SettlementRecord
	for rows.Next() {
		record, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
