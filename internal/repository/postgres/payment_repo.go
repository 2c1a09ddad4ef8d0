package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianpay/meridian-backend/internal/domain"
)

// PaymentRepository implements domain.PaymentRepository using PostgreSQL
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// CreatePaymentRecord inserts one confirmed transfer audit row
func (r *PaymentRepository) CreatePaymentRecord(ctx context.Context, record *domain.PaymentRecord) error {
	amount, err := decimalToPgNumeric(record.Amount)
	if err != nil {
		return err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO payments (id, owner_address, to_address, amount, token, chain, tx_hash, executed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		record.ID, record.OwnerAddress, record.ToAddress, amount,
		record.Token, record.Chain, record.TxHash, string(record.ExecutedBy),
	)
	return row.Scan(&record.CreatedAt)
}
