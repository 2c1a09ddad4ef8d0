package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianpay/meridian-backend/internal/domain"
)

// FailedItemRepository implements domain.FailedItemRepository using PostgreSQL
type FailedItemRepository struct {
	pool *pgxpool.Pool
}

// NewFailedItemRepository creates a new FailedItemRepository
func NewFailedItemRepository(pool *pgxpool.Pool) *FailedItemRepository {
	return &FailedItemRepository{pool: pool}
}

// Upsert creates the item or replaces the error message of an existing one
func (r *FailedItemRepository) Upsert(ctx context.Context, item *domain.FailedItem) error {
	amount, err := decimalToPgNumeric(item.Amount)
	if err != nil {
		return err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO failed_items (id, job_id, owner_address, recipient, amount, token, chain_id, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET error = EXCLUDED.error, updated_at = now()
		RETURNING created_at, updated_at`,
		item.ID, item.JobID, item.OwnerAddress, item.Recipient, amount,
		item.Token, int64(item.ChainID), item.Error,
	)
	return row.Scan(&item.CreatedAt, &item.UpdatedAt)
}

// GetByID retrieves a failed item by ID
func (r *FailedItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.FailedItem, error) {
	row := r.pool.QueryRow(ctx, failedItemSelect+` WHERE id = $1`, id)
	item, err := scanFailedItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFailedItemNotFound
		}
		return nil, err
	}
	return item, nil
}

// Delete removes a failed item
func (r *FailedItemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM failed_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFailedItemNotFound
	}
	return nil
}

// ListByJob returns all failed items for a job
func (r *FailedItemRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.FailedItem, error) {
	rows, err := r.pool.Query(ctx, failedItemSelect+` WHERE job_id = $1 ORDER BY created_at`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFailedItems(rows)
}

// ListByOwner returns all failed items across an owner's jobs
func (r *FailedItemRepository) ListByOwner(ctx context.Context, owner string) ([]*domain.FailedItem, error) {
	rows, err := r.pool.Query(ctx, failedItemSelect+` WHERE owner_address = $1 ORDER BY created_at`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFailedItems(rows)
}

const failedItemSelect = `
	SELECT id, job_id, owner_address, recipient, amount, token, chain_id, error, created_at, updated_at
	FROM failed_items`

func scanFailedItem(row pgx.Row) (*domain.FailedItem, error) {
	var (
		item    domain.FailedItem
		amount  pgtype.Numeric
		chainID int64
	)
	err := row.Scan(
		&item.ID, &item.JobID, &item.OwnerAddress, &item.Recipient,
		&amount, &item.Token, &chainID, &item.Error,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Amount = pgNumericToDecimal(amount)
	item.ChainID = uint64(chainID)
	return &item, nil
}

func collectFailedItems(rows pgx.Rows) ([]*domain.FailedItem, error) {
	var items []*domain.FailedItem
	for rows.Next() {
		item, err := scanFailedItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
