package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianpay/meridian-backend/internal/domain"
)

// ScheduledPaymentRepository implements domain.ScheduledPaymentRepository using PostgreSQL
type ScheduledPaymentRepository struct {
	pool *pgxpool.Pool
}

// NewScheduledPaymentRepository creates a new ScheduledPaymentRepository
func NewScheduledPaymentRepository(pool *pgxpool.Pool) *ScheduledPaymentRepository {
	return &ScheduledPaymentRepository{pool: pool}
}

// Create inserts a new scheduled payment
func (r *ScheduledPaymentRepository) Create(ctx context.Context, sp *domain.ScheduledPayment) error {
	recipients, err := json.Marshal(sp.Recipients)
	if err != nil {
		return err
	}
	config, err := json.Marshal(sp.ScheduleConfig)
	if err != nil {
		return err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO scheduled_payments (
			id, owner_address, from_address, recipients, schedule_type, schedule_config,
			status, next_execution, total_executions, max_executions, chain_id, token
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		sp.ID, sp.OwnerAddress, sp.FromAddress, recipients, string(sp.ScheduleType),
		config, string(sp.Status), sp.NextExecution, sp.TotalExecutions,
		sp.MaxExecutions, int64(sp.ChainID), sp.Token,
	)
	return row.Scan(&sp.CreatedAt, &sp.UpdatedAt)
}

// GetByID retrieves a scheduled payment by ID
func (r *ScheduledPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledPayment, error) {
	row := r.pool.QueryRow(ctx, scheduledPaymentSelect+` WHERE id = $1`, id)
	sp, err := scanScheduledPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, err
	}
	return sp, nil
}

// ListByOwner returns all scheduled payments for an owner
func (r *ScheduledPaymentRepository) ListByOwner(ctx context.Context, owner string) ([]*domain.ScheduledPayment, error) {
	rows, err := r.pool.Query(ctx, scheduledPaymentSelect+` WHERE owner_address = $1 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScheduledPayments(rows)
}

// Update replaces the mutable fields of a scheduled payment
func (r *ScheduledPaymentRepository) Update(ctx context.Context, sp *domain.ScheduledPayment) error {
	recipients, err := json.Marshal(sp.Recipients)
	if err != nil {
		return err
	}
	config, err := json.Marshal(sp.ScheduleConfig)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_payments
		SET recipients = $2, schedule_type = $3, schedule_config = $4, status = $5,
		    next_execution = $6, total_executions = $7, max_executions = $8,
		    updated_at = now()
		WHERE id = $1`,
		sp.ID, recipients, string(sp.ScheduleType), config, string(sp.Status),
		sp.NextExecution, sp.TotalExecutions, sp.MaxExecutions,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

// UpdateStatus updates only the lifecycle status
func (r *ScheduledPaymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ScheduledPaymentStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_payments SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

// ListDue returns active payments due at or before now, without claiming them
func (r *ScheduledPaymentRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledPayment, error) {
	rows, err := r.pool.Query(ctx, scheduledPaymentSelect+`
		WHERE status = 'active' AND next_execution <= $1 AND NOT executing
		ORDER BY next_execution
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScheduledPayments(rows)
}

// ClaimDue atomically marks due payments as executing and returns them.
// FOR UPDATE SKIP LOCKED keeps concurrent sweeps from claiming the same
// rows.
func (r *ScheduledPaymentRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledPayment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE scheduled_payments
		SET executing = TRUE, updated_at = now()
		WHERE id IN (
			SELECT id FROM scheduled_payments
			WHERE status = 'active' AND next_execution <= $1 AND NOT executing
			ORDER BY next_execution
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, owner_address, from_address, recipients, schedule_type, schedule_config,
		          status, next_execution, total_executions, max_executions, chain_id, token,
		          created_at, updated_at`,
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	claimed, err := collectScheduledPayments(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return claimed, nil
}

// Release persists the advanced schedule state and clears the claim
func (r *ScheduledPaymentRepository) Release(ctx context.Context, sp *domain.ScheduledPayment) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_payments
		SET executing = FALSE, status = $2, next_execution = $3, total_executions = $4,
		    updated_at = now()
		WHERE id = $1`,
		sp.ID, string(sp.Status), sp.NextExecution, sp.TotalExecutions,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

// ReleaseStale clears execution claims whose last touch is older than
// cutoff. ClaimDue bumps updated_at when it claims, so updated_at is
// the claim time for any row still marked executing.
func (r *ScheduledPaymentRepository) ReleaseStale(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_payments
		SET executing = FALSE, updated_at = now()
		WHERE executing AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

const scheduledPaymentSelect = `
	SELECT id, owner_address, from_address, recipients, schedule_type, schedule_config,
	       status, next_execution, total_executions, max_executions, chain_id, token,
	       created_at, updated_at
	FROM scheduled_payments`

func scanScheduledPayment(row pgx.Row) (*domain.ScheduledPayment, error) {
	var (
		sp         domain.ScheduledPayment
		recipients []byte
		config     []byte
		chainID    int64
	)
	err := row.Scan(
		&sp.ID, &sp.OwnerAddress, &sp.FromAddress, &recipients, &sp.ScheduleType,
		&config, &sp.Status, &sp.NextExecution, &sp.TotalExecutions,
		&sp.MaxExecutions, &chainID, &sp.Token,
		&sp.CreatedAt, &sp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(recipients, &sp.Recipients); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(config, &sp.ScheduleConfig); err != nil {
		return nil, err
	}
	sp.ChainID = uint64(chainID)
	return &sp, nil
}

func collectScheduledPayments(rows pgx.Rows) ([]*domain.ScheduledPayment, error) {
	var result []*domain.ScheduledPayment
	for rows.Next() {
		sp, err := scanScheduledPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sp)
	}
	return result, rows.Err()
}
