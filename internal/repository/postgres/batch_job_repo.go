package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianpay/meridian-backend/internal/domain"
)

// BatchJobRepository implements domain.BatchJobRepository using PostgreSQL
type BatchJobRepository struct {
	pool *pgxpool.Pool
}

// NewBatchJobRepository creates a new BatchJobRepository
func NewBatchJobRepository(pool *pgxpool.Pool) *BatchJobRepository {
	return &BatchJobRepository{pool: pool}
}

// Create inserts a new batch job
func (r *BatchJobRepository) Create(ctx context.Context, job *domain.BatchJob) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO batch_jobs (id, owner_address, from_address, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		job.ID, job.OwnerAddress, job.FromAddress, string(job.Status),
	)
	return row.Scan(&job.CreatedAt, &job.UpdatedAt)
}

// GetByID retrieves a batch job by ID
func (r *BatchJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, owner_address, from_address, status, total_lines, parsed_count,
		       invalid_count, chunk_count, success_count, fail_count, error, summary,
		       created_at, updated_at
		FROM batch_jobs
		WHERE id = $1`,
		id,
	)
	return scanBatchJob(row)
}

// UpdateStatus transitions the job only when it is in the expected state
func (r *BatchJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next domain.BatchJobStatus, reason *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE batch_jobs
		SET status = $3, error = COALESCE($4, error), updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, string(expected), string(next), reason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing job from a state mismatch.
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM batch_jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrJobNotFound
		}
		return domain.ErrInvalidJobState
	}
	return nil
}

// SetParseResult stores the parsed lines and counts in one transaction,
// moving the job to pending_approval
func (r *BatchJobRepository) SetParseResult(ctx context.Context, id uuid.UUID, lines []domain.Recipient, summary domain.ParseSummary, totalLines, chunkCount int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE batch_jobs
		SET status = $2, total_lines = $3, parsed_count = $4, invalid_count = $5,
		    chunk_count = $6, summary = $7, updated_at = now()
		WHERE id = $1 AND status = $8`,
		id, string(domain.JobPendingApproval), totalLines, len(lines),
		summary.InvalidCount, chunkCount, summaryJSON, string(domain.JobParsing),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidJobState
	}

	for i, line := range lines {
		amount, err := decimalToPgNumeric(line.Amount)
		if err != nil {
			return fmt.Errorf("line %d amount: %w", i, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO batch_job_lines (job_id, line_index, address, amount, token, chain_id, name, memo)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id, i, line.Address, amount, line.Token, int64(line.ChainID), line.Name, line.Memo,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ListLines returns the parsed lines of a job in stored order
func (r *BatchJobRepository) ListLines(ctx context.Context, id uuid.UUID) ([]domain.Recipient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT address, amount, token, chain_id, name, memo
		FROM batch_job_lines
		WHERE job_id = $1
		ORDER BY line_index`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.Recipient
	for rows.Next() {
		var (
			line    domain.Recipient
			amount  pgtype.Numeric
			chainID int64
		)
		if err := rows.Scan(&line.Address, &amount, &line.Token, &chainID, &line.Name, &line.Memo); err != nil {
			return nil, err
		}
		line.Amount = pgNumericToDecimal(amount)
		line.ChainID = uint64(chainID)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// RecordOutcome increments the success or fail counter
func (r *BatchJobRepository) RecordOutcome(ctx context.Context, id uuid.UUID, succeeded bool) error {
	var query string
	if succeeded {
		query = `UPDATE batch_jobs SET success_count = success_count + 1, updated_at = now() WHERE id = $1`
	} else {
		query = `UPDATE batch_jobs SET fail_count = fail_count + 1, updated_at = now() WHERE id = $1`
	}
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func scanBatchJob(row pgx.Row) (*domain.BatchJob, error) {
	var (
		job         domain.BatchJob
		summaryJSON []byte
	)
	err := row.Scan(
		&job.ID, &job.OwnerAddress, &job.FromAddress, &job.Status,
		&job.TotalLines, &job.ParsedCount, &job.InvalidCount, &job.ChunkCount,
		&job.SuccessCount, &job.FailCount, &job.Error, &summaryJSON,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	if len(summaryJSON) > 0 {
		var summary domain.ParseSummary
		if err := json.Unmarshal(summaryJSON, &summary); err != nil {
			return nil, err
		}
		job.Summary = &summary
	}
	return &job, nil
}
