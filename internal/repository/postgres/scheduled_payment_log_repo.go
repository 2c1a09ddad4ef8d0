package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianpay/meridian-backend/internal/domain"
)

// ScheduledPaymentLogRepository implements domain.ScheduledPaymentLogRepository using PostgreSQL
type ScheduledPaymentLogRepository struct {
	pool *pgxpool.Pool
}

// NewScheduledPaymentLogRepository creates a new ScheduledPaymentLogRepository
func NewScheduledPaymentLogRepository(pool *pgxpool.Pool) *ScheduledPaymentLogRepository {
	return &ScheduledPaymentLogRepository{pool: pool}
}

// Create appends one execution log row
func (r *ScheduledPaymentLogRepository) Create(ctx context.Context, log *domain.ScheduledPaymentLog) error {
	totalAmount, err := decimalToPgNumeric(log.TotalAmount)
	if err != nil {
		return err
	}
	outcomes, err := toJSONB(log.Outcomes)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO scheduled_payment_logs (
			id, schedule_id, execution_time, status, total_amount,
			recipient_count, successful_count, failed_count, outcomes, tx_hash, error
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		log.ID, log.ScheduleID, log.ExecutionTime, string(log.Status), totalAmount,
		log.RecipientCount, log.SuccessfulCount, log.FailedCount, outcomes,
		log.TxHash, log.Error,
	)
	return err
}

// ListBySchedule returns the most recent log rows for a schedule
func (r *ScheduledPaymentLogRepository) ListBySchedule(ctx context.Context, scheduleID uuid.UUID, limit int) ([]*domain.ScheduledPaymentLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, schedule_id, execution_time, status, total_amount,
		       recipient_count, successful_count, failed_count, outcomes, tx_hash, error
		FROM scheduled_payment_logs
		WHERE schedule_id = $1
		ORDER BY execution_time DESC
		LIMIT $2`,
		scheduleID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.ScheduledPaymentLog
	for rows.Next() {
		var (
			log         domain.ScheduledPaymentLog
			totalAmount pgtype.Numeric
			outcomes    []byte
		)
		if err := rows.Scan(
			&log.ID, &log.ScheduleID, &log.ExecutionTime, &log.Status, &totalAmount,
			&log.RecipientCount, &log.SuccessfulCount, &log.FailedCount, &outcomes,
			&log.TxHash, &log.Error,
		); err != nil {
			return nil, err
		}
		log.TotalAmount = pgNumericToDecimal(totalAmount)
		if len(outcomes) > 0 {
			if err := json.Unmarshal(outcomes, &log.Outcomes); err != nil {
				return nil, err
			}
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}
