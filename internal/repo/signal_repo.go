package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
)

// SignalRepo — репозиторий аудит-записей вызовов executor'а.
type SignalRepo struct {
	pool *pgxpool.Pool
}

// NewSignalRepo создаёт новый SignalRepo.
func NewSignalRepo(pool *pgxpool.Pool) *SignalRepo {
	return &SignalRepo{pool: pool}
}

// Create создаёт запись в начале вызова executor'а.
func (r *SignalRepo) Create(ctx context.Context, signal *domain.CronSignal) error {
	metadataJSON, err := json.Marshal(signal.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO cron_signals (id, invoked_at, source, metadata)
		VALUES ($1, $2, $3, $4)
	`
	_, err = r.pool.Exec(ctx, query,
		signal.ID,
		signal.InvokedAt,
		signal.Source,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("insert cron signal: %w", err)
	}
	return nil
}

// Complete дописывает итог вызова. Вызывается ровно один раз.
func (r *SignalRepo) Complete(ctx context.Context, id uuid.UUID, responseStatus, executedCount int, duration time.Duration) error {
	query := `
		UPDATE cron_signals
		SET response_status = $2, executed_count = $3, duration_ms = $4, completed_at = NOW()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, responseStatus, executedCount, duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("complete cron signal: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecent возвращает последние записи (для админского просмотра).
func (r *SignalRepo) ListRecent(ctx context.Context, limit int) ([]domain.CronSignal, error) {
	query := `
		SELECT id, invoked_at, source, metadata, response_status, executed_count,
		       duration_ms, completed_at
		FROM cron_signals
		ORDER BY invoked_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list cron signals: %w", err)
	}
	defer rows.Close()

	var signals []domain.CronSignal
	for rows.Next() {
		var s domain.CronSignal
		var metadataJSON []byte
		var responseStatus, executedCount *int
		var durationMS *int64

		err := rows.Scan(
			&s.ID,
			&s.InvokedAt,
			&s.Source,
			&metadataJSON,
			&responseStatus,
			&executedCount,
			&durationMS,
			&s.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cron signal: %w", err)
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &s.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		if responseStatus != nil {
			s.ResponseStatus = *responseStatus
		}
		if executedCount != nil {
			s.ExecutedCount = *executedCount
		}
		if durationMS != nil {
			s.DurationMS = *durationMS
		}

		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// GetByID возвращает запись по ID.
func (r *SignalRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.CronSignal, error) {
	query := `
		SELECT id, invoked_at, source, metadata, response_status, executed_count,
		       duration_ms, completed_at
		FROM cron_signals
		WHERE id = $1
	`
	var s domain.CronSignal
	var metadataJSON []byte
	var responseStatus, executedCount *int
	var durationMS *int64

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.InvokedAt,
		&s.Source,
		&metadataJSON,
		&responseStatus,
		&executedCount,
		&durationMS,
		&s.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan cron signal: %w", err)
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &s.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if responseStatus != nil {
		s.ResponseStatus = *responseStatus
	}
	if executedCount != nil {
		s.ExecutedCount = *executedCount
	}
	if durationMS != nil {
		s.DurationMS = *durationMS
	}

	return &s, nil
}
