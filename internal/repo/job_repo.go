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

// JobRepo — репозиторий для работы со scheduled_jobs.
//
// Все переходы статусов идут через условные обновления с ожидаемым
// прежним статусом: строка меняется, только если гонка не проиграна.
// Это ядро корректности для конкурентных вызовов executor'а.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, workflow_id, snapshot, scheduled_at, status, retry_count, max_retries,
	       error_message, idempotency_key, executed_at, completed_at, failed_at,
	       created_at, updated_at`

// Create создаёт новый job. Snapshot валидируется на границе хранилища.
func (r *JobRepo) Create(ctx context.Context, job *domain.ScheduledJob) error {
	if err := job.Snapshot.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	snapshotJSON, err := json.Marshal(job.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO scheduled_jobs (id, workflow_id, snapshot, scheduled_at, status,
		                            retry_count, max_retries, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.WorkflowID,
		snapshotJSON,
		job.ScheduledAt,
		job.Status,
		job.RetryCount,
		job.MaxRetries,
		nullString(job.IdempotencyKey),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID возвращает job по ID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledJob, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs WHERE id = $1`
	return r.scanJob(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey возвращает job по ключу идемпотентности.
func (r *JobRepo) GetByIdempotencyKey(ctx context.Context, workflowID uuid.UUID, key string) (*domain.ScheduledJob, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs WHERE workflow_id = $1 AND idempotency_key = $2`
	return r.scanJob(r.pool.QueryRow(ctx, query, workflowID, key))
}

// ListPending возвращает все pending jobs, отсортированные по
// scheduled_at по возрастанию (самые ранние первыми).
//
// scheduled_at — текстовая колонка с разнородными форматами, поэтому
// сортировка лексикографическая; окончательный порядок due-набора
// восстанавливает selector после нормализации через kst.
func (r *JobRepo) ListPending(ctx context.Context) ([]domain.ScheduledJob, error) {
	return r.listByStatus(ctx, domain.JobStatusPending)
}

// ListRunning возвращает все jobs в статусе running.
func (r *JobRepo) ListRunning(ctx context.Context) ([]domain.ScheduledJob, error) {
	return r.listByStatus(ctx, domain.JobStatusRunning)
}

func (r *JobRepo) listByStatus(ctx context.Context, status domain.JobStatus) ([]domain.ScheduledJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM scheduled_jobs
		WHERE status = $1
		ORDER BY scheduled_at ASC
	`
	rows, err := r.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("list %s jobs: %w", status, err)
	}
	defer rows.Close()

	var jobs []domain.ScheduledJob
	for rows.Next() {
		job, err := r.scanJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// List возвращает jobs с фильтрацией (для админских read-endpoint'ов).
func (r *JobRepo) List(ctx context.Context, filter JobFilter) ([]domain.ScheduledJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM scheduled_jobs
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.WorkflowID),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ScheduledJob
	for rows.Next() {
		job, err := r.scanJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ClaimPending атомарно переводит кандидатов из pending в running.
//
// Обновляются только строки, чей статус всё ещё pending; RETURNING
// сообщает, какие именно строки достались этому вызову. Кандидаты,
// захваченные конкурентным вызовом, в результат не попадают — это
// не ошибка, а проигранная гонка.
func (r *JobRepo) ClaimPending(ctx context.Context, ids []uuid.UUID, executedAt time.Time) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		UPDATE scheduled_jobs
		SET status = $2, executed_at = $3, updated_at = $3
		WHERE id = ANY($1) AND status = $4
		RETURNING id
	`
	rows, err := r.pool.Query(ctx, query, ids, domain.JobStatusRunning, executedAt, domain.JobStatusPending)
	if err != nil {
		return nil, fmt.Errorf("claim pending jobs: %w", err)
	}
	defer rows.Close()

	var claimed []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan claimed id: %w", err)
		}
		claimed = append(claimed, id)
	}
	return claimed, rows.Err()
}

// TransitionFields — поля, дописываемые при переходе статуса.
// Nil-поле оставляет колонку нетронутой.
type TransitionFields struct {
	ErrorMessage *string
	RetryCount   *int
	CompletedAt  *time.Time
	FailedAt     *time.Time
}

// Transition выполняет условный переход одного job.
//
// Возвращает false, если строка уже изменена конкурентным процессом
// (прежний статус не совпал). Это штатная ситуация, не ошибка.
func (r *JobRepo) Transition(ctx context.Context, id uuid.UUID, from, to domain.JobStatus, f TransitionFields) (bool, error) {
	query := `
		UPDATE scheduled_jobs
		SET status = $3,
		    updated_at = NOW(),
		    error_message = COALESCE($4, error_message),
		    retry_count = COALESCE($5, retry_count),
		    completed_at = COALESCE($6, completed_at),
		    failed_at = COALESCE($7, failed_at)
		WHERE id = $1 AND status = $2
	`
	result, err := r.pool.Exec(ctx, query,
		id,
		from,
		to,
		f.ErrorMessage,
		f.RetryCount,
		f.CompletedAt,
		f.FailedAt,
	)
	if err != nil {
		return false, fmt.Errorf("transition job %s→%s: %w", from, to, err)
	}
	return result.RowsAffected() > 0, nil
}

// CountByStatus возвращает количество jobs в статусе.
func (r *JobRepo) CountByStatus(ctx context.Context, status domain.JobStatus) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM scheduled_jobs WHERE status = $1
	`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return count, nil
}

// --- Helpers ---

// JobFilter — параметры фильтрации jobs.
type JobFilter struct {
	WorkflowID *uuid.UUID
	Status     domain.JobStatus
	Limit      int
	Offset     int
}

func (r *JobRepo) scanJob(row pgx.Row) (*domain.ScheduledJob, error) {
	var job domain.ScheduledJob
	var snapshotJSON []byte
	var errorMessage, idempotencyKey *string

	err := row.Scan(
		&job.ID,
		&job.WorkflowID,
		&snapshotJSON,
		&job.ScheduledAt,
		&job.Status,
		&job.RetryCount,
		&job.MaxRetries,
		&errorMessage,
		&idempotencyKey,
		&job.ExecutedAt,
		&job.CompletedAt,
		&job.FailedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if snapshotJSON != nil {
		if err := json.Unmarshal(snapshotJSON, &job.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	if idempotencyKey != nil {
		job.IdempotencyKey = *idempotencyKey
	}

	return &job, nil
}

func (r *JobRepo) scanJobFromRows(rows pgx.Rows) (*domain.ScheduledJob, error) {
	var job domain.ScheduledJob
	var snapshotJSON []byte
	var errorMessage, idempotencyKey *string

	err := rows.Scan(
		&job.ID,
		&job.WorkflowID,
		&snapshotJSON,
		&job.ScheduledAt,
		&job.Status,
		&job.RetryCount,
		&job.MaxRetries,
		&errorMessage,
		&idempotencyKey,
		&job.ExecutedAt,
		&job.CompletedAt,
		&job.FailedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if snapshotJSON != nil {
		if err := json.Unmarshal(snapshotJSON, &job.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	if idempotencyKey != nil {
		job.IdempotencyKey = *idempotencyKey
	}

	return &job, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}

// nullInt возвращает nil для нулевого int.
func nullInt(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}
