package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
)

// WorkflowRepo — репозиторий для чтения живых workflow-определений.
//
// CRUD workflow принадлежит админ-панели; executor'у нужны только
// чтение и переключение статуса (для отмены из CLI).
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

const workflowColumns = `id, name, status, target_config, message_config, schedule_config,
	       created_at, updated_at`

// GetByID возвращает workflow по ID.
func (r *WorkflowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`
	return r.scanWorkflow(r.pool.QueryRow(ctx, query, id))
}

// List возвращает workflows с фильтром по статусу.
func (r *WorkflowRepo) List(ctx context.Context, status domain.WorkflowStatus, limit, offset int) ([]domain.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, nullString(string(status)), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []domain.Workflow
	for rows.Next() {
		wf, err := r.scanWorkflowFromRows(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *wf)
	}
	return workflows, rows.Err()
}

// SetStatus переключает статус workflow.
func (r *WorkflowRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.WorkflowStatus) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE workflows SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("set workflow status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func (r *WorkflowRepo) scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var wf domain.Workflow
	var targetJSON, messageJSON, scheduleJSON []byte

	err := row.Scan(
		&wf.ID,
		&wf.Name,
		&wf.Status,
		&targetJSON,
		&messageJSON,
		&scheduleJSON,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if err := unmarshalConfigs(&wf, targetJSON, messageJSON, scheduleJSON); err != nil {
		return nil, err
	}
	return &wf, nil
}

func (r *WorkflowRepo) scanWorkflowFromRows(rows pgx.Rows) (*domain.Workflow, error) {
	var wf domain.Workflow
	var targetJSON, messageJSON, scheduleJSON []byte

	err := rows.Scan(
		&wf.ID,
		&wf.Name,
		&wf.Status,
		&targetJSON,
		&messageJSON,
		&scheduleJSON,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if err := unmarshalConfigs(&wf, targetJSON, messageJSON, scheduleJSON); err != nil {
		return nil, err
	}
	return &wf, nil
}

func unmarshalConfigs(wf *domain.Workflow, targetJSON, messageJSON, scheduleJSON []byte) error {
	if targetJSON != nil {
		if err := json.Unmarshal(targetJSON, &wf.TargetConfig); err != nil {
			return fmt.Errorf("unmarshal target_config: %w", err)
		}
	}
	if messageJSON != nil {
		if err := json.Unmarshal(messageJSON, &wf.MessageConfig); err != nil {
			return fmt.Errorf("unmarshal message_config: %w", err)
		}
	}
	if scheduleJSON != nil {
		if err := json.Unmarshal(scheduleJSON, &wf.ScheduleConfig); err != nil {
			return fmt.Errorf("unmarshal schedule_config: %w", err)
		}
	}
	return nil
}
