package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/kst"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/mq"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/repo"
)

const (
	defaultBatchSize  = 100
	defaultMaxRetries = 3
)

// ScheduleStore — операции с расписаниями, нужные scheduler'у.
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.CampaignSchedule, error)
	Update(ctx context.Context, schedule *domain.CampaignSchedule) error
}

// JobStore — операции с jobs, нужные scheduler'у.
type JobStore interface {
	Create(ctx context.Context, job *domain.ScheduledJob) error
	GetByIdempotencyKey(ctx context.Context, workflowID uuid.UUID, key string) (*domain.ScheduledJob, error)
}

// WorkflowStore — чтение workflow.
type WorkflowStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
}

// Scheduler материализует jobs из due-расписаний.
type Scheduler struct {
	schedules  ScheduleStore
	jobs       JobStore
	workflows  WorkflowStore
	publisher  *mq.Publisher
	logger     *slog.Logger
	batchSize  int
	maxRetries int
	clock      func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules ScheduleStore
	Jobs      JobStore
	Workflows WorkflowStore

	// Publisher опционален: при nil события job.created не публикуются,
	// executor подберёт jobs обычным polling'ом.
	Publisher *mq.Publisher

	Logger *slog.Logger

	// BatchSize — количество расписаний за один тик (default: 100).
	BatchSize int

	// MaxRetries — лимит retry для материализуемых jobs (default: 3).
	MaxRetries int

	// Clock подменяется в тестах.
	Clock func() time.Time
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		schedules:  cfg.Schedules,
		jobs:       cfg.Jobs,
		workflows:  cfg.Workflows,
		publisher:  cfg.Publisher,
		logger:     logger,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		clock:      clock,
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due schedules (enabled=true, next_due_at <= now)
// 2. Для каждого материализует ScheduledJob (с проверкой идемпотентности)
// 3. Обновляет next_due_at
// 4. Публикует job.created в RabbitMQ
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock()

	schedules, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	if len(schedules) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(schedules))

	var processed, created int
	for i := range schedules {
		sched := &schedules[i]

		jobCreated, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			continue
		}

		processed++
		if jobCreated {
			created++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(schedules),
		"processed", processed,
		"jobs_created", created,
	)

	return nil
}

// processSchedule обрабатывает один due schedule.
// Возвращает true, если job был создан (не дубликат и не пропуск).
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.CampaignSchedule, now time.Time) (bool, error) {
	// 1. Проверяем workflow
	wf, err := s.workflows.GetByID(ctx, sched.WorkflowID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logger.Warn("workflow not found for schedule, skipping",
				"schedule_id", sched.ID,
				"workflow_id", sched.WorkflowID,
			)
			// Не ошибка — просто пропускаем
			return false, nil
		}
		return false, fmt.Errorf("get workflow: %w", err)
	}

	// Paused/archived workflow: job не создаём, но next_due_at
	// продвигаем, иначе schedule будет due на каждом тике
	if !wf.IsActive() {
		s.logger.Info("workflow is not active, skipping materialization",
			"schedule_id", sched.ID,
			"workflow_id", wf.ID,
			"workflow_status", wf.Status,
		)
		return false, s.advance(ctx, sched, uuid.Nil, now)
	}

	// 2. Ключ идемпотентности: "{schedule_id}_{next_due_at_unix}".
	// Гарантирует единственный job для пары (расписание, запуск).
	dueAt := now
	if sched.NextDueAt != nil {
		dueAt = *sched.NextDueAt
	}
	idempKey := fmt.Sprintf("%s_%d", sched.ID, dueAt.Unix())

	// 3. Проверяем, не создан ли уже job
	existing, err := s.jobs.GetByIdempotencyKey(ctx, sched.WorkflowID, idempKey)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return false, fmt.Errorf("check idempotency: %w", err)
	}

	var jobCreated bool
	var jobID uuid.UUID

	if existing != nil {
		s.logger.Debug("job already exists (idempotency)",
			"schedule_id", sched.ID,
			"job_id", existing.ID,
			"idempotency_key", idempKey,
		)
		jobID = existing.ID
	} else {
		// 4. Материализуем job. scheduled_at пишем в каноническом
		// формате — RFC3339 с корейским смещением
		job := &domain.ScheduledJob{
			ID:             uuid.New(),
			WorkflowID:     sched.WorkflowID,
			Snapshot:       wf.Snapshot(),
			ScheduledAt:    kst.Format(dueAt),
			Status:         domain.JobStatusPending,
			MaxRetries:     s.maxRetries,
			IdempotencyKey: idempKey,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := s.jobs.Create(ctx, job); err != nil {
			return false, fmt.Errorf("create job: %w", err)
		}

		s.logger.Info("materialized job from schedule",
			"job_id", job.ID,
			"schedule_id", sched.ID,
			"schedule_name", sched.Name,
			"workflow_id", sched.WorkflowID,
			"scheduled_at", job.ScheduledAt,
		)

		jobID = job.ID
		jobCreated = true
	}

	// 5. Продвигаем расписание
	if err := s.advance(ctx, sched, jobID, now); err != nil {
		return jobCreated, err
	}

	// 6. Fast-path событие (при потере executor подберёт job через polling)
	if s.publisher != nil && jobCreated {
		if err := s.publisher.PublishJobCreated(ctx, jobID, sched.WorkflowID, kst.Format(dueAt)); err != nil {
			s.logger.Warn("failed to publish job.created",
				"job_id", jobID,
				"error", err,
			)
		}
	}

	return jobCreated, nil
}

// advance вычисляет следующее время и обновляет schedule.
func (s *Scheduler) advance(ctx context.Context, sched *domain.CampaignSchedule, jobID uuid.UUID, now time.Time) error {
	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		// Невалидное расписание: next_due_at не трогаем, пусть
		// оператор чинит cron_expr
		s.logger.Error("failed to calculate next due",
			"schedule_id", sched.ID,
			"error", err,
		)
		return nil
	}

	sched.RecordRun(jobID, nextDue)
	if err := s.schedules.Update(ctx, sched); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}

	return nil
}
