package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/analytics"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/delegate"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/kst"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/mq"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/repo"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/telemetry"
)

// Default configuration values.
const (
	defaultStuckTimeout = 5 * time.Minute
	defaultTolerance    = time.Minute
)

// JobStore — операции job store, нужные executor'у.
// Контракт консистентности: Transition и ClaimPending атомарны
// по-строчно и меняют строку только при совпадении прежнего статуса.
type JobStore interface {
	ListPending(ctx context.Context) ([]domain.ScheduledJob, error)
	ListRunning(ctx context.Context) ([]domain.ScheduledJob, error)
	ClaimPending(ctx context.Context, ids []uuid.UUID, executedAt time.Time) ([]uuid.UUID, error)
	Transition(ctx context.Context, id uuid.UUID, from, to domain.JobStatus, f repo.TransitionFields) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledJob, error)
}

// WorkflowStore — чтение живых workflow-определений.
type WorkflowStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
}

// SignalStore — запись аудита вызовов.
type SignalStore interface {
	Create(ctx context.Context, signal *domain.CronSignal) error
	Complete(ctx context.Context, id uuid.UUID, responseStatus, executedCount int, duration time.Duration) error
}

// Delegate — внешний сервис выполнения workflow.
type Delegate interface {
	Execute(ctx context.Context, req delegate.Request) (*delegate.Result, error)
}

// Executor выполняет один вызов машины состояний scheduled jobs.
type Executor struct {
	jobs      JobStore
	workflows WorkflowStore
	signals   SignalStore
	delegate  Delegate

	// Опциональные побочные каналы: nil — выключено.
	publisher *mq.Publisher
	analytics *analytics.Sink

	stuckTimeout time.Duration
	tolerance    time.Duration

	logger *slog.Logger
	clock  func() time.Time
}

// Config — конфигурация Executor.
type Config struct {
	Jobs      JobStore
	Workflows WorkflowStore
	Signals   SignalStore
	Delegate  Delegate

	// Publisher — опциональный publisher событий жизненного цикла.
	Publisher *mq.Publisher

	// Analytics — опциональный Redis-sink счётчиков.
	Analytics *analytics.Sink

	// StuckTimeout — порог зависания running job (default: 5m).
	StuckTimeout time.Duration

	// Tolerance — окно допуска для due-проверки (default: 1m).
	// Поглощает clock skew и дрожание polling'а.
	Tolerance time.Duration

	// Clock — источник времени (для тестов). Default: time.Now.
	Clock func() time.Time

	Logger *slog.Logger
}

// New создаёт новый Executor.
func New(cfg Config) *Executor {
	stuckTimeout := cfg.StuckTimeout
	if stuckTimeout <= 0 {
		stuckTimeout = defaultStuckTimeout
	}

	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		jobs:         cfg.Jobs,
		workflows:    cfg.Workflows,
		signals:      cfg.Signals,
		delegate:     cfg.Delegate,
		publisher:    cfg.Publisher,
		analytics:    cfg.Analytics,
		stuckTimeout: stuckTimeout,
		tolerance:    tolerance,
		clock:        clock,
		logger:       logger,
	}
}

// Trigger — сведения о вызывающей стороне для аудита.
type Trigger struct {
	// Source — классификация источника.
	Source domain.SignalSource

	// Metadata — подмножество заголовков запроса, секреты уже замаскированы.
	Metadata map[string]string
}

// JobResult — итог обработки одного захваченного job.
type JobResult struct {
	JobID      uuid.UUID        `json:"jobId"`
	WorkflowID uuid.UUID        `json:"workflowId"`
	Status     domain.JobStatus `json:"status"`
	WillRetry  bool             `json:"willRetry,omitempty"`
	RetryCount int              `json:"retryCount"`
	Error      string           `json:"error,omitempty"`
	DurationMS int64            `json:"durationMs"`
}

// Result — итог одного вызова executor'а.
type Result struct {
	// ExecutedCount — количество jobs, захваченных и доведённых до
	// терминального или retry-состояния этим вызовом.
	ExecutedCount int `json:"executedCount"`

	// Results — по-объектные итоги в порядке выполнения.
	Results []JobResult `json:"results"`

	// DebugInfo — диагностика фаз (repair/select/claim).
	DebugInfo []string `json:"debugInfo,omitempty"`

	// TotalPendingJobs — сколько всего pending jobs видел этот вызов.
	TotalPendingJobs int `json:"totalPendingJobs"`

	// Timestamp — время вызова в каноническом KST-формате.
	Timestamp string `json:"timestamp"`
}

// Execute выполняет один полный проход executor'а.
//
// Ошибка возвращается только если вызов упал целиком до начала
// пообъектной обработки (выборка/захват). Частичные неудачи —
// норма: они отражаются в Results, а не в error.
func (e *Executor) Execute(ctx context.Context, trigger Trigger) (*Result, error) {
	start := time.Now()
	now := e.clock()

	telemetry.InvocationsTotal.WithLabelValues(string(trigger.Source)).Inc()
	defer func() {
		telemetry.InvocationDuration.Observe(time.Since(start).Seconds())
	}()

	// 1. Аудит-запись вызова. Чисто наблюдательная: её неудача
	// не должна валить выполнение jobs.
	signal := &domain.CronSignal{
		ID:        uuid.New(),
		InvokedAt: now,
		Source:    trigger.Source,
		Metadata:  trigger.Metadata,
	}
	signalRecorded := true
	if err := e.signals.Create(ctx, signal); err != nil {
		signalRecorded = false
		e.logger.Warn("failed to record cron signal", "error", err)
	}

	logger := telemetry.WithSignalID(e.logger, signal.ID.String())
	logger.Info("executor invocation started", "source", trigger.Source)

	result := &Result{Timestamp: kst.Format(now)}

	// 2. Чиним зависшие running jobs до выборки.
	repaired, repairDebug := e.repairStuck(ctx, now)
	result.DebugInfo = append(result.DebugInfo, repairDebug...)

	// 3. Выбираем due jobs.
	sel, err := e.selectDue(ctx, now)
	if err != nil {
		e.completeSignal(ctx, signal, signalRecorded, http.StatusInternalServerError, 0, time.Since(start))
		return nil, fmt.Errorf("select due jobs: %w", err)
	}
	result.TotalPendingJobs = sel.totalPending
	result.DebugInfo = append(result.DebugInfo, sel.debug...)

	// 4. Атомарно захватываем кандидатов.
	claimed, err := e.claim(ctx, sel.due, now)
	if err != nil {
		e.completeSignal(ctx, signal, signalRecorded, http.StatusInternalServerError, 0, time.Since(start))
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}

	logger.Info("claim phase finished",
		"stuck_repaired", repaired,
		"total_pending", sel.totalPending,
		"due", len(sel.due),
		"claimed", len(claimed),
	)

	// 5. Выполняем захваченные jobs последовательно: это ограничивает
	// нагрузку на сервис доставки. Ошибки изолированы по-объектно.
	for i := range claimed {
		jobResult := e.runJob(ctx, &claimed[i])
		result.Results = append(result.Results, jobResult)
		result.ExecutedCount++
	}

	// 6. Дописываем итог вызова.
	e.completeSignal(ctx, signal, signalRecorded, http.StatusOK, result.ExecutedCount, time.Since(start))
	e.analytics.RecordInvocation(ctx, result.ExecutedCount, now)

	logger.Info("executor invocation completed",
		"executed", result.ExecutedCount,
		"duration", time.Since(start),
	)

	return result, nil
}

// claim атомарно переводит due-кандидатов в running и возвращает
// только реально захваченные jobs в порядке возрастания scheduled
// instant. Кандидаты, доставшиеся конкурентному вызову, молча
// выбрасываются — это проигранная гонка, не ошибка.
func (e *Executor) claim(ctx context.Context, due []dueJob, now time.Time) ([]domain.ScheduledJob, error) {
	if len(due) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(due))
	for i := range due {
		ids[i] = due[i].job.ID
	}

	claimedIDs, err := e.jobs.ClaimPending(ctx, ids, now)
	if err != nil {
		return nil, err
	}

	claimedSet := make(map[uuid.UUID]struct{}, len(claimedIDs))
	for _, id := range claimedIDs {
		claimedSet[id] = struct{}{}
	}

	// Пересечение с реально обновлёнными строками — не с исходным
	// набором кандидатов. Порядок из selector'а сохраняется.
	claimed := make([]domain.ScheduledJob, 0, len(claimedIDs))
	for i := range due {
		job := due[i].job
		if _, ok := claimedSet[job.ID]; !ok {
			telemetry.ClaimRacesLostTotal.Inc()
			e.logger.Debug("lost claim race", "job_id", job.ID)
			continue
		}
		job.MarkRunning(now)
		claimed = append(claimed, job)
	}

	telemetry.JobsClaimedTotal.Add(float64(len(claimed)))
	return claimed, nil
}

// completeSignal дописывает итог вызова в аудит-запись.
func (e *Executor) completeSignal(ctx context.Context, signal *domain.CronSignal, recorded bool, status, executed int, d time.Duration) {
	if !recorded {
		return
	}
	if err := e.signals.Complete(ctx, signal.ID, status, executed, d); err != nil {
		e.logger.Warn("failed to complete cron signal", "signal_id", signal.ID, "error", err)
	}
}
