package api

import (
	"context"
	"log/slog"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/executor"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/repo"
)

// Invoker — executor, запускаемый триггер-эндпоинтом.
// Интерфейс позволяет подменять executor в тестах поверхности.
type Invoker interface {
	Execute(ctx context.Context, trigger executor.Trigger) (*executor.Result, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	invoker      Invoker
	jobRepo      *repo.JobRepo
	signalRepo   *repo.SignalRepo
	scheduleRepo *repo.ScheduleRepo
	workflowRepo *repo.WorkflowRepo
	logger       *slog.Logger

	secret string
	appEnv string
}

// Config — конфигурация для создания Handler.
type Config struct {
	Invoker      Invoker
	JobRepo      *repo.JobRepo
	SignalRepo   *repo.SignalRepo
	ScheduleRepo *repo.ScheduleRepo
	WorkflowRepo *repo.WorkflowRepo
	Logger       *slog.Logger

	// Secret — shared secret триггера (env CRON_SECRET).
	Secret string

	// AppEnv — окружение (APP_ENV); development отключает авторизацию.
	AppEnv string
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		invoker:      cfg.Invoker,
		jobRepo:      cfg.JobRepo,
		signalRepo:   cfg.SignalRepo,
		scheduleRepo: cfg.ScheduleRepo,
		workflowRepo: cfg.WorkflowRepo,
		logger:       cfg.Logger,
		secret:       cfg.Secret,
		appEnv:       cfg.AppEnv,
	}
}
