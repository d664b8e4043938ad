package domain

// JobStatus — статус выполнения scheduled job.
//
// Жизненный цикл:
//
//	pending → running → completed
//	                  ↘ failed
//	running → failed (по таймауту, через reconciler)
//	failed  → pending (retry, ограничен max_retries)
//	pending → cancelled (workflow деактивирован)
type JobStatus string

const (
	// JobStatusPending — job создан и ожидает своего scheduled_at.
	JobStatusPending JobStatus = "pending"

	// JobStatusRunning — job захвачен одним из executor'ов и выполняется.
	JobStatusRunning JobStatus = "running"

	// JobStatusCompleted — job успешно выполнен.
	JobStatusCompleted JobStatus = "completed"

	// JobStatusFailed — job завершился с ошибкой (retry исчерпаны или data error).
	JobStatusFailed JobStatus = "failed"

	// JobStatusCancelled — job отменён (workflow выключен или ручная отмена).
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal возвращает true, если статус финальный (job завершён).
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Valid проверяет, что значение статуса известно.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// WorkflowStatus — статус живого workflow-определения.
//
// Снапшот workflow намеренно устаревает после планирования,
// поэтому активность ревалидируется в момент выполнения job.
type WorkflowStatus string

const (
	// WorkflowStatusActive — workflow активен, jobs выполняются.
	WorkflowStatusActive WorkflowStatus = "active"

	// WorkflowStatusPaused — workflow приостановлен пользователем.
	WorkflowStatusPaused WorkflowStatus = "paused"

	// WorkflowStatusArchived — workflow в архиве.
	WorkflowStatusArchived WorkflowStatus = "archived"
)

// SignalSource — классификация источника вызова executor'а.
type SignalSource string

const (
	// SignalSourceScheduler — доверенный внешний cron-триггер.
	SignalSourceScheduler SignalSource = "scheduler"

	// SignalSourceManual — ручной вызов по shared secret.
	SignalSourceManual SignalSource = "manual"

	// SignalSourceDevelopment — локальная разработка, без авторизации.
	SignalSourceDevelopment SignalSource = "development"
)
