package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScheduledJob — единица планируемой работы.
//
// Job создаётся когда:
// - Пользователь планирует разовую отправку кампании
// - Scheduler материализует due campaign schedule
//
// Строка в БД — единственный источник истины: executor никогда не
// держит job в памяти как авторитетное состояние, все переходы идут
// через условные (CAS) обновления по ожидаемому статусу.
type ScheduledJob struct {
	// ID — уникальный идентификатор job.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на workflow, который нужно выполнить.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Snapshot — денормализованная копия workflow на момент планирования.
	// Выполнение не зависит от последующих правок живого workflow.
	Snapshot WorkflowSnapshot `json:"workflow_snapshot"`

	// ScheduledAt — момент, с которого job становится due.
	// Хранится строкой: исторически формат варьируется (с offset,
	// UTC, без маркера зоны). Нормализуется через internal/kst.
	ScheduledAt string `json:"scheduled_at"`

	// Status — текущий статус job.
	Status JobStatus `json:"status"`

	// RetryCount — количество уже использованных попыток.
	RetryCount int `json:"retry_count"`

	// MaxRetries — предел повторных попыток.
	MaxRetries int `json:"max_retries"`

	// ErrorMessage — диагностика последней ошибки (только для failed/retry).
	ErrorMessage string `json:"error_message,omitempty"`

	// IdempotencyKey — ключ идемпотентности для jobs, созданных scheduler'ом.
	// Формат: "{schedule_id}_{next_due_at_unix}".
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// ExecutedAt — время последнего захвата (переход в running).
	// Nil тогда и только тогда, когда job никогда не был running.
	ExecutedAt *time.Time `json:"executed_at,omitempty"`

	// CompletedAt — время успешного завершения.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// FailedAt — время терминального перехода в failed.
	FailedAt *time.Time `json:"failed_at,omitempty"`

	// CreatedAt — время создания job.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — обновляется при каждом переходе статуса.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFinished возвращает true, если job завершён (в любом терминальном статусе).
func (j *ScheduledJob) IsFinished() bool {
	return j.Status.IsTerminal()
}

// CanRetry проверяет, остались ли попытки.
func (j *ScheduledJob) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// MarkRunning переводит job в статус running.
func (j *ScheduledJob) MarkRunning(now time.Time) {
	j.Status = JobStatusRunning
	j.ExecutedAt = &now
	j.UpdatedAt = now
}

// MarkCompleted переводит job в статус completed.
func (j *ScheduledJob) MarkCompleted(now time.Time) {
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkFailed переводит job в терминальный статус failed с диагностикой.
func (j *ScheduledJob) MarkFailed(now time.Time, errMsg string) {
	j.Status = JobStatusFailed
	j.FailedAt = &now
	j.ErrorMessage = errMsg
	j.UpdatedAt = now
}

// MarkCancelled переводит job в статус cancelled.
// Это не ошибка, а намеренный пропуск (workflow выключен).
func (j *ScheduledJob) MarkCancelled(now time.Time, reason string) {
	j.Status = JobStatusCancelled
	j.ErrorMessage = reason
	j.UpdatedAt = now
}

// ResetForRetry возвращает job в pending для повторной попытки.
// ScheduledAt не сдвигается: job становится due немедленно,
// поскольку его исходное время уже в прошлом.
func (j *ScheduledJob) ResetForRetry(now time.Time, errMsg string) {
	j.Status = JobStatusPending
	j.RetryCount++
	j.ErrorMessage = errMsg
	j.UpdatedAt = now
}
