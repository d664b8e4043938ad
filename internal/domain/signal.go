package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CronSignal — аудит-запись одного вызова executor'а.
//
// Создаётся в начале вызова, дополняется один раз в конце
// (HTTP-статус, количество выполненных jobs, длительность).
// Логика выполнения jobs её никогда не мутирует — запись чисто
// наблюдательная.
type CronSignal struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// InvokedAt — время вызова executor'а.
	InvokedAt time.Time `json:"invoked_at"`

	// Source — классификация вызывающей стороны.
	Source SignalSource `json:"source"`

	// Metadata — подмножество заголовков запроса. Секреты замаскированы
	// ещё до попадания сюда (см. RedactHeaders).
	Metadata map[string]string `json:"metadata,omitempty"`

	// ResponseStatus — HTTP-статус ответа. Заполняется по завершении.
	ResponseStatus int `json:"response_status,omitempty"`

	// ExecutedCount — сколько jobs выполнено за этот вызов.
	ExecutedCount int `json:"executed_count,omitempty"`

	// DurationMS — длительность вызова в миллисекундах.
	DurationMS int64 `json:"duration_ms,omitempty"`

	// CompletedAt — время завершения вызова.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// MarkCompleted дописывает итог вызова.
func (s *CronSignal) MarkCompleted(status, executed int, d time.Duration) {
	now := time.Now()
	s.ResponseStatus = status
	s.ExecutedCount = executed
	s.DurationMS = d.Milliseconds()
	s.CompletedAt = &now
}

// redactedHeaders — заголовки, значения которых маскируются в метаданных.
var redactedHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
	"x-cron-secret": {},
}

// capturedHeaders — заголовки, сохраняемые в метаданных сигнала.
var capturedHeaders = []string{
	"user-agent",
	"x-forwarded-for",
	"x-internal-call",
	"x-cron-secret",
	"authorization",
}

// RedactHeaders собирает подмножество заголовков для CronSignal,
// маскируя секреты.
func RedactHeaders(get func(string) string) map[string]string {
	meta := make(map[string]string)
	for _, name := range capturedHeaders {
		v := get(name)
		if v == "" {
			continue
		}
		if _, secret := redactedHeaders[strings.ToLower(name)]; secret {
			v = "[REDACTED]"
		}
		meta[name] = v
	}
	return meta
}
