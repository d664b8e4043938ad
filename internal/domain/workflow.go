package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ошибки валидации snapshot'а на границе хранилища.
var (
	// ErrEmptySnapshot — снапшот без единого шага сообщения.
	ErrEmptySnapshot = errors.New("workflow snapshot has no message steps")

	// ErrNoTargets — снапшот без целевых групп.
	ErrNoTargets = errors.New("workflow snapshot has no target groups")
)

// Workflow — живое определение маркетингового workflow.
//
// CRUD самих workflow принадлежит админ-панели; executor только
// читает статус и отдаёт снапшот внешнему delegate. Здесь
// моделируются лишь поля, значимые для планирования.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// Name — имя кампании.
	Name string `json:"name"`

	// Status — текущий статус. Jobs выполняются только для active.
	Status WorkflowStatus `json:"status"`

	// TargetConfig — целевые группы получателей.
	TargetConfig TargetConfig `json:"target_config"`

	// MessageConfig — шаги сообщений (SMS/AlimTalk).
	MessageConfig MessageConfig `json:"message_config"`

	// ScheduleConfig — настройки планирования.
	ScheduleConfig ScheduleConfig `json:"schedule_config"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive возвращает true, если workflow можно выполнять.
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}

// Snapshot делает копию конфигурации workflow для закрепления в job.
func (w *Workflow) Snapshot() WorkflowSnapshot {
	return WorkflowSnapshot{
		Name:           w.Name,
		TargetConfig:   w.TargetConfig,
		MessageConfig:  w.MessageConfig,
		ScheduleConfig: w.ScheduleConfig,
	}
}

// WorkflowSnapshot — копия workflow на момент планирования job.
//
// Снапшот передаётся delegate как есть: персонализация и доставка —
// забота внешнего сервиса. Поля типизированы и валидируются на
// границе job store, опаковые словари через пайплайн не ходят.
type WorkflowSnapshot struct {
	// Name — имя кампании на момент снапшота.
	Name string `json:"name"`

	// TargetConfig — целевые группы на момент снапшота.
	TargetConfig TargetConfig `json:"target_config"`

	// MessageConfig — шаги сообщений на момент снапшота.
	MessageConfig MessageConfig `json:"message_config"`

	// ScheduleConfig — настройки планирования на момент снапшота.
	ScheduleConfig ScheduleConfig `json:"schedule_config"`
}

// Validate проверяет обязательные поля снапшота.
// Вызывается при записи job в хранилище.
func (s *WorkflowSnapshot) Validate() error {
	if len(s.MessageConfig.Steps) == 0 {
		return ErrEmptySnapshot
	}
	if len(s.TargetConfig.Groups) == 0 {
		return ErrNoTargets
	}
	for i := range s.MessageConfig.Steps {
		step := &s.MessageConfig.Steps[i]
		if step.Channel != ChannelSMS && step.Channel != ChannelAlimTalk {
			return fmt.Errorf("message step %d: unknown channel %q", i, step.Channel)
		}
		if step.Content == "" && step.TemplateID == "" {
			return fmt.Errorf("message step %d: neither content nor template_id set", i)
		}
	}
	return nil
}

// MessageChannel — канал доставки сообщения.
type MessageChannel string

const (
	// ChannelSMS — обычное SMS.
	ChannelSMS MessageChannel = "sms"

	// ChannelAlimTalk — Kakao AlimTalk.
	ChannelAlimTalk MessageChannel = "alimtalk"
)

// TargetConfig — конфигурация целевой аудитории.
type TargetConfig struct {
	// Groups — группы получателей.
	Groups []TargetGroup `json:"groups"`
}

// TargetGroup — одна группа получателей.
type TargetGroup struct {
	// ID — идентификатор группы в CRM.
	ID string `json:"id"`

	// Name — человекочитаемое имя группы.
	Name string `json:"name,omitempty"`

	// EstimatedCount — оценка размера группы на момент снапшота.
	EstimatedCount int `json:"estimated_count,omitempty"`
}

// MessageConfig — конфигурация сообщений workflow.
type MessageConfig struct {
	// Steps — шаги сообщений в порядке отправки.
	Steps []MessageStep `json:"steps"`
}

// MessageStep — один шаг сообщения.
type MessageStep struct {
	// Order — порядковый номер шага.
	Order int `json:"order"`

	// Channel — канал доставки: sms или alimtalk.
	Channel MessageChannel `json:"channel"`

	// TemplateID — идентификатор шаблона (для alimtalk обязателен).
	TemplateID string `json:"template_id,omitempty"`

	// Content — текст сообщения с переменными персонализации.
	// Подстановка переменных — забота delegate, здесь не трогаем.
	Content string `json:"content,omitempty"`

	// Variables — маппинг переменных шаблона на поля контакта.
	Variables map[string]string `json:"variables,omitempty"`
}

// ScheduleConfig — настройки планирования workflow.
type ScheduleConfig struct {
	// Type — тип расписания: "one_time" или "recurring".
	Type string `json:"type"`

	// ScheduledAt — исходная строка времени запуска (для one_time).
	ScheduledAt string `json:"scheduled_at,omitempty"`

	// Timezone — часовой пояс расписания. По умолчанию Asia/Seoul.
	Timezone string `json:"timezone,omitempty"`
}
