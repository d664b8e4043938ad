package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignSchedule — расписание повторяющейся кампании.
//
// Schedule позволяет запускать workflow:
// - По cron-выражению: "0 9 * * *" (каждый день в 9:00)
// - По интервалу: каждые N секунд
//
// Scheduler проверяет next_due_at и материализует ScheduledJob,
// когда время подошло. Сам job дальше живёт обычным циклом executor'а.
type CampaignSchedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на workflow, который нужно запускать.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Name — имя расписания для удобства.
	Name string `json:"name,omitempty"`

	// CronExpr — cron-выражение ("минуты часы дни месяцы дни_недели").
	// Если задан CronExpr, IntervalSec игнорируется.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах между запусками.
	// Используется если CronExpr не задан.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — часовой пояс для вычисления времени.
	// По умолчанию: "Asia/Seoul".
	Timezone string `json:"timezone"`

	// Enabled — флаг активности расписания.
	Enabled bool `json:"enabled"`

	// NextDueAt — время следующей материализации job.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последней материализации.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastJobID — ID последнего созданного job.
	LastJobID *uuid.UUID `json:"last_job_id,omitempty"`

	// CreatedAt — время создания schedule.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *CampaignSchedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *CampaignSchedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// IsDue проверяет, пора ли материализовать job.
func (s *CampaignSchedule) IsDue(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.NextDueAt == nil {
		return false
	}
	return now.After(*s.NextDueAt) || now.Equal(*s.NextDueAt)
}

// RecordRun записывает информацию о материализации.
// Нулевой jobID означает пропуск запуска (workflow неактивен):
// next_due_at продвигается, last_job_id остаётся прежним.
func (s *CampaignSchedule) RecordRun(jobID uuid.UUID, nextDue time.Time) {
	now := time.Now()
	s.LastRunAt = &now
	if jobID != uuid.Nil {
		s.LastJobID = &jobID
	}
	s.NextDueAt = &nextDue
	s.UpdatedAt = now
}
