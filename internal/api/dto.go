package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/kst"
)

// Представления ресурсов для ответов API. Временные метки отдаются
// в каноническом KST-формате — дашборд показывает корейское время.

type jobView struct {
	ID           uuid.UUID        `json:"id"`
	WorkflowID   uuid.UUID        `json:"workflowId"`
	WorkflowName string           `json:"workflowName,omitempty"`
	ScheduledAt  string           `json:"scheduledAt"`
	Status       domain.JobStatus `json:"status"`
	RetryCount   int              `json:"retryCount"`
	MaxRetries   int              `json:"maxRetries"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	ExecutedAt   *string          `json:"executedAt,omitempty"`
	CompletedAt  *string          `json:"completedAt,omitempty"`
	FailedAt     *string          `json:"failedAt,omitempty"`
	CreatedAt    string           `json:"createdAt"`
	UpdatedAt    string           `json:"updatedAt"`
}

func toJobView(job *domain.ScheduledJob) jobView {
	return jobView{
		ID:           job.ID,
		WorkflowID:   job.WorkflowID,
		WorkflowName: job.Snapshot.Name,
		ScheduledAt:  job.ScheduledAt,
		Status:       job.Status,
		RetryCount:   job.RetryCount,
		MaxRetries:   job.MaxRetries,
		ErrorMessage: job.ErrorMessage,
		ExecutedAt:   fmtTimePtr(job.ExecutedAt),
		CompletedAt:  fmtTimePtr(job.CompletedAt),
		FailedAt:     fmtTimePtr(job.FailedAt),
		CreatedAt:    kst.Format(job.CreatedAt),
		UpdatedAt:    kst.Format(job.UpdatedAt),
	}
}

type signalView struct {
	ID             uuid.UUID           `json:"id"`
	InvokedAt      string              `json:"invokedAt"`
	Source         domain.SignalSource `json:"source"`
	Metadata       map[string]string   `json:"metadata,omitempty"`
	ResponseStatus int                 `json:"responseStatus,omitempty"`
	ExecutedCount  int                 `json:"executedCount"`
	DurationMS     int64               `json:"durationMs,omitempty"`
	CompletedAt    *string             `json:"completedAt,omitempty"`
}

func toSignalView(s *domain.CronSignal) signalView {
	return signalView{
		ID:             s.ID,
		InvokedAt:      kst.Format(s.InvokedAt),
		Source:         s.Source,
		Metadata:       s.Metadata,
		ResponseStatus: s.ResponseStatus,
		ExecutedCount:  s.ExecutedCount,
		DurationMS:     s.DurationMS,
		CompletedAt:    fmtTimePtr(s.CompletedAt),
	}
}

type scheduleView struct {
	ID          uuid.UUID  `json:"id"`
	WorkflowID  uuid.UUID  `json:"workflowId"`
	Name        string     `json:"name,omitempty"`
	CronExpr    string     `json:"cronExpr,omitempty"`
	IntervalSec int        `json:"intervalSec,omitempty"`
	Timezone    string     `json:"timezone"`
	Enabled     bool       `json:"enabled"`
	NextDueAt   *string    `json:"nextDueAt,omitempty"`
	LastRunAt   *string    `json:"lastRunAt,omitempty"`
	LastJobID   *uuid.UUID `json:"lastJobId,omitempty"`
	CreatedAt   string     `json:"createdAt"`
	UpdatedAt   string     `json:"updatedAt"`
}

func toScheduleView(s *domain.CampaignSchedule) scheduleView {
	return scheduleView{
		ID:          s.ID,
		WorkflowID:  s.WorkflowID,
		Name:        s.Name,
		CronExpr:    s.CronExpr,
		IntervalSec: s.IntervalSec,
		Timezone:    s.Timezone,
		Enabled:     s.Enabled,
		NextDueAt:   fmtTimePtr(s.NextDueAt),
		LastRunAt:   fmtTimePtr(s.LastRunAt),
		LastJobID:   s.LastJobID,
		CreatedAt:   kst.Format(s.CreatedAt),
		UpdatedAt:   kst.Format(s.UpdatedAt),
	}
}

// createScheduleRequest — тело POST /schedules.
type createScheduleRequest struct {
	WorkflowID  uuid.UUID `json:"workflowId"`
	Name        string    `json:"name"`
	CronExpr    string    `json:"cronExpr"`
	IntervalSec int       `json:"intervalSec"`
	Timezone    string    `json:"timezone"`
	Enabled     *bool     `json:"enabled"`
}

// setEnabledRequest — тело PUT /schedules/{id}/enabled.
type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := kst.Format(*t)
	return &s
}
