package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/delegate"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/repo"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/telemetry"
)

// runJob выполняет один захваченный job.
//
// Побочные эффекты delegate (доставка сообщений) не откатываются,
// поэтому захваченный job обязан дойти до терминального или
// retry-состояния даже если вызов delegate паникует или падает —
// иначе job застрянет в running до вмешательства reconciler'а.
func (e *Executor) runJob(ctx context.Context, job *domain.ScheduledJob) (jr JobResult) {
	start := time.Now()
	now := e.clock()
	logger := telemetry.WithJobID(e.logger, job.ID.String())

	jr = JobResult{
		JobID:      job.ID,
		WorkflowID: job.WorkflowID,
		RetryCount: job.RetryCount,
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during job execution", "panic", r)
			e.finalizeFailure(ctx, job, now, fmt.Sprintf("panic during execution: %v", r), &jr)
		}
		jr.DurationMS = time.Since(start).Milliseconds()
	}()

	logger.Info("job execution started",
		"workflow_id", job.WorkflowID,
		"attempt", job.RetryCount+1,
		"max_retries", job.MaxRetries,
	)

	// 1. Перечитываем живое workflow-определение.
	wf, err := e.workflows.GetByID(ctx, job.WorkflowID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Data error: отсутствующее определение retry не вернёт
			e.finalizeFailed(ctx, job, now, fmt.Sprintf("%v: %s", ErrWorkflowNotFound, job.WorkflowID), true, &jr)
			return jr
		}
		// Транзиентная инфраструктурная ошибка — retry-eligible
		e.finalizeFailure(ctx, job, now, fmt.Sprintf("load workflow: %v", err), &jr)
		return jr
	}

	// 2. Поздняя ревалидация: снапшот намеренно устарел, активность
	// workflow проверяется в момент выполнения.
	if !wf.IsActive() {
		e.finalizeCancelled(ctx, job, now, fmt.Sprintf("%v: workflow status is %s", ErrWorkflowInactive, wf.Status), &jr)
		return jr
	}

	// 3. Вызываем внешний delegate. Запуски по расписанию всегда идут
	// с реальной отправкой.
	req := delegate.Request{
		WorkflowID:         job.WorkflowID,
		Snapshot:           job.Snapshot,
		JobID:              job.ID,
		ScheduledExecution: true,
		EnableRealSending:  true,
	}
	if _, err := e.delegate.Execute(ctx, req); err != nil {
		e.finalizeFailure(ctx, job, now, fmt.Sprintf("%v: %v", ErrDelegateFailed, err), &jr)
		return jr
	}

	// 4. Успех.
	e.finalizeCompleted(ctx, job, now, &jr)
	return jr
}

// finalizeCompleted переводит job в completed.
func (e *Executor) finalizeCompleted(ctx context.Context, job *domain.ScheduledJob, now time.Time, jr *JobResult) {
	jr.Status = domain.JobStatusCompleted

	ok, err := e.jobs.Transition(ctx, job.ID, domain.JobStatusRunning, domain.JobStatusCompleted, repo.TransitionFields{
		CompletedAt: &now,
	})
	if err != nil {
		e.logger.Error("failed to mark job completed", "job_id", job.ID, "error", err)
	} else if !ok {
		// Reconciler успел счесть job зависшим — доставка уже произошла,
		// фиксируем расхождение в логе
		e.logger.Warn("job completed but row already transitioned elsewhere", "job_id", job.ID)
	}

	e.logger.Info("job completed", "job_id", job.ID, "workflow_id", job.WorkflowID)
	e.recordOutcome(ctx, job, now, "completed", jr)
}

// finalizeFailure обрабатывает ретраябельную неудачу: пока остаются
// попытки — возврат в pending с инкрементом retry_count, иначе
// терминальный failed.
//
// ScheduledAt при retry не сдвигается: job становится due немедленно
// на следующем вызове, его исходное время уже в прошлом.
func (e *Executor) finalizeFailure(ctx context.Context, job *domain.ScheduledJob, now time.Time, errMsg string, jr *JobResult) {
	if !job.CanRetry() {
		e.finalizeFailed(ctx, job, now, errMsg, false, jr)
		return
	}

	retryCount := job.RetryCount + 1
	jr.Status = domain.JobStatusPending
	jr.WillRetry = true
	jr.RetryCount = retryCount
	jr.Error = errMsg

	ok, err := e.jobs.Transition(ctx, job.ID, domain.JobStatusRunning, domain.JobStatusPending, repo.TransitionFields{
		ErrorMessage: &errMsg,
		RetryCount:   &retryCount,
	})
	if err != nil {
		e.logger.Error("failed to reset job for retry", "job_id", job.ID, "error", err)
	} else if !ok {
		e.logger.Warn("retry reset lost race", "job_id", job.ID)
	}

	e.logger.Warn("job failed, will retry",
		"job_id", job.ID,
		"retry_count", retryCount,
		"max_retries", job.MaxRetries,
		"error", errMsg,
	)
	e.recordOutcome(ctx, job, now, "retry", jr)
}

// finalizeFailed переводит job в терминальный failed.
// bumpRetry=true расходует попытку (data error на первом же шаге).
func (e *Executor) finalizeFailed(ctx context.Context, job *domain.ScheduledJob, now time.Time, errMsg string, bumpRetry bool, jr *JobResult) {
	jr.Status = domain.JobStatusFailed
	jr.Error = errMsg

	fields := repo.TransitionFields{
		ErrorMessage: &errMsg,
		FailedAt:     &now,
	}
	if bumpRetry {
		retryCount := job.RetryCount + 1
		fields.RetryCount = &retryCount
		jr.RetryCount = retryCount
	}

	ok, err := e.jobs.Transition(ctx, job.ID, domain.JobStatusRunning, domain.JobStatusFailed, fields)
	if err != nil {
		e.logger.Error("failed to mark job failed", "job_id", job.ID, "error", err)
	} else if !ok {
		e.logger.Warn("failed transition lost race", "job_id", job.ID)
	}

	e.logger.Error("job failed terminally",
		"job_id", job.ID,
		"workflow_id", job.WorkflowID,
		"error", errMsg,
	)
	e.recordOutcome(ctx, job, now, "failed", jr)
}

// finalizeCancelled переводит job в cancelled — намеренный пропуск,
// delegate для такого job не вызывался.
func (e *Executor) finalizeCancelled(ctx context.Context, job *domain.ScheduledJob, now time.Time, reason string, jr *JobResult) {
	jr.Status = domain.JobStatusCancelled
	jr.Error = reason

	ok, err := e.jobs.Transition(ctx, job.ID, domain.JobStatusRunning, domain.JobStatusCancelled, repo.TransitionFields{
		ErrorMessage: &reason,
	})
	if err != nil {
		e.logger.Error("failed to mark job cancelled", "job_id", job.ID, "error", err)
	} else if !ok {
		e.logger.Warn("cancel transition lost race", "job_id", job.ID)
	}

	e.logger.Info("job cancelled", "job_id", job.ID, "reason", reason)
	e.recordOutcome(ctx, job, now, "cancelled", jr)
}

// recordOutcome — метрики, аналитика и событие жизненного цикла.
// Все каналы best-effort: их неудачи на статус job не влияют.
func (e *Executor) recordOutcome(ctx context.Context, job *domain.ScheduledJob, now time.Time, outcome string, jr *JobResult) {
	telemetry.JobsFinishedTotal.WithLabelValues(outcome).Inc()
	e.analytics.RecordOutcome(ctx, outcome, now)

	if e.publisher != nil {
		if err := e.publisher.PublishJobFinished(ctx, job.ID, job.WorkflowID, string(jr.Status), jr.Error, jr.RetryCount); err != nil {
			e.logger.Warn("failed to publish job.finished", "job_id", job.ID, "error", err)
		}
	}
}
