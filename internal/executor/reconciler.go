package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/repo"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/telemetry"
)

// repairStuck — идемпотентный проход починки зависших jobs.
//
// Job в running без executed_at — невалидное состояние, уходит в
// failed сразу. Job с executed_at старше stuckTimeout считается
// брошенным упавшим или зависшим runner'ом и тоже уходит в failed.
// Остальные running jobs не трогаем: их может легитимно выполнять
// конкурентный вызов.
//
// Это несущая часть модели корректности, а не косметика: вызов
// delegate ограничен таймаутом на стороне клиента, но если процесс
// executor'а умер посреди выполнения, только этот проход на будущем
// вызове вернёт job из running.
//
// Неудачи здесь не валят вызов: непочиненный job будет подобран
// следующим проходом.
func (e *Executor) repairStuck(ctx context.Context, now time.Time) (int, []string) {
	var debug []string

	running, err := e.jobs.ListRunning(ctx)
	if err != nil {
		e.logger.Error("failed to list running jobs", "error", err)
		return 0, append(debug, fmt.Sprintf("repair: list running failed: %v", err))
	}

	repaired := 0
	for i := range running {
		job := &running[i]

		var errMsg string
		switch {
		case job.ExecutedAt == nil:
			// running без времени старта быть не может
			errMsg = "job is running without executed_at (invalid state)"

		case now.Sub(*job.ExecutedAt) > e.stuckTimeout:
			elapsed := now.Sub(*job.ExecutedAt).Round(time.Second)
			errMsg = fmt.Sprintf("job stuck in running for %s (threshold %s), presumed abandoned", elapsed, e.stuckTimeout)

		default:
			// Возможно, job ещё легитимно выполняется другим вызовом
			continue
		}

		ok, err := e.jobs.Transition(ctx, job.ID, domain.JobStatusRunning, domain.JobStatusFailed, repo.TransitionFields{
			ErrorMessage: &errMsg,
			FailedAt:     &now,
		})
		if err != nil {
			e.logger.Error("failed to repair stuck job", "job_id", job.ID, "error", err)
			debug = append(debug, fmt.Sprintf("repair: job %s update failed: %v", job.ID, err))
			continue
		}
		if !ok {
			// Строку успел поменять конкурентный процесс — не ошибка
			e.logger.Debug("stuck job already transitioned elsewhere", "job_id", job.ID)
			continue
		}

		repaired++
		telemetry.StuckJobsRepairedTotal.Inc()
		e.analytics.RecordOutcome(ctx, string(domain.JobStatusFailed), now)
		e.logger.Warn("stuck job forced to failed", "job_id", job.ID, "reason", errMsg)
		debug = append(debug, fmt.Sprintf("repair: job %s → failed (%s)", job.ID, errMsg))
	}

	return repaired, debug
}
