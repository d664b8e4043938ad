package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/kst"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/repo"
)

// dueJob — pending job с нормализованным scheduled instant.
type dueJob struct {
	job domain.ScheduledJob
	at  time.Time
}

// dueSelection — результат фазы выборки.
type dueSelection struct {
	// due — кандидаты на захват, по возрастанию scheduled instant.
	due []dueJob

	// totalPending — сколько всего pending jobs видел этот вызов.
	totalPending int

	// debug — диагностика по-объектных решений.
	debug []string
}

// selectDue загружает все pending jobs, нормализует их scheduled_at
// через kst и разбивает на due/not-due с окном допуска.
//
// isDue = now >= scheduledInstant − tolerance: окно поглощает clock
// skew и гранулярность внешнего триггера, но не настолько велико,
// чтобы запускать jobs заметно раньше срока.
//
// Непарсибельный scheduled_at — data error: retry не починит строку,
// job сразу уходит в терминальный failed.
func (e *Executor) selectDue(ctx context.Context, now time.Time) (*dueSelection, error) {
	pending, err := e.jobs.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	sel := &dueSelection{totalPending: len(pending)}

	for i := range pending {
		job := pending[i]

		at, err := kst.Resolve(job.ScheduledAt, job.CreatedAt, now)
		if err != nil {
			e.failUnparsable(ctx, &job, now, err)
			sel.debug = append(sel.debug, fmt.Sprintf("select: job %s unparsable scheduled_at %q: %v", job.ID, job.ScheduledAt, err))
			continue
		}

		if now.Before(at.Add(-e.tolerance)) {
			sel.debug = append(sel.debug, fmt.Sprintf("select: job %s not due until %s", job.ID, kst.Format(at)))
			continue
		}

		sel.due = append(sel.due, dueJob{job: job, at: at})
	}

	// Лексикографический порядок из БД не совпадает с временным для
	// разнородных форматов — сортируем по нормализованному instant.
	sort.SliceStable(sel.due, func(i, j int) bool {
		return sel.due[i].at.Before(sel.due[j].at)
	})

	return sel, nil
}

// failUnparsable переводит job с непарсибельным scheduled_at в failed.
func (e *Executor) failUnparsable(ctx context.Context, job *domain.ScheduledJob, now time.Time, parseErr error) {
	errMsg := fmt.Sprintf("unparsable scheduled_at %q: %v", job.ScheduledAt, parseErr)
	ok, err := e.jobs.Transition(ctx, job.ID, domain.JobStatusPending, domain.JobStatusFailed, repo.TransitionFields{
		ErrorMessage: &errMsg,
		FailedAt:     &now,
	})
	if err != nil {
		e.logger.Error("failed to fail unparsable job", "job_id", job.ID, "error", err)
		return
	}
	if ok {
		e.logger.Warn("job has unparsable scheduled_at, marked failed", "job_id", job.ID, "scheduled_at", job.ScheduledAt)
	}
}
