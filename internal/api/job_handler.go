package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/repo"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListJobs возвращает jobs с фильтрацией.
// GET /api/scheduler/jobs?status=&workflowId=&limit=&offset=
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := repo.JobFilter{
		Limit:  queryInt(r, "limit", defaultListLimit, maxListLimit),
		Offset: queryInt(r, "offset", 0, 1<<30),
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.JobStatus(s)
		if !status.Valid() {
			BadRequest(w, fmt.Sprintf("unknown status %q", s))
			return
		}
		filter.Status = status
	}

	if wf := r.URL.Query().Get("workflowId"); wf != "" {
		id, err := uuid.Parse(wf)
		if err != nil {
			BadRequest(w, "invalid workflowId")
			return
		}
		filter.WorkflowID = &id
	}

	jobs, err := h.jobRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	views := make([]jobView, 0, len(jobs))
	for i := range jobs {
		views = append(views, toJobView(&jobs[i]))
	}
	Success(w, views)
}

// GetJob возвращает один job.
// GET /api/scheduler/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	job, err := h.jobRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, toJobView(job))
}

// CancelJob отменяет pending job.
// POST /api/scheduler/jobs/{id}/cancel
//
// Разрешён только переход pending→cancelled: job, уже захваченный
// executor'ом или завершённый, отменить нельзя.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	reason := "cancelled by operator"
	updated, err := h.jobRepo.Transition(r.Context(), id, domain.JobStatusPending, domain.JobStatusCancelled, repo.TransitionFields{
		ErrorMessage: &reason,
	})
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	if !updated {
		job, err := h.jobRepo.GetByID(r.Context(), id)
		if HandleRepoError(w, h.logger, err, "job not found") {
			return
		}
		Conflict(w, fmt.Sprintf("only pending jobs can be cancelled (current status: %s)", job.Status))
		return
	}

	h.logger.Info("job cancelled via api", "job_id", id)

	job, err := h.jobRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "job not found") {
		return
	}
	Success(w, toJobView(job))
}

// pathUUID извлекает UUID из path-параметра.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		BadRequest(w, fmt.Sprintf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// queryInt извлекает целочисленный query-параметр с default и потолком.
func queryInt(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
