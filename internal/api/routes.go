package api

import (
	"net/http"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
)

// RegisterRoutes регистрирует маршруты API.
//
// Триггер и управляющие endpoints закрыты авторизацией; /healthz и
// /metrics вешаются отдельно в main без middleware.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		Authorize(h.secret, h.appEnv),
	)

	// Триггер executor'а
	mux.Handle("GET /api/scheduler/execute", chain(http.HandlerFunc(h.Execute)))
	mux.Handle("POST /api/scheduler/execute", chain(http.HandlerFunc(h.Execute)))

	// Jobs
	mux.Handle("GET /api/scheduler/jobs", chain(http.HandlerFunc(h.ListJobs)))
	mux.Handle("GET /api/scheduler/jobs/{id}", chain(http.HandlerFunc(h.GetJob)))
	mux.Handle("POST /api/scheduler/jobs/{id}/cancel", chain(http.HandlerFunc(h.CancelJob)))

	// Signals (аудит вызовов)
	mux.Handle("GET /api/scheduler/signals", chain(http.HandlerFunc(h.ListSignals)))
	mux.Handle("GET /api/scheduler/signals/{id}", chain(http.HandlerFunc(h.GetSignal)))

	// Campaign schedules
	mux.Handle("GET /api/scheduler/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("POST /api/scheduler/schedules", chain(http.HandlerFunc(h.CreateSchedule)))
	mux.Handle("GET /api/scheduler/schedules/{id}", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("PUT /api/scheduler/schedules/{id}/enabled", chain(http.HandlerFunc(h.SetScheduleEnabled)))
	mux.Handle("DELETE /api/scheduler/schedules/{id}", chain(http.HandlerFunc(h.DeleteSchedule)))

	// Health (в конверте, для дашборда; /healthz — сырой, в main)
	mux.Handle("GET /api/scheduler/health", chain(http.HandlerFunc(h.Health)))
}

// Health возвращает состояние пайплайна: счётчики jobs по статусам.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)
	for _, status := range []domain.JobStatus{
		domain.JobStatusPending,
		domain.JobStatusRunning,
		domain.JobStatusFailed,
	} {
		n, err := h.jobRepo.CountByStatus(r.Context(), status)
		if err != nil {
			InternalError(w, h.logger, err)
			return
		}
		counts[string(status)] = n
	}

	Success(w, map[string]any{
		"status": "ok",
		"jobs":   counts,
	})
}
