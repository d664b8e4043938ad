package api

import (
	"net/http"
)

// ListSignals возвращает недавние аудит-записи вызовов executor'а.
// GET /api/scheduler/signals?limit=
func (h *Handler) ListSignals(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit, maxListLimit)

	signals, err := h.signalRepo.ListRecent(r.Context(), limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	views := make([]signalView, 0, len(signals))
	for i := range signals {
		views = append(views, toSignalView(&signals[i]))
	}
	Success(w, views)
}

// GetSignal возвращает одну аудит-запись.
// GET /api/scheduler/signals/{id}
func (h *Handler) GetSignal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	signal, err := h.signalRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "signal not found") {
		return
	}

	Success(w, toSignalView(signal))
}
