package api

import (
	"net/http"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/executor"
)

// Execute — триггер одного прохода executor'а.
//
// POST|GET /api/scheduler/execute. Тела запроса нет; авторизация и
// классификация источника сделаны middleware'ом Authorize.
//
// Частичные неудачи отдельных jobs не делают ответ ошибочным: 500 и
// success=false возвращаются только когда вызов упал целиком до
// пообъектной обработки.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	trigger := executor.Trigger{
		Source:   SourceFromContext(r.Context()),
		Metadata: domain.RedactHeaders(r.Header.Get),
	}

	result, err := h.invoker.Execute(r.Context(), trigger)
	if err != nil {
		h.logger.Error("executor invocation failed", "source", trigger.Source, "error", err)
		Fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	Success(w, result)
}
