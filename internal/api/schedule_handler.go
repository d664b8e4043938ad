package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/kst"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/repo"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/scheduler"
)

// ListSchedules возвращает расписания кампаний.
// GET /api/scheduler/schedules?workflowId=&enabled=&limit=&offset=
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	filter := repo.ScheduleFilter{
		Limit:  queryInt(r, "limit", defaultListLimit, maxListLimit),
		Offset: queryInt(r, "offset", 0, 1<<30),
	}

	if wf := r.URL.Query().Get("workflowId"); wf != "" {
		id, err := uuid.Parse(wf)
		if err != nil {
			BadRequest(w, "invalid workflowId")
			return
		}
		filter.WorkflowID = &id
	}

	if e := r.URL.Query().Get("enabled"); e != "" {
		enabled, err := strconv.ParseBool(e)
		if err != nil {
			BadRequest(w, "invalid enabled")
			return
		}
		filter.Enabled = &enabled
	}

	schedules, err := h.scheduleRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	views := make([]scheduleView, 0, len(schedules))
	for i := range schedules {
		views = append(views, toScheduleView(&schedules[i]))
	}
	Success(w, views)
}

// GetSchedule возвращает одно расписание.
// GET /api/scheduler/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	schedule, err := h.scheduleRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, toScheduleView(schedule))
}

// CreateSchedule создаёт расписание кампании.
// POST /api/scheduler/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.WorkflowID == uuid.Nil {
		BadRequest(w, "workflowId is required")
		return
	}
	if req.CronExpr == "" && req.IntervalSec <= 0 {
		BadRequest(w, "either cronExpr or intervalSec is required")
		return
	}
	if req.CronExpr != "" {
		if err := scheduler.ValidateCronExpr(req.CronExpr); err != nil {
			BadRequest(w, err.Error())
			return
		}
	}

	// Workflow должен существовать; неактивный допустим — scheduler
	// просто будет пропускать материализацию.
	if _, err := h.workflowRepo.GetByID(r.Context(), req.WorkflowID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			BadRequest(w, fmt.Sprintf("workflow %s not found", req.WorkflowID))
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	now := kst.Now()
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	schedule := &domain.CampaignSchedule{
		ID:          uuid.New(),
		WorkflowID:  req.WorkflowID,
		Name:        req.Name,
		CronExpr:    req.CronExpr,
		IntervalSec: req.IntervalSec,
		Timezone:    req.Timezone,
		Enabled:     enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if schedule.Timezone == "" {
		schedule.Timezone = kst.Zone
	}

	nextDue, err := scheduler.CalculateInitialNextDue(schedule, now)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	schedule.NextDueAt = &nextDue

	if err := h.scheduleRepo.Create(r.Context(), schedule); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("schedule created",
		"schedule_id", schedule.ID,
		"workflow_id", schedule.WorkflowID,
		"next_due_at", nextDue,
	)

	Created(w, toScheduleView(schedule))
}

// SetScheduleEnabled включает или выключает расписание.
// PUT /api/scheduler/schedules/{id}/enabled
func (h *Handler) SetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.scheduleRepo.SetEnabled(r.Context(), id, req.Enabled); err != nil {
		HandleRepoError(w, h.logger, err, "schedule not found")
		return
	}

	schedule, err := h.scheduleRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}
	Success(w, toScheduleView(schedule))
}

// DeleteSchedule удаляет расписание.
// DELETE /api/scheduler/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.scheduleRepo.Delete(r.Context(), id); err != nil {
		HandleRepoError(w, h.logger, err, "schedule not found")
		return
	}

	h.logger.Info("schedule deleted", "schedule_id", id)
	Success(w, map[string]any{"deleted": true})
}
