package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/sched"
)

const defaultListLimit = 100

// ScheduleAction обрабатывает POST /api/v1/actions.
func (h *Handler) ScheduleAction(w http.ResponseWriter, r *http.Request) {
	var req ScheduleActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		BadRequest(w, "invalid tenant_id")
		return
	}

	schedReq := sched.ScheduleRequest{
		TenantID:    tenantID,
		Type:        domain.ActionType(req.Type),
		Payload:     req.Payload,
		MaxAttempts: req.MaxAttempts,
		Priority:    req.Priority,
	}
	if req.RunAt != nil {
		schedReq.RunAt = *req.RunAt
	} else {
		schedReq.RunAt = time.Now()
	}
	if req.LocationID != "" {
		locationID, err := uuid.Parse(req.LocationID)
		if err != nil {
			BadRequest(w, "invalid location_id")
			return
		}
		schedReq.LocationID = &locationID
	}
	if req.AccountID != "" {
		accountID, err := uuid.Parse(req.AccountID)
		if err != nil {
			BadRequest(w, "invalid account_id")
			return
		}
		schedReq.AccountID = &accountID
	}
	if req.DedupeKey != "" {
		schedReq.DedupeKey = &req.DedupeKey
	}

	action, err := h.scheduler.Schedule(r.Context(), schedReq)
	if HandleError(w, h.logger, err, "action not found") {
		return
	}

	Created(w, toActionResponse(action))
}

// ListActions обрабатывает GET /api/v1/actions.
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil {
		BadRequest(w, "tenant_id query parameter is required")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = parsed
	}

	actions, err := h.actionRepo.ListByTenant(r.Context(), tenantID, limit)
	if HandleError(w, h.logger, err, "") {
		return
	}

	List(w, toActionResponses(actions), len(actions))
}

// GetAction обрабатывает GET /api/v1/actions/{id}.
func (h *Handler) GetAction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid action id")
		return
	}

	action, err := h.actionRepo.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "action not found") {
		return
	}

	Success(w, toActionResponse(action))
}

// CancelAction обрабатывает POST /api/v1/actions/{id}/cancel.
func (h *Handler) CancelAction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid action id")
		return
	}

	var req CancelActionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "invalid JSON body")
			return
		}
	}

	action, err := h.scheduler.Cancel(r.Context(), id, req.Reason)
	if HandleError(w, h.logger, err, "action not found") {
		return
	}

	Success(w, toActionResponse(action))
}
