package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/rules"
)

// CreateRule обрабатывает POST /api/v1/rules.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		BadRequest(w, "invalid tenant_id")
		return
	}

	actionType := domain.ActionType(req.ActionType)
	if !actionType.IsValid() {
		BadRequest(w, "unknown action_type")
		return
	}

	triggerType := domain.TriggerType(req.TriggerType)
	switch triggerType {
	case domain.TriggerTypeCron:
		if err := rules.ValidateCronExpr(req.CronExpr); err != nil {
			BadRequest(w, err.Error())
			return
		}
	case domain.TriggerTypeDaily, domain.TriggerTypeEvent:
	default:
		BadRequest(w, "unknown trigger_type")
		return
	}

	rule := &domain.AutomationRule{
		ID:          uuid.New(),
		TenantID:    tenantID,
		TriggerType: triggerType,
		CronExpr:    req.CronExpr,
		Condition:   req.Condition,
		ActionType:  actionType,
		Priority:    req.Priority,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
		CreatedAt:   time.Now(),
	}
	if req.LocationID != "" {
		locationID, err := uuid.Parse(req.LocationID)
		if err != nil {
			BadRequest(w, "invalid location_id")
			return
		}
		rule.LocationID = &locationID
	}

	if err := h.ruleRepo.Create(r.Context(), rule); HandleError(w, h.logger, err, "") {
		return
	}

	Created(w, toRuleResponse(rule))
}

// ListRules обрабатывает GET /api/v1/rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil {
		BadRequest(w, "tenant_id query parameter is required")
		return
	}

	list, err := h.ruleRepo.ListByTenant(r.Context(), tenantID)
	if HandleError(w, h.logger, err, "") {
		return
	}

	List(w, toRuleResponses(list), len(list))
}

// GetRule обрабатывает GET /api/v1/rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid rule id")
		return
	}

	rule, err := h.ruleRepo.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "rule not found") {
		return
	}

	Success(w, toRuleResponse(rule))
}

// SetRuleEnabled обрабатывает PUT /api/v1/rules/{id}/enabled.
func (h *Handler) SetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid rule id")
		return
	}

	var req SetRuleEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}

	if err := h.ruleRepo.SetEnabled(r.Context(), id, req.Enabled); HandleError(w, h.logger, err, "rule not found") {
		return
	}

	rule, err := h.ruleRepo.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "rule not found") {
		return
	}

	Success(w, toRuleResponse(rule))
}
