package api

import (
	"time"

	"github.com/vitrina-io/vitrina/internal/domain"
)

// --- Requests ---

// ScheduleActionRequest — запрос на создание action.
type ScheduleActionRequest struct {
	TenantID    string         `json:"tenant_id"`
	LocationID  string         `json:"location_id,omitempty"`
	AccountID   string         `json:"account_id,omitempty"`
	Type        string         `json:"action_type"`
	RunAt       *time.Time     `json:"run_at,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	DedupeKey   string         `json:"dedupe_key,omitempty"`
	MaxAttempts int            `json:"max_attempts,omitempty"`
	Priority    int            `json:"priority,omitempty"`
}

// CancelActionRequest — запрос на отмену action.
type CancelActionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CreateRuleRequest — запрос на создание правила автоматизации.
type CreateRuleRequest struct {
	TenantID    string         `json:"tenant_id"`
	LocationID  string         `json:"location_id,omitempty"`
	TriggerType string         `json:"trigger_type"`
	CronExpr    string         `json:"cron_expr,omitempty"`
	Condition   map[string]any `json:"condition,omitempty"`
	ActionType  string         `json:"action_type"`
	Priority    int            `json:"priority"`
	Weight      int            `json:"weight"`
	Enabled     bool           `json:"enabled"`
}

// SetRuleEnabledRequest — включение/выключение правила.
type SetRuleEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// --- Responses ---

// ActionResponse — action из ledger'а.
type ActionResponse struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	LocationID  string         `json:"location_id,omitempty"`
	AccountID   string         `json:"account_id,omitempty"`
	Type        string         `json:"action_type"`
	Status      string         `json:"status"`
	Payload     map[string]any `json:"payload,omitempty"`
	RunAt       time.Time      `json:"run_at"`
	NextRunAt   *time.Time     `json:"next_run_at,omitempty"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	Priority    int            `json:"priority"`
	DedupeKey   string         `json:"dedupe_key,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// JobResponse — publishing job.
type JobResponse struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	LocationID  string         `json:"location_id"`
	PlanID      string         `json:"plan_id,omitempty"`
	PostID      string         `json:"post_id,omitempty"`
	Status      string         `json:"status"`
	DedupeKey   string         `json:"dedupe_key"`
	RunAt       time.Time      `json:"run_at"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	Error       string         `json:"error,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AttemptResponse — попытка выполнения job.
type AttemptResponse struct {
	ID         string     `json:"id"`
	JobID      string     `json:"job_id"`
	Number     int        `json:"number"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// RuleResponse — правило автоматизации.
type RuleResponse struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	LocationID  string         `json:"location_id,omitempty"`
	TriggerType string         `json:"trigger_type"`
	CronExpr    string         `json:"cron_expr,omitempty"`
	Condition   map[string]any `json:"condition,omitempty"`
	ActionType  string         `json:"action_type"`
	Priority    int            `json:"priority"`
	Weight      int            `json:"weight"`
	Enabled     bool           `json:"enabled"`
	LastFiredAt *time.Time     `json:"last_fired_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// --- Mappers ---

func toActionResponse(action *domain.Action) ActionResponse {
	resp := ActionResponse{
		ID:          action.ID.String(),
		TenantID:    action.TenantID.String(),
		Type:        string(action.Type),
		Status:      string(action.Status),
		Payload:     action.Payload,
		RunAt:       action.RunAt,
		NextRunAt:   action.NextRunAt,
		Attempts:    action.Attempts,
		MaxAttempts: action.MaxAttempts,
		Priority:    action.Priority,
		Result:      action.Result,
		Error:       action.Error,
		CreatedAt:   action.CreatedAt,
	}
	if action.LocationID != nil {
		resp.LocationID = action.LocationID.String()
	}
	if action.AccountID != nil {
		resp.AccountID = action.AccountID.String()
	}
	if action.DedupeKey != nil {
		resp.DedupeKey = *action.DedupeKey
	}
	return resp
}

func toActionResponses(actions []domain.Action) []ActionResponse {
	out := make([]ActionResponse, len(actions))
	for i := range actions {
		out[i] = toActionResponse(&actions[i])
	}
	return out
}

func toJobResponse(job *domain.Job) JobResponse {
	resp := JobResponse{
		ID:          job.ID.String(),
		TenantID:    job.TenantID.String(),
		LocationID:  job.LocationID.String(),
		Status:      string(job.Status),
		DedupeKey:   job.DedupeKey,
		RunAt:       job.RunAt,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		Error:       job.Error,
		Result:      job.Result,
		CreatedAt:   job.CreatedAt,
	}
	if job.PlanID != nil {
		resp.PlanID = job.PlanID.String()
	}
	if job.PostID != nil {
		resp.PostID = job.PostID.String()
	}
	return resp
}

func toJobResponses(jobs []domain.Job) []JobResponse {
	out := make([]JobResponse, len(jobs))
	for i := range jobs {
		out[i] = toJobResponse(&jobs[i])
	}
	return out
}

func toAttemptResponses(attempts []domain.Attempt) []AttemptResponse {
	out := make([]AttemptResponse, len(attempts))
	for i, at := range attempts {
		out[i] = AttemptResponse{
			ID:         at.ID.String(),
			JobID:      at.JobID.String(),
			Number:     at.Number,
			StartedAt:  at.StartedAt,
			FinishedAt: at.FinishedAt,
			Error:      at.Error,
		}
	}
	return out
}

func toRuleResponse(rule *domain.AutomationRule) RuleResponse {
	resp := RuleResponse{
		ID:          rule.ID.String(),
		TenantID:    rule.TenantID.String(),
		TriggerType: string(rule.TriggerType),
		CronExpr:    rule.CronExpr,
		Condition:   rule.Condition,
		ActionType:  string(rule.ActionType),
		Priority:    rule.Priority,
		Weight:      rule.Weight,
		Enabled:     rule.Enabled,
		LastFiredAt: rule.LastFiredAt,
		CreatedAt:   rule.CreatedAt,
	}
	if rule.LocationID != nil {
		resp.LocationID = rule.LocationID.String()
	}
	return resp
}

func toRuleResponses(rules []domain.AutomationRule) []RuleResponse {
	out := make([]RuleResponse, len(rules))
	for i := range rules {
		out[i] = toRuleResponse(&rules[i])
	}
	return out
}
