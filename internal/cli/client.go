package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ActionResponse — action из API.
type ActionResponse struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	LocationID  string         `json:"location_id,omitempty"`
	Type        string         `json:"action_type"`
	Status      string         `json:"status"`
	Payload     map[string]any `json:"payload,omitempty"`
	RunAt       string         `json:"run_at"`
	NextRunAt   string         `json:"next_run_at,omitempty"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	Priority    int            `json:"priority"`
	DedupeKey   string         `json:"dedupe_key,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

// JobResponse — job из API.
type JobResponse struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	LocationID  string         `json:"location_id"`
	PlanID      string         `json:"plan_id,omitempty"`
	PostID      string         `json:"post_id,omitempty"`
	Status      string         `json:"status"`
	RunAt       string         `json:"run_at"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	Error       string         `json:"error,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

// AttemptResponse — попытка выполнения job из API.
type AttemptResponse struct {
	ID         string `json:"id"`
	JobID      string `json:"job_id"`
	Number     int    `json:"number"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RuleResponse — правило автоматизации из API.
type RuleResponse struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	LocationID  string `json:"location_id,omitempty"`
	TriggerType string `json:"trigger_type"`
	CronExpr    string `json:"cron_expr,omitempty"`
	ActionType  string `json:"action_type"`
	Priority    int    `json:"priority"`
	Weight      int    `json:"weight"`
	Enabled     bool   `json:"enabled"`
	LastFiredAt string `json:"last_fired_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// --- Request types ---

// ScheduleActionRequest — создание action.
type ScheduleActionRequest struct {
	TenantID    string         `json:"tenant_id"`
	LocationID  string         `json:"location_id,omitempty"`
	Type        string         `json:"action_type"`
	RunAt       *time.Time     `json:"run_at,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	DedupeKey   string         `json:"dedupe_key,omitempty"`
	MaxAttempts int            `json:"max_attempts,omitempty"`
	Priority    int            `json:"priority,omitempty"`
}

// CreateRuleRequest — создание правила.
type CreateRuleRequest struct {
	TenantID    string `json:"tenant_id"`
	LocationID  string `json:"location_id,omitempty"`
	TriggerType string `json:"trigger_type"`
	CronExpr    string `json:"cron_expr,omitempty"`
	ActionType  string `json:"action_type"`
	Priority    int    `json:"priority"`
	Weight      int    `json:"weight"`
	Enabled     bool   `json:"enabled"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Vitrina API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Actions ---

// ListActions возвращает actions tenant'а.
func (c *Client) ListActions(tenantID string, limit int) ([]ActionResponse, error) {
	params := url.Values{"tenant_id": {tenantID}}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	var actions []ActionResponse
	err := c.list("/api/v1/actions", params, &actions)
	return actions, err
}

// ScheduleAction создаёт новый action.
func (c *Client) ScheduleAction(req ScheduleActionRequest) (*ActionResponse, error) {
	var action ActionResponse
	err := c.post("/api/v1/actions", req, &action)
	return &action, err
}

// GetAction возвращает action по ID.
func (c *Client) GetAction(id string) (*ActionResponse, error) {
	var action ActionResponse
	err := c.get("/api/v1/actions/"+id, &action)
	return &action, err
}

// CancelAction отменяет action.
func (c *Client) CancelAction(id, reason string) (*ActionResponse, error) {
	body := map[string]string{"reason": reason}
	var action ActionResponse
	err := c.post("/api/v1/actions/"+id+"/cancel", body, &action)
	return &action, err
}

// --- Jobs ---

// ListJobs возвращает jobs tenant'а.
func (c *Client) ListJobs(tenantID string, limit int) ([]JobResponse, error) {
	params := url.Values{"tenant_id": {tenantID}}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	var jobs []JobResponse
	err := c.list("/api/v1/jobs", params, &jobs)
	return jobs, err
}

// GetJob возвращает job по ID.
func (c *Client) GetJob(id string) (*JobResponse, error) {
	var job JobResponse
	err := c.get("/api/v1/jobs/"+id, &job)
	return &job, err
}

// ListJobAttempts возвращает историю попыток job.
func (c *Client) ListJobAttempts(id string) ([]AttemptResponse, error) {
	var attempts []AttemptResponse
	err := c.list("/api/v1/jobs/"+id+"/attempts", nil, &attempts)
	return attempts, err
}

// --- Rules ---

// ListRules возвращает включённые правила tenant'а.
func (c *Client) ListRules(tenantID string) ([]RuleResponse, error) {
	params := url.Values{"tenant_id": {tenantID}}
	var rules []RuleResponse
	err := c.list("/api/v1/rules", params, &rules)
	return rules, err
}

// CreateRule создаёт правило автоматизации.
func (c *Client) CreateRule(req CreateRuleRequest) (*RuleResponse, error) {
	var rule RuleResponse
	err := c.post("/api/v1/rules", req, &rule)
	return &rule, err
}

// GetRule возвращает правило по ID.
func (c *Client) GetRule(id string) (*RuleResponse, error) {
	var rule RuleResponse
	err := c.get("/api/v1/rules/"+id, &rule)
	return &rule, err
}

// SetRuleEnabled включает или выключает правило.
func (c *Client) SetRuleEnabled(id string, enabled bool) (*RuleResponse, error) {
	body := map[string]bool{"enabled": enabled}
	var rule RuleResponse
	err := c.put("/api/v1/rules/"+id+"/enabled", body, &rule)
	return &rule, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var wrapper listResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if wrapper.Data == nil {
		return nil
	}
	return json.Unmarshal(wrapper.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if result == nil {
		return nil
	}

	var wrapper dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return json.Unmarshal(wrapper.Data, result)
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var errResp errorResponse
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Errorf("%s: %s", errResp.Error.Code, errResp.Error.Message)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
}
