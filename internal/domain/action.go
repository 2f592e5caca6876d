package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActionType — тип запланированной операции.
//
// Закрытое перечисление: все типы известны на этапе сборки.
// Неизвестные значения отклоняются при планировании.
type ActionType string

const (
	ActionTypePublishPost            ActionType = "publish_post"
	ActionTypePublishQnA             ActionType = "publish_qna"
	ActionTypeCheckRankings          ActionType = "check_rankings"
	ActionTypeRequestMediaUpload     ActionType = "request_media_upload"
	ActionTypeMonitorCompetitors     ActionType = "monitor_competitors"
	ActionTypeRunAutomationRules     ActionType = "run_automation_rules"
	ActionTypeRefreshToken           ActionType = "refresh_token"
	ActionTypeSyncLocations          ActionType = "sync_locations"
	ActionTypeSyncReviews            ActionType = "sync_reviews"
	ActionTypeSyncPosts              ActionType = "sync_posts"
	ActionTypeComputeDailySignals    ActionType = "compute_daily_signals"
	ActionTypeGeneratePostCandidates ActionType = "generate_post_candidates"
	ActionTypeComposePostCandidate   ActionType = "compose_post_candidate"
	ActionTypeSchedulePost           ActionType = "schedule_post"
	ActionTypePlanContent            ActionType = "plan_content"
	ActionTypeExecutePostJob         ActionType = "execute_post_job"
	ActionTypeCustom                 ActionType = "custom"
)

// actionTypes — множество всех валидных типов.
var actionTypes = map[ActionType]struct{}{
	ActionTypePublishPost:            {},
	ActionTypePublishQnA:             {},
	ActionTypeCheckRankings:          {},
	ActionTypeRequestMediaUpload:     {},
	ActionTypeMonitorCompetitors:     {},
	ActionTypeRunAutomationRules:     {},
	ActionTypeRefreshToken:           {},
	ActionTypeSyncLocations:          {},
	ActionTypeSyncReviews:            {},
	ActionTypeSyncPosts:              {},
	ActionTypeComputeDailySignals:    {},
	ActionTypeGeneratePostCandidates: {},
	ActionTypeComposePostCandidate:   {},
	ActionTypeSchedulePost:           {},
	ActionTypePlanContent:            {},
	ActionTypeExecutePostJob:         {},
	ActionTypeCustom:                 {},
}

// IsValid возвращает true, если тип известен.
func (t ActionType) IsValid() bool {
	_, ok := actionTypes[t]
	return ok
}

// Action — единица работы с собственным retry-жизненным циклом.
//
// Action создаётся продюсерами (API, Rule Evaluator, другие handlers)
// через Scheduler и выполняется воркерами. Строки таблицы actions
// мутируются только Scheduler'ом.
type Action struct {
	// ID — уникальный идентификатор action.
	ID uuid.UUID `json:"id"`

	// TenantID — владелец action. Обязательное поле.
	TenantID uuid.UUID `json:"tenant_id"`

	// LocationID — локация, к которой относится action (опционально).
	LocationID *uuid.UUID `json:"location_id,omitempty"`

	// AccountID — внешний аккаунт (например, OAuth-подключение), опционально.
	AccountID *uuid.UUID `json:"account_id,omitempty"`

	// Type — тип операции.
	Type ActionType `json:"action_type"`

	// Status — текущий статус action.
	Status ActionStatus `json:"status"`

	// Payload — входные данные, передаются handler'у как есть.
	Payload map[string]any `json:"payload,omitempty"`

	// RunAt — самое раннее время выполнения. Сдвигается при retry.
	RunAt time.Time `json:"run_at"`

	// NextRunAt — дублирует RunAt для retry; NULL в терминальных статусах.
	NextRunAt *time.Time `json:"next_run_at,omitempty"`

	// LockedAt — время захвата воркером (lease). Очищается при
	// терминальном переходе и при requeue. Используется для диагностики
	// зависших actions, но не как таймаут внутри процесса.
	LockedAt *time.Time `json:"locked_at,omitempty"`

	// Attempts — сколько попыток уже сделано.
	Attempts int `json:"attempts"`

	// MaxAttempts — максимум попыток перед DEAD_LETTERED.
	MaxAttempts int `json:"max_attempts"`

	// Priority — приоритет при lease (больше — раньше).
	Priority int `json:"priority"`

	// DedupeKey — уникальный ключ идемпотентности. Пока существует
	// "живой" action с таким ключом, повторный Schedule возвращает его.
	DedupeKey *string `json:"dedupe_key,omitempty"`

	// Result — результат успешного выполнения.
	Result map[string]any `json:"result,omitempty"`

	// Error — текст последней ошибки.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// MarkRunning переводит action в статус RUNNING и начинает попытку.
func (a *Action) MarkRunning(now time.Time) {
	a.Status = ActionStatusRunning
	a.Attempts++
	a.LockedAt = &now
}

// MarkSucceeded переводит action в статус SUCCEEDED с результатом.
func (a *Action) MarkSucceeded(result map[string]any) {
	a.Status = ActionStatusSucceeded
	a.Result = result
	a.LockedAt = nil
	a.NextRunAt = nil
}

// MarkRetry возвращает action в PENDING с новым временем выполнения.
func (a *Action) MarkRetry(errMsg string, runAt time.Time) {
	a.Status = ActionStatusPending
	a.Error = errMsg
	a.RunAt = runAt
	a.NextRunAt = &runAt
	a.LockedAt = nil
}

// MarkDeadLettered переводит action в DEAD_LETTERED.
func (a *Action) MarkDeadLettered(errMsg string) {
	a.Status = ActionStatusDeadLettered
	a.Error = errMsg
	a.NextRunAt = nil
	a.LockedAt = nil
}

// MarkCancelled переводит action в CANCELLED.
func (a *Action) MarkCancelled() {
	a.Status = ActionStatusCancelled
	a.NextRunAt = nil
	a.LockedAt = nil
}

// ExhaustedAttempts проверяет, исчерпаны ли попытки.
func (a *Action) ExhaustedAttempts() bool {
	return a.Attempts >= a.MaxAttempts
}
