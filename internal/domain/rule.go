package domain

import (
	"time"

	"github.com/google/uuid"
)

// TriggerType — тип триггера правила автоматизации.
type TriggerType string

const (
	// TriggerTypeCron — правило срабатывает по cron-выражению.
	TriggerTypeCron TriggerType = "cron"

	// TriggerTypeDaily — правило срабатывает раз в день.
	TriggerTypeDaily TriggerType = "daily"

	// TriggerTypeEvent — правило срабатывает на доменное событие
	// (новый отзыв, падение позиций и т.п.), имя события в Condition.
	TriggerTypeEvent TriggerType = "event"
)

// AutomationRule — настроенный tenant'ом триггер для создания actions.
//
// Правила конкурируют за scope (локация или весь tenant): из всех
// сработавших правил одного scope выбирается ровно один победитель
// по (priority, weight) по убыванию.
type AutomationRule struct {
	// ID — уникальный идентификатор правила.
	ID uuid.UUID `json:"id"`

	// TenantID — владелец правила.
	TenantID uuid.UUID `json:"tenant_id"`

	// LocationID — локация-scope; NULL означает scope всего tenant'а.
	LocationID *uuid.UUID `json:"location_id,omitempty"`

	// TriggerType — тип триггера.
	TriggerType TriggerType `json:"trigger_type"`

	// CronExpr — cron-выражение для TriggerTypeCron.
	CronExpr string `json:"cron_expr,omitempty"`

	// Condition — условие срабатывания (структура зависит от триггера).
	Condition map[string]any `json:"condition,omitempty"`

	// ActionType — какой action создаёт победившее правило.
	ActionType ActionType `json:"action_type"`

	// Priority — приоритет при конфликте правил одного scope.
	Priority int `json:"priority"`

	// Weight — вторичный критерий при равных приоритетах.
	Weight int `json:"weight"`

	// Enabled — выключенные правила не участвуют в оценке.
	Enabled bool `json:"enabled"`

	// LastFiredAt — время последнего срабатывания.
	LastFiredAt *time.Time `json:"last_fired_at,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// ScopeKey возвращает ключ scope'а для группировки конкурирующих правил.
func (r *AutomationRule) ScopeKey() string {
	if r.LocationID != nil {
		return r.LocationID.String()
	}
	return "global"
}
