package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/policy"
	"github.com/vitrina-io/vitrina/internal/sched"
)

// RuleStore — доступ к правилам автоматизации.
type RuleStore interface {
	ListEnabledByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.AutomationRule, error)
	RecordFired(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ActionScheduler создаёт actions для сработавших правил.
type ActionScheduler interface {
	Schedule(ctx context.Context, req sched.ScheduleRequest) (*domain.Action, error)
}

// PauseChecker проверяет паузу автоматизации перед оценкой правил.
type PauseChecker interface {
	CheckPaused(ctx context.Context, tenantID, locationID uuid.UUID) error
}

// Config — зависимости Evaluator'а.
type Config struct {
	Rules     RuleStore
	Scheduler ActionScheduler
	Pauses    PauseChecker
	Logger    *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// Evaluator прогоняет правила автоматизации tenant'а.
//
// Из всех сработавших правил одного scope (локация либо весь tenant)
// побеждает ровно одно: наибольший priority, при равенстве —
// наибольший weight, далее более раннее created_at. Для победителя
// создаётся action с per-day dedupe-ключом, так что повторный прогон
// в тот же день ничего не дублирует.
type Evaluator struct {
	rules     RuleStore
	scheduler ActionScheduler
	pauses    PauseChecker
	logger    *slog.Logger
	now       func() time.Time
}

// New создаёт Evaluator.
func New(cfg Config) *Evaluator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Evaluator{
		rules:     cfg.Rules,
		scheduler: cfg.Scheduler,
		pauses:    cfg.Pauses,
		logger:    logger,
		now:       now,
	}
}

// EvaluateTenant прогоняет все включённые правила tenant'а и создаёт
// actions для победителей. Возвращает число созданных actions.
//
// Пауза (глобальная или tenant'а) останавливает оценку целиком без
// ошибки: правила просто не срабатывают, пока пауза не снята.
func (e *Evaluator) EvaluateTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	if err := e.pauses.CheckPaused(ctx, tenantID, uuid.Nil); err != nil {
		var violation *policy.Violation
		if errors.As(err, &violation) {
			e.logger.Info("rule evaluation paused",
				"tenant_id", tenantID,
				"reason", violation.Reason)
			return 0, nil
		}
		return 0, fmt.Errorf("check pause: %w", err)
	}

	enabled, err := e.rules.ListEnabledByTenant(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("list rules: %w", err)
	}

	now := e.now()
	due := make([]domain.AutomationRule, 0, len(enabled))
	for i := range enabled {
		ok, err := ruleDue(&enabled[i], now)
		if err != nil {
			// Битое правило не должно блокировать остальные.
			e.logger.Warn("skip rule", "rule_id", enabled[i].ID, "error", err)
			continue
		}
		if ok {
			due = append(due, enabled[i])
		}
	}
	if len(due) == 0 {
		return 0, nil
	}

	created := 0
	for _, winner := range resolveWinners(due) {
		n, err := e.fire(ctx, winner, now)
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

// fire создаёт action для победившего правила и фиксирует срабатывание.
func (e *Evaluator) fire(ctx context.Context, rule domain.AutomationRule, now time.Time) (int, error) {
	dedupe := ruleDedupeKey(rule.ID, now)
	action, err := e.scheduler.Schedule(ctx, sched.ScheduleRequest{
		TenantID:   rule.TenantID,
		LocationID: rule.LocationID,
		Type:       rule.ActionType,
		RunAt:      now,
		Priority:   rule.Priority,
		DedupeKey:  &dedupe,
		Payload: map[string]any{
			"rule_id": rule.ID.String(),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("schedule action for rule %s: %w", rule.ID, err)
	}

	if err := e.rules.RecordFired(ctx, rule.ID, now); err != nil {
		return 0, fmt.Errorf("record fired: %w", err)
	}

	// Дедупликация вернула уже существующий action — правило уже
	// отработало сегодня, новых actions не создано.
	if action.CreatedAt.Before(now) {
		e.logger.Debug("rule already fired today", "rule_id", rule.ID, "action_id", action.ID)
		return 0, nil
	}

	e.logger.Info("rule fired",
		"rule_id", rule.ID,
		"action_id", action.ID,
		"action_type", action.Type,
		"scope", rule.ScopeKey())
	return 1, nil
}

// resolveWinners группирует правила по scope и выбирает по одному
// победителю на scope.
func resolveWinners(due []domain.AutomationRule) []domain.AutomationRule {
	byScope := make(map[string][]domain.AutomationRule)
	for _, rule := range due {
		key := rule.ScopeKey()
		byScope[key] = append(byScope[key], rule)
	}

	scopes := make([]string, 0, len(byScope))
	for key := range byScope {
		scopes = append(scopes, key)
	}
	sort.Strings(scopes)

	winners := make([]domain.AutomationRule, 0, len(byScope))
	for _, key := range scopes {
		group := byScope[key]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Priority != group[j].Priority {
				return group[i].Priority > group[j].Priority
			}
			if group[i].Weight != group[j].Weight {
				return group[i].Weight > group[j].Weight
			}
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})
		winners = append(winners, group[0])
	}
	return winners
}

// ruleDedupeKey — ключ идемпотентности "одно срабатывание в день".
func ruleDedupeKey(ruleID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("rule:%s:%s", ruleID, now.UTC().Format("2006-01-02"))
}
