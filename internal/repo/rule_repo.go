package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrina-io/vitrina/internal/domain"
)

const ruleColumns = `id, tenant_id, location_id, trigger_type, cron_expr, condition,
       action_type, priority, weight, enabled, last_fired_at, created_at`

// RuleRepo — репозиторий для automation_rules.
type RuleRepo struct {
	pool *pgxpool.Pool
}

// NewRuleRepo создаёт новый RuleRepo.
func NewRuleRepo(pool *pgxpool.Pool) *RuleRepo {
	return &RuleRepo{pool: pool}
}

// Create создаёт новое правило.
func (r *RuleRepo) Create(ctx context.Context, rule *domain.AutomationRule) error {
	conditionJSON, err := json.Marshal(rule.Condition)
	if err != nil {
		return fmt.Errorf("marshal condition: %w", err)
	}

	query := `
		INSERT INTO automation_rules (id, tenant_id, location_id, trigger_type, cron_expr,
		                              condition, action_type, priority, weight, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		rule.ID,
		rule.TenantID,
		rule.LocationID,
		rule.TriggerType,
		rule.CronExpr,
		conditionJSON,
		rule.ActionType,
		rule.Priority,
		rule.Weight,
		rule.Enabled,
		rule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// GetByID возвращает правило по ID.
func (r *RuleRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE id = $1`
	return scanRule(r.pool.QueryRow(ctx, query, id))
}

// ListEnabledByTenant возвращает включённые правила tenant'а.
func (r *RuleRepo) ListEnabledByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.AutomationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE tenant_id = $1 AND enabled
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list enabled rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// ListByTenant возвращает все правила tenant'а, включая выключенные.
func (r *RuleRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.AutomationRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM automation_rules
		WHERE tenant_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// ListTenantsWithEnabledRules возвращает tenant'ов, у которых есть
// хотя бы одно включённое правило (для тика evaluator'а).
func (r *RuleRepo) ListTenantsWithEnabledRules(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT tenant_id FROM automation_rules WHERE enabled
	`)
	if err != nil {
		return nil, fmt.Errorf("list tenants with rules: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetEnabled включает/выключает правило.
func (r *RuleRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE automation_rules SET enabled = $2 WHERE id = $1
	`, id, enabled)
	if err != nil {
		return fmt.Errorf("set rule enabled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFired фиксирует срабатывание правила.
func (r *RuleRepo) RecordFired(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE automation_rules SET last_fired_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("record rule fired: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func scanRule(row pgx.Row) (*domain.AutomationRule, error) {
	var rule domain.AutomationRule
	var conditionJSON []byte

	err := row.Scan(
		&rule.ID,
		&rule.TenantID,
		&rule.LocationID,
		&rule.TriggerType,
		&rule.CronExpr,
		&conditionJSON,
		&rule.ActionType,
		&rule.Priority,
		&rule.Weight,
		&rule.Enabled,
		&rule.LastFiredAt,
		&rule.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}

	if conditionJSON != nil {
		if err := json.Unmarshal(conditionJSON, &rule.Condition); err != nil {
			return nil, fmt.Errorf("unmarshal condition: %w", err)
		}
	}

	return &rule, nil
}
