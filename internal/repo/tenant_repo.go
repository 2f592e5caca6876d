package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrina-io/vitrina/internal/domain"
)

// TenantRepo — репозиторий для tenants, locations, accounts и settings.
type TenantRepo struct {
	pool *pgxpool.Pool
}

// NewTenantRepo создаёт новый TenantRepo.
func NewTenantRepo(pool *pgxpool.Pool) *TenantRepo {
	return &TenantRepo{pool: pool}
}

// GetTenant возвращает tenant по ID.
func (r *TenantRepo) GetTenant(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	var t domain.Tenant
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, paused, weekly_post_cap, created_at FROM tenants WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Paused, &t.WeeklyPostCap, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

// GetLocation возвращает location по ID.
func (r *TenantRepo) GetLocation(ctx context.Context, id uuid.UUID) (*domain.Location, error) {
	var l domain.Location
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, paused, weekly_post_cap, created_at FROM locations WHERE id = $1
	`, id).Scan(&l.ID, &l.TenantID, &l.Name, &l.Paused, &l.WeeklyPostCap, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &l, nil
}

// LocationBelongsTo проверяет принадлежность локации tenant'у.
func (r *TenantRepo) LocationBelongsTo(ctx context.Context, locationID, tenantID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1 AND tenant_id = $2)
	`, locationID, tenantID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check location ownership: %w", err)
	}
	return ok, nil
}

// AccountBelongsTo проверяет принадлежность аккаунта tenant'у.
func (r *TenantRepo) AccountBelongsTo(ctx context.Context, accountID, tenantID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1 AND tenant_id = $2)
	`, accountID, tenantID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check account ownership: %w", err)
	}
	return ok, nil
}

// IsGloballyPaused проверяет глобальный kill-switch автоматизации.
// Флаг хранится в settings под ключом "automation_paused".
func (r *TenantRepo) IsGloballyPaused(ctx context.Context) (bool, error) {
	var value string
	err := r.pool.QueryRow(ctx, `
		SELECT value FROM settings WHERE key = 'automation_paused'
	`).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get automation_paused setting: %w", err)
	}
	return value == "true", nil
}
