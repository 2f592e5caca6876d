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

// RateLimitRepo — репозиторий для rate_limit_states.
//
// Специальных режимов блокировки нет: гонка двух инкрементов одного
// scope разрешается транзакционной сериализацией на стороне БД.
type RateLimitRepo struct {
	pool *pgxpool.Pool
}

// NewRateLimitRepo создаёт новый RateLimitRepo.
func NewRateLimitRepo(pool *pgxpool.Pool) *RateLimitRepo {
	return &RateLimitRepo{pool: pool}
}

// Get возвращает состояние лимита для (tenant, location).
func (r *RateLimitRepo) Get(ctx context.Context, tenantID, locationID uuid.UUID) (*domain.RateLimitState, error) {
	var state domain.RateLimitState
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, location_id, window_starts_at, window_ends_at,
		       "limit", used, cooldown_until
		FROM rate_limit_states
		WHERE tenant_id = $1 AND location_id = $2
	`, tenantID, locationID).Scan(
		&state.ID,
		&state.TenantID,
		&state.LocationID,
		&state.WindowStartsAt,
		&state.WindowEndsAt,
		&state.Limit,
		&state.Used,
		&state.CooldownUntil,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}
	return &state, nil
}

// Save сохраняет состояние лимита (insert или update по scope).
func (r *RateLimitRepo) Save(ctx context.Context, state *domain.RateLimitState) error {
	query := `
		INSERT INTO rate_limit_states (id, tenant_id, location_id, window_starts_at,
		                               window_ends_at, "limit", used, cooldown_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, location_id) DO UPDATE
		SET window_starts_at = EXCLUDED.window_starts_at,
		    window_ends_at = EXCLUDED.window_ends_at,
		    "limit" = EXCLUDED."limit",
		    used = EXCLUDED.used,
		    cooldown_until = EXCLUDED.cooldown_until
	`
	_, err := r.pool.Exec(ctx, query,
		state.ID,
		state.TenantID,
		state.LocationID,
		state.WindowStartsAt,
		state.WindowEndsAt,
		state.Limit,
		state.Used,
		state.CooldownUntil,
	)
	if err != nil {
		return fmt.Errorf("save rate limit state: %w", err)
	}
	return nil
}
