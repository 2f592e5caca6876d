package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/repo"
	"github.com/vitrina-io/vitrina/internal/telemetry"
)

// Default configuration values.
const (
	defaultWindow   = time.Hour
	defaultLimit    = 10
	defaultCooldown = 5 * time.Minute
)

// StateStore — хранилище rate_limit_states.
type StateStore interface {
	Get(ctx context.Context, tenantID, locationID uuid.UUID) (*domain.RateLimitState, error)
	Save(ctx context.Context, state *domain.RateLimitState) error
}

// LimitExceededError — лимит исчерпан или действует cooldown.
type LimitExceededError struct {
	// RetryAfter — через сколько можно повторить.
	RetryAfter time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// Limiter — двухслойный throttle для пары (tenant, location):
// мягкое окно со счётчиком + жёсткий cooldown после нарушения.
type Limiter struct {
	store  StateStore
	logger *slog.Logger

	window   time.Duration
	limit    int
	cooldown time.Duration

	now func() time.Time
}

// Config — конфигурация Limiter.
type Config struct {
	Store  StateStore
	Logger *slog.Logger

	// Window — длина окна (default: 1h).
	Window time.Duration

	// Limit — операций в окне (default: 10).
	Limit int

	// Cooldown — жёсткий запрет после нарушения (default: 5m).
	Cooldown time.Duration

	// Now — источник времени (default: time.Now). Для тестов.
	Now func() time.Time
}

// New создаёт новый Limiter.
func New(cfg Config) *Limiter {
	window := cfg.Window
	if window <= 0 {
		window = defaultWindow
	}

	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Limiter{
		store:    cfg.Store,
		logger:   logger,
		window:   window,
		limit:    limit,
		cooldown: cooldown,
		now:      now,
	}
}

// CheckAndIncrement расходует cost операций для scope.
//
// Порядок проверок:
//  1. Истёкшее окно сбрасывается (used=0, окно сдвигается вперёд)
//  2. Действующий cooldown — отказ с остатком времени
//  3. Превышение лимита — устанавливается cooldown, отказ
//  4. Иначе used увеличивается, возвращается обновлённое состояние
//
// Гонка двух инкрементов одного scope разрешается транзакционной
// сериализацией в хранилище.
func (l *Limiter) CheckAndIncrement(ctx context.Context, tenantID, locationID uuid.UUID, cost int) (*domain.RateLimitState, error) {
	if cost <= 0 {
		cost = 1
	}

	now := l.now()

	state, err := l.store.Get(ctx, tenantID, locationID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("get rate limit state: %w", err)
		}
		state = &domain.RateLimitState{
			ID:         uuid.New(),
			TenantID:   tenantID,
			LocationID: locationID,
			Limit:      l.limit,
		}
		state.ResetWindow(now, l.window)
	}

	// 1. Сброс истёкшего окна (cooldown при этом не трогаем)
	if state.WindowElapsed(now) {
		state.ResetWindow(now, l.window)
	}

	// 2. Жёсткий cooldown действует независимо от окна
	if state.InCooldown(now) {
		telemetry.RateLimitRejects.Inc()
		return nil, &LimitExceededError{RetryAfter: state.CooldownUntil.Sub(now)}
	}

	// 3. Превышение лимита — включаем cooldown
	if state.Used+cost > state.Limit {
		cooldownUntil := now.Add(l.cooldown)
		state.CooldownUntil = &cooldownUntil
		if err := l.store.Save(ctx, state); err != nil {
			return nil, fmt.Errorf("save rate limit state: %w", err)
		}

		telemetry.RateLimitRejects.Inc()
		l.logger.Warn("rate limit exceeded, cooldown set",
			"tenant_id", tenantID,
			"location_id", locationID,
			"used", state.Used,
			"limit", state.Limit,
			"cooldown_until", cooldownUntil,
		)
		return nil, &LimitExceededError{RetryAfter: l.cooldown}
	}

	// 4. Расходуем
	state.Used += cost
	if err := l.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("save rate limit state: %w", err)
	}

	return state, nil
}
