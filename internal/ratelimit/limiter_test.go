package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/repo"
)

type fakeStateStore struct {
	states map[string]*domain.RateLimitState
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: make(map[string]*domain.RateLimitState)}
}

func stateKey(tenantID, locationID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", tenantID, locationID)
}

func (f *fakeStateStore) Get(_ context.Context, tenantID, locationID uuid.UUID) (*domain.RateLimitState, error) {
	s, ok := f.states[stateKey(tenantID, locationID)]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStateStore) Save(_ context.Context, state *domain.RateLimitState) error {
	cp := *state
	f.states[stateKey(state.TenantID, state.LocationID)] = &cp
	return nil
}

func newTestLimiter(store StateStore, now *time.Time) *Limiter {
	return New(Config{
		Store:    store,
		Window:   time.Hour,
		Limit:    3,
		Cooldown: 10 * time.Minute,
		Now:      func() time.Time { return *now },
	})
}

func TestLimiter_ConsumesWithinLimit(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStateStore()
	l := newTestLimiter(store, &now)

	tenantID, locationID := uuid.New(), uuid.New()

	for i := 1; i <= 3; i++ {
		state, err := l.CheckAndIncrement(context.Background(), tenantID, locationID, 1)
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
		if state.Used != i {
			t.Errorf("attempt %d: expected used=%d, got %d", i, i, state.Used)
		}
	}
}

func TestLimiter_ExceededSetsCooldown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStateStore()
	l := newTestLimiter(store, &now)

	tenantID, locationID := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		if _, err := l.CheckAndIncrement(context.Background(), tenantID, locationID, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Четвёртая операция превышает лимит
	_, err := l.CheckAndIncrement(context.Background(), tenantID, locationID, 1)
	var limErr *LimitExceededError
	if !errors.As(err, &limErr) {
		t.Fatalf("expected LimitExceededError, got %v", err)
	}
	if limErr.RetryAfter != 10*time.Minute {
		t.Errorf("expected retry after 10m, got %v", limErr.RetryAfter)
	}

	// Cooldown сохранён в хранилище
	saved, _ := store.Get(context.Background(), tenantID, locationID)
	if saved.CooldownUntil == nil || !saved.CooldownUntil.Equal(now.Add(10*time.Minute)) {
		t.Error("cooldown_until should be persisted")
	}
}

func TestLimiter_CooldownCountsDown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStateStore()
	l := newTestLimiter(store, &now)

	tenantID, locationID := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		_, _ = l.CheckAndIncrement(context.Background(), tenantID, locationID, 1)
	}
	_, _ = l.CheckAndIncrement(context.Background(), tenantID, locationID, 1) // включает cooldown

	// Через 4 минуты всё ещё cooldown, RetryAfter — остаток
	now = now.Add(4 * time.Minute)
	_, err := l.CheckAndIncrement(context.Background(), tenantID, locationID, 1)
	var limErr *LimitExceededError
	if !errors.As(err, &limErr) {
		t.Fatalf("expected LimitExceededError, got %v", err)
	}
	if limErr.RetryAfter != 6*time.Minute {
		t.Errorf("expected retry after 6m, got %v", limErr.RetryAfter)
	}
}

func TestLimiter_CooldownOutlivesWindowReset(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStateStore()
	// Короткое окно, длинный cooldown
	l := New(Config{
		Store:    store,
		Window:   time.Minute,
		Limit:    1,
		Cooldown: time.Hour,
		Now:      func() time.Time { return now },
	})

	tenantID, locationID := uuid.New(), uuid.New()

	_, _ = l.CheckAndIncrement(context.Background(), tenantID, locationID, 1)
	_, _ = l.CheckAndIncrement(context.Background(), tenantID, locationID, 1) // включает cooldown

	// Окно истекло, но cooldown действует
	now = now.Add(5 * time.Minute)
	_, err := l.CheckAndIncrement(context.Background(), tenantID, locationID, 1)
	var limErr *LimitExceededError
	if !errors.As(err, &limErr) {
		t.Errorf("cooldown must survive window reset, got %v", err)
	}
}

func TestLimiter_WindowReset(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStateStore()
	l := newTestLimiter(store, &now)

	tenantID, locationID := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		_, _ = l.CheckAndIncrement(context.Background(), tenantID, locationID, 1)
	}

	// Окно истекло без нарушения — счётчик обнуляется
	now = now.Add(time.Hour + time.Second)
	state, err := l.CheckAndIncrement(context.Background(), tenantID, locationID, 1)
	if err != nil {
		t.Fatalf("unexpected error after window reset: %v", err)
	}
	if state.Used != 1 {
		t.Errorf("expected used=1 in fresh window, got %d", state.Used)
	}
	if !state.WindowStartsAt.Equal(now) {
		t.Errorf("window should restart at now, got %v", state.WindowStartsAt)
	}
}

func TestLimiter_CostAboveOne(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStateStore()
	l := newTestLimiter(store, &now)

	tenantID, locationID := uuid.New(), uuid.New()

	state, err := l.CheckAndIncrement(context.Background(), tenantID, locationID, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Used != 2 {
		t.Errorf("expected used=2, got %d", state.Used)
	}

	// 2+2 > 3 — отказ без расхода
	_, err = l.CheckAndIncrement(context.Background(), tenantID, locationID, 2)
	var limErr *LimitExceededError
	if !errors.As(err, &limErr) {
		t.Fatalf("expected LimitExceededError, got %v", err)
	}
}

func TestLimiter_ScopesIndependent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStateStore()
	l := newTestLimiter(store, &now)

	tenantID := uuid.New()
	locA, locB := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		_, _ = l.CheckAndIncrement(context.Background(), tenantID, locA, 1)
	}
	_, _ = l.CheckAndIncrement(context.Background(), tenantID, locA, 1) // locA в cooldown

	// locB не затронута
	state, err := l.CheckAndIncrement(context.Background(), tenantID, locB, 1)
	if err != nil {
		t.Fatalf("unexpected error for independent scope: %v", err)
	}
	if state.Used != 1 {
		t.Errorf("expected used=1 for locB, got %d", state.Used)
	}
}
