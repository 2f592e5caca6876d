package sched

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/repo"
)

// --- Fakes ---

type fakeActionStore struct {
	mu      sync.Mutex
	actions map[uuid.UUID]*domain.Action
}

func newFakeActionStore() *fakeActionStore {
	return &fakeActionStore{actions: make(map[uuid.UUID]*domain.Action)}
}

func (f *fakeActionStore) Create(_ context.Context, action *domain.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if action.DedupeKey != nil {
		for _, a := range f.actions {
			if a.DedupeKey != nil && *a.DedupeKey == *action.DedupeKey {
				return repo.ErrAlreadyExists
			}
		}
	}
	cp := *action
	f.actions[action.ID] = &cp
	return nil
}

func (f *fakeActionStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeActionStore) GetByDedupeKey(_ context.Context, key string) (*domain.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.actions {
		if a.DedupeKey != nil && *a.DedupeKey == key {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeActionStore) LeaseDue(_ context.Context, now time.Time, limit int) ([]domain.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due []*domain.Action
	for _, a := range f.actions {
		if a.Status == domain.ActionStatusPending && !a.RunAt.After(now) {
			due = append(due, a)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].RunAt.Before(due[j].RunAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]domain.Action, 0, len(due))
	for _, a := range due {
		a.Status = domain.ActionStatusQueued
		a.LockedAt = &now
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeActionStore) LeaseByID(_ context.Context, id uuid.UUID, now time.Time) (*domain.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok || a.Status != domain.ActionStatusPending || a.RunAt.After(now) {
		return nil, repo.ErrNotFound
	}
	a.Status = domain.ActionStatusQueued
	a.LockedAt = &now
	cp := *a
	return &cp, nil
}

func (f *fakeActionStore) Update(_ context.Context, action *domain.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.actions[action.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *action
	f.actions[action.ID] = &cp
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (f *fakeAudit) Append(_ context.Context, entry *domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAudit) tags() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Tag)
	}
	return out
}

type fakeScopes struct {
	locationOK bool
	accountOK  bool
}

func (f *fakeScopes) LocationBelongsTo(_ context.Context, _, _ uuid.UUID) (bool, error) {
	return f.locationOK, nil
}

func (f *fakeScopes) AccountBelongsTo(_ context.Context, _, _ uuid.UUID) (bool, error) {
	return f.accountOK, nil
}

func newTestScheduler(store *fakeActionStore, now time.Time) (*Scheduler, *fakeAudit) {
	audit := &fakeAudit{}
	s := New(Config{
		Actions: store,
		Audit:   audit,
		Scopes:  &fakeScopes{locationOK: true, accountOK: true},
		Now:     func() time.Time { return now },
	})
	return s, audit
}

// --- Schedule Tests ---

func TestScheduler_Schedule(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeActionStore()
	s, audit := newTestScheduler(store, now)

	action, err := s.Schedule(context.Background(), ScheduleRequest{
		TenantID: uuid.New(),
		Type:     domain.ActionTypePublishPost,
		RunAt:    now.Add(time.Hour),
		Payload:  map[string]any{"post_id": "abc"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if action.Status != domain.ActionStatusPending {
		t.Errorf("expected PENDING, got %s", action.Status)
	}
	if action.MaxAttempts != defaultMaxAttempts {
		t.Errorf("expected default max attempts %d, got %d", defaultMaxAttempts, action.MaxAttempts)
	}
	if !action.RunAt.Equal(now.Add(time.Hour)) {
		t.Errorf("unexpected run_at: %v", action.RunAt)
	}
	if action.NextRunAt == nil || !action.NextRunAt.Equal(action.RunAt) {
		t.Error("next_run_at should mirror run_at")
	}

	tags := audit.tags()
	if len(tags) != 1 || tags[0] != "action.scheduled" {
		t.Errorf("expected audit [action.scheduled], got %v", tags)
	}
}

func TestScheduler_Schedule_ZeroRunAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeActionStore()
	s, _ := newTestScheduler(store, now)

	action, err := s.Schedule(context.Background(), ScheduleRequest{
		TenantID: uuid.New(),
		Type:     domain.ActionTypeSyncReviews,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Нулевой run_at означает "сейчас"
	if !action.RunAt.Equal(now) {
		t.Errorf("expected run_at = now, got %v", action.RunAt)
	}
}

func TestScheduler_Schedule_Idempotent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeActionStore()
	s, _ := newTestScheduler(store, now)

	key := "post:42:2025-06-01"
	tenantID := uuid.New()

	first, err := s.Schedule(context.Background(), ScheduleRequest{
		TenantID:  tenantID,
		Type:      domain.ActionTypePublishPost,
		RunAt:     now.Add(time.Hour),
		DedupeKey: &key,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := s.Schedule(context.Background(), ScheduleRequest{
		TenantID:  tenantID,
		Type:      domain.ActionTypePublishPost,
		RunAt:     now.Add(2 * time.Hour), // другие параметры игнорируются
		DedupeKey: &key,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.ID != first.ID {
		t.Error("duplicate schedule should return the existing action")
	}
	if !second.RunAt.Equal(first.RunAt) {
		t.Error("existing action should not be modified")
	}
	if len(store.actions) != 1 {
		t.Errorf("expected 1 stored action, got %d", len(store.actions))
	}
}

func TestScheduler_Schedule_ValidationErrors(t *testing.T) {
	now := time.Now()
	store := newFakeActionStore()
	audit := &fakeAudit{}
	s := New(Config{
		Actions: store,
		Audit:   audit,
		Scopes:  &fakeScopes{locationOK: false, accountOK: false},
		Now:     func() time.Time { return now },
	})

	locID := uuid.New()

	tests := []struct {
		name string
		req  ScheduleRequest
	}{
		{
			name: "missing tenant",
			req:  ScheduleRequest{Type: domain.ActionTypePublishPost},
		},
		{
			name: "unknown action type",
			req:  ScheduleRequest{TenantID: uuid.New(), Type: "teleport_post"},
		},
		{
			name: "foreign location",
			req: ScheduleRequest{
				TenantID:   uuid.New(),
				Type:       domain.ActionTypePublishPost,
				LocationID: &locID,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Schedule(context.Background(), tt.req)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if len(store.actions) != 0 {
		t.Error("validation failures must not persist anything")
	}
}

// --- Lease Tests ---

func TestScheduler_LeaseDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeActionStore()
	s, _ := newTestScheduler(store, now)

	// Два due, один в будущем
	for _, offset := range []time.Duration{-time.Minute, -time.Second, time.Hour} {
		_, err := s.Schedule(context.Background(), ScheduleRequest{
			TenantID: uuid.New(),
			Type:     domain.ActionTypeSyncPosts,
			RunAt:    now.Add(offset),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	leased, err := s.LeaseDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(leased) != 2 {
		t.Fatalf("expected 2 leased actions, got %d", len(leased))
	}
	for _, a := range leased {
		if a.Status != domain.ActionStatusQueued {
			t.Errorf("leased action should be QUEUED, got %s", a.Status)
		}
	}

	// Повторный lease не возвращает уже захваченные
	leased, err = s.LeaseDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(leased) != 0 {
		t.Errorf("expected 0 actions on second lease, got %d", len(leased))
	}
}

func TestScheduler_LeaseDue_Concurrent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeActionStore()
	s, _ := newTestScheduler(store, now)

	const total = 40
	for i := 0; i < total; i++ {
		_, err := s.Schedule(context.Background(), ScheduleRequest{
			TenantID: uuid.New(),
			Type:     domain.ActionTypeCheckRankings,
			RunAt:    now.Add(-time.Minute),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var mu sync.Mutex
	seen := make(map[uuid.UUID]int)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				leased, err := s.LeaseDue(context.Background(), 7)
				if err != nil || len(leased) == 0 {
					return
				}
				mu.Lock()
				for _, a := range leased {
					seen[a.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Errorf("expected %d distinct leased actions, got %d", total, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("action %s leased %d times", id, n)
		}
	}
}

func TestScheduler_LeaseByID_NotDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeActionStore()
	s, _ := newTestScheduler(store, now)

	action, err := s.Schedule(context.Background(), ScheduleRequest{
		TenantID: uuid.New(),
		Type:     domain.ActionTypePublishQnA,
		RunAt:    now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = s.LeaseByID(context.Background(), action.ID)
	if !errors.Is(err, ErrActionNotFound) {
		t.Errorf("expected ErrActionNotFound for not-yet-due action, got %v", err)
	}
}

// --- Lifecycle Tests ---

func TestScheduler_MarkFailure_Retry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeActionStore()
	s, audit := newTestScheduler(store, now)

	action, err := s.Schedule(context.Background(), ScheduleRequest{
		TenantID:    uuid.New(),
		Type:        domain.ActionTypePublishPost,
		RunAt:       now,
		MaxAttempts: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	leased, _ := s.LeaseDue(context.Background(), 1)
	if len(leased) != 1 {
		t.Fatal("expected 1 leased action")
	}
	a := &leased[0]

	if err := s.MarkRunning(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", a.Attempts)
	}

	if err := s.MarkFailure(context.Background(), a, errors.New("gateway timeout")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := store.GetByID(context.Background(), action.ID)
	if stored.Status != domain.ActionStatusPending {
		t.Errorf("expected PENDING after retryable failure, got %s", stored.Status)
	}
	// attempt=1 → base delay 30s
	wantRunAt := now.Add(30 * time.Second)
	if !stored.RunAt.Equal(wantRunAt) {
		t.Errorf("expected run_at %v, got %v", wantRunAt, stored.RunAt)
	}
	if stored.Error != "gateway timeout" {
		t.Errorf("expected error to be recorded, got %q", stored.Error)
	}

	tags := audit.tags()
	if tags[len(tags)-1] != "action.retry_scheduled" {
		t.Errorf("expected last audit tag action.retry_scheduled, got %v", tags)
	}
}

func TestScheduler_MarkFailure_DeadLetter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeActionStore()
	s, audit := newTestScheduler(store, now)

	action, err := s.Schedule(context.Background(), ScheduleRequest{
		TenantID:    uuid.New(),
		Type:        domain.ActionTypePublishPost,
		RunAt:       now,
		MaxAttempts: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	leased, _ := s.LeaseDue(context.Background(), 1)
	a := &leased[0]
	_ = s.MarkRunning(context.Background(), a)

	if err := s.MarkFailure(context.Background(), a, errors.New("boom")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := store.GetByID(context.Background(), action.ID)
	if stored.Status != domain.ActionStatusDeadLettered {
		t.Errorf("expected DEAD_LETTERED, got %s", stored.Status)
	}
	if stored.NextRunAt != nil {
		t.Error("next_run_at should be cleared in terminal status")
	}
	if stored.LockedAt != nil {
		t.Error("locked_at should be cleared in terminal status")
	}

	tags := audit.tags()
	if tags[len(tags)-1] != "action.dead_lettered" {
		t.Errorf("expected last audit tag action.dead_lettered, got %v", tags)
	}
}

func TestScheduler_MarkSuccess(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeActionStore()
	s, _ := newTestScheduler(store, now)

	action, _ := s.Schedule(context.Background(), ScheduleRequest{
		TenantID: uuid.New(),
		Type:     domain.ActionTypeSyncLocations,
		RunAt:    now,
	})

	leased, _ := s.LeaseDue(context.Background(), 1)
	a := &leased[0]
	_ = s.MarkRunning(context.Background(), a)

	if err := s.MarkSuccess(context.Background(), a, map[string]any{"synced": 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := store.GetByID(context.Background(), action.ID)
	if stored.Status != domain.ActionStatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", stored.Status)
	}
	if stored.Result["synced"] != 3 {
		t.Error("result should be persisted")
	}
}

func TestScheduler_MarkRunning_WrongState(t *testing.T) {
	now := time.Now()
	store := newFakeActionStore()
	s, _ := newTestScheduler(store, now)

	action := &domain.Action{ID: uuid.New(), Status: domain.ActionStatusPending}
	err := s.MarkRunning(context.Background(), action)
	if !errors.Is(err, repo.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

// --- Cancel Tests ---

func TestScheduler_Cancel(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeActionStore()
	s, _ := newTestScheduler(store, now)

	action, _ := s.Schedule(context.Background(), ScheduleRequest{
		TenantID: uuid.New(),
		Type:     domain.ActionTypePublishPost,
		RunAt:    now.Add(time.Hour),
	})

	cancelled, err := s.Cancel(context.Background(), action.ID, "client request")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != domain.ActionStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", cancelled.Status)
	}

	// Повторная отмена — no-op
	again, err := s.Cancel(context.Background(), action.ID, "client request")
	if err != nil {
		t.Fatalf("repeated cancel should be a no-op, got %v", err)
	}
	if again.Status != domain.ActionStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", again.Status)
	}
}

func TestScheduler_Cancel_Terminal(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeActionStore()
	s, _ := newTestScheduler(store, now)

	action, _ := s.Schedule(context.Background(), ScheduleRequest{
		TenantID: uuid.New(),
		Type:     domain.ActionTypePublishPost,
		RunAt:    now,
	})

	leased, _ := s.LeaseDue(context.Background(), 1)
	a := &leased[0]
	_ = s.MarkRunning(context.Background(), a)
	_ = s.MarkSuccess(context.Background(), a, nil)

	_, err := s.Cancel(context.Background(), action.ID, "too late")
	if !errors.Is(err, ErrActionTerminal) {
		t.Errorf("expected ErrActionTerminal, got %v", err)
	}
}

func TestScheduler_Cancel_NotFound(t *testing.T) {
	store := newFakeActionStore()
	s, _ := newTestScheduler(store, time.Now())

	_, err := s.Cancel(context.Background(), uuid.New(), "whatever")
	if !errors.Is(err, ErrActionNotFound) {
		t.Errorf("expected ErrActionNotFound, got %v", err)
	}
}
