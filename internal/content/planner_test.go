package content

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/repo"
)

type fakePlanStore struct {
	plans      map[uuid.UUID]*domain.ContentPlan
	bucketUsed map[string]time.Time
}

func newFakePlanStore() *fakePlanStore {
	return &fakePlanStore{
		plans:      make(map[uuid.UUID]*domain.ContentPlan),
		bucketUsed: make(map[string]time.Time),
	}
}

func (f *fakePlanStore) CreatePlan(_ context.Context, plan *domain.ContentPlan) error {
	cp := *plan
	f.plans[plan.ID] = &cp
	return nil
}

func (f *fakePlanStore) UpdatePlan(_ context.Context, plan *domain.ContentPlan) error {
	if _, ok := f.plans[plan.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *plan
	f.plans[plan.ID] = &cp
	return nil
}

func (f *fakePlanStore) GetPlan(_ context.Context, id uuid.UUID) (*domain.ContentPlan, error) {
	p, ok := f.plans[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePlanStore) ListPlansByLocation(_ context.Context, locationID uuid.UUID, from time.Time) ([]domain.ContentPlan, error) {
	var out []domain.ContentPlan
	for _, p := range f.plans {
		if p.LocationID == locationID && !p.TargetDate.Before(from) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePlanStore) LastBucketUsedAt(_ context.Context, _ uuid.UUID, bucket string) (time.Time, error) {
	at, ok := f.bucketUsed[bucket]
	if !ok {
		return time.Time{}, repo.ErrNotFound
	}
	return at, nil
}

func newTestPlanner(store *fakePlanStore, now time.Time) *Planner {
	return New(Config{
		Store: store,
		Now:   func() time.Time { return now },
	})
}

func TestPlanner_PlanWeek(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := newFakePlanStore()
	p := newTestPlanner(store, now)

	tenantID, locationID := uuid.New(), uuid.New()

	created, err := p.PlanWeek(context.Background(), tenantID, locationID, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 3 {
		t.Fatalf("expected 3 plans, got %d", created)
	}

	// Дни распределены с шагом 2 (7/3), категории не повторяются
	days := make(map[string]bool)
	buckets := make(map[string]bool)
	for _, plan := range store.plans {
		days[plan.TargetDate.Format("2006-01-02")] = true
		buckets[plan.Bucket] = true
		if plan.TenantID != tenantID || plan.LocationID != locationID {
			t.Error("plan should carry tenant and location")
		}
	}
	for _, want := range []string{"2025-06-01", "2025-06-03", "2025-06-05"} {
		if !days[want] {
			t.Errorf("expected a plan on %s, have %v", want, days)
		}
	}
	if len(buckets) != 3 {
		t.Errorf("expected 3 distinct buckets, got %v", buckets)
	}
}

func TestPlanner_PlanWeek_SkipsPlannedDays(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := newFakePlanStore()
	p := newTestPlanner(store, now)

	tenantID, locationID := uuid.New(), uuid.New()

	if _, err := p.PlanWeek(context.Background(), tenantID, locationID, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Повторный прогон ничего не добавляет
	created, err := p.PlanWeek(context.Background(), tenantID, locationID, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("repeated planning should create nothing, got %d", created)
	}
	if len(store.plans) != 3 {
		t.Errorf("expected 3 plans total, got %d", len(store.plans))
	}
}

func TestPlanner_PickBucket_CooldownFallback(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := newFakePlanStore()
	// Все категории использованы внутри cooldown-окна
	store.bucketUsed = map[string]time.Time{
		"offer":    now.Add(-1 * 24 * time.Hour),
		"news":     now.Add(-5 * 24 * time.Hour),
		"tips":     now.Add(-2 * 24 * time.Hour),
		"showcase": now.Add(-3 * 24 * time.Hour),
	}
	p := newTestPlanner(store, now)

	bucket, err := p.pickBucket(context.Background(), uuid.New(), now, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Побеждает самая давняя
	if bucket != "news" {
		t.Errorf("expected oldest bucket news, got %q", bucket)
	}
}

func TestPlanner_PickBucket_RespectsCooldown(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := newFakePlanStore()
	store.bucketUsed = map[string]time.Time{
		"offer": now.Add(-2 * 24 * time.Hour),  // внутри cooldown
		"news":  now.Add(-20 * 24 * time.Hour), // остыла
	}
	p := newTestPlanner(store, now)

	bucket, err := p.pickBucket(context.Background(), uuid.New(), now, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bucket != "news" {
		t.Errorf("expected cooled-down bucket news, got %q", bucket)
	}
}

func TestPlanner_Compose(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := newFakePlanStore()
	p := newTestPlanner(store, now)

	plan := &domain.ContentPlan{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		LocationID: uuid.New(),
		Bucket:     "tips",
		TargetDate: now,
	}
	_ = store.CreatePlan(context.Background(), plan)

	composed, err := p.Compose(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if composed.Body == "" {
		t.Fatal("compose should fill the body")
	}
	if composed.Body != bucketTemplates["tips"] {
		t.Errorf("body should come from the bucket template, got %q", composed.Body)
	}

	// Готовый текст не перезаписывается
	stored := store.plans[plan.ID]
	stored.Body = "handwritten"
	again, err := p.Compose(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Body != "handwritten" {
		t.Error("compose must not overwrite an existing body")
	}
}

func TestPlanner_GenerateCandidates(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := newFakePlanStore()
	p := newTestPlanner(store, now)

	tenantID, locationID := uuid.New(), uuid.New()
	if _, err := p.PlanWeek(context.Background(), tenantID, locationID, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	generated, err := p.GenerateCandidates(context.Background(), tenantID, locationID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if generated != 3 {
		t.Errorf("expected 3 generated bodies, got %d", generated)
	}
	for _, plan := range store.plans {
		if plan.Body == "" {
			t.Error("all plans should have a body after generation")
		}
	}

	// Второй прогон ничего не генерирует
	generated, err = p.GenerateCandidates(context.Background(), tenantID, locationID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if generated != 0 {
		t.Errorf("second generation pass should be a no-op, got %d", generated)
	}
}
