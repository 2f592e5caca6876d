package rules

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/policy"
	"github.com/vitrina-io/vitrina/internal/sched"
)

// --- Fakes ---

type fakeRuleStore struct {
	rules []domain.AutomationRule
	fired map[uuid.UUID]time.Time
}

func (f *fakeRuleStore) ListEnabledByTenant(_ context.Context, _ uuid.UUID) ([]domain.AutomationRule, error) {
	return f.rules, nil
}

func (f *fakeRuleStore) RecordFired(_ context.Context, id uuid.UUID, at time.Time) error {
	if f.fired == nil {
		f.fired = make(map[uuid.UUID]time.Time)
	}
	f.fired[id] = at
	return nil
}

type fakeScheduler struct {
	requests []sched.ScheduleRequest
	existing map[string]*domain.Action
}

func (f *fakeScheduler) Schedule(_ context.Context, req sched.ScheduleRequest) (*domain.Action, error) {
	f.requests = append(f.requests, req)

	if req.DedupeKey != nil {
		if existing, ok := f.existing[*req.DedupeKey]; ok {
			return existing, nil
		}
	}

	action := &domain.Action{
		ID:        uuid.New(),
		TenantID:  req.TenantID,
		Type:      req.Type,
		Status:    domain.ActionStatusPending,
		RunAt:     req.RunAt,
		Priority:  req.Priority,
		DedupeKey: req.DedupeKey,
		CreatedAt: req.RunAt,
	}
	if f.existing == nil {
		f.existing = make(map[string]*domain.Action)
	}
	if req.DedupeKey != nil {
		f.existing[*req.DedupeKey] = action
	}
	return action, nil
}

type fakePauses struct {
	violation *policy.Violation
}

func (f *fakePauses) CheckPaused(_ context.Context, _, _ uuid.UUID) error {
	if f.violation != nil {
		return f.violation
	}
	return nil
}

func newTestEvaluator(store *fakeRuleStore, scheduler *fakeScheduler, pauses *fakePauses, now time.Time) *Evaluator {
	return New(Config{
		Rules:     store,
		Scheduler: scheduler,
		Pauses:    pauses,
		Now:       func() time.Time { return now },
	})
}

func dailyRule(tenantID uuid.UUID, locationID *uuid.UUID, priority, weight int, createdAt time.Time) domain.AutomationRule {
	return domain.AutomationRule{
		ID:          uuid.New(),
		TenantID:    tenantID,
		LocationID:  locationID,
		TriggerType: domain.TriggerTypeDaily,
		ActionType:  domain.ActionTypePlanContent,
		Priority:    priority,
		Weight:      weight,
		Enabled:     true,
		CreatedAt:   createdAt,
	}
}

// --- Due Tests ---

func TestRuleDue_Daily(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	earlierToday := now.Add(-2 * time.Hour)

	tests := []struct {
		name      string
		lastFired *time.Time
		want      bool
	}{
		{name: "never fired", lastFired: nil, want: true},
		{name: "fired yesterday", lastFired: &yesterday, want: true},
		{name: "fired earlier today", lastFired: &earlierToday, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &domain.AutomationRule{
				TriggerType: domain.TriggerTypeDaily,
				LastFiredAt: tt.lastFired,
			}
			got, err := ruleDue(rule, now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected due=%v, got %v", tt.want, got)
			}
		})
	}
}

func TestRuleDue_Cron(t *testing.T) {
	// Ежедневно в 08:00
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	firedYesterday := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	firedToday := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		lastFired *time.Time
		createdAt time.Time
		want      bool
	}{
		{name: "next occurrence passed", lastFired: &firedYesterday, want: true},
		{name: "already fired this occurrence", lastFired: &firedToday, want: false},
		{name: "never fired, created before occurrence", createdAt: time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC), want: true},
		{name: "never fired, created after occurrence", createdAt: time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &domain.AutomationRule{
				TriggerType: domain.TriggerTypeCron,
				CronExpr:    "0 8 * * *",
				LastFiredAt: tt.lastFired,
				CreatedAt:   tt.createdAt,
			}
			got, err := ruleDue(rule, now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected due=%v, got %v", tt.want, got)
			}
		})
	}
}

func TestRuleDue_EventNeverDue(t *testing.T) {
	rule := &domain.AutomationRule{TriggerType: domain.TriggerTypeEvent}
	got, err := ruleDue(rule, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Error("event-triggered rules must not fire in periodic evaluation")
	}
}

func TestValidateCronExpr(t *testing.T) {
	if err := ValidateCronExpr("0 8 * * 1-5"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateCronExpr("not a cron"); err == nil {
		t.Error("invalid expression accepted")
	}
}

// --- Winner Resolution Tests ---

func TestResolveWinners_OnePerScope(t *testing.T) {
	tenantID := uuid.New()
	locA, locB := uuid.New(), uuid.New()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	lowA := dailyRule(tenantID, &locA, 1, 0, base)
	highA := dailyRule(tenantID, &locA, 5, 0, base)
	onlyB := dailyRule(tenantID, &locB, 1, 0, base)
	global := dailyRule(tenantID, nil, 1, 0, base)

	winners := resolveWinners([]domain.AutomationRule{lowA, highA, onlyB, global})
	if len(winners) != 3 {
		t.Fatalf("expected 3 winners (locA, locB, global), got %d", len(winners))
	}

	ids := make(map[uuid.UUID]bool)
	for _, w := range winners {
		ids[w.ID] = true
	}
	if ids[lowA.ID] {
		t.Error("lower-priority rule should lose its scope")
	}
	if !ids[highA.ID] {
		t.Error("higher-priority rule should win its scope")
	}
	if !ids[onlyB.ID] || !ids[global.ID] {
		t.Error("sole rules of other scopes should win")
	}
}

func TestResolveWinners_TieBreaks(t *testing.T) {
	tenantID := uuid.New()
	loc := uuid.New()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Равный priority — решает weight
	light := dailyRule(tenantID, &loc, 3, 1, base)
	heavy := dailyRule(tenantID, &loc, 3, 9, base)
	winners := resolveWinners([]domain.AutomationRule{light, heavy})
	if len(winners) != 1 || winners[0].ID != heavy.ID {
		t.Error("heavier rule should win at equal priority")
	}

	// Равные priority и weight — решает более раннее created_at
	older := dailyRule(tenantID, &loc, 3, 1, base)
	newer := dailyRule(tenantID, &loc, 3, 1, base.Add(time.Hour))
	winners = resolveWinners([]domain.AutomationRule{newer, older})
	if len(winners) != 1 || winners[0].ID != older.ID {
		t.Error("older rule should win full tie")
	}
}

// --- EvaluateTenant Tests ---

func TestEvaluator_EvaluateTenant(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	tenantID := uuid.New()
	locA, locB := uuid.New(), uuid.New()
	base := now.Add(-72 * time.Hour)

	store := &fakeRuleStore{rules: []domain.AutomationRule{
		dailyRule(tenantID, &locA, 1, 0, base),
		dailyRule(tenantID, &locA, 5, 0, base),
		dailyRule(tenantID, &locB, 1, 0, base),
	}}
	scheduler := &fakeScheduler{}
	e := newTestEvaluator(store, scheduler, &fakePauses{}, now)

	created, err := e.EvaluateTenant(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 2 {
		t.Errorf("expected 2 actions (one per scope), got %d", created)
	}
	if len(scheduler.requests) != 2 {
		t.Errorf("expected 2 schedule requests, got %d", len(scheduler.requests))
	}
	if len(store.fired) != 2 {
		t.Errorf("expected 2 rules recorded as fired, got %d", len(store.fired))
	}

	for _, req := range scheduler.requests {
		if req.DedupeKey == nil {
			t.Fatal("schedule request must carry a dedupe key")
		}
	}
}

func TestEvaluator_EvaluateTenant_DedupeSameDay(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	tenantID := uuid.New()
	loc := uuid.New()

	rule := dailyRule(tenantID, &loc, 1, 0, now.Add(-72*time.Hour))
	store := &fakeRuleStore{rules: []domain.AutomationRule{rule}}

	// Action с этим dedupe-ключом уже существует (создан час назад)
	key := ruleDedupeKey(rule.ID, now)
	scheduler := &fakeScheduler{existing: map[string]*domain.Action{
		key: {ID: uuid.New(), CreatedAt: now.Add(-time.Hour)},
	}}
	e := newTestEvaluator(store, scheduler, &fakePauses{}, now)

	created, err := e.EvaluateTenant(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("repeated evaluation the same day should create nothing, got %d", created)
	}
}

func TestEvaluator_EvaluateTenant_Paused(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	tenantID := uuid.New()

	store := &fakeRuleStore{rules: []domain.AutomationRule{
		dailyRule(tenantID, nil, 1, 0, now.Add(-72*time.Hour)),
	}}
	scheduler := &fakeScheduler{}
	pauses := &fakePauses{violation: &policy.Violation{Rule: policy.RulePaused, Reason: "tenant is paused"}}
	e := newTestEvaluator(store, scheduler, pauses, now)

	created, err := e.EvaluateTenant(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("pause must not surface as an error: %v", err)
	}
	if created != 0 {
		t.Errorf("paused tenant should produce no actions, got %d", created)
	}
	if len(scheduler.requests) != 0 {
		t.Error("paused tenant should not reach the scheduler")
	}
}

func TestEvaluator_EvaluateTenant_BrokenRuleSkipped(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	tenantID := uuid.New()
	loc := uuid.New()

	broken := domain.AutomationRule{
		ID:          uuid.New(),
		TenantID:    tenantID,
		LocationID:  &loc,
		TriggerType: "lunar",
		ActionType:  domain.ActionTypePlanContent,
		Enabled:     true,
	}
	good := dailyRule(tenantID, nil, 1, 0, now.Add(-72*time.Hour))

	store := &fakeRuleStore{rules: []domain.AutomationRule{broken, good}}
	scheduler := &fakeScheduler{}
	e := newTestEvaluator(store, scheduler, &fakePauses{}, now)

	created, err := e.EvaluateTenant(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("broken rule must not fail evaluation: %v", err)
	}
	if created != 1 {
		t.Errorf("expected 1 action from the healthy rule, got %d", created)
	}
}
