package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/policy"
	"github.com/vitrina-io/vitrina/internal/ratelimit"
	"github.com/vitrina-io/vitrina/internal/repo"
	"github.com/vitrina-io/vitrina/internal/sched"
)

// --- Fakes ---

type fakeJobStore struct {
	jobs     map[uuid.UUID]*domain.Job
	attempts []*domain.Attempt
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*domain.Job)}
}

func (f *fakeJobStore) Create(_ context.Context, job *domain.Job) error {
	for _, j := range f.jobs {
		if j.DedupeKey == job.DedupeKey {
			return repo.ErrAlreadyExists
		}
	}
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobStore) GetByDedupeKey(_ context.Context, key string) (*domain.Job, error) {
	for _, j := range f.jobs {
		if j.DedupeKey == key {
			cp := *j
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeJobStore) Update(_ context.Context, job *domain.Job) error {
	if _, ok := f.jobs[job.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobStore) AppendAttempt(_ context.Context, attempt *domain.Attempt) error {
	cp := *attempt
	f.attempts = append(f.attempts, &cp)
	return nil
}

func (f *fakeJobStore) FinishAttempt(_ context.Context, attempt *domain.Attempt) error {
	for i, a := range f.attempts {
		if a.ID == attempt.ID {
			cp := *attempt
			f.attempts[i] = &cp
			return nil
		}
	}
	return repo.ErrNotFound
}

type fakePostStore struct {
	posts map[uuid.UUID]*domain.Post
	plans map[uuid.UUID]*domain.ContentPlan

	// latest возвращается из FindLatest, если задан
	latest *domain.Post
}

func newFakePostStore() *fakePostStore {
	return &fakePostStore{
		posts: make(map[uuid.UUID]*domain.Post),
		plans: make(map[uuid.UUID]*domain.ContentPlan),
	}
}

func (f *fakePostStore) Create(_ context.Context, post *domain.Post) error {
	cp := *post
	f.posts[post.ID] = &cp
	return nil
}

func (f *fakePostStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePostStore) Update(_ context.Context, post *domain.Post) error {
	cp := *post
	f.posts[post.ID] = &cp
	return nil
}

func (f *fakePostStore) FindLatest(_ context.Context, _ uuid.UUID, _ string, _ time.Time) (*domain.Post, error) {
	if f.latest == nil {
		return nil, repo.ErrNotFound
	}
	cp := *f.latest
	return &cp, nil
}

func (f *fakePostStore) GetPlan(_ context.Context, id uuid.UUID) (*domain.ContentPlan, error) {
	p, ok := f.plans[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type fakeLimiter struct {
	err   error
	calls int
}

func (f *fakeLimiter) CheckAndIncrement(_ context.Context, _, _ uuid.UUID, _ int) (*domain.RateLimitState, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RateLimitState{}, nil
}

type fakePolicy struct {
	pausedErr   error
	scheduleErr error
}

func (f *fakePolicy) CheckPaused(_ context.Context, _, _ uuid.UUID) error {
	return f.pausedErr
}

func (f *fakePolicy) CheckSchedule(_ context.Context, _, _ uuid.UUID, _ string, _ time.Time) error {
	return f.scheduleErr
}

type fakePublisher struct {
	externalID string
	err        error
	calls      int
}

func (f *fakePublisher) PublishPost(_ context.Context, _ *domain.Post) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.externalID, nil
}

type fakeScheduler struct {
	requests []sched.ScheduleRequest
}

func (f *fakeScheduler) Schedule(_ context.Context, req sched.ScheduleRequest) (*domain.Action, error) {
	f.requests = append(f.requests, req)
	return &domain.Action{ID: uuid.New(), Type: req.Type, RunAt: req.RunAt}, nil
}

func (f *fakeScheduler) byType(t domain.ActionType) []sched.ScheduleRequest {
	var out []sched.ScheduleRequest
	for _, r := range f.requests {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

type pipelineFixture struct {
	jobs      *fakeJobStore
	posts     *fakePostStore
	limiter   *fakeLimiter
	policy    *fakePolicy
	publisher *fakePublisher
	scheduler *fakeScheduler
	now       time.Time
	pipeline  *Pipeline
}

func newFixture() *pipelineFixture {
	f := &pipelineFixture{
		jobs:      newFakeJobStore(),
		posts:     newFakePostStore(),
		limiter:   &fakeLimiter{},
		policy:    &fakePolicy{},
		publisher: &fakePublisher{externalID: "ext-1"},
		scheduler: &fakeScheduler{},
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.pipeline = New(Config{
		Jobs:        f.jobs,
		Posts:       f.posts,
		Limiter:     f.limiter,
		Policy:      f.policy,
		Publisher:   f.publisher,
		Scheduler:   f.scheduler,
		MaxAttempts: 3,
		Now:         func() time.Time { return f.now },
	})
	return f
}

func (f *pipelineFixture) plan() *domain.ContentPlan {
	plan := &domain.ContentPlan{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		LocationID: uuid.New(),
		Bucket:     "offer",
		Body:       "summer deal",
		TargetDate: f.now,
	}
	f.posts.plans[plan.ID] = plan
	return plan
}

// --- QueueFromPlan Tests ---

func TestPipeline_QueueFromPlan(t *testing.T) {
	f := newFixture()
	plan := f.plan()

	job, err := f.pipeline.QueueFromPlan(context.Background(), plan.ID, f.now.Add(time.Hour), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != domain.JobStatusQueued {
		t.Errorf("expected QUEUED, got %s", job.Status)
	}
	if job.PlanID == nil || *job.PlanID != plan.ID {
		t.Error("job should reference the plan")
	}

	// Создан триггер-action execute_post_job
	triggers := f.scheduler.byType(domain.ActionTypeExecutePostJob)
	if len(triggers) != 1 {
		t.Fatalf("expected 1 trigger action, got %d", len(triggers))
	}
	if !triggers[0].RunAt.Equal(f.now.Add(time.Hour)) {
		t.Errorf("trigger run_at should match job run_at")
	}
}

func TestPipeline_QueueFromPlan_Idempotent(t *testing.T) {
	f := newFixture()
	plan := f.plan()
	runAt := f.now.Add(time.Hour)

	first, err := f.pipeline.QueueFromPlan(context.Background(), plan.ID, runAt, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.pipeline.QueueFromPlan(context.Background(), plan.ID, runAt, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.ID != first.ID {
		t.Error("same plan and run_at should return the existing job")
	}
	if len(f.jobs.jobs) != 1 {
		t.Errorf("expected 1 stored job, got %d", len(f.jobs.jobs))
	}
	if len(f.scheduler.requests) != 1 {
		t.Errorf("expected 1 trigger action, got %d", len(f.scheduler.requests))
	}
}

func TestPipeline_QueueFromPlan_ExplicitDedupeKey(t *testing.T) {
	f := newFixture()
	plan := f.plan()
	runAt := f.now.Add(time.Hour)

	first, err := f.pipeline.QueueFromPlan(context.Background(), plan.ID, runAt, "campaign:summer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.DedupeKey != "campaign:summer" {
		t.Errorf("expected caller-supplied dedupe key, got %q", first.DedupeKey)
	}

	// Тот же ключ — тот же job, даже при другом run_at
	second, err := f.pipeline.QueueFromPlan(context.Background(), plan.ID, runAt.Add(time.Hour), "campaign:summer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID != first.ID {
		t.Error("same dedupe key should return the existing job")
	}

	// Другой ключ при том же run_at — новый job
	third, err := f.pipeline.QueueFromPlan(context.Background(), plan.ID, runAt, "campaign:autumn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.ID == first.ID {
		t.Error("different dedupe key should create a new job")
	}
}

func TestPipeline_QueueFromPlan_PolicyFailFast(t *testing.T) {
	f := newFixture()
	f.policy.scheduleErr = &policy.Violation{Rule: policy.RuleWeeklyCap, Reason: "cap reached"}
	plan := f.plan()

	_, err := f.pipeline.QueueFromPlan(context.Background(), plan.ID, f.now.Add(time.Hour), "")
	var v *policy.Violation
	if !errors.As(err, &v) {
		t.Fatalf("expected policy violation, got %v", err)
	}
	if len(f.jobs.jobs) != 0 {
		t.Error("violating plan must not create a job")
	}
	if len(f.scheduler.requests) != 0 {
		t.Error("violating plan must not create trigger actions")
	}
}

// --- Execute Tests ---

func queuedJob(f *pipelineFixture, plan *domain.ContentPlan) *domain.Job {
	job, err := f.pipeline.QueueFromPlan(context.Background(), plan.ID, f.now, "")
	if err != nil {
		panic(err)
	}
	return job
}

func TestPipeline_Execute_Success(t *testing.T) {
	f := newFixture()
	plan := f.plan()
	job := queuedJob(f, plan)

	done, err := f.pipeline.Execute(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Status != domain.JobStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", done.Status)
	}
	if done.Result["external_id"] != "ext-1" {
		t.Errorf("expected external id in result, got %v", done.Result)
	}
	if done.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", done.Attempts)
	}

	// Пост создан из плана и опубликован
	if done.PostID == nil {
		t.Fatal("job should reference the created post")
	}
	post := f.posts.posts[*done.PostID]
	if post == nil || post.Status != domain.PostStatusPublished {
		t.Error("post should be created and PUBLISHED")
	}
	if post.Body != "summer deal" {
		t.Errorf("post body should come from the plan, got %q", post.Body)
	}

	// История попыток закрыта без ошибки
	if len(f.jobs.attempts) != 1 {
		t.Fatalf("expected 1 attempt record, got %d", len(f.jobs.attempts))
	}
	if f.jobs.attempts[0].FinishedAt == nil || f.jobs.attempts[0].Error != "" {
		t.Error("attempt should be finished cleanly")
	}
}

func TestPipeline_Execute_RateLimited(t *testing.T) {
	f := newFixture()
	plan := f.plan()
	job := queuedJob(f, plan)

	f.limiter.err = &ratelimit.LimitExceededError{RetryAfter: 10 * time.Minute}

	done, err := f.pipeline.Execute(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("rate limit is not an error: %v", err)
	}
	if done.Status != domain.JobStatusRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %s", done.Status)
	}
	// Попытка не тратится
	if done.Attempts != 0 {
		t.Errorf("rate limit must not consume an attempt, got %d", done.Attempts)
	}
	wantNext := f.now.Add(10 * time.Minute)
	if !done.RunAt.Equal(wantNext) {
		t.Errorf("expected run_at %v, got %v", wantNext, done.RunAt)
	}

	// Новый триггер на момент освобождения лимита
	triggers := f.scheduler.byType(domain.ActionTypeExecutePostJob)
	if len(triggers) != 2 { // исходный + перенос
		t.Fatalf("expected 2 trigger actions, got %d", len(triggers))
	}
	if !triggers[1].RunAt.Equal(wantNext) {
		t.Errorf("reschedule trigger at %v, want %v", triggers[1].RunAt, wantNext)
	}
	if f.publisher.calls != 0 {
		t.Error("publisher must not be called when rate limited")
	}
}

func TestPipeline_Execute_Paused(t *testing.T) {
	f := newFixture()
	plan := f.plan()
	job := queuedJob(f, plan)

	f.policy.pausedErr = &policy.Violation{Rule: policy.RulePaused, Reason: "tenant is paused"}

	_, err := f.pipeline.Execute(context.Background(), job.ID)
	var v *policy.Violation
	if !errors.As(err, &v) {
		t.Fatalf("pause must propagate as an error, got %v", err)
	}

	stored := f.jobs.jobs[job.ID]
	if stored.Status != domain.JobStatusQueued {
		t.Errorf("paused job should return to QUEUED, got %s", stored.Status)
	}
	// Попытка не тратится
	if stored.Attempts != 0 {
		t.Errorf("pause must not consume an attempt, got %d", stored.Attempts)
	}
	// Квота списывается до проверки паузы
	if f.limiter.calls != 1 {
		t.Errorf("rate limit runs before the pause check, got %d calls", f.limiter.calls)
	}
}

func TestPipeline_Execute_PausedAndRateLimited(t *testing.T) {
	f := newFixture()
	plan := f.plan()
	job := queuedJob(f, plan)

	// Scope и на паузе, и без квоты: лимит проверяется первым,
	// поэтому job уходит в RATE_LIMITED без ошибки.
	f.policy.pausedErr = &policy.Violation{Rule: policy.RulePaused, Reason: "tenant is paused"}
	f.limiter.err = &ratelimit.LimitExceededError{RetryAfter: 5 * time.Minute}

	done, err := f.pipeline.Execute(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("rate limit wins over pause and is not an error: %v", err)
	}
	if done.Status != domain.JobStatusRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %s", done.Status)
	}
	wantNext := f.now.Add(5 * time.Minute)
	if !done.RunAt.Equal(wantNext) {
		t.Errorf("expected run_at %v, got %v", wantNext, done.RunAt)
	}
}

func TestPipeline_Execute_AlreadyPublished(t *testing.T) {
	f := newFixture()
	plan := f.plan()
	job := queuedJob(f, plan)

	f.posts.latest = &domain.Post{
		ID:         uuid.New(),
		Status:     domain.PostStatusPublished,
		ExternalID: "ext-old",
	}

	done, err := f.pipeline.Execute(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Status != domain.JobStatusSkipped {
		t.Fatalf("expected SKIPPED, got %s", done.Status)
	}
	if done.Result["status"] != "already_published" {
		t.Errorf("unexpected result: %v", done.Result)
	}
	if f.publisher.calls != 0 {
		t.Error("publisher must not be called for already published content")
	}
}

func TestPipeline_Execute_NeedsClientInput(t *testing.T) {
	f := newFixture()
	plan := f.plan()
	f.posts.plans[plan.ID].RequiresMedia = true
	job := queuedJob(f, plan)

	done, err := f.pipeline.Execute(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Status != domain.JobStatusNeedsClientInput {
		t.Fatalf("expected NEEDS_CLIENT_INPUT, got %s", done.Status)
	}

	// Клиенту запланирован запрос материалов
	media := f.scheduler.byType(domain.ActionTypeRequestMediaUpload)
	if len(media) != 1 {
		t.Fatalf("expected 1 media request action, got %d", len(media))
	}
	if f.publisher.calls != 0 {
		t.Error("publisher must not be called without media")
	}
}

func TestPipeline_Execute_FailThenExhaust(t *testing.T) {
	f := newFixture()
	plan := f.plan()
	job := queuedJob(f, plan)

	f.publisher.err = errors.New("gateway 502")

	// Первые две попытки возвращают job в QUEUED
	for i := 1; i <= 2; i++ {
		_, err := f.pipeline.Execute(context.Background(), job.ID)
		if err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
		stored := f.jobs.jobs[job.ID]
		if stored.Status != domain.JobStatusQueued {
			t.Fatalf("attempt %d: expected QUEUED, got %s", i, stored.Status)
		}
		if stored.Attempts != i {
			t.Fatalf("attempt %d: expected %d attempts, got %d", i, i, stored.Attempts)
		}
	}

	// Третья попытка исчерпывает лимит
	_, err := f.pipeline.Execute(context.Background(), job.ID)
	if err == nil {
		t.Fatal("expected error on final attempt")
	}
	stored := f.jobs.jobs[job.ID]
	if stored.Status != domain.JobStatusFailed {
		t.Fatalf("expected FAILED after max attempts, got %s", stored.Status)
	}
	if stored.Error == "" {
		t.Error("final error should be recorded")
	}
	if len(f.jobs.attempts) != 3 {
		t.Errorf("expected 3 attempt records, got %d", len(f.jobs.attempts))
	}
}

func TestPipeline_Execute_TerminalIsNoop(t *testing.T) {
	f := newFixture()
	plan := f.plan()
	job := queuedJob(f, plan)

	if _, err := f.pipeline.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	attemptsBefore := len(f.jobs.attempts)

	// Повторный триггер закрытого job ничего не делает
	done, err := f.pipeline.Execute(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Status != domain.JobStatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", done.Status)
	}
	if len(f.jobs.attempts) != attemptsBefore {
		t.Error("re-trigger of a terminal job must not start a new attempt")
	}
	if f.publisher.calls != 1 {
		t.Errorf("publisher should be called exactly once, got %d", f.publisher.calls)
	}
}

func TestPipeline_Execute_NothingToPublish(t *testing.T) {
	f := newFixture()

	// Job без плана и без существующих постов
	job := &domain.Job{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		LocationID:  uuid.New(),
		Status:      domain.JobStatusQueued,
		DedupeKey:   "manual",
		RunAt:       f.now,
		MaxAttempts: 3,
	}
	if err := f.jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done, err := f.pipeline.Execute(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Status != domain.JobStatusSkipped {
		t.Fatalf("expected SKIPPED, got %s", done.Status)
	}
	if done.Result["status"] != "nothing_to_publish" {
		t.Errorf("unexpected result: %v", done.Result)
	}
}
