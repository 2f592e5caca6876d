package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/ratelimit"
	"github.com/vitrina-io/vitrina/internal/repo"
	"github.com/vitrina-io/vitrina/internal/sched"
	"github.com/vitrina-io/vitrina/internal/telemetry"
)

// JobStore — доступ к jobs и истории попыток.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	GetByDedupeKey(ctx context.Context, key string) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	AppendAttempt(ctx context.Context, attempt *domain.Attempt) error
	FinishAttempt(ctx context.Context, attempt *domain.Attempt) error
}

// PostStore — доступ к постам и контент-планам.
type PostStore interface {
	Create(ctx context.Context, post *domain.Post) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Post, error)
	Update(ctx context.Context, post *domain.Post) error
	FindLatest(ctx context.Context, locationID uuid.UUID, bucket string, day time.Time) (*domain.Post, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*domain.ContentPlan, error)
}

// Limiter — per-scope ограничитель частоты публикаций.
type Limiter interface {
	CheckAndIncrement(ctx context.Context, tenantID, locationID uuid.UUID, cost int) (*domain.RateLimitState, error)
}

// PolicyChecker — posting safety policy.
type PolicyChecker interface {
	CheckPaused(ctx context.Context, tenantID, locationID uuid.UUID) error
	CheckSchedule(ctx context.Context, tenantID, locationID uuid.UUID, bucket string, proposedAt time.Time) error
}

// PostPublisher публикует пост на внешней площадке.
type PostPublisher interface {
	PublishPost(ctx context.Context, post *domain.Post) (externalID string, err error)
}

// ActionScheduler создаёт actions, триггерящие выполнение jobs.
type ActionScheduler interface {
	Schedule(ctx context.Context, req sched.ScheduleRequest) (*domain.Action, error)
}

// Config — зависимости Pipeline.
type Config struct {
	Jobs      JobStore
	Posts     PostStore
	Limiter   Limiter
	Policy    PolicyChecker
	Publisher PostPublisher
	Scheduler ActionScheduler
	Logger    *slog.Logger

	// MaxAttempts — максимум попыток для новых jobs.
	MaxAttempts int

	// Now — источник времени (для тестов).
	Now func() time.Time
}

const defaultMaxAttempts = 5

// Pipeline выполняет publishing jobs: от контент-плана до
// опубликованного поста.
//
// Таблица jobs мутируется только отсюда. Каждая попытка выполнения
// оставляет запись в append-only истории (job_attempts) независимо
// от исхода.
type Pipeline struct {
	jobs        JobStore
	posts       PostStore
	limiter     Limiter
	policy      PolicyChecker
	publisher   PostPublisher
	scheduler   ActionScheduler
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
}

// New создаёт Pipeline.
func New(cfg Config) *Pipeline {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		jobs:        cfg.Jobs,
		posts:       cfg.Posts,
		limiter:     cfg.Limiter,
		policy:      cfg.Policy,
		publisher:   cfg.Publisher,
		scheduler:   cfg.Scheduler,
		logger:      logger,
		maxAttempts: maxAttempts,
		now:         now,
	}
}

// QueueFromPlan создаёт job из контент-плана (идемпотентно) и action
// типа execute_post_job, который запустит выполнение в runAt.
//
// dedupeKey задаёт ключ идемпотентности; пустая строка — ключ по
// умолчанию от tenant+location+даты.
//
// Posting safety policy проверяется уже здесь: план, нарушающий
// лимиты, не попадает в очередь вовсе.
func (p *Pipeline) QueueFromPlan(ctx context.Context, planID uuid.UUID, runAt time.Time, dedupeKey string) (*domain.Job, error) {
	plan, err := p.posts.GetPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}

	if err := p.policy.CheckSchedule(ctx, plan.TenantID, plan.LocationID, plan.Bucket, runAt); err != nil {
		return nil, err
	}

	dedupe := dedupeKey
	if dedupe == "" {
		dedupe = domain.JobDedupeKey(plan.TenantID, plan.LocationID, runAt)
	}
	existing, err := p.jobs.GetByDedupeKey(ctx, dedupe)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("check dedupe key: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	job := &domain.Job{
		ID:          uuid.New(),
		TenantID:    plan.TenantID,
		LocationID:  plan.LocationID,
		PlanID:      &plan.ID,
		Status:      domain.JobStatusQueued,
		DedupeKey:   dedupe,
		RunAt:       runAt,
		MaxAttempts: p.maxAttempts,
		CreatedAt:   p.now(),
	}
	if err := p.jobs.Create(ctx, job); err != nil {
		// Гонка на уникальном dedupe_key: возвращаем выигравшую строку.
		if errors.Is(err, repo.ErrAlreadyExists) {
			return p.jobs.GetByDedupeKey(ctx, dedupe)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := p.scheduleTrigger(ctx, job, runAt); err != nil {
		return nil, err
	}

	p.logger.Info("job queued",
		"job_id", job.ID,
		"plan_id", plan.ID,
		"location_id", plan.LocationID,
		"run_at", runAt)
	return job, nil
}

// Execute выполняет job: rate limit → пауза → резолв поста →
// материалы → публикация. Попытка фиксируется в истории при любом
// исходе.
//
// Rate limit не тратит попытку: job переносится на момент, когда
// лимит освободится, и для него создаётся новый триггер-action.
func (p *Pipeline) Execute(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.Status.IsTerminal() {
		// Повторный триггер уже закрытого job — не ошибка.
		return job, nil
	}

	// Всё, что ниже, пишет в scope job'а (поверх scope action'а,
	// если выполнение пришло от воркера).
	ctx = telemetry.WithLogger(ctx, telemetry.WithJob(telemetry.FromContext(ctx), job))

	now := p.now()
	job.MarkRunning()
	if err := p.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	attempt := &domain.Attempt{
		ID:        uuid.New(),
		JobID:     job.ID,
		Number:    job.Attempts,
		StartedAt: now,
	}
	if err := p.jobs.AppendAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("append attempt: %w", err)
	}

	return p.run(ctx, job, attempt)
}

// run — тело одной попытки. Job и attempt уже в статусе RUNNING.
func (p *Pipeline) run(ctx context.Context, job *domain.Job, attempt *domain.Attempt) (*domain.Job, error) {
	// 1. Rate limit: не ошибка, а перенос. Квота списывается до
	// проверки паузы.
	if _, err := p.limiter.CheckAndIncrement(ctx, job.TenantID, job.LocationID, 1); err != nil {
		var limitErr *ratelimit.LimitExceededError
		if errors.As(err, &limitErr) {
			return p.reschedule(ctx, job, attempt, limitErr.RetryAfter)
		}
		return p.fail(ctx, job, attempt, fmt.Errorf("rate limit check: %w", err))
	}

	// 2. Пауза автоматизации — жёсткая остановка. Попытка не тратится:
	// после снятия паузы job выполнится как ни в чём не бывало.
	if err := p.policy.CheckPaused(ctx, job.TenantID, job.LocationID); err != nil {
		job.Status = domain.JobStatusQueued
		job.Attempts--
		if uerr := p.jobs.Update(ctx, job); uerr != nil {
			return nil, fmt.Errorf("update job: %w", uerr)
		}
		p.finishAttempt(ctx, attempt, err.Error())
		return job, err
	}

	// 3. Резолв поста.
	post, err := p.resolvePost(ctx, job)
	if err != nil {
		return p.fail(ctx, job, attempt, err)
	}
	if post == nil {
		return p.close(ctx, job, attempt, domain.JobStatusSkipped, map[string]any{
			"status": "nothing_to_publish",
		})
	}
	job.PostID = &post.ID

	if post.Status == domain.PostStatusPublished {
		return p.close(ctx, job, attempt, domain.JobStatusSkipped, map[string]any{
			"status":      "already_published",
			"post_id":     post.ID.String(),
			"external_id": post.ExternalID,
		})
	}

	// 4. Материалы клиента.
	if !post.HasMedia() {
		p.requestMedia(ctx, job)
		return p.close(ctx, job, attempt, domain.JobStatusNeedsClientInput, map[string]any{
			"status":  "awaiting_media",
			"post_id": post.ID.String(),
		})
	}

	// 5. Публикация.
	externalID, err := p.publisher.PublishPost(ctx, post)
	if err != nil {
		return p.fail(ctx, job, attempt, fmt.Errorf("publish post: %w", err))
	}

	post.Status = domain.PostStatusPublished
	post.ExternalID = externalID
	if err := p.posts.Update(ctx, post); err != nil {
		return p.fail(ctx, job, attempt, fmt.Errorf("update post: %w", err))
	}

	job.MarkSucceeded(map[string]any{
		"post_id":     post.ID.String(),
		"external_id": externalID,
	})
	if err := p.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	p.finishAttempt(ctx, attempt, "")
	telemetry.JobsCompleted.WithLabelValues(string(job.Status)).Inc()

	telemetry.FromContext(ctx).Info("job succeeded",
		"post_id", post.ID,
		"external_id", externalID)
	return job, nil
}

// resolvePost находит или создаёт пост для job.
//
// Порядок: явный post_id → свежий пост локации на целевую дату →
// новый пост из контент-плана. Без плана и без существующего поста
// публиковать нечего (nil, nil).
func (p *Pipeline) resolvePost(ctx context.Context, job *domain.Job) (*domain.Post, error) {
	if job.PostID != nil {
		post, err := p.posts.GetByID(ctx, *job.PostID)
		if err != nil {
			return nil, fmt.Errorf("get post: %w", err)
		}
		return post, nil
	}

	var plan *domain.ContentPlan
	if job.PlanID != nil {
		loaded, err := p.posts.GetPlan(ctx, *job.PlanID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("get plan: %w", err)
		}
		plan = loaded
	}

	bucket := ""
	if plan != nil {
		bucket = plan.Bucket
	}

	existing, err := p.posts.FindLatest(ctx, job.LocationID, bucket, job.RunAt)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("find post: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	if plan == nil {
		return nil, nil
	}

	post := &domain.Post{
		ID:            uuid.New(),
		TenantID:      job.TenantID,
		LocationID:    job.LocationID,
		Bucket:        plan.Bucket,
		Body:          plan.Body,
		RequiresMedia: plan.RequiresMedia,
		Status:        domain.PostStatusScheduled,
		ScheduledFor:  job.RunAt,
		CreatedAt:     p.now(),
	}
	if err := p.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// reschedule переносит job из-за rate limit и создаёт новый
// триггер-action на момент освобождения лимита.
func (p *Pipeline) reschedule(ctx context.Context, job *domain.Job, attempt *domain.Attempt, retryAfter time.Duration) (*domain.Job, error) {
	next := p.now().Add(retryAfter)
	job.MarkRateLimited(next)
	if err := p.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	p.finishAttempt(ctx, attempt, "rate limited")

	if err := p.scheduleTrigger(ctx, job, next); err != nil {
		return nil, err
	}
	telemetry.JobsCompleted.WithLabelValues(string(job.Status)).Inc()

	telemetry.FromContext(ctx).Info("job rate limited", "next_run_at", next)
	return job, nil
}

// close закрывает job в одном из «мягких» статусов.
func (p *Pipeline) close(ctx context.Context, job *domain.Job, attempt *domain.Attempt, status domain.JobStatus, result map[string]any) (*domain.Job, error) {
	job.Status = status
	job.Result = result
	if err := p.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	p.finishAttempt(ctx, attempt, "")
	telemetry.JobsCompleted.WithLabelValues(string(status)).Inc()

	telemetry.FromContext(ctx).Info("job closed", "status", status)
	return job, nil
}

// fail фиксирует ошибку попытки. Если попытки исчерпаны, job уходит
// в FAILED, иначе возвращается в QUEUED и будет повторён retry'ем
// триггер-action'а.
func (p *Pipeline) fail(ctx context.Context, job *domain.Job, attempt *domain.Attempt, execErr error) (*domain.Job, error) {
	if job.Attempts >= job.MaxAttempts {
		job.MarkFailed(execErr.Error())
		telemetry.JobsCompleted.WithLabelValues(string(job.Status)).Inc()
	} else {
		job.Status = domain.JobStatusQueued
		job.Error = execErr.Error()
	}
	if err := p.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	p.finishAttempt(ctx, attempt, execErr.Error())

	telemetry.FromContext(ctx).Error("job attempt failed",
		"attempt", attempt.Number,
		"error", execErr)
	return job, execErr
}

// finishAttempt закрывает запись попытки. Сбой записи истории
// не должен ронять выполнение — только лог.
func (p *Pipeline) finishAttempt(ctx context.Context, attempt *domain.Attempt, errMsg string) {
	attempt.Finish(p.now(), errMsg)
	if err := p.jobs.FinishAttempt(ctx, attempt); err != nil {
		telemetry.FromContext(ctx).Error("finish attempt", "attempt_id", attempt.ID, "error", err)
	}
}

// scheduleTrigger создаёт action execute_post_job на время runAt.
func (p *Pipeline) scheduleTrigger(ctx context.Context, job *domain.Job, runAt time.Time) error {
	dedupe := fmt.Sprintf("job:%s:%d", job.ID, runAt.UTC().Unix())
	_, err := p.scheduler.Schedule(ctx, sched.ScheduleRequest{
		TenantID:   job.TenantID,
		LocationID: &job.LocationID,
		Type:       domain.ActionTypeExecutePostJob,
		RunAt:      runAt,
		DedupeKey:  &dedupe,
		Payload: map[string]any{
			"job_id": job.ID.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("schedule trigger action: %w", err)
	}
	return nil
}

// requestMedia планирует запрос материалов у клиента (best effort).
func (p *Pipeline) requestMedia(ctx context.Context, job *domain.Job) {
	dedupe := fmt.Sprintf("media:%s:%s", job.LocationID, p.now().UTC().Format("2006-01-02"))
	_, err := p.scheduler.Schedule(ctx, sched.ScheduleRequest{
		TenantID:   job.TenantID,
		LocationID: &job.LocationID,
		Type:       domain.ActionTypeRequestMediaUpload,
		RunAt:      p.now(),
		DedupeKey:  &dedupe,
	})
	if err != nil {
		telemetry.FromContext(ctx).Error("schedule media request", "error", err)
	}
}
