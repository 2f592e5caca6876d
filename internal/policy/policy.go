package policy

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
	defaultWeeklyCap      = 3
	defaultMinGap         = 20 * time.Hour
	defaultBucketCooldown = 14 * 24 * time.Hour
)

// Rule — имя сработавшего правила безопасности.
type Rule string

const (
	RuleWeeklyCap      Rule = "weekly_cap"
	RuleMinGap         Rule = "min_gap"
	RuleBucketCooldown Rule = "bucket_cooldown"
	RulePaused         Rule = "paused"
)

// Violation — нарушение правила безопасности публикаций.
// Всегда называет конкретное правило: проверки независимы,
// частичного применения не бывает.
type Violation struct {
	// Rule — какое правило сработало.
	Rule Rule

	// Reason — человекочитаемое описание.
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("posting policy violation (%s): %s", v.Rule, v.Reason)
}

// HistoryStore — история публикаций локации.
type HistoryStore interface {
	CountScheduledSince(ctx context.Context, locationID uuid.UUID, since time.Time) (int, error)
	LastScheduledAt(ctx context.Context, locationID uuid.UUID) (time.Time, error)
	LastBucketUsedAt(ctx context.Context, locationID uuid.UUID, bucket string) (time.Time, error)
}

// PauseStore — флаги паузы и переопределения лимитов.
type PauseStore interface {
	IsGloballyPaused(ctx context.Context) (bool, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	GetLocation(ctx context.Context, id uuid.UUID) (*domain.Location, error)
}

// Policy — stateless-валидатор guardrails публикаций.
//
// Консультируется и при создании job'а (fail fast), и при выполнении
// (pause check). Ничего не пишет — только читает историю и флаги.
type Policy struct {
	history HistoryStore
	pauses  PauseStore
	logger  *slog.Logger

	weeklyCap      int
	minGap         time.Duration
	bucketCooldown time.Duration
}

// Config — конфигурация Policy.
type Config struct {
	History HistoryStore
	Pauses  PauseStore
	Logger  *slog.Logger

	// WeeklyCap — недельный лимит постов на локацию (default: 3).
	// Переопределяется на уровне tenant'а и локации.
	WeeklyCap int

	// MinGap — минимальный интервал между постами (default: 20h).
	MinGap time.Duration

	// BucketCooldown — окно неповторения bucket'а (default: 14d).
	BucketCooldown time.Duration
}

// New создаёт новый Policy.
func New(cfg Config) *Policy {
	weeklyCap := cfg.WeeklyCap
	if weeklyCap <= 0 {
		weeklyCap = defaultWeeklyCap
	}

	minGap := cfg.MinGap
	if minGap <= 0 {
		minGap = defaultMinGap
	}

	bucketCooldown := cfg.BucketCooldown
	if bucketCooldown <= 0 {
		bucketCooldown = defaultBucketCooldown
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Policy{
		history:        cfg.History,
		pauses:         cfg.Pauses,
		logger:         logger,
		weeklyCap:      weeklyCap,
		minGap:         minGap,
		bucketCooldown: bucketCooldown,
	}
}

// CheckSchedule проверяет все guardrails для новой публикации.
//
// Вызывается при создании job'а: любое нарушение поднимается сразу,
// ничего не сохраняется.
func (p *Policy) CheckSchedule(ctx context.Context, tenantID, locationID uuid.UUID, bucket string, proposedAt time.Time) error {
	if err := p.CheckPaused(ctx, tenantID, locationID); err != nil {
		return err
	}
	if err := p.checkWeeklyCap(ctx, tenantID, locationID, proposedAt); err != nil {
		return err
	}
	if err := p.checkMinGap(ctx, locationID, proposedAt); err != nil {
		return err
	}
	if err := p.checkBucketCooldown(ctx, locationID, bucket, proposedAt); err != nil {
		return err
	}
	return nil
}

// CheckPaused проверяет kill-switch, паузу tenant'а и паузу локации.
// Вызывается также на этапе выполнения job'а.
func (p *Policy) CheckPaused(ctx context.Context, tenantID, locationID uuid.UUID) error {
	paused, err := p.pauses.IsGloballyPaused(ctx)
	if err != nil {
		return fmt.Errorf("check global pause: %w", err)
	}
	if paused {
		return p.violation(RulePaused, "automation is globally paused")
	}

	tenant, err := p.pauses.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("get tenant: %w", err)
	}
	if tenant.Paused {
		return p.violation(RulePaused, "tenant is paused")
	}

	// uuid.Nil — проверка на уровне tenant'а, без конкретной локации.
	if locationID == uuid.Nil {
		return nil
	}

	location, err := p.pauses.GetLocation(ctx, locationID)
	if err != nil {
		return fmt.Errorf("get location: %w", err)
	}
	if location.Paused {
		return p.violation(RulePaused, "location is paused")
	}

	return nil
}

// checkWeeklyCap — не больше N постов за скользящие 7 дней.
// Эффективный лимит: локация > tenant > default.
func (p *Policy) checkWeeklyCap(ctx context.Context, tenantID, locationID uuid.UUID, proposedAt time.Time) error {
	cap := p.weeklyCap

	tenant, err := p.pauses.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("get tenant: %w", err)
	}
	if tenant.WeeklyPostCap > 0 {
		cap = tenant.WeeklyPostCap
	}

	location, err := p.pauses.GetLocation(ctx, locationID)
	if err != nil {
		return fmt.Errorf("get location: %w", err)
	}
	if location.WeeklyPostCap > 0 {
		cap = location.WeeklyPostCap
	}

	count, err := p.history.CountScheduledSince(ctx, locationID, proposedAt.Add(-7*24*time.Hour))
	if err != nil {
		return fmt.Errorf("count scheduled posts: %w", err)
	}
	if count >= cap {
		return p.violation(RuleWeeklyCap,
			fmt.Sprintf("%d posts in the trailing 7 days, cap is %d", count, cap))
	}

	return nil
}

// checkMinGap — минимальный интервал от последнего поста локации.
func (p *Policy) checkMinGap(ctx context.Context, locationID uuid.UUID, proposedAt time.Time) error {
	last, err := p.history.LastScheduledAt(ctx, locationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("last scheduled post: %w", err)
	}

	if proposedAt.Sub(last) < p.minGap {
		return p.violation(RuleMinGap,
			fmt.Sprintf("last post at %s is closer than %s", last.Format(time.RFC3339), p.minGap))
	}
	return nil
}

// checkBucketCooldown — bucket не повторяется в течение cooldown-окна.
func (p *Policy) checkBucketCooldown(ctx context.Context, locationID uuid.UUID, bucket string, proposedAt time.Time) error {
	if bucket == "" {
		return nil
	}

	last, err := p.history.LastBucketUsedAt(ctx, locationID, bucket)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("last bucket use: %w", err)
	}

	if proposedAt.Sub(last) < p.bucketCooldown {
		return p.violation(RuleBucketCooldown,
			fmt.Sprintf("bucket %q used at %s, cooldown is %s", bucket, last.Format(time.RFC3339), p.bucketCooldown))
	}
	return nil
}

func (p *Policy) violation(rule Rule, reason string) *Violation {
	telemetry.PolicyViolations.WithLabelValues(string(rule)).Inc()
	return &Violation{Rule: rule, Reason: reason}
}
