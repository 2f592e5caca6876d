package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/repo"
)

// PlanStore — доступ к контент-планам и истории постов.
type PlanStore interface {
	CreatePlan(ctx context.Context, plan *domain.ContentPlan) error
	UpdatePlan(ctx context.Context, plan *domain.ContentPlan) error
	GetPlan(ctx context.Context, id uuid.UUID) (*domain.ContentPlan, error)
	ListPlansByLocation(ctx context.Context, locationID uuid.UUID, from time.Time) ([]domain.ContentPlan, error)
	LastBucketUsedAt(ctx context.Context, locationID uuid.UUID, bucket string) (time.Time, error)
}

// defaultBuckets — ротация тематических категорий.
var defaultBuckets = []string{"offer", "news", "tips", "showcase"}

// bucketTemplates — заготовки текста по категориям. Реальный текст
// дорабатывается редактором или генератором на этапе compose.
var bucketTemplates = map[string]string{
	"offer":    "Специальное предложение этой недели — подробности у нас.",
	"news":     "Новости нашей точки: что изменилось за неделю.",
	"tips":     "Полезный совет от нашей команды.",
	"showcase": "Покажем, как это выглядит вживую.",
}

// mediaBuckets — категории, требующие материалов клиента.
var mediaBuckets = map[string]bool{
	"showcase": true,
}

// Config — зависимости Planner'а.
type Config struct {
	Store  PlanStore
	Logger *slog.Logger

	// PostsPerWeek — сколько планов строить на неделю (default: 3).
	PostsPerWeek int

	// BucketCooldown — окно, в котором категория не повторяется.
	BucketCooldown time.Duration

	// Buckets — ротация категорий (default: defaultBuckets).
	Buckets []string

	// Now — источник времени (для тестов).
	Now func() time.Time
}

const (
	defaultPostsPerWeek   = 3
	defaultBucketCooldown = 14 * 24 * time.Hour
)

// Planner строит контент-планы: какие категории и в какие дни
// публиковать для локации.
//
// Планирование детерминировано: дни распределяются равномерно по
// неделе, категория выбирается ротацией с учётом cooldown'а, уже
// существующие планы на дату не дублируются.
type Planner struct {
	store          PlanStore
	logger         *slog.Logger
	postsPerWeek   int
	bucketCooldown time.Duration
	buckets        []string
	now            func() time.Time
}

// New создаёт Planner.
func New(cfg Config) *Planner {
	postsPerWeek := cfg.PostsPerWeek
	if postsPerWeek <= 0 {
		postsPerWeek = defaultPostsPerWeek
	}
	cooldown := cfg.BucketCooldown
	if cooldown <= 0 {
		cooldown = defaultBucketCooldown
	}
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Planner{
		store:          cfg.Store,
		logger:         logger,
		postsPerWeek:   postsPerWeek,
		bucketCooldown: cooldown,
		buckets:        buckets,
		now:            now,
	}
}

// PlanWeek строит планы локации на неделю вперёд начиная с from.
// Возвращает число созданных планов; дни, на которые план уже есть,
// пропускаются.
func (p *Planner) PlanWeek(ctx context.Context, tenantID, locationID uuid.UUID, from time.Time) (int, error) {
	existing, err := p.store.ListPlansByLocation(ctx, locationID, from)
	if err != nil {
		return 0, fmt.Errorf("list plans: %w", err)
	}
	planned := make(map[string]bool, len(existing))
	for _, plan := range existing {
		planned[dayKey(plan.TargetDate)] = true
	}

	// Равномерно распределяем postsPerWeek дней по неделе.
	step := 7 / p.postsPerWeek
	if step < 1 {
		step = 1
	}

	created := 0
	taken := make(map[string]bool, p.postsPerWeek)
	for i := 0; i < p.postsPerWeek; i++ {
		target := from.AddDate(0, 0, i*step)
		if planned[dayKey(target)] {
			continue
		}

		bucket, err := p.pickBucket(ctx, locationID, target, taken)
		if err != nil {
			return created, err
		}
		taken[bucket] = true

		plan := &domain.ContentPlan{
			ID:            uuid.New(),
			TenantID:      tenantID,
			LocationID:    locationID,
			Bucket:        bucket,
			RequiresMedia: mediaBuckets[bucket],
			TargetDate:    target,
			CreatedAt:     p.now(),
		}
		if err := p.store.CreatePlan(ctx, plan); err != nil {
			return created, fmt.Errorf("create plan: %w", err)
		}
		created++

		p.logger.Info("content plan created",
			"plan_id", plan.ID,
			"location_id", locationID,
			"bucket", bucket,
			"target_date", target.Format("2006-01-02"))
	}
	return created, nil
}

// GenerateCandidates дописывает текст во все планы локации без body.
func (p *Planner) GenerateCandidates(ctx context.Context, tenantID, locationID uuid.UUID) (int, error) {
	plans, err := p.store.ListPlansByLocation(ctx, locationID, p.now())
	if err != nil {
		return 0, fmt.Errorf("list plans: %w", err)
	}

	generated := 0
	for i := range plans {
		if plans[i].Body != "" {
			continue
		}
		if _, err := p.Compose(ctx, plans[i].ID); err != nil {
			return generated, err
		}
		generated++
	}
	return generated, nil
}

// Compose дописывает текст конкретного плана. Планы с уже готовым
// текстом не перезаписываются.
func (p *Planner) Compose(ctx context.Context, planID uuid.UUID) (*domain.ContentPlan, error) {
	plan, err := p.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	if plan.Body != "" {
		return plan, nil
	}

	body, ok := bucketTemplates[plan.Bucket]
	if !ok {
		body = bucketTemplates[defaultBuckets[0]]
	}
	plan.Body = body
	if err := p.store.UpdatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}
	return plan, nil
}

// pickBucket выбирает категорию, не использованную в cooldown-окне
// и не занятую другим планом этого же прогона. Если все категории
// «горячие», берётся самая давняя.
func (p *Planner) pickBucket(ctx context.Context, locationID uuid.UUID, target time.Time, taken map[string]bool) (string, error) {
	var (
		oldest       string
		oldestUsedAt time.Time
	)
	for _, bucket := range p.buckets {
		if taken[bucket] {
			continue
		}
		usedAt, err := p.store.LastBucketUsedAt(ctx, locationID, bucket)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				// Категория ещё не использовалась.
				return bucket, nil
			}
			return "", fmt.Errorf("last bucket use: %w", err)
		}
		if target.Sub(usedAt) >= p.bucketCooldown {
			return bucket, nil
		}
		if oldest == "" || usedAt.Before(oldestUsedAt) {
			oldest = bucket
			oldestUsedAt = usedAt
		}
	}
	if oldest == "" {
		// Категорий меньше, чем планов: ротация идёт по второму кругу.
		oldest = p.buckets[0]
	}
	return oldest, nil
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
