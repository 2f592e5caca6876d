package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrina-io/vitrina/internal/domain"
)

const postColumns = `id, tenant_id, location_id, bucket, body, requires_media, media_ref,
       status, scheduled_for, external_id, created_at`

// PostRepo — репозиторий для работы с posts и content_plans.
type PostRepo struct {
	pool *pgxpool.Pool
}

// NewPostRepo создаёт новый PostRepo.
func NewPostRepo(pool *pgxpool.Pool) *PostRepo {
	return &PostRepo{pool: pool}
}

// Create создаёт новый post.
func (r *PostRepo) Create(ctx context.Context, post *domain.Post) error {
	query := `
		INSERT INTO posts (id, tenant_id, location_id, bucket, body, requires_media,
		                   media_ref, status, scheduled_for, external_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		post.ID,
		post.TenantID,
		post.LocationID,
		post.Bucket,
		post.Body,
		post.RequiresMedia,
		post.MediaRef,
		post.Status,
		post.ScheduledFor,
		post.ExternalID,
		post.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// GetByID возвращает post по ID.
func (r *PostRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	return scanPost(r.pool.QueryRow(ctx, query, id))
}

// Update обновляет мутабельные поля post.
func (r *PostRepo) Update(ctx context.Context, post *domain.Post) error {
	query := `
		UPDATE posts
		SET body = $2, requires_media = $3, media_ref = $4, status = $5,
		    scheduled_for = $6, external_id = $7
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		post.ID,
		post.Body,
		post.RequiresMedia,
		post.MediaRef,
		post.Status,
		post.ScheduledFor,
		post.ExternalID,
	)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindLatest возвращает самый свежий post для (location, bucket, дата).
// Используется pipeline'ом для проверки идемпотентности перед созданием.
func (r *PostRepo) FindLatest(ctx context.Context, locationID uuid.UUID, bucket string, day time.Time) (*domain.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE location_id = $1 AND bucket = $2
		  AND scheduled_for >= $3 AND scheduled_for < $4
		ORDER BY created_at DESC
		LIMIT 1
	`
	dayStart := day.UTC().Truncate(24 * time.Hour)
	return scanPost(r.pool.QueryRow(ctx, query, locationID, bucket, dayStart, dayStart.Add(24*time.Hour)))
}

// CountScheduledSince возвращает количество постов локации,
// запланированных начиная с since (для недельного лимита).
func (r *PostRepo) CountScheduledSince(ctx context.Context, locationID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM posts
		WHERE location_id = $1 AND status IN ('SCHEDULED', 'PUBLISHED') AND scheduled_for >= $2
	`, locationID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count scheduled posts: %w", err)
	}
	return count, nil
}

// LastScheduledAt возвращает время последнего запланированного поста локации.
// Возвращает ErrNotFound, если постов ещё не было.
func (r *PostRepo) LastScheduledAt(ctx context.Context, locationID uuid.UUID) (time.Time, error) {
	var at time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT scheduled_for FROM posts
		WHERE location_id = $1 AND status IN ('SCHEDULED', 'PUBLISHED')
		ORDER BY scheduled_for DESC
		LIMIT 1
	`, locationID).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last scheduled post: %w", err)
	}
	return at, nil
}

// LastBucketUsedAt возвращает время последнего использования bucket'а локацией.
// Возвращает ErrNotFound, если bucket ещё не использовался.
func (r *PostRepo) LastBucketUsedAt(ctx context.Context, locationID uuid.UUID, bucket string) (time.Time, error) {
	var at time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT scheduled_for FROM posts
		WHERE location_id = $1 AND bucket = $2 AND status IN ('SCHEDULED', 'PUBLISHED')
		ORDER BY scheduled_for DESC
		LIMIT 1
	`, locationID, bucket).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last bucket use: %w", err)
	}
	return at, nil
}

// GetPlan возвращает content plan по ID.
func (r *PostRepo) GetPlan(ctx context.Context, id uuid.UUID) (*domain.ContentPlan, error) {
	var plan domain.ContentPlan
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, location_id, bucket, body, requires_media, target_date, created_at
		FROM content_plans
		WHERE id = $1
	`, id).Scan(
		&plan.ID,
		&plan.TenantID,
		&plan.LocationID,
		&plan.Bucket,
		&plan.Body,
		&plan.RequiresMedia,
		&plan.TargetDate,
		&plan.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content plan: %w", err)
	}
	return &plan, nil
}

// CreatePlan создаёт content plan.
func (r *PostRepo) CreatePlan(ctx context.Context, plan *domain.ContentPlan) error {
	query := `
		INSERT INTO content_plans (id, tenant_id, location_id, bucket, body,
		                           requires_media, target_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		plan.ID,
		plan.TenantID,
		plan.LocationID,
		plan.Bucket,
		plan.Body,
		plan.RequiresMedia,
		plan.TargetDate,
		plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert content plan: %w", err)
	}
	return nil
}

// UpdatePlan обновляет текст и флаг материалов content plan'а.
func (r *PostRepo) UpdatePlan(ctx context.Context, plan *domain.ContentPlan) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE content_plans
		SET body = $2, requires_media = $3
		WHERE id = $1
	`, plan.ID, plan.Body, plan.RequiresMedia)
	if err != nil {
		return fmt.Errorf("update content plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPlansByLocation возвращает планы локации начиная с даты.
func (r *PostRepo) ListPlansByLocation(ctx context.Context, locationID uuid.UUID, from time.Time) ([]domain.ContentPlan, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, location_id, bucket, body, requires_media, target_date, created_at
		FROM content_plans
		WHERE location_id = $1 AND target_date >= $2
		ORDER BY target_date ASC
	`, locationID, from)
	if err != nil {
		return nil, fmt.Errorf("list content plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.ContentPlan
	for rows.Next() {
		var plan domain.ContentPlan
		if err := rows.Scan(
			&plan.ID,
			&plan.TenantID,
			&plan.LocationID,
			&plan.Bucket,
			&plan.Body,
			&plan.RequiresMedia,
			&plan.TargetDate,
			&plan.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan content plan: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// --- Helpers ---

func scanPost(row pgx.Row) (*domain.Post, error) {
	var post domain.Post

	err := row.Scan(
		&post.ID,
		&post.TenantID,
		&post.LocationID,
		&post.Bucket,
		&post.Body,
		&post.RequiresMedia,
		&post.MediaRef,
		&post.Status,
		&post.ScheduledFor,
		&post.ExternalID,
		&post.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	return &post, nil
}
