package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrina-io/vitrina/internal/domain"
)

const jobColumns = `id, tenant_id, location_id, plan_id, post_id, status, dedupe_key,
       run_at, attempts, max_attempts, error, result, created_at`

// JobRepo — репозиторий для работы с jobs и их попытками.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

// Create создаёт новый job.
// Возвращает ErrAlreadyExists при конфликте dedupe_key.
func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, tenant_id, location_id, plan_id, status, dedupe_key,
		                  run_at, attempts, max_attempts, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.TenantID,
		job.LocationID,
		job.PlanID,
		job.Status,
		job.DedupeKey,
		job.RunAt,
		job.Attempts,
		job.MaxAttempts,
		job.Error,
		job.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID возвращает job по ID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(r.pool.QueryRow(ctx, query, id))
}

// GetByDedupeKey возвращает job по ключу идемпотентности.
func (r *JobRepo) GetByDedupeKey(ctx context.Context, key string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE dedupe_key = $1`
	return scanJob(r.pool.QueryRow(ctx, query, key))
}

// Update обновляет мутабельные поля job.
func (r *JobRepo) Update(ctx context.Context, job *domain.Job) error {
	resultJSON, err := json.Marshal(job.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = $2, post_id = $3, run_at = $4, attempts = $5, error = $6, result = $7
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.PostID,
		job.RunAt,
		job.Attempts,
		job.Error,
		resultJSON,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByTenant возвращает jobs tenant'а (новые первыми).
func (r *JobRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs by tenant: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// AppendAttempt добавляет попытку в историю выполнения job.
func (r *JobRepo) AppendAttempt(ctx context.Context, attempt *domain.Attempt) error {
	query := `
		INSERT INTO job_attempts (id, job_id, number, started_at, finished_at, error)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		attempt.ID,
		attempt.JobID,
		attempt.Number,
		attempt.StartedAt,
		attempt.FinishedAt,
		attempt.Error,
	)
	if err != nil {
		return fmt.Errorf("insert job attempt: %w", err)
	}
	return nil
}

// FinishAttempt фиксирует завершение попытки.
func (r *JobRepo) FinishAttempt(ctx context.Context, attempt *domain.Attempt) error {
	query := `UPDATE job_attempts SET finished_at = $2, error = $3 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, attempt.ID, attempt.FinishedAt, attempt.Error)
	if err != nil {
		return fmt.Errorf("finish job attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAttempts возвращает историю попыток job по порядку.
func (r *JobRepo) ListAttempts(ctx context.Context, jobID uuid.UUID) ([]domain.Attempt, error) {
	query := `
		SELECT id, job_id, number, started_at, finished_at, error
		FROM job_attempts
		WHERE job_id = $1
		ORDER BY number ASC
	`
	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.Attempt
	for rows.Next() {
		var at domain.Attempt
		if err := rows.Scan(&at.ID, &at.JobID, &at.Number, &at.StartedAt, &at.FinishedAt, &at.Error); err != nil {
			return nil, fmt.Errorf("scan job attempt: %w", err)
		}
		attempts = append(attempts, at)
	}
	return attempts, rows.Err()
}

// --- Helpers ---

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var resultJSON []byte

	err := row.Scan(
		&job.ID,
		&job.TenantID,
		&job.LocationID,
		&job.PlanID,
		&job.PostID,
		&job.Status,
		&job.DedupeKey,
		&job.RunAt,
		&job.Attempts,
		&job.MaxAttempts,
		&job.Error,
		&resultJSON,
		&job.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &job.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return &job, nil
}
