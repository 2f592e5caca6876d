package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrina-io/vitrina/internal/domain"
)

const actionColumns = `id, tenant_id, location_id, account_id, action_type, status, payload,
       run_at, next_run_at, locked_at, attempts, max_attempts, priority,
       dedupe_key, result, error, created_at`

// ActionRepo — репозиторий для работы с actions.
type ActionRepo struct {
	pool *pgxpool.Pool
}

// NewActionRepo создаёт новый ActionRepo.
func NewActionRepo(pool *pgxpool.Pool) *ActionRepo {
	return &ActionRepo{pool: pool}
}

// Create создаёт новый action.
// Возвращает ErrAlreadyExists при конфликте dedupe_key.
func (r *ActionRepo) Create(ctx context.Context, action *domain.Action) error {
	payloadJSON, err := json.Marshal(action.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO actions (id, tenant_id, location_id, account_id, action_type, status,
		                     payload, run_at, next_run_at, attempts, max_attempts, priority,
		                     dedupe_key, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.pool.Exec(ctx, query,
		action.ID,
		action.TenantID,
		action.LocationID,
		action.AccountID,
		action.Type,
		action.Status,
		payloadJSON,
		action.RunAt,
		action.NextRunAt,
		action.Attempts,
		action.MaxAttempts,
		action.Priority,
		action.DedupeKey,
		action.Error,
		action.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// GetByID возвращает action по ID.
func (r *ActionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE id = $1`
	return scanAction(r.pool.QueryRow(ctx, query, id))
}

// GetByDedupeKey возвращает action по ключу идемпотентности.
func (r *ActionRepo) GetByDedupeKey(ctx context.Context, key string) (*domain.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE dedupe_key = $1`
	return scanAction(r.pool.QueryRow(ctx, query, key))
}

// LeaseDue атомарно захватывает до limit due-actions.
//
// FOR UPDATE SKIP LOCKED — ключевое свойство: конкурирующие воркеры
// не блокируются друг о друга и не получают одни и те же строки.
// Выборка и перевод в QUEUED происходят в одном statement, блокировки
// держатся только на время самого UPDATE.
func (r *ActionRepo) LeaseDue(ctx context.Context, now time.Time, limit int) ([]domain.Action, error) {
	query := `
		UPDATE actions
		SET status = 'QUEUED', locked_at = $1
		WHERE id IN (
			SELECT id FROM actions
			WHERE status = 'PENDING' AND run_at <= $1
			ORDER BY priority DESC, run_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + actionColumns + `
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("lease due actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.Action
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *action)
	}
	return actions, rows.Err()
}

// LeaseByID захватывает конкретный PENDING/QUEUED action (event-driven путь).
// Возвращает ErrNotFound, если action не существует или уже захвачен.
func (r *ActionRepo) LeaseByID(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Action, error) {
	query := `
		UPDATE actions
		SET status = 'QUEUED', locked_at = $2
		WHERE id IN (
			SELECT id FROM actions
			WHERE id = $1 AND status = 'PENDING' AND run_at <= $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + actionColumns + `
	`
	return scanAction(r.pool.QueryRow(ctx, query, id, now))
}

// Update обновляет мутабельные поля action.
func (r *ActionRepo) Update(ctx context.Context, action *domain.Action) error {
	resultJSON, err := json.Marshal(action.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		UPDATE actions
		SET status = $2, run_at = $3, next_run_at = $4, locked_at = $5,
		    attempts = $6, result = $7, error = $8
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		action.ID,
		action.Status,
		action.RunAt,
		action.NextRunAt,
		action.LockedAt,
		action.Attempts,
		resultJSON,
		action.Error,
	)
	if err != nil {
		return fmt.Errorf("update action: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByTenant возвращает actions tenant'а (новые первыми).
func (r *ActionRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]domain.Action, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM actions
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list actions by tenant: %w", err)
	}
	defer rows.Close()

	var actions []domain.Action
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *action)
	}
	return actions, rows.Err()
}

// ListDue возвращает due actions без захвата (для nudge-публикации).
func (r *ActionRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Action, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM actions
		WHERE status = 'PENDING' AND run_at <= $1
		ORDER BY priority DESC, run_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.Action
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *action)
	}
	return actions, rows.Err()
}

// CountDue возвращает количество actions, готовых к lease.
func (r *ActionRepo) CountDue(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM actions WHERE status = 'PENDING' AND run_at <= $1
	`, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count due actions: %w", err)
	}
	return count, nil
}

// --- Helpers ---

func scanAction(row pgx.Row) (*domain.Action, error) {
	var action domain.Action
	var payloadJSON, resultJSON []byte

	err := row.Scan(
		&action.ID,
		&action.TenantID,
		&action.LocationID,
		&action.AccountID,
		&action.Type,
		&action.Status,
		&payloadJSON,
		&action.RunAt,
		&action.NextRunAt,
		&action.LockedAt,
		&action.Attempts,
		&action.MaxAttempts,
		&action.Priority,
		&action.DedupeKey,
		&resultJSON,
		&action.Error,
		&action.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan action: %w", err)
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &action.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &action.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return &action, nil
}
