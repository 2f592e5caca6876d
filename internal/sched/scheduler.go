package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/mq"
	"github.com/vitrina-io/vitrina/internal/repo"
	"github.com/vitrina-io/vitrina/internal/telemetry"
)

// Default configuration values.
const (
	defaultMaxAttempts = 5
	defaultBackoffBase = 30 * time.Second
	defaultBackoffCap  = time.Hour
)

// ActionStore — хранилище actions.
// Реализуется repo.ActionRepo; в тестах подменяется fake'ом.
type ActionStore interface {
	Create(ctx context.Context, action *domain.Action) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Action, error)
	GetByDedupeKey(ctx context.Context, key string) (*domain.Action, error)
	LeaseDue(ctx context.Context, now time.Time, limit int) ([]domain.Action, error)
	LeaseByID(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Action, error)
	Update(ctx context.Context, action *domain.Action) error
}

// AuditLog — append-only журнал переходов.
type AuditLog interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
}

// ScopeChecker — проверка принадлежности scope-ссылок tenant'у.
type ScopeChecker interface {
	LocationBelongsTo(ctx context.Context, locationID, tenantID uuid.UUID) (bool, error)
	AccountBelongsTo(ctx context.Context, accountID, tenantID uuid.UUID) (bool, error)
}

// Scheduler управляет жизненным циклом actions.
type Scheduler struct {
	actions   ActionStore
	audit     AuditLog
	scopes    ScopeChecker
	publisher *mq.Publisher
	logger    *slog.Logger

	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration

	// now подменяется в тестах.
	now func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Actions ActionStore
	Audit   AuditLog
	Scopes  ScopeChecker

	// Publisher — опционально: nudge-события о due actions.
	Publisher *mq.Publisher

	Logger *slog.Logger

	// DefaultMaxAttempts — максимум попыток, если не задан в запросе (default: 5).
	DefaultMaxAttempts int

	// BackoffBase / BackoffCap — параметры backoff (default: 30s / 1h).
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Now — источник времени (default: time.Now). Для тестов.
	Now func() time.Time
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	maxAttempts := cfg.DefaultMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = defaultBackoffBase
	}

	backoffCap := cfg.BackoffCap
	if backoffCap <= 0 {
		backoffCap = defaultBackoffCap
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		actions:     cfg.Actions,
		audit:       cfg.Audit,
		scopes:      cfg.Scopes,
		publisher:   cfg.Publisher,
		logger:      logger,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		now:         now,
	}
}

// ScheduleRequest — запрос на создание action.
type ScheduleRequest struct {
	TenantID   uuid.UUID
	LocationID *uuid.UUID
	AccountID  *uuid.UUID
	Type       domain.ActionType
	RunAt      time.Time
	Payload    map[string]any

	// DedupeKey — опциональный ключ идемпотентности.
	DedupeKey *string

	// MaxAttempts — 0 означает default планировщика.
	MaxAttempts int

	Priority int
}

// Schedule создаёт новый action (идемпотентно по dedupe_key).
//
// Если по dedupe_key уже есть строка, возвращает её без изменений.
// Ошибки валидации (неизвестный тип, чужая локация/аккаунт) поднимаются
// сразу, ничего не сохраняется.
func (s *Scheduler) Schedule(ctx context.Context, req ScheduleRequest) (*domain.Action, error) {
	if err := s.validate(ctx, &req); err != nil {
		return nil, err
	}

	// 1. Проверяем идемпотентность
	if req.DedupeKey != nil && *req.DedupeKey != "" {
		existing, err := s.actions.GetByDedupeKey(ctx, *req.DedupeKey)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("check dedupe key: %w", err)
		}
		if existing != nil {
			s.logger.Debug("action already exists (idempotency)",
				"action_id", existing.ID,
				"dedupe_key", *req.DedupeKey,
			)
			return existing, nil
		}
	}

	// 2. Создаём новый action
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttempts
	}

	now := s.now()
	runAt := req.RunAt
	if runAt.IsZero() {
		runAt = now
	}

	action := &domain.Action{
		ID:          uuid.New(),
		TenantID:    req.TenantID,
		LocationID:  req.LocationID,
		AccountID:   req.AccountID,
		Type:        req.Type,
		Status:      domain.ActionStatusPending,
		Payload:     req.Payload,
		RunAt:       runAt,
		NextRunAt:   &runAt,
		MaxAttempts: maxAttempts,
		Priority:    req.Priority,
		DedupeKey:   req.DedupeKey,
		CreatedAt:   now,
	}

	if err := s.actions.Create(ctx, action); err != nil {
		// Гонка двух Schedule с одним ключом: проигравший возвращает
		// строку победителя.
		if errors.Is(err, repo.ErrAlreadyExists) && req.DedupeKey != nil {
			existing, getErr := s.actions.GetByDedupeKey(ctx, *req.DedupeKey)
			if getErr != nil {
				return nil, fmt.Errorf("get action after dedupe conflict: %w", getErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("create action: %w", err)
	}

	telemetry.ActionsScheduled.WithLabelValues(string(action.Type)).Inc()

	s.appendAudit(ctx, action, "action.scheduled", map[string]any{
		"action_type": action.Type,
		"run_at":      action.RunAt,
	})

	s.logger.Info("action scheduled",
		"action_id", action.ID,
		"tenant_id", action.TenantID,
		"action_type", action.Type,
		"run_at", action.RunAt,
	)

	// 3. Nudge воркерам, если action уже due
	if s.publisher != nil && !action.RunAt.After(now) {
		if err := s.publisher.PublishActionDue(ctx, action.ID, action.TenantID); err != nil {
			// Не фатально — воркеры подберут через polling
			s.logger.Warn("failed to publish action.due",
				"action_id", action.ID,
				"error", err,
			)
		}
	}

	return action, nil
}

// validate проверяет запрос до сохранения.
func (s *Scheduler) validate(ctx context.Context, req *ScheduleRequest) error {
	if req.TenantID == uuid.Nil {
		return domain.NewValidationError("tenant_id", "required")
	}
	if !req.Type.IsValid() {
		return domain.NewValidationError("action_type", fmt.Sprintf("unknown type %q", req.Type))
	}

	if req.LocationID != nil {
		ok, err := s.scopes.LocationBelongsTo(ctx, *req.LocationID, req.TenantID)
		if err != nil {
			return fmt.Errorf("check location ownership: %w", err)
		}
		if !ok {
			return domain.NewValidationError("location_id", "location does not belong to tenant")
		}
	}

	if req.AccountID != nil {
		ok, err := s.scopes.AccountBelongsTo(ctx, *req.AccountID, req.TenantID)
		if err != nil {
			return fmt.Errorf("check account ownership: %w", err)
		}
		if !ok {
			return domain.NewValidationError("account_id", "account does not belong to tenant")
		}
	}

	return nil
}

// LeaseDue захватывает до limit due-actions для эксклюзивной обработки.
//
// Все захваченные строки переводятся в QUEUED с locked_at в той же
// транзакции, что и выборка. Конкурирующие вызовы получают
// непересекающиеся наборы строк.
func (s *Scheduler) LeaseDue(ctx context.Context, limit int) ([]domain.Action, error) {
	actions, err := s.actions.LeaseDue(ctx, s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("lease due: %w", err)
	}

	telemetry.LeaseBatchSize.Observe(float64(len(actions)))

	if len(actions) > 0 {
		s.logger.Debug("leased due actions", "count", len(actions))
	}
	return actions, nil
}

// LeaseByID захватывает конкретный due action (event-driven путь).
func (s *Scheduler) LeaseByID(ctx context.Context, id uuid.UUID) (*domain.Action, error) {
	action, err := s.actions.LeaseByID(ctx, id, s.now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrActionNotFound
		}
		return nil, fmt.Errorf("lease action: %w", err)
	}
	return action, nil
}

// MarkRunning переводит QUEUED action в RUNNING и начинает попытку.
func (s *Scheduler) MarkRunning(ctx context.Context, action *domain.Action) error {
	if action.Status != domain.ActionStatusQueued {
		return fmt.Errorf("%w: expected QUEUED, got %s", repo.ErrInvalidState, action.Status)
	}

	action.MarkRunning(s.now())
	if err := s.actions.Update(ctx, action); err != nil {
		return fmt.Errorf("update action to running: %w", err)
	}
	return nil
}

// MarkSuccess переводит action в SUCCEEDED с результатом.
func (s *Scheduler) MarkSuccess(ctx context.Context, action *domain.Action, result map[string]any) error {
	action.MarkSucceeded(result)
	if err := s.actions.Update(ctx, action); err != nil {
		return fmt.Errorf("update action to succeeded: %w", err)
	}

	telemetry.ActionsCompleted.WithLabelValues(string(domain.ActionStatusSucceeded)).Inc()
	s.appendAudit(ctx, action, "action.succeeded", map[string]any{
		"attempts": action.Attempts,
	})
	s.publishCompleted(ctx, action)

	s.logger.Info("action succeeded",
		"action_id", action.ID,
		"action_type", action.Type,
		"attempts", action.Attempts,
	)
	return nil
}

// MarkFailure фиксирует неудачную попытку.
//
// Если попытки исчерпаны — DEAD_LETTERED (терминальный, next_run_at=NULL).
// Иначе action возвращается в PENDING с run_at = now + backoff(attempts).
func (s *Scheduler) MarkFailure(ctx context.Context, action *domain.Action, execErr error) error {
	errMsg := ""
	if execErr != nil {
		errMsg = execErr.Error()
	}

	if action.ExhaustedAttempts() {
		action.MarkDeadLettered(errMsg)
		if err := s.actions.Update(ctx, action); err != nil {
			return fmt.Errorf("update action to dead_lettered: %w", err)
		}

		telemetry.ActionsCompleted.WithLabelValues(string(domain.ActionStatusDeadLettered)).Inc()
		s.appendAudit(ctx, action, "action.dead_lettered", map[string]any{
			"attempts": action.Attempts,
			"error":    errMsg,
		})
		s.publishCompleted(ctx, action)

		s.logger.Error("action dead-lettered",
			"action_id", action.ID,
			"action_type", action.Type,
			"attempts", action.Attempts,
			"error", errMsg,
		)
		return nil
	}

	delay := Backoff(action.Attempts, s.backoffBase, s.backoffCap)
	runAt := s.now().Add(delay)

	action.MarkRetry(errMsg, runAt)
	if err := s.actions.Update(ctx, action); err != nil {
		return fmt.Errorf("update action for retry: %w", err)
	}

	telemetry.ActionRetries.Inc()
	s.appendAudit(ctx, action, "action.retry_scheduled", map[string]any{
		"attempts": action.Attempts,
		"delay":    delay.String(),
		"run_at":   runAt,
		"error":    errMsg,
	})

	s.logger.Warn("action retry scheduled",
		"action_id", action.ID,
		"action_type", action.Type,
		"attempts", action.Attempts,
		"delay", delay,
		"error", errMsg,
	)
	return nil
}

// Cancel переводит action в CANCELLED из любого нетерминального статуса.
// Повторный Cancel уже отменённого action — no-op.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Action, error) {
	action, err := s.actions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrActionNotFound
		}
		return nil, fmt.Errorf("get action: %w", err)
	}

	if action.Status == domain.ActionStatusCancelled {
		return action, nil
	}
	if action.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrActionTerminal, action.Status)
	}

	action.MarkCancelled()
	if err := s.actions.Update(ctx, action); err != nil {
		return nil, fmt.Errorf("update action to cancelled: %w", err)
	}

	telemetry.ActionsCompleted.WithLabelValues(string(domain.ActionStatusCancelled)).Inc()
	s.appendAudit(ctx, action, "action.cancelled", map[string]any{
		"reason": reason,
	})
	s.publishCompleted(ctx, action)

	s.logger.Info("action cancelled",
		"action_id", action.ID,
		"reason", reason,
	)
	return action, nil
}

// appendAudit добавляет запись аудита.
// Ошибка аудита не прерывает основную операцию: переход уже совершён.
func (s *Scheduler) appendAudit(ctx context.Context, action *domain.Action, tag string, meta map[string]any) {
	entry := &domain.AuditEntry{
		ID:        uuid.New(),
		TenantID:  action.TenantID,
		Tag:       tag,
		EntityID:  action.ID,
		Meta:      meta,
		CreatedAt: s.now(),
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append audit entry",
			"action_id", action.ID,
			"tag", tag,
			"error", err,
		)
	}
}

// publishCompleted публикует событие о терминальном переходе.
func (s *Scheduler) publishCompleted(ctx context.Context, action *domain.Action) {
	if s.publisher == nil {
		return
	}

	payload := mq.ActionCompletedPayload{
		ActionID: action.ID,
		TenantID: action.TenantID,
		Type:     string(action.Type),
		Status:   string(action.Status),
		Error:    action.Error,
		Attempts: action.Attempts,
	}
	if err := s.publisher.PublishActionCompleted(ctx, payload); err != nil {
		s.logger.Warn("failed to publish action.completed",
			"action_id", action.ID,
			"error", err,
		)
	}
}
