package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/repo"
	"github.com/vitrina-io/vitrina/internal/sched"
)

// ActionService — операции планировщика, доступные через API.
type ActionService interface {
	Schedule(ctx context.Context, req sched.ScheduleRequest) (*domain.Action, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Action, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	scheduler  ActionService
	actionRepo *repo.ActionRepo
	jobRepo    *repo.JobRepo
	ruleRepo   *repo.RuleRepo
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Scheduler  ActionService
	ActionRepo *repo.ActionRepo
	JobRepo    *repo.JobRepo
	RuleRepo   *repo.RuleRepo
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		scheduler:  cfg.Scheduler,
		actionRepo: cfg.ActionRepo,
		jobRepo:    cfg.JobRepo,
		ruleRepo:   cfg.RuleRepo,
		logger:     logger,
	}
}
