package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
)

// Syncer подтягивает данные с внешней площадки в локальную базу.
type Syncer interface {
	SyncLocations(ctx context.Context, tenantID uuid.UUID) (int, error)
	SyncReviews(ctx context.Context, tenantID uuid.UUID, locationID *uuid.UUID) (int, error)
	SyncPosts(ctx context.Context, tenantID uuid.UUID, locationID *uuid.UUID) (int, error)
}

// SyncHandler обрабатывает все sync_*-типы одним исполнителем:
// какие сущности синхронизировать, определяется типом action.
type SyncHandler struct {
	Client Syncer
}

// Execute выполняет синхронизацию.
func (h *SyncHandler) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	var (
		synced int
		err    error
	)
	switch action.Type {
	case domain.ActionTypeSyncLocations:
		synced, err = h.Client.SyncLocations(ctx, action.TenantID)
	case domain.ActionTypeSyncReviews:
		synced, err = h.Client.SyncReviews(ctx, action.TenantID, action.LocationID)
	case domain.ActionTypeSyncPosts:
		synced, err = h.Client.SyncPosts(ctx, action.TenantID, action.LocationID)
	default:
		return SoftFailure(map[string]any{
			"status": "unsupported_sync",
			"type":   string(action.Type),
		}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("sync %s: %w", action.Type, err)
	}
	return Success(map[string]any{
		"status": "synced",
		"count":  synced,
	}), nil
}

// RankingsFetcher снимает позиции локации в поисковой выдаче.
type RankingsFetcher interface {
	FetchRankings(ctx context.Context, tenantID, locationID uuid.UUID) (map[string]any, error)
}

// CheckRankingsHandler снимает срез позиций для локации.
type CheckRankingsHandler struct {
	Client RankingsFetcher
}

// Execute выполняет проверку позиций.
func (h *CheckRankingsHandler) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	if action.LocationID == nil {
		return SoftFailure(map[string]any{"status": "missing_location"}), nil
	}
	rankings, err := h.Client.FetchRankings(ctx, action.TenantID, *action.LocationID)
	if err != nil {
		return nil, fmt.Errorf("fetch rankings: %w", err)
	}
	return Success(map[string]any{
		"status":   "checked",
		"rankings": rankings,
	}), nil
}

// CompetitorsFetcher снимает данные конкурентов локации.
type CompetitorsFetcher interface {
	FetchCompetitors(ctx context.Context, tenantID, locationID uuid.UUID) (map[string]any, error)
}

// MonitorCompetitorsHandler снимает срез по конкурентам локации.
type MonitorCompetitorsHandler struct {
	Client CompetitorsFetcher
}

// Execute выполняет мониторинг конкурентов.
func (h *MonitorCompetitorsHandler) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	if action.LocationID == nil {
		return SoftFailure(map[string]any{"status": "missing_location"}), nil
	}
	competitors, err := h.Client.FetchCompetitors(ctx, action.TenantID, *action.LocationID)
	if err != nil {
		return nil, fmt.Errorf("fetch competitors: %w", err)
	}
	return Success(map[string]any{
		"status":      "monitored",
		"competitors": competitors,
	}), nil
}

// SignalComputer агрегирует дневные метрики tenant'а.
type SignalComputer interface {
	ComputeDaily(ctx context.Context, tenantID uuid.UUID, day time.Time) (int, error)
}

// ComputeDailySignalsHandler считает дневные сигналы tenant'а.
// День берётся из payload.day (RFC3339) либо текущий.
type ComputeDailySignalsHandler struct {
	Signals SignalComputer
	Now     func() time.Time
}

// Execute выполняет расчёт сигналов.
func (h *ComputeDailySignalsHandler) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	day, ok := payloadTime(action.Payload, "day")
	if !ok {
		now := h.Now
		if now == nil {
			now = time.Now
		}
		day = now()
	}
	computed, err := h.Signals.ComputeDaily(ctx, action.TenantID, day)
	if err != nil {
		return nil, fmt.Errorf("compute daily signals: %w", err)
	}
	return Success(map[string]any{
		"status":  "computed",
		"day":     day.UTC().Format("2006-01-02"),
		"signals": computed,
	}), nil
}
