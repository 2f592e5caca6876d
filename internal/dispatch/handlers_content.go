package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/policy"
)

// RuleEvaluator прогоняет правила автоматизации tenant'а.
type RuleEvaluator interface {
	EvaluateTenant(ctx context.Context, tenantID uuid.UUID) (created int, err error)
}

// RunAutomationRulesHandler запускает оценку правил tenant'а.
type RunAutomationRulesHandler struct {
	Evaluator RuleEvaluator
}

// Execute выполняет оценку правил.
func (h *RunAutomationRulesHandler) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	created, err := h.Evaluator.EvaluateTenant(ctx, action.TenantID)
	if err != nil {
		return nil, fmt.Errorf("evaluate rules: %w", err)
	}
	return Success(map[string]any{
		"status":          "evaluated",
		"actions_created": created,
	}), nil
}

// JobExecutor выполняет один publishing job.
type JobExecutor interface {
	Execute(ctx context.Context, jobID uuid.UUID) (*domain.Job, error)
}

// ExecutePostJobHandler запускает pipeline для job из payload.job_id.
//
// Rate limit и "нечего публиковать" для самого action — успех:
// job переставлен или закрыт, retry action'а не нужен. Ошибкой
// (и поводом для retry) остаются только сбои pipeline и глобальная
// пауза автоматизации.
type ExecutePostJobHandler struct {
	Pipeline JobExecutor
}

// Execute выполняет job.
func (h *ExecutePostJobHandler) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	jobID, ok := payloadUUID(action.Payload, "job_id")
	if !ok {
		return SoftFailure(map[string]any{"status": "missing_job_id"}), nil
	}

	job, err := h.Pipeline.Execute(ctx, jobID)
	if err != nil {
		if isNotFound(err) {
			return SoftFailure(map[string]any{
				"status": "missing_job",
				"job_id": jobID.String(),
			}), nil
		}
		return nil, fmt.Errorf("execute job: %w", err)
	}

	doc := map[string]any{
		"job_id":     job.ID.String(),
		"job_status": string(job.Status),
	}
	switch job.Status {
	case domain.JobStatusRateLimited:
		doc["status"] = "rate_limited"
		doc["next_run_at"] = job.RunAt.UTC().Format(time.RFC3339)
	case domain.JobStatusSkipped:
		doc["status"] = "skipped"
	case domain.JobStatusNeedsClientInput:
		doc["status"] = "needs_client_input"
	default:
		doc["status"] = "executed"
		if job.Result != nil {
			doc["result"] = job.Result
		}
	}
	return Success(doc), nil
}

// JobQueuer создаёт job из контент-плана.
type JobQueuer interface {
	QueueFromPlan(ctx context.Context, planID uuid.UUID, runAt time.Time, dedupeKey string) (*domain.Job, error)
}

// SchedulePostHandler ставит публикацию из плана в очередь jobs.
// Время берётся из payload.run_at (RFC3339) либо текущее.
type SchedulePostHandler struct {
	Jobs JobQueuer
	Now  func() time.Time
}

// Execute ставит job в очередь.
func (h *SchedulePostHandler) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	planID, ok := payloadUUID(action.Payload, "plan_id")
	if !ok {
		return SoftFailure(map[string]any{"status": "missing_plan_id"}), nil
	}
	runAt, ok := payloadTime(action.Payload, "run_at")
	if !ok {
		now := h.Now
		if now == nil {
			now = time.Now
		}
		runAt = now()
	}

	dedupeKey, _ := payloadString(action.Payload, "dedupe_key")

	job, err := h.Jobs.QueueFromPlan(ctx, planID, runAt, dedupeKey)
	if err != nil {
		if isNotFound(err) {
			return SoftFailure(map[string]any{
				"status":  "missing_plan",
				"plan_id": planID.String(),
			}), nil
		}
		// Отклонение policy — не сбой: ретраить бессмысленно,
		// фиксируем причину в результате.
		var violation *policy.Violation
		if errors.As(err, &violation) {
			return SoftFailure(map[string]any{
				"status": "policy_violation",
				"rule":   string(violation.Rule),
				"reason": violation.Reason,
			}), nil
		}
		return nil, fmt.Errorf("queue job: %w", err)
	}
	return Success(map[string]any{
		"status": "queued",
		"job_id": job.ID.String(),
	}), nil
}

// Planner готовит контент-планы и их содержимое.
type Planner interface {
	// PlanWeek строит планы на неделю вперёд для локации.
	PlanWeek(ctx context.Context, tenantID, locationID uuid.UUID, from time.Time) (int, error)

	// GenerateCandidates готовит черновики постов для локации.
	GenerateCandidates(ctx context.Context, tenantID, locationID uuid.UUID) (int, error)

	// Compose дописывает текст конкретного плана.
	Compose(ctx context.Context, planID uuid.UUID) (*domain.ContentPlan, error)
}

// PlanContentHandler строит контент-планы локации на неделю.
type PlanContentHandler struct {
	Planner Planner
	Now     func() time.Time
}

// Execute строит планы.
func (h *PlanContentHandler) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	if action.LocationID == nil {
		return SoftFailure(map[string]any{"status": "missing_location"}), nil
	}
	now := h.Now
	if now == nil {
		now = time.Now
	}
	planned, err := h.Planner.PlanWeek(ctx, action.TenantID, *action.LocationID, now())
	if err != nil {
		return nil, fmt.Errorf("plan content: %w", err)
	}
	return Success(map[string]any{
		"status":  "planned",
		"planned": planned,
	}), nil
}

// GeneratePostCandidatesHandler готовит черновики постов локации.
type GeneratePostCandidatesHandler struct {
	Planner Planner
}

// Execute готовит черновики.
func (h *GeneratePostCandidatesHandler) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	if action.LocationID == nil {
		return SoftFailure(map[string]any{"status": "missing_location"}), nil
	}
	generated, err := h.Planner.GenerateCandidates(ctx, action.TenantID, *action.LocationID)
	if err != nil {
		return nil, fmt.Errorf("generate candidates: %w", err)
	}
	return Success(map[string]any{
		"status":     "generated",
		"candidates": generated,
	}), nil
}

// ComposePostCandidateHandler дописывает текст плана из payload.plan_id.
type ComposePostCandidateHandler struct {
	Planner Planner
}

// Execute дописывает текст плана.
func (h *ComposePostCandidateHandler) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	planID, ok := payloadUUID(action.Payload, "plan_id")
	if !ok {
		return SoftFailure(map[string]any{"status": "missing_plan_id"}), nil
	}
	plan, err := h.Planner.Compose(ctx, planID)
	if err != nil {
		if isNotFound(err) {
			return SoftFailure(map[string]any{
				"status":  "missing_plan",
				"plan_id": planID.String(),
			}), nil
		}
		return nil, fmt.Errorf("compose candidate: %w", err)
	}
	return Success(map[string]any{
		"status":  "composed",
		"plan_id": plan.ID.String(),
		"bucket":  plan.Bucket,
	}), nil
}
