package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vitrina-io/vitrina/internal/domain"
)

// Handler — исполнитель одного типа действия.
//
// Контракт возврата описан в Outcome: error означает
// инфраструктурный сбой и ведёт к retry, SoftFailure — доменный
// отказ, записываемый как успех.
type Handler interface {
	Execute(ctx context.Context, action *domain.Action) (*Outcome, error)
}

// HandlerFunc адаптирует функцию под интерфейс Handler.
type HandlerFunc func(ctx context.Context, action *domain.Action) (*Outcome, error)

// Execute вызывает f.
func (f HandlerFunc) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	return f(ctx, action)
}

// Registry — реестр handler'ов по типу действия.
//
// Заполняется один раз при старте процесса; конкурентная
// модификация после старта не поддерживается.
type Registry struct {
	handlers map[domain.ActionType]Handler
	fallback Handler
}

// NewRegistry создаёт реестр с no-op handler'ом по умолчанию
// для типов без зарегистрированного исполнителя.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[domain.ActionType]Handler),
		fallback: HandlerFunc(noop),
	}
}

// Register привязывает handler к типу действия.
func (r *Registry) Register(t domain.ActionType, h Handler) {
	r.handlers[t] = h
}

// Resolve возвращает handler для типа действия. Для неизвестного
// типа возвращается no-op handler: действие завершается успешно
// с пометкой, что исполнитель не зарегистрирован.
func (r *Registry) Resolve(t domain.ActionType) Handler {
	if h, ok := r.handlers[t]; ok {
		return h
	}
	return r.fallback
}

func noop(_ context.Context, action *domain.Action) (*Outcome, error) {
	return Success(map[string]any{
		"status": "noop",
		"type":   string(action.Type),
	}), nil
}

// Dispatcher выбирает handler по типу действия и выполняет его.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher создаёт диспетчер.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Execute выполняет действие подходящим handler'ом.
func (d *Dispatcher) Execute(ctx context.Context, action *domain.Action) (*Outcome, error) {
	h := d.registry.Resolve(action.Type)

	outcome, err := h.Execute(ctx, action)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", action.Type, err)
	}
	if outcome == nil {
		outcome = Success(nil)
	}
	if outcome.IsSoftFailure() {
		d.logger.Warn("action soft failure",
			"action_id", action.ID,
			"type", action.Type,
			"result", outcome.Doc)
	}
	return outcome, nil
}
