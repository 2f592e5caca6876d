package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/dispatch"
	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/mq"
	"github.com/vitrina-io/vitrina/internal/sched"
	"github.com/vitrina-io/vitrina/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 50
	defaultPrefetch     = 5
)

// Scheduler — операции планировщика, нужные воркеру.
type Scheduler interface {
	LeaseDue(ctx context.Context, limit int) ([]domain.Action, error)
	LeaseByID(ctx context.Context, id uuid.UUID) (*domain.Action, error)
	MarkRunning(ctx context.Context, action *domain.Action) error
	MarkSuccess(ctx context.Context, action *domain.Action, result map[string]any) error
	MarkFailure(ctx context.Context, action *domain.Action, execErr error) error
}

// Executor выполняет один action и возвращает Outcome.
type Executor interface {
	Execute(ctx context.Context, action *domain.Action) (*dispatch.Outcome, error)
}

// Worker захватывает due actions и выполняет их.
//
// Источник истины — таблица actions: polling с FOR UPDATE SKIP LOCKED
// работает всегда, consumer очереди actions.due лишь ускоряет реакцию
// на только что созданные actions. Потеря nudge-сообщения ничего не
// ломает — очередной poll подхватит action.
//
// Workers stateless и масштабируются горизонтально: SKIP LOCKED
// гарантирует, что один action достанется ровно одному экземпляру.
type Worker struct {
	scheduler  Scheduler
	dispatcher Executor

	// MQ (опционально: без соединения остаётся только polling).
	conn     *mq.Connection
	consumer *mq.NudgeConsumer

	pollInterval time.Duration
	batchSize    int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Scheduler  Scheduler
	Dispatcher Executor

	// Conn — соединение с RabbitMQ (nil отключает event-driven путь).
	Conn *mq.Connection

	// PollInterval — интервал polling (default: 10s).
	PollInterval time.Duration

	// BatchSize — количество actions за один poll (default: 50).
	BatchSize int

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		scheduler:    cfg.Scheduler,
		dispatcher:   cfg.Dispatcher,
		conn:         cfg.Conn,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Start запускает Worker: consumer очереди actions.due (если есть
// соединение) и polling-горутину.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"event_driven", w.conn != nil,
	)

	if w.conn != nil {
		w.consumer = mq.NewNudgeConsumer(w.conn, w.logger, w.handleNudge, defaultPrefetch)

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("action consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения текущих actions.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	if w.consumer != nil {
		w.consumer.Stop()
	}
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// pollLoop — цикл polling.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте: подхватываем actions, ставшие
	// due пока воркер был выключен.
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll захватывает пачку due actions и выполняет их по одному.
func (w *Worker) poll(ctx context.Context) {
	actions, err := w.scheduler.LeaseDue(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to lease due actions", "error", err)
		return
	}
	if len(actions) == 0 {
		return
	}

	w.logger.Debug("poll leased actions", "count", len(actions))

	for i := range actions {
		if ctx.Err() != nil {
			return
		}
		w.processAction(ctx, &actions[i])
	}
}

// handleNudge — обработчик nudge-сообщения из очереди.
//
// Если action уже захвачен другим воркером или отменён, lease вернёт
// ErrActionNotFound — это штатная ситуация, nudge подтверждается.
func (w *Worker) handleNudge(ctx context.Context, nudge *mq.Nudge) error {
	action, err := w.scheduler.LeaseByID(ctx, nudge.ActionID)
	if err != nil {
		if errors.Is(err, sched.ErrActionNotFound) {
			return nudge.Ack()
		}
		w.logger.Error("lease action from nudge", "action_id", nudge.ActionID, "error", err)
		return nudge.Requeue()
	}

	w.processAction(ctx, action)
	return nudge.Ack()
}

// processAction проводит один захваченный action через выполнение.
//
// SoftFailure от handler'а — не повод для retry: action закрывается
// как SUCCEEDED с описательным результатом. Ошибка handler'а уводит
// action в retry с backoff либо в DEAD_LETTERED.
func (w *Worker) processAction(ctx context.Context, action *domain.Action) {
	logger := telemetry.WithAction(w.logger, action)
	// Handler'ы и pipeline пишут в scope текущего action'а.
	ctx = telemetry.WithLogger(ctx, logger)

	if err := w.scheduler.MarkRunning(ctx, action); err != nil {
		logger.Error("mark action running", "error", err)
		return
	}

	logger.Info("executing action", "attempt", action.Attempts)

	outcome, err := w.dispatcher.Execute(ctx, action)
	if err != nil {
		if ferr := w.scheduler.MarkFailure(ctx, action, err); ferr != nil {
			logger.Error("mark action failure", "error", ferr)
		}
		return
	}

	doc := outcome.Doc
	if outcome.IsSoftFailure() {
		if doc == nil {
			doc = map[string]any{}
		}
		doc["soft_failure"] = true
	}
	if err := w.scheduler.MarkSuccess(ctx, action, doc); err != nil {
		logger.Error("mark action success", "error", err)
	}
}
