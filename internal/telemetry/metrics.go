package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики pipeline'а. Регистрируются в default registry,
// отдаются через promhttp в каждом сервисе.
var (
	// ActionsScheduled — созданные actions по типу.
	ActionsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitrina_actions_scheduled_total",
		Help: "Actions inserted into the ledger",
	}, []string{"type"})

	// ActionsCompleted — завершённые actions по терминальному статусу.
	ActionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitrina_actions_completed_total",
		Help: "Actions reaching a terminal status",
	}, []string{"status"})

	// ActionRetries — перепланированные после ошибки actions.
	ActionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitrina_action_retries_total",
		Help: "Actions rescheduled with backoff after a failed attempt",
	})

	// LeaseBatchSize — размер захваченной пачки за один lease.
	LeaseBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vitrina_lease_batch_size",
		Help:    "Actions claimed per lease call",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
	})

	// RateLimitRejects — отклонённые rate limiter'ом операции.
	RateLimitRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitrina_rate_limit_rejects_total",
		Help: "Operations rejected by the per-scope rate limiter",
	})

	// PolicyViolations — срабатывания posting safety policy по правилу.
	PolicyViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitrina_policy_violations_total",
		Help: "Posting safety policy rejections",
	}, []string{"rule"})

	// JobsCompleted — завершённые jobs по статусу.
	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitrina_jobs_completed_total",
		Help: "Publishing jobs by resulting status",
	}, []string{"status"})

	// DueBacklog — количество due actions, ещё не захваченных воркерами.
	DueBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vitrina_due_backlog",
		Help: "PENDING actions past their run_at, awaiting lease",
	})
)
