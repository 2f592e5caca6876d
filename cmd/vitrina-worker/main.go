// Vitrina Worker — выполняет due actions.
//
// Worker:
//   - захватывает due actions из БД (FOR UPDATE SKIP LOCKED)
//   - реагирует на nudge-сообщения из RabbitMQ
//   - диспатчит action к handler'у по типу
//   - реализует retry с exponential backoff и dead-letter
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitrina-io/vitrina/internal/config"
	"github.com/vitrina-io/vitrina/internal/content"
	"github.com/vitrina-io/vitrina/internal/dispatch"
	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/mq"
	"github.com/vitrina-io/vitrina/internal/pipeline"
	"github.com/vitrina-io/vitrina/internal/platform"
	"github.com/vitrina-io/vitrina/internal/policy"
	"github.com/vitrina-io/vitrina/internal/ratelimit"
	"github.com/vitrina-io/vitrina/internal/repo"
	"github.com/vitrina-io/vitrina/internal/rules"
	"github.com/vitrina-io/vitrina/internal/sched"
	"github.com/vitrina-io/vitrina/internal/telemetry"
	"github.com/vitrina-io/vitrina/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting vitrina-worker")

	cfg := config.Load()

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Репозитории
	actionRepo := repo.NewActionRepo(pool)
	jobRepo := repo.NewJobRepo(pool)
	postRepo := repo.NewPostRepo(pool)
	ruleRepo := repo.NewRuleRepo(pool)
	tenantRepo := repo.NewTenantRepo(pool)
	auditRepo := repo.NewAuditRepo(pool)
	rateLimitRepo := repo.NewRateLimitRepo(pool)

	// RabbitMQ (опционально: без него worker работает в polling-only)
	var publisher *mq.Publisher
	mqConn, err := mq.NewConnection(cfg.RabbitURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Ядро: scheduler, policy, rate limiter
	scheduler := sched.New(sched.Config{
		Actions:            actionRepo,
		Audit:              auditRepo,
		Scopes:             tenantRepo,
		Publisher:          publisher,
		Logger:             logger,
		DefaultMaxAttempts: cfg.DefaultMaxAttempts,
		BackoffBase:        cfg.BackoffBase,
		BackoffCap:         cfg.BackoffCap,
	})

	pol := policy.New(policy.Config{
		History:        postRepo,
		Pauses:         tenantRepo,
		Logger:         logger,
		WeeklyCap:      cfg.WeeklyPostCap,
		MinGap:         cfg.MinPostGap,
		BucketCooldown: cfg.BucketCooldown,
	})

	limiter := ratelimit.New(ratelimit.Config{
		Store:    rateLimitRepo,
		Logger:   logger,
		Window:   cfg.RateLimitWindow,
		Limit:    cfg.RateLimitDefault,
		Cooldown: cfg.RateLimitCooldown,
	})

	// Внешние сервисы и прикладные компоненты
	gateway := platform.NewClient(cfg.GatewayURL, cfg.GatewayAPIKey)

	planner := content.New(content.Config{
		Store:          postRepo,
		Logger:         logger,
		PostsPerWeek:   cfg.WeeklyPostCap,
		BucketCooldown: cfg.BucketCooldown,
	})

	pipe := pipeline.New(pipeline.Config{
		Jobs:        jobRepo,
		Posts:       postRepo,
		Limiter:     limiter,
		Policy:      pol,
		Publisher:   gateway,
		Scheduler:   scheduler,
		Logger:      logger,
		MaxAttempts: cfg.DefaultMaxAttempts,
	})

	evaluator := rules.New(rules.Config{
		Rules:     ruleRepo,
		Scheduler: scheduler,
		Pauses:    pol,
		Logger:    logger,
	})

	// Реестр handler'ов
	registry := dispatch.NewRegistry()
	registry.Register(domain.ActionTypePublishPost, &dispatch.PublishPostHandler{Posts: postRepo, Client: gateway})
	registry.Register(domain.ActionTypePublishQnA, &dispatch.PublishQnAHandler{Client: gateway})
	registry.Register(domain.ActionTypeRefreshToken, &dispatch.RefreshTokenHandler{Accounts: gateway})
	registry.Register(domain.ActionTypeRequestMediaUpload, &dispatch.RequestMediaUploadHandler{Notifier: gateway})
	registry.Register(domain.ActionTypeSyncLocations, &dispatch.SyncHandler{Client: gateway})
	registry.Register(domain.ActionTypeSyncReviews, &dispatch.SyncHandler{Client: gateway})
	registry.Register(domain.ActionTypeSyncPosts, &dispatch.SyncHandler{Client: gateway})
	registry.Register(domain.ActionTypeCheckRankings, &dispatch.CheckRankingsHandler{Client: gateway})
	registry.Register(domain.ActionTypeMonitorCompetitors, &dispatch.MonitorCompetitorsHandler{Client: gateway})
	registry.Register(domain.ActionTypeComputeDailySignals, &dispatch.ComputeDailySignalsHandler{Signals: gateway})
	registry.Register(domain.ActionTypeRunAutomationRules, &dispatch.RunAutomationRulesHandler{Evaluator: evaluator})
	registry.Register(domain.ActionTypeExecutePostJob, &dispatch.ExecutePostJobHandler{Pipeline: pipe})
	registry.Register(domain.ActionTypeSchedulePost, &dispatch.SchedulePostHandler{Jobs: pipe})
	registry.Register(domain.ActionTypePlanContent, &dispatch.PlanContentHandler{Planner: planner})
	registry.Register(domain.ActionTypeGeneratePostCandidates, &dispatch.GeneratePostCandidatesHandler{Planner: planner})
	registry.Register(domain.ActionTypeComposePostCandidate, &dispatch.ComposePostCandidateHandler{Planner: planner})

	dispatcher := dispatch.NewDispatcher(registry, logger)

	w := worker.New(worker.Config{
		Scheduler:    scheduler,
		Dispatcher:   dispatcher,
		Conn:         mqConn,
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.LeaseBatchSize,
		Logger:       logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	w.Stop()
	logger.Info("vitrina-worker stopped")
}
