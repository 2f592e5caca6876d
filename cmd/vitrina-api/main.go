// Vitrina API — HTTP-сервер для управления actions, jobs и правилами.
//
// Мутации actions идут через Scheduler (идемпотентность, аудит,
// nudge-события); чтение — напрямую из репозиториев.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitrina-io/vitrina/internal/api"
	"github.com/vitrina-io/vitrina/internal/config"
	"github.com/vitrina-io/vitrina/internal/mq"
	"github.com/vitrina-io/vitrina/internal/repo"
	"github.com/vitrina-io/vitrina/internal/sched"
	"github.com/vitrina-io/vitrina/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitrina_api_http_requests_total",
		Help: "Total HTTP requests handled by vitrina-api",
	})
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting vitrina-api")

	cfg := config.Load()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	if err := repo.RunMigrations(context.Background(), pool); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Создаём репозитории
	actionRepo := repo.NewActionRepo(pool)
	jobRepo := repo.NewJobRepo(pool)
	ruleRepo := repo.NewRuleRepo(pool)
	tenantRepo := repo.NewTenantRepo(pool)
	auditRepo := repo.NewAuditRepo(pool)

	// RabbitMQ (опционально: без него API работает, worker подхватит
	// actions очередным poll'ом)
	var publisher *mq.Publisher
	mqConn, err := mq.NewConnection(cfg.RabbitURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, due nudges disabled", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		publisher = mq.NewPublisher(mqConn, logger)
		logger.Info("RabbitMQ connected")
	}

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

	handler := api.NewHandler(api.Config{
		Scheduler:  scheduler,
		ActionRepo: actionRepo,
		JobRepo:    jobRepo,
		RuleRepo:   ruleRepo,
		Logger:     logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Ожидаем сигнал завершения
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
