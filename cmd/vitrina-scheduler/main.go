// Vitrina Scheduler — периодический процесс-планировщик.
//
// Единственный лидер (advisory lock в Postgres) раз в тик:
//   - создаёт actions run_automation_rules для tenant'ов с включёнными
//     правилами (идемпотентно, один на tenant в час);
//   - публикует nudge-сообщения о due actions в RabbitMQ, чтобы
//     воркеры отреагировали раньше очередного poll'а.
//
// Экземпляров может быть несколько: не-лидеры простаивают и
// перехватывают лидерство при падении лидера.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitrina-io/vitrina/internal/config"
	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/mq"
	"github.com/vitrina-io/vitrina/internal/repo"
	"github.com/vitrina-io/vitrina/internal/sched"
	"github.com/vitrina-io/vitrina/internal/telemetry"
)

const schedLockKey int64 = 87101532

const defaultTick = 30 * time.Second

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting vitrina-scheduler")

	cfg := config.Load()

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	actionRepo := repo.NewActionRepo(pool)
	ruleRepo := repo.NewRuleRepo(pool)
	tenantRepo := repo.NewTenantRepo(pool)
	auditRepo := repo.NewAuditRepo(pool)

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

	tick := defaultTick
	if v := os.Getenv("SCHED_TICK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			tick = d
		}
	}

	// scheduler loop
	go func() {
		tk := time.NewTicker(tick)
		defer tk.Stop()

		var hasLock bool
		defer func() {
			if hasLock {
				_, _ = pool.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
			}
		}()

		for {
			select {
			case <-tk.C:
				// пытаемся стать лидером (или подтвердить лидерство)
				if !hasLock {
					var ok bool
					if err := pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&ok); err != nil {
						logger.Error("advisory lock", "error", err)
						continue
					}
					hasLock = ok
				}
				if !hasLock {
					// не лидер — пропускаем тик
					continue
				}

				scheduleRuleEvaluations(ctx, logger, ruleRepo, scheduler)
				publishDueNudges(ctx, logger, actionRepo, publisher, cfg.LeaseBatchSize)

			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
		port = ":" + v
	}

	server := &http.Server{Addr: port, Handler: mux}
	go func() {
		logger.Info("listening", "addr", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	logger.Info("vitrina-scheduler stopped")
}

// scheduleRuleEvaluations создаёт по action'у run_automation_rules на
// tenant. Dedupe-ключ включает час, поэтому оценка правил запускается
// не чаще раза в час, сколько бы тиков ни прошло.
func scheduleRuleEvaluations(ctx context.Context, logger *slog.Logger, ruleRepo *repo.RuleRepo, scheduler *sched.Scheduler) {
	tenants, err := ruleRepo.ListTenantsWithEnabledRules(ctx)
	if err != nil {
		logger.Error("list tenants with rules", "error", err)
		return
	}

	now := time.Now()
	for _, tenantID := range tenants {
		dedupe := fmt.Sprintf("rules:%s:%s", tenantID, now.UTC().Format("2006-01-02T15"))
		_, err := scheduler.Schedule(ctx, sched.ScheduleRequest{
			TenantID:  tenantID,
			Type:      domain.ActionTypeRunAutomationRules,
			RunAt:     now,
			DedupeKey: &dedupe,
		})
		if err != nil {
			logger.Error("schedule rule evaluation", "tenant_id", tenantID, "error", err)
		}
	}
}

// publishDueNudges рассылает nudge-сообщения о due actions.
// Сообщения — только подсказка воркерам; повторная публикация того же
// action'а до захвата безвредна.
func publishDueNudges(ctx context.Context, logger *slog.Logger, actionRepo *repo.ActionRepo, publisher *mq.Publisher, limit int) {
	if publisher == nil {
		return
	}

	due, err := actionRepo.ListDue(ctx, time.Now(), limit)
	if err != nil {
		logger.Error("list due actions", "error", err)
		return
	}

	for i := range due {
		if err := publisher.PublishActionDue(ctx, due[i].ID, due[i].TenantID); err != nil {
			logger.Error("publish due nudge", "action_id", due[i].ID, "error", err)
			return
		}
	}

	telemetry.DueBacklog.Set(float64(len(due)))
}
