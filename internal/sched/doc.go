// Package sched реализует планирование и жизненный цикл actions.
//
// Scheduler — единственный владелец таблицы actions: все переходы
// статусов проходят через его методы, каждый переход попадает
// в append-only журнал аудита.
//
// Структура:
//   - scheduler.go — Schedule, LeaseDue, MarkRunning/Success/Failure, Cancel
//   - backoff.go   — экспоненциальный backoff с потолком
//
// Использование:
//
//	s := sched.New(sched.Config{
//	    Actions: actionRepo,
//	    Audit:   auditRepo,
//	    Scopes:  tenantRepo,
//	    Logger:  logger,
//	})
//
//	action, err := s.Schedule(ctx, sched.ScheduleRequest{
//	    TenantID: tenantID,
//	    Type:     domain.ActionTypeSyncReviews,
//	    RunAt:    time.Now(),
//	})
//
// Конкурентность:
//
// Несколько воркеров могут одновременно вызывать LeaseDue — выборка
// идёт с FOR UPDATE SKIP LOCKED, поэтому due-строки делятся между
// вызовами без блокировок и без двойной обработки. Лидер-элекшн
// не нужен.
package sched
