// Package pipeline — выполнение publishing jobs.
//
// Job — единица публикации контента: из контент-плана через
// QueueFromPlan создаётся job и триггер-action execute_post_job,
// а Execute проводит job по конвейеру:
//
//	rate limit → пауза автоматизации → резолв поста →
//	материалы клиента → публикация на площадке
//
// Исходы конвейера различаются принципиально:
//   - rate limit переносит job (RATE_LIMITED) без траты попытки
//     и создаёт новый триггер на момент освобождения лимита;
//   - пауза автоматизации — жёсткая остановка: ошибка поднимается
//     наружу, попытка job'а не тратится;
//   - уже опубликованный контент закрывает job как SKIPPED;
//   - отсутствие материалов клиента — NEEDS_CLIENT_INPUT плюс
//     запрос материалов (request_media_upload);
//   - инфраструктурные сбои возвращают job в QUEUED (retry через
//     триггер-action) и после max_attempts уводят в FAILED.
//
// Каждая попытка оставляет запись в append-only истории job_attempts.
package pipeline
