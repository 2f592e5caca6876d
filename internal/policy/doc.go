// Package policy реализует guardrails публикаций (posting safety policy).
//
// Четыре независимые проверки:
//   - weekly_cap       — не больше N постов за скользящие 7 дней
//   - min_gap          — минимальный интервал между постами локации
//   - bucket_cooldown  — тематическая категория не повторяется в окне
//   - paused           — глобальный kill-switch / пауза tenant'а / локации
//
// Любое нарушение — *Violation с именем правила. Проверки выполняются
// при создании job'а (fail fast) и частично при выполнении (paused).
package policy
