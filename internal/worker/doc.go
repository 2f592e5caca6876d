// Package worker — выполнение захваченных actions.
//
// Worker объединяет два пути получения работы:
//   - polling: каждые poll_interval секунд захватывает пачку due
//     actions через планировщик (FOR UPDATE SKIP LOCKED);
//   - event-driven: nudge-сообщения из очереди actions.due позволяют
//     отреагировать на новый action раньше очередного poll'а.
//
// Polling — источник истины, очередь лишь оптимизация задержки:
// при недоступном RabbitMQ воркер деградирует до чистого polling'а
// без потери корректности.
//
// Выполнение одного action: MarkRunning → dispatch → MarkSuccess
// или MarkFailure (retry с backoff, после max_attempts —
// DEAD_LETTERED).
package worker
