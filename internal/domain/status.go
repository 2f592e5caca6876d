package domain

// ActionStatus — статус выполнения action.
//
// Жизненный цикл:
//
//	PENDING → QUEUED → RUNNING → SUCCEEDED
//	                           ↘ PENDING (retry с backoff)
//	                           ↘ DEAD_LETTERED (попытки исчерпаны)
//	(или) → CANCELLED (из любого нетерминального статуса)
type ActionStatus string

const (
	// ActionStatusPending — action создан и ожидает наступления run_at.
	ActionStatusPending ActionStatus = "PENDING"

	// ActionStatusQueued — action захвачен воркером (lease), ожидает выполнения.
	ActionStatusQueued ActionStatus = "QUEUED"

	// ActionStatusRunning — action выполняется handler'ом.
	ActionStatusRunning ActionStatus = "RUNNING"

	// ActionStatusSucceeded — action успешно завершён.
	ActionStatusSucceeded ActionStatus = "SUCCEEDED"

	// ActionStatusFailed — попытка завершилась ошибкой.
	// Переходный статус: MarkFailure сразу переводит action обратно
	// в PENDING (retry) или в DEAD_LETTERED.
	ActionStatusFailed ActionStatus = "FAILED"

	// ActionStatusDeadLettered — попытки исчерпаны, требуется ручное вмешательство.
	ActionStatusDeadLettered ActionStatus = "DEAD_LETTERED"

	// ActionStatusCancelled — action отменён до выполнения.
	ActionStatusCancelled ActionStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (action завершён).
func (s ActionStatus) IsTerminal() bool {
	switch s {
	case ActionStatusSucceeded, ActionStatusDeadLettered, ActionStatusCancelled:
		return true
	default:
		return false
	}
}

// JobStatus — статус выполнения job (публикация контента).
//
// Жизненный цикл:
//
//	QUEUED → RUNNING → SUCCEEDED
//	                 ↘ FAILED
//	                 ↘ RATE_LIMITED (перепланирован, не считается попыткой)
//	                 ↘ NEEDS_CLIENT_INPUT (ждёт материалов клиента, алертится)
//	                 ↘ SKIPPED (контент уже опубликован)
type JobStatus string

const (
	// JobStatusQueued — job в очереди, ожидает выполнения.
	JobStatusQueued JobStatus = "QUEUED"

	// JobStatusRunning — job выполняется.
	JobStatusRunning JobStatus = "RUNNING"

	// JobStatusSucceeded — контент успешно опубликован.
	JobStatusSucceeded JobStatus = "SUCCEEDED"

	// JobStatusFailed — попытки исчерпаны. Неудачная промежуточная
	// попытка возвращает job в QUEUED с текстом ошибки: FAILED —
	// терминальный статус, ретраи идут через триггер-action.
	JobStatusFailed JobStatus = "FAILED"

	// JobStatusRateLimited — лимит публикаций исчерпан, job перепланирован.
	JobStatusRateLimited JobStatus = "RATE_LIMITED"

	// JobStatusNeedsClientInput — для публикации нужны материалы клиента
	// (например, фото). Job не ретраится, пока клиент не загрузит данные.
	JobStatusNeedsClientInput JobStatus = "NEEDS_CLIENT_INPUT"

	// JobStatusSkipped — публикация не нужна (контент уже опубликован).
	JobStatusSkipped JobStatus = "SKIPPED"
)

// IsTerminal возвращает true, если статус финальный.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusSkipped:
		return true
	default:
		return false
	}
}
