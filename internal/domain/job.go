package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job — единица публикации контента (более мелкая, чем Action).
//
// Job создаётся из контент-плана и привязан к action типа
// execute_post_job, который триггерит выполнение в нужное время.
// Строки таблицы jobs мутируются только Job Pipeline'ом.
type Job struct {
	// ID — уникальный идентификатор job.
	ID uuid.UUID `json:"id"`

	// TenantID — владелец job.
	TenantID uuid.UUID `json:"tenant_id"`

	// LocationID — локация, для которой публикуется контент.
	LocationID uuid.UUID `json:"location_id"`

	// PlanID — ссылка на контент-план, из которого создан job.
	PlanID *uuid.UUID `json:"plan_id,omitempty"`

	// PostID — ссылка на созданный/найденный пост (заполняется при выполнении).
	PostID *uuid.UUID `json:"post_id,omitempty"`

	// Status — текущий статус job.
	Status JobStatus `json:"status"`

	// DedupeKey — уникальный ключ идемпотентности.
	// По умолчанию — хэш от (tenant, location, целевая дата).
	DedupeKey string `json:"dedupe_key"`

	// RunAt — запланированное время публикации.
	RunAt time.Time `json:"run_at"`

	// Attempts — сколько попыток уже сделано.
	Attempts int `json:"attempts"`

	// MaxAttempts — максимум попыток.
	MaxAttempts int `json:"max_attempts"`

	// Error — текст последней ошибки.
	Error string `json:"error,omitempty"`

	// Result — результат публикации (в т.ч. внешний id поста).
	Result map[string]any `json:"result,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// MarkRunning переводит job в RUNNING и начинает попытку.
func (j *Job) MarkRunning() {
	j.Status = JobStatusRunning
	j.Attempts++
}

// MarkSucceeded переводит job в SUCCEEDED с результатом.
func (j *Job) MarkSucceeded(result map[string]any) {
	j.Status = JobStatusSucceeded
	j.Result = result
}

// MarkFailed переводит job в FAILED с ошибкой.
func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.Error = errMsg
}

// MarkRateLimited переводит job в RATE_LIMITED с новым временем запуска.
// Попытка не считается потраченной.
func (j *Job) MarkRateLimited(runAt time.Time) {
	j.Status = JobStatusRateLimited
	j.RunAt = runAt
	j.Attempts--
}

// Attempt — одна попытка выполнения job.
//
// Append-only история выполнения, независимая от текущего статуса job.
type Attempt struct {
	// ID — уникальный идентификатор попытки.
	ID uuid.UUID `json:"id"`

	// JobID — ссылка на job.
	JobID uuid.UUID `json:"job_id"`

	// Number — порядковый номер попытки (начиная с 1).
	Number int `json:"number"`

	// StartedAt — время начала.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если попытка не удалась.
	Error string `json:"error,omitempty"`
}

// Finish завершает попытку, фиксируя ошибку (пустая строка — успех).
func (at *Attempt) Finish(now time.Time, errMsg string) {
	at.FinishedAt = &now
	at.Error = errMsg
}

// JobDedupeKey — ключ идемпотентности по умолчанию для job.
// Хэш от (tenant, location, целевая дата): один job на локацию в день.
func JobDedupeKey(tenantID, locationID uuid.UUID, date time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", tenantID, locationID, date.UTC().Format("2006-01-02"))))
	return hex.EncodeToString(sum[:16])
}
