package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry — запись аудита о переходе состояния.
//
// Журнал append-only: pipeline только пишет и никогда не читает обратно.
type AuditEntry struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// TenantID — scope записи.
	TenantID uuid.UUID `json:"tenant_id"`

	// Tag — что произошло: "action.scheduled", "action.succeeded",
	// "action.retry_scheduled", "action.dead_lettered", "action.cancelled",
	// "job.queued", "job.succeeded", ...
	Tag string `json:"tag"`

	// EntityID — идентификатор сущности (action, job, post).
	EntityID uuid.UUID `json:"entity_id"`

	// Meta — дополнительные данные перехода.
	Meta map[string]any `json:"meta,omitempty"`

	// CreatedAt — время записи.
	CreatedAt time.Time `json:"created_at"`
}
