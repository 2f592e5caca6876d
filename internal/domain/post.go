package domain

import (
	"time"

	"github.com/google/uuid"
)

// PostStatus — статус контент-артефакта.
type PostStatus string

const (
	// PostStatusDraft — пост создан, но ещё не опубликован.
	PostStatusDraft PostStatus = "DRAFT"

	// PostStatusScheduled — пост запланирован к публикации.
	PostStatusScheduled PostStatus = "SCHEDULED"

	// PostStatusPublished — пост опубликован на площадке.
	PostStatusPublished PostStatus = "PUBLISHED"
)

// Post — контент-артефакт, публикуемый на площадку.
type Post struct {
	// ID — уникальный идентификатор поста.
	ID uuid.UUID `json:"id"`

	// TenantID — владелец поста.
	TenantID uuid.UUID `json:"tenant_id"`

	// LocationID — локация, для которой публикуется пост.
	LocationID uuid.UUID `json:"location_id"`

	// Bucket — тематическая категория контента. Используется для
	// разнообразия: одна категория не повторяется в течение cooldown-окна.
	Bucket string `json:"bucket"`

	// Body — текст поста.
	Body string `json:"body"`

	// RequiresMedia — посту нужны материалы клиента (фото).
	RequiresMedia bool `json:"requires_media"`

	// MediaRef — ссылка на загруженный клиентом материал.
	MediaRef string `json:"media_ref,omitempty"`

	// Status — текущий статус поста.
	Status PostStatus `json:"status"`

	// ScheduledFor — целевая дата публикации.
	ScheduledFor time.Time `json:"scheduled_for"`

	// ExternalID — идентификатор поста на внешней площадке.
	ExternalID string `json:"external_id,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// HasMedia проверяет, доступны ли материалы для публикации.
func (p *Post) HasMedia() bool {
	return !p.RequiresMedia || p.MediaRef != ""
}

// ContentPlan — план публикаций, из которого создаются jobs.
type ContentPlan struct {
	// ID — уникальный идентификатор плана.
	ID uuid.UUID `json:"id"`

	// TenantID — владелец плана.
	TenantID uuid.UUID `json:"tenant_id"`

	// LocationID — локация плана.
	LocationID uuid.UUID `json:"location_id"`

	// Bucket — тематическая категория запланированного контента.
	Bucket string `json:"bucket"`

	// Body — заготовка текста (может быть пустой — тогда текст
	// генерируется на этапе выполнения job).
	Body string `json:"body,omitempty"`

	// RequiresMedia — плану нужны материалы клиента.
	RequiresMedia bool `json:"requires_media"`

	// TargetDate — целевая дата публикации.
	TargetDate time.Time `json:"target_date"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}
