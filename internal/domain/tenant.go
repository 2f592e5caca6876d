package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant — изолированный клиент платформы.
type Tenant struct {
	// ID — уникальный идентификатор tenant'а.
	ID uuid.UUID `json:"id"`

	// Name — название бизнеса.
	Name string `json:"name"`

	// Paused — пауза всей автоматизации tenant'а.
	Paused bool `json:"paused"`

	// WeeklyPostCap — переопределение недельного лимита постов (0 — default).
	WeeklyPostCap int `json:"weekly_post_cap,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// Location — точка присутствия бизнеса (филиал, профиль на площадке).
type Location struct {
	// ID — уникальный идентификатор локации.
	ID uuid.UUID `json:"id"`

	// TenantID — владелец локации.
	TenantID uuid.UUID `json:"tenant_id"`

	// Name — название локации.
	Name string `json:"name"`

	// Paused — пауза автоматизации конкретной локации.
	Paused bool `json:"paused"`

	// WeeklyPostCap — переопределение недельного лимита постов (0 — наследуется).
	WeeklyPostCap int `json:"weekly_post_cap,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// Account — подключение к внешней площадке (OAuth-аккаунт).
type Account struct {
	// ID — уникальный идентификатор аккаунта.
	ID uuid.UUID `json:"id"`

	// TenantID — владелец аккаунта.
	TenantID uuid.UUID `json:"tenant_id"`

	// Provider — площадка ("google", "yandex", ...).
	Provider string `json:"provider"`

	// TokenExpiresAt — время истечения access-токена.
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}
