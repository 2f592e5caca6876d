package domain

import (
	"time"

	"github.com/google/uuid"
)

// RateLimitState — счётчик публикаций для пары (tenant, location).
//
// Двухслойный throttle:
//   - мягкое окно: used накапливается в пределах окна, окно сбрасывается
//     по истечении WindowEndsAt;
//   - жёсткий cooldown: устанавливается при превышении лимита и действует
//     независимо от сброса окна.
//
// Строки мутируются только Rate Limiter'ом.
type RateLimitState struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// TenantID + LocationID — scope лимита.
	TenantID   uuid.UUID `json:"tenant_id"`
	LocationID uuid.UUID `json:"location_id"`

	// WindowStartsAt / WindowEndsAt — границы текущего окна.
	WindowStartsAt time.Time `json:"window_starts_at"`
	WindowEndsAt   time.Time `json:"window_ends_at"`

	// Limit — максимум операций в окне.
	Limit int `json:"limit"`

	// Used — сколько операций уже израсходовано в окне.
	Used int `json:"used"`

	// CooldownUntil — жёсткий запрет до этого времени (после нарушения).
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

// WindowElapsed проверяет, истекло ли текущее окно.
func (s *RateLimitState) WindowElapsed(now time.Time) bool {
	return !now.Before(s.WindowEndsAt)
}

// ResetWindow сбрасывает счётчик и сдвигает окно вперёд.
func (s *RateLimitState) ResetWindow(now time.Time, window time.Duration) {
	s.WindowStartsAt = now
	s.WindowEndsAt = now.Add(window)
	s.Used = 0
}

// InCooldown проверяет, действует ли cooldown.
func (s *RateLimitState) InCooldown(now time.Time) bool {
	return s.CooldownUntil != nil && s.CooldownUntil.After(now)
}
