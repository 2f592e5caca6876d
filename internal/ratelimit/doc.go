// Package ratelimit ограничивает частоту публикаций на scope (tenant, location).
//
// Два независимых слоя:
//   - мягкое окно: счётчик used в пределах часа, окно сбрасывается
//     по истечении;
//   - жёсткий cooldown: устанавливается при превышении лимита и живёт
//     независимо от сброса окна.
//
// Состояние хранится в таблице rate_limit_states (одна строка на scope)
// и мутируется только этим пакетом.
package ratelimit
