package platform

import "fmt"

// GatewayError — ответ шлюза со статусом >= 400.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Body)
}

// Temporary сообщает, имеет ли смысл повторять запрос.
// 5xx и 429 — временные сбои, 4xx — нет.
func (e *GatewayError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
