package sched

import "time"

// Backoff вычисляет задержку перед retry после attempt-й попытки.
//
// delay = base * 2^(attempt-1), capped at cap.
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > cap {
			return cap
		}
	}

	if delay > cap {
		return cap
	}
	return delay
}
