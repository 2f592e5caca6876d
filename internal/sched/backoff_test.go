package sched

import (
	"testing"
	"time"
)

func TestBackoff_Exponential(t *testing.T) {
	base := 30 * time.Second
	cap := time.Hour

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
		{5, 480 * time.Second},
		{6, 960 * time.Second},
		{7, 1920 * time.Second},
		{8, time.Hour}, // 3840s > cap
		{9, time.Hour},
		{100, time.Hour},
	}

	for _, tt := range tests {
		got := Backoff(tt.attempt, base, cap)
		if got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_AttemptBelowOne(t *testing.T) {
	// Значения <1 трактуются как первая попытка
	if got := Backoff(0, 30*time.Second, time.Hour); got != 30*time.Second {
		t.Errorf("Backoff(0) = %v, want 30s", got)
	}
	if got := Backoff(-5, 30*time.Second, time.Hour); got != 30*time.Second {
		t.Errorf("Backoff(-5) = %v, want 30s", got)
	}
}

func TestBackoff_BaseAboveCap(t *testing.T) {
	if got := Backoff(1, 2*time.Hour, time.Hour); got != time.Hour {
		t.Errorf("Backoff with base > cap = %v, want cap", got)
	}
}
