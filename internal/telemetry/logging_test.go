package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vitrina-io/vitrina/internal/domain"
)

func TestWithLogger_RoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)

	if got := FromContext(ctx); got != logger {
		t.Error("FromContext should return the logger stored in the context")
	}
}

func TestFromContext_Fallback(t *testing.T) {
	if got := FromContext(context.Background()); got == nil {
		t.Fatal("FromContext must never return nil")
	}
}

func TestWithAction_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	action := &domain.Action{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Type:     domain.ActionTypePublishPost,
		RunAt:    time.Now(),
	}
	WithAction(logger, action).Info("executing action")

	out := buf.String()
	if !strings.Contains(out, action.ID.String()) {
		t.Errorf("log line should carry action_id, got %q", out)
	}
	if !strings.Contains(out, action.TenantID.String()) {
		t.Errorf("log line should carry tenant_id, got %q", out)
	}
	if !strings.Contains(out, string(domain.ActionTypePublishPost)) {
		t.Errorf("log line should carry action_type, got %q", out)
	}
}

func TestWithJob_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	job := &domain.Job{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		LocationID: uuid.New(),
	}
	WithJob(logger, job).Info("job queued")

	out := buf.String()
	for _, id := range []uuid.UUID{job.ID, job.TenantID, job.LocationID} {
		if !strings.Contains(out, id.String()) {
			t.Errorf("log line should carry %s, got %q", id, out)
		}
	}
}
