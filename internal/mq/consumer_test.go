package mq

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// --- Nudge Decoding Tests ---

func TestNudgeConsumer_DispatchValidNudge(t *testing.T) {
	actionID := uuid.New()
	tenantID := uuid.New()

	body, err := json.Marshal(Message{
		ID:      uuid.New().String(),
		Type:    MessageTypeActionDue,
		Payload: ActionDuePayload{ActionID: actionID, TenantID: tenantID},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got *Nudge
	c := NewNudgeConsumer(nil, discardLogger(), func(_ context.Context, n *Nudge) error {
		got = n
		return nil
	}, 1)

	c.dispatch(context.Background(), amqp.Delivery{Body: body})

	if got == nil {
		t.Fatal("handler should receive the decoded nudge")
	}
	if got.ActionID != actionID {
		t.Errorf("expected action id %s, got %s", actionID, got.ActionID)
	}
	if got.TenantID != tenantID {
		t.Errorf("expected tenant id %s, got %s", tenantID, got.TenantID)
	}
}

func TestNudgeConsumer_DispatchRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"malformed json", []byte("{not json")},
		{"wrong message type", mustBody(t, Message{
			ID:      uuid.New().String(),
			Type:    MessageTypeActionCompleted,
			Payload: ActionDuePayload{ActionID: uuid.New()},
		})},
		{"missing action id", mustBody(t, Message{
			ID:      uuid.New().String(),
			Type:    MessageTypeActionDue,
			Payload: ActionDuePayload{},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			c := NewNudgeConsumer(nil, discardLogger(), func(_ context.Context, _ *Nudge) error {
				called = true
				return nil
			}, 1)

			c.dispatch(context.Background(), amqp.Delivery{Body: tt.body})

			if called {
				t.Error("handler must not be called for a non-nudge message")
			}
		})
	}
}

func mustBody(t *testing.T, msg Message) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return body
}
