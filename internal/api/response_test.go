package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/policy"
	"github.com/vitrina-io/vitrina/internal/repo"
	"github.com/vitrina-io/vitrina/internal/sched"
)

func TestHandleError_Mapping(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   ErrorCode
	}{
		{"validation error", &domain.ValidationError{Field: "type", Reason: "unknown action type"}, http.StatusBadRequest, ErrCodeBadRequest},
		{"policy violation", &policy.Violation{Rule: policy.RuleWeeklyCap, Reason: "cap reached"}, http.StatusUnprocessableEntity, ErrCodePolicyViolation},
		{"repo not found", repo.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"action not found", sched.ErrActionNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"already exists", repo.ErrAlreadyExists, http.StatusConflict, ErrCodeConflict},
		{"invalid state", repo.ErrInvalidState, http.StatusUnprocessableEntity, ErrCodeInvalidState},
		{"terminal action", sched.ErrActionTerminal, http.StatusUnprocessableEntity, ErrCodeInvalidState},
		{"unknown error", errors.New("pg down"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			if handled := HandleError(rec, logger, tt.err, "not found"); !handled {
				t.Fatal("error should be handled")
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestHandleError_NilError(t *testing.T) {
	rec := httptest.NewRecorder()
	if HandleError(rec, slog.New(slog.DiscardHandler), nil, "") {
		t.Error("nil error must not be handled")
	}
}
