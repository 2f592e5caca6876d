package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vitrina-io/vitrina/internal/domain"
	"github.com/vitrina-io/vitrina/internal/policy"
	"github.com/vitrina-io/vitrina/internal/repo"
	"github.com/vitrina-io/vitrina/internal/sched"
)

// ErrorCode — машиночитаемый код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeInvalidState    ErrorCode = "INVALID_STATE"
	ErrCodePolicyViolation ErrorCode = "POLICY_VIOLATION"
	ErrCodeInternalError   ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse — ответ с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — код и сообщение ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DataResponse — успешный ответ с одним ресурсом.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — ответ со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total,omitempty"`
}

// JSON отправляет JSON-ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Success отправляет 200 с ресурсом.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Created отправляет 201 с созданным ресурсом.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, DataResponse{Data: data})
}

// List отправляет 200 со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// BadRequest отправляет 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound отправляет 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// InternalError отправляет 500, не раскрывая деталей клиенту.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// HandleError транслирует доменную ошибку в HTTP-ответ.
// Возвращает true, если ошибка была и ответ отправлен.
//
// Маппинг:
//   - ValidationError                  → 400 BAD_REQUEST
//   - policy.Violation                 → 422 POLICY_VIOLATION
//   - ErrNotFound / ErrActionNotFound  → 404 NOT_FOUND
//   - ErrAlreadyExists                 → 409 CONFLICT
//   - ErrInvalidState / ErrActionTerminal → 422 INVALID_STATE
//   - всё остальное                    → 500 INTERNAL_ERROR
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	if err == nil {
		return false
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		BadRequest(w, validationErr.Error())
		return true
	}

	var violation *policy.Violation
	if errors.As(err, &violation) {
		Error(w, http.StatusUnprocessableEntity, ErrCodePolicyViolation, violation.Error())
		return true
	}

	switch {
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, sched.ErrActionNotFound):
		NotFound(w, notFoundMsg)
	case errors.Is(err, repo.ErrAlreadyExists):
		Error(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, repo.ErrInvalidState):
		Error(w, http.StatusUnprocessableEntity, ErrCodeInvalidState, err.Error())
	case errors.Is(err, sched.ErrActionTerminal):
		Error(w, http.StatusUnprocessableEntity, ErrCodeInvalidState, "action already in terminal status")
	default:
		InternalError(w, logger, err)
	}
	return true
}
