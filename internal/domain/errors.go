package domain

import "fmt"

// ValidationError — ошибка валидации при создании action/job.
//
// Возникает синхронно на этапе планирования (чужая локация, неизвестный
// тип и т.п.): ничего не сохраняется, вызывающий видит ошибку сразу.
type ValidationError struct {
	// Field — имя поля или правила, которое не прошло проверку.
	Field string

	// Reason — человекочитаемое описание.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NewValidationError создаёт ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
