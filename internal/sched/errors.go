package sched

import "errors"

// Ошибки планировщика.
var (
	// ErrActionNotFound — action не найден в БД.
	ErrActionNotFound = errors.New("action not found")

	// ErrActionTerminal — операция невозможна: action в терминальном статусе.
	ErrActionTerminal = errors.New("action is in terminal status")
)
