package telemetry

import (
	"context"
	"log/slog"
	"os"

	"github.com/vitrina-io/vitrina/internal/domain"
)

// LogLevel читает уровень логирования из LOG_LEVEL
// (DEBUG/INFO/WARN/ERROR, по умолчанию INFO).
func LogLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер процесса.
//
// LOG_FORMAT="text" включает человекочитаемый вывод для разработки;
// всё остальное — JSON. На уровне DEBUG в записи добавляется source.
func SetupLogger() *slog.Logger {
	level := LogLevel()
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

type loggerKey struct{}

// WithLogger кладёт scoped-логгер в контекст. Worker кладёт сюда
// логгер с полями текущего action'а, чтобы всё, что выполняется
// внутри него (handler'ы, pipeline), писало в том же scope.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext достаёт scoped-логгер из контекста; вне выполнения
// action'а возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithAction возвращает логгер с полями action'а.
func WithAction(logger *slog.Logger, action *domain.Action) *slog.Logger {
	return logger.With(
		"action_id", action.ID,
		"action_type", action.Type,
		"tenant_id", action.TenantID,
	)
}

// WithJob возвращает логгер с полями job'а.
func WithJob(logger *slog.Logger, job *domain.Job) *slog.Logger {
	return logger.With(
		"job_id", job.ID,
		"tenant_id", job.TenantID,
		"location_id", job.LocationID,
	)
}
