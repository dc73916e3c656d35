package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/config"
)

type contextKey struct{}

// Setup installs the process-wide slog handler on stderr and returns it.
// stdout is left to the CLI for search results.
func Setup(cfg config.LoggingConfig) *slog.Logger {
	return SetupWriter(os.Stderr, cfg)
}

func SetupWriter(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if requestID := RequestID(ctx); requestID != "" {
		logger = logger.With("request_id", requestID)
	}
	return logger
}

func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
