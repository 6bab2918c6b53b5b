package http

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/podcoord/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// handlerLogger prefers the request-scoped logger installed by RequestLogger.
// Without it (handlers mounted bare) the fallback is tagged with the request id.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = defaultLogger(fallback)
		if reqID := middleware.GetReqID(ctx); reqID != "" {
			logger = logger.With(slog.String("request_id", reqID))
		}
	}

	args := make([]any, 0, len(attrs)+2)
	args = append(args, slog.String("handler", handlerName))
	if operation != "" {
		args = append(args, slog.String("operation", operation))
	}
	return logger.With(append(args, attrs...)...)
}
