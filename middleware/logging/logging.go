package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
)

// New creates an interceptor that logs every invocation with slog. It logs
// the start and end of each call, including duration and error code.
func New(logger *slog.Logger) rabbit.Interceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, inv *rabbit.Invocation, next rabbit.HandlerFunc) (any, error) {
		start := time.Now()
		req := inv.Request()

		logger.DebugContext(ctx, "invocation started",
			slog.String("method", inv.Method.ID),
			slog.String("http_method", req.Method),
			slog.String("url", req.URL().Redacted()),
		)

		result, err := next(ctx, inv)
		duration := time.Since(start)

		if err != nil {
			logger.ErrorContext(ctx, "invocation failed",
				slog.String("method", inv.Method.ID),
				slog.Int("status", inv.Response().StatusCode),
				slog.String("code", errors.Code(err)),
				slog.Duration("duration", duration),
				slog.Any("error", err),
			)
		} else {
			logger.InfoContext(ctx, "invocation completed",
				slog.String("method", inv.Method.ID),
				slog.Int("status", inv.Response().StatusCode),
				slog.Duration("duration", duration),
			)
		}

		return result, err
	}
}
