package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"corebus/message"
)

// LoggingMiddleware records the procedure name, duration, and any error for
// each locally served call. It captures the start time before calling next,
// and logs the elapsed time after next returns.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg *message.RpcMessage) *message.ResultMessage {
			start := time.Now()

			result := next(ctx, msg)

			duration := time.Since(start)
			if result.Error {
				logger.Warn("rpc execution failed",
					zap.String("procedure", msg.CanonicalName()),
					zap.Duration("duration", duration),
					zap.Any("error", result.Result),
				)
			} else {
				logger.Debug("rpc execution completed",
					zap.String("procedure", msg.CanonicalName()),
					zap.Duration("duration", duration),
				)
			}
			return result
		}
	}
}
