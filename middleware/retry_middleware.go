package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"corebus/message"
)

// RetryMiddleware retries a locally served call up to maxRetries times,
// with exponential backoff, when its result carries a retryable error.
func RetryMiddleware(logger *zap.Logger, maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg *message.RpcMessage) *message.ResultMessage {
			result := next(ctx, msg)
			for i := 0; i < maxRetries; i++ {
				if !result.Error {
					return result
				}
				errText := fmt.Sprint(result.Result)
				if !strings.Contains(errText, "timeout") && !strings.Contains(errText, "connection refused") {
					return result
				}
				logger.Warn("retrying rpc execution",
					zap.Int("attempt", i+1),
					zap.String("procedure", msg.CanonicalName()),
					zap.String("error", errText),
				)
				time.Sleep(baseDelay * time.Duration(uint(1)<<uint(i)))
				result = next(ctx, msg)
			}
			return result
		}
	}
}
