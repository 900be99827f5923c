package middleware

import (
	"context"
	"time"

	"corebus/message"
)

// TimeOutMiddleware enforces a maximum duration for each locally served call.
// If the handler doesn't complete within the timeout, it returns an error
// result immediately.
//
// Implementation:
//  1. Create a context with timeout (ctx.Done() fires when timeout expires)
//  2. Run the next handler in a goroutine, sending its result to a channel
//  3. Select between the result channel and ctx.Done()
//
// Note: the handler goroutine is NOT cancelled — it continues running in the
// background. The timeout only controls when the caller gives up waiting.
// For true cancellation, the bound procedure must check ctx.Done() itself.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg *message.RpcMessage) *message.ResultMessage {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.ResultMessage, 1)
			go func() {
				done <- next(ctx, msg)
			}()

			select {
			case result := <-done:
				return result
			case <-ctx.Done():
				return message.NewErrorResultMessage(msg, "request timed out", "")
			}
		}
	}
}
