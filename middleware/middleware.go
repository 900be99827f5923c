// Package middleware implements the onion-model middleware chain that
// wraps a locally served procedure's execution inside RPCResultDock.
//
// Middleware wraps the procedure handler to add cross-cutting concerns
// (logging, timeout, rate limiting, retry) without modifying the bound
// procedure itself.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Request:   A.before → B.before → C.before → handler
//	Response:  handler → C.after → B.after → A.after
//
// Each middleware can:
//   - Do pre-processing (before calling next)
//   - Call next(ctx, msg) to pass to the next layer
//   - Do post-processing (after next returns)
//   - Short-circuit by returning early without calling next (e.g., rate limiting)
package middleware

import (
	"context"

	"corebus/message"
)

// HandlerFunc executes a locally bound procedure for msg and produces its
// ResultMessage. Unlike a transport handler, it never itself sends the
// result anywhere — RPCResultDock does that once the chain returns.
type HandlerFunc func(ctx context.Context, msg *message.RpcMessage) *message.ResultMessage

// Middleware takes a handler and returns a new handler that wraps it.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes multiple middlewares into a single middleware, built from
// right to left so the first middleware in the list is the outermost layer
// (executed first on request, last on response).
//
// Example:
//
//	chained := Chain(Logging, Timeout, RateLimit)
//	handler := chained(baseHandler)
//	// Execution: Logging → Timeout → RateLimit → baseHandler → RateLimit → Timeout → Logging
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
