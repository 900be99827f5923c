package middleware

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"corebus/message"
)

func echoHandler(ctx context.Context, msg *message.RpcMessage) *message.ResultMessage {
	return message.NewResultMessage(msg, "ok")
}

func slowHandler(ctx context.Context, msg *message.RpcMessage) *message.ResultMessage {
	time.Sleep(200 * time.Millisecond)
	return message.NewResultMessage(msg, "ok")
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware(zaptest.NewLogger(t))(echoHandler)

	req := message.NewRpcMessage("mycompany.arith", "add", nil)
	resp := handler(context.Background(), req)

	if resp == nil {
		t.Fatal("expect non-nil response")
	}
	if resp.Result != "ok" {
		t.Fatalf("expect result 'ok', got '%v'", resp.Result)
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)

	req := message.NewRpcMessage("mycompany.arith", "add", nil)
	resp := handler(context.Background(), req)

	if resp.Error {
		t.Fatalf("expect no error, got '%v'", resp.Result)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	req := message.NewRpcMessage("mycompany.arith", "add", nil)
	resp := handler(context.Background(), req)

	if !resp.Error || resp.Result != "request timed out" {
		t.Fatalf("expect timeout error, got error=%v result=%v", resp.Error, resp.Result)
	}
}

func TestRateLimit(t *testing.T) {
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	req := message.NewRpcMessage("mycompany.arith", "add", nil)

	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), req)
		if resp.Error {
			t.Fatalf("request %d should pass, got error: %v", i, resp.Result)
		}
	}

	resp := handler(context.Background(), req)
	if !resp.Error || resp.Result != "rate limit exceeded" {
		t.Fatalf("request 3 should be rate limited, got: %v", resp.Result)
	}
}

func TestRetrySucceedsAfterTransientTimeout(t *testing.T) {
	attempts := 0
	flaky := func(ctx context.Context, msg *message.RpcMessage) *message.ResultMessage {
		attempts++
		if attempts < 2 {
			return message.NewErrorResultMessage(msg, "timeout waiting for reply", "")
		}
		return message.NewResultMessage(msg, "ok")
	}

	handler := RetryMiddleware(zaptest.NewLogger(t), 3, time.Millisecond)(flaky)
	req := message.NewRpcMessage("mycompany.arith", "add", nil)
	resp := handler(context.Background(), req)

	if resp.Error {
		t.Fatalf("expect eventual success, got error: %v", resp.Result)
	}
	if attempts != 2 {
		t.Fatalf("expect 2 attempts, got %d", attempts)
	}
}

func TestRetryDoesNotRetryNonRetryableError(t *testing.T) {
	attempts := 0
	alwaysInvalid := func(ctx context.Context, msg *message.RpcMessage) *message.ResultMessage {
		attempts++
		return message.NewErrorResultMessage(msg, "invalid argument", "")
	}

	handler := RetryMiddleware(zaptest.NewLogger(t), 3, time.Millisecond)(alwaysInvalid)
	req := message.NewRpcMessage("mycompany.arith", "add", nil)
	resp := handler(context.Background(), req)

	if !resp.Error || resp.Result != "invalid argument" {
		t.Fatalf("expect invalid argument error to pass through, got: %v", resp.Result)
	}
	if attempts != 1 {
		t.Fatalf("expect exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
}

func TestChain(t *testing.T) {
	chained := Chain(LoggingMiddleware(zaptest.NewLogger(t)), TimeOutMiddleware(500*time.Millisecond))
	handler := chained(echoHandler)

	req := message.NewRpcMessage("mycompany.arith", "add", nil)
	resp := handler(context.Background(), req)

	if resp == nil {
		t.Fatal("expect non-nil response")
	}
	if resp.Error {
		t.Fatalf("expect no error, got '%v'", resp.Result)
	}
}
