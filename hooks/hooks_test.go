package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corebus/message"
)

func TestNewDefaultsAreNoOps(t *testing.T) {
	h := New()
	msg := message.NewRpcMessage("mycompany.auth", "ping", nil)

	assert.NoError(t, h.BeforeRPCCall(context.Background(), msg))
	assert.NoError(t, h.AfterRPCCall(context.Background(), msg, nil))
	assert.NoError(t, h.BeforeRPCExecution(context.Background(), msg))
	assert.NoError(t, h.AfterRPCExecution(context.Background(), msg, nil))
}

func TestHookOverrideIsInvoked(t *testing.T) {
	h := New()
	var called bool
	h.BeforeRPCCall = func(ctx context.Context, msg *message.RpcMessage) error {
		called = true
		return nil
	}

	msg := message.NewRpcMessage("mycompany.auth", "ping", nil)
	require.NoError(t, h.BeforeRPCCall(context.Background(), msg))
	assert.True(t, called)
}
