package dock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"corebus/api"
	"corebus/buserrs"
	"corebus/command"
	"corebus/errqueue"
	"corebus/hooks"
	"corebus/message"
	"corebus/registry"
	"corebus/transport"
)

// fakeBus is a minimal in-process stand-in for a wire transport pair: CallRpc
// writes directly into a shared map of armed waiters, keyed by return path.
// This is deliberately simpler than a real transport (no network, no
// reconnect) — it exists only to drive RPCResultDock's command handling in
// isolation, ahead of transport/memtransport being built out.
type fakeBus struct {
	mu      sync.Mutex
	waiters map[string]chan *message.ResultMessage
	execute func(msg *message.RpcMessage) // simulates a peer executing, before CallRpc replies
}

func newFakeBus() *fakeBus {
	return &fakeBus{waiters: make(map[string]chan *message.ResultMessage)}
}

type fakeRpcTransport struct{ bus *fakeBus }

func (t *fakeRpcTransport) Open(ctx context.Context) error  { return nil }
func (t *fakeRpcTransport) Close(ctx context.Context) error { return nil }
func (t *fakeRpcTransport) CallRpc(ctx context.Context, msg *message.RpcMessage, options map[string]any) error {
	go func() {
		if t.bus.execute != nil {
			t.bus.execute(msg)
		}
		t.bus.mu.Lock()
		ch, ok := t.bus.waiters["return:"+msg.ID]
		t.bus.mu.Unlock()
		if ok {
			ch <- message.NewResultMessage(msg, nil)
		}
	}()
	return nil
}
func (t *fakeRpcTransport) ConsumeRpcs(ctx context.Context, apiNames []string) (<-chan *message.RpcMessage, error) {
	ch := make(chan *message.RpcMessage)
	return ch, nil
}

type fakeResultTransport struct{ bus *fakeBus }

func (t *fakeResultTransport) Open(ctx context.Context) error  { return nil }
func (t *fakeResultTransport) Close(ctx context.Context) error { return nil }
func (t *fakeResultTransport) GetReturnPath(msg *message.RpcMessage) string {
	return "return:" + msg.ID
}
func (t *fakeResultTransport) SendResult(ctx context.Context, rpcMsg *message.RpcMessage, resultMsg *message.ResultMessage, returnPath string) error {
	t.bus.mu.Lock()
	ch, ok := t.bus.waiters[returnPath]
	t.bus.mu.Unlock()
	if !ok {
		return nil
	}
	ch <- resultMsg
	return nil
}
func (t *fakeResultTransport) Arm(ctx context.Context, rpcMsg *message.RpcMessage, returnPath string, options map[string]any) (transport.ResultWaiter, error) {
	ch := make(chan *message.ResultMessage, 1)
	t.bus.mu.Lock()
	t.bus.waiters[returnPath] = ch
	t.bus.mu.Unlock()
	return &fakeResultWaiter{ch: ch}, nil
}

type fakeResultWaiter struct{ ch chan *message.ResultMessage }

func (w *fakeResultWaiter) Wait(ctx context.Context) (*message.ResultMessage, error) {
	select {
	case m := <-w.ch:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTestDock(t *testing.T, bus *fakeBus) (*RPCResultDock, *registry.TransportRegistry) {
	reg := registry.New()
	reg.SetRpcTransportPool("default", transport.NewPool(1, func(ctx context.Context) (transport.RpcTransport, error) {
		return &fakeRpcTransport{bus: bus}, nil
	}))
	reg.SetResultTransportPool("default", transport.NewPool(1, func(ctx context.Context) (transport.ResultTransport, error) {
		return &fakeResultTransport{bus: bus}, nil
	}))

	apiRegistry := api.NewRegistry()
	d := NewRPCResultDock(reg, apiRegistry, hooks.New(), errqueue.New(), zaptest.NewLogger(t), nil)
	return d, reg
}

func TestReceiveResultArmsBeforeDispatchingPendingCall(t *testing.T) {
	bus := newFakeBus()
	var dispatchedBeforeArm bool
	bus.execute = func(msg *message.RpcMessage) {
		bus.mu.Lock()
		_, armed := bus.waiters["return:"+msg.ID]
		bus.mu.Unlock()
		dispatchedBeforeArm = !armed
	}

	d, _ := newTestDock(t, bus)
	ctx := context.Background()

	rpcMsg := message.NewRpcMessage("mycompany.arith", "add", nil)
	require.NoError(t, d.handleCallRpc(command.CallRpcCommand{Message: rpcMsg}))

	dest := make(chan command.ResultOrError, 1)
	require.NoError(t, d.handleReceiveResult(ctx, command.ReceiveResultCommand{Message: rpcMsg, Destination: dest}))

	select {
	case roe := <-dest:
		require.NoError(t, roe.Err)
		require.NotNil(t, roe.Result)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}

	assert.False(t, dispatchedBeforeArm, "CallRpc's peer observed the result not yet armed")
}

type echoAPI struct{}

func (echoAPI) Ping(ctx context.Context) (any, error) { return "pong", nil }

func TestExecuteRpcInvokesBoundProcedureAndSendsResult(t *testing.T) {
	bus := newFakeBus()
	d, reg := newTestDock(t, bus)
	ctx := context.Background()

	a, err := api.New("mycompany.arith", &echoAPI{})
	require.NoError(t, err)
	apiRegistry := api.NewRegistry()
	apiRegistry.Add(a)
	d.apis = apiRegistry

	resultPool, err := reg.GetResultTransportPool("mycompany.arith")
	require.NoError(t, err)
	instance, err := resultPool.Acquire(ctx)
	require.NoError(t, err)

	rpcMsg := message.NewRpcMessage("mycompany.arith", "Ping", nil)
	returnPath := instance.GetReturnPath(rpcMsg)
	waiter, err := instance.Arm(ctx, rpcMsg, returnPath, nil)
	require.NoError(t, err)
	resultPool.Release(instance)

	require.NoError(t, d.handleExecuteRpc(ctx, command.ExecuteRpcCommand{Message: rpcMsg}))

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	result, err := waiter.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, "pong", result.Result)
	assert.False(t, result.Error)
}

func TestExecuteRpcUnknownProcedureSendsErrorResult(t *testing.T) {
	bus := newFakeBus()
	d, reg := newTestDock(t, bus)
	ctx := context.Background()

	a, err := api.New("mycompany.arith", &echoAPI{})
	require.NoError(t, err)
	apiRegistry := api.NewRegistry()
	apiRegistry.Add(a)
	d.apis = apiRegistry

	resultPool, err := reg.GetResultTransportPool("mycompany.arith")
	require.NoError(t, err)
	instance, err := resultPool.Acquire(ctx)
	require.NoError(t, err)

	rpcMsg := message.NewRpcMessage("mycompany.arith", "DoesNotExist", nil)
	returnPath := instance.GetReturnPath(rpcMsg)
	waiter, err := instance.Arm(ctx, rpcMsg, returnPath, nil)
	require.NoError(t, err)
	resultPool.Release(instance)

	require.NoError(t, d.handleExecuteRpc(ctx, command.ExecuteRpcCommand{Message: rpcMsg}))

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	result, err := waiter.Wait(waitCtx)
	require.NoError(t, err)
	assert.True(t, result.Error)
}

func TestDispatchUnrecognisedCommandErrors(t *testing.T) {
	bus := newFakeBus()
	d, _ := newTestDock(t, bus)

	type bogusCommand struct{ command.Command }
	err := d.Dispatch(context.Background(), bogusCommand{})

	var unrecognised *buserrs.UnrecognisedCommandError
	require.ErrorAs(t, err, &unrecognised)
}

func TestCloseClosesTrackedPools(t *testing.T) {
	bus := newFakeBus()
	d, reg := newTestDock(t, bus)
	ctx := context.Background()

	rpcMsg := message.NewRpcMessage("mycompany.arith", "add", nil)
	require.NoError(t, d.handleCallRpc(command.CallRpcCommand{Message: rpcMsg}))
	dest := make(chan command.ResultOrError, 1)
	require.NoError(t, d.handleReceiveResult(ctx, command.ReceiveResultCommand{Message: rpcMsg, Destination: dest}))
	<-dest

	require.NoError(t, d.handleClose(ctx))

	resultPool, err := reg.GetResultTransportPool("mycompany.arith")
	require.NoError(t, err)
	_, err = resultPool.Acquire(ctx)
	assert.Error(t, err, "pool should refuse acquisition after close")
}
