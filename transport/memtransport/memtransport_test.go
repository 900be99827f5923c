package memtransport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corebus/message"
	"corebus/transport"
)

func TestRpcCallRoundTrip(t *testing.T) {
	broker := NewBroker()
	caller := NewRpcTransport(broker)
	server := NewRpcTransport(broker)
	ctx := context.Background()

	inbound, err := server.ConsumeRpcs(ctx, []string{"math"})
	require.NoError(t, err)

	msg := message.NewRpcMessage("math", "add", message.Kwargs{"a": 1, "b": 2})
	require.NoError(t, caller.CallRpc(ctx, msg, nil))

	select {
	case got := <-inbound:
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, "add", got.ProcedureName)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound rpc")
	}
}

func TestRpcConsumeStopsOnContextCancel(t *testing.T) {
	broker := NewBroker()
	server := NewRpcTransport(broker)
	ctx, cancel := context.WithCancel(context.Background())

	inbound, err := server.ConsumeRpcs(ctx, []string{"math"})
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-inbound:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestResultArmThenSendDeliversToWaiter(t *testing.T) {
	broker := NewBroker()
	rt := NewResultTransport(broker)
	ctx := context.Background()

	rpcMsg := message.NewRpcMessage("math", "add", nil)
	returnPath := rt.GetReturnPath(rpcMsg)

	waiter, err := rt.Arm(ctx, rpcMsg, returnPath, nil)
	require.NoError(t, err)

	resultMsg := message.NewResultMessage(rpcMsg, 3)
	require.NoError(t, rt.SendResult(ctx, rpcMsg, resultMsg, returnPath))

	got, err := waiter.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Result)
}

func TestResultSendWithoutArmIsBestEffortNoop(t *testing.T) {
	broker := NewBroker()
	rt := NewResultTransport(broker)
	ctx := context.Background()

	rpcMsg := message.NewRpcMessage("math", "add", nil)
	resultMsg := message.NewResultMessage(rpcMsg, 3)
	err := rt.SendResult(ctx, rpcMsg, resultMsg, rt.GetReturnPath(rpcMsg))
	assert.NoError(t, err)
}

func TestResultWaitRespectsContextTimeout(t *testing.T) {
	broker := NewBroker()
	rt := NewResultTransport(broker)
	ctx := context.Background()

	rpcMsg := message.NewRpcMessage("math", "add", nil)
	waiter, err := rt.Arm(ctx, rpcMsg, rt.GetReturnPath(rpcMsg), nil)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	_, err = waiter.Wait(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEventSendAndConsumeDeliversBatch(t *testing.T) {
	broker := NewBroker()
	et := NewEventTransport(broker)
	et.pollInterval = time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	batches, err := et.Consume(ctx, []transport.EventKey{{APIName: "orders", EventName: "placed"}}, "listener-a", nil)
	require.NoError(t, err)

	msg := message.NewEventMessage("orders", "placed", message.Kwargs{"id": "1"})
	require.NoError(t, et.SendEvent(ctx, msg, nil))

	select {
	case batch := <-batches:
		require.Len(t, batch, 1)
		assert.Equal(t, "1", batch[0].Kwargs["id"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event batch")
	}
}

func TestEventRedeliveredUntilAcknowledged(t *testing.T) {
	broker := NewBroker()
	et := NewEventTransport(broker)
	et.pollInterval = time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg := message.NewEventMessage("orders", "placed", nil)
	require.NoError(t, et.SendEvent(ctx, msg, nil))

	keys := []transport.EventKey{{APIName: "orders", EventName: "placed"}}
	batches, err := et.Consume(ctx, keys, "listener-b", nil)
	require.NoError(t, err)

	first := <-batches
	require.Len(t, first, 1)

	// Without an Acknowledge, the same listener keeps seeing the event on
	// every poll.
	second := <-batches
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)

	require.NoError(t, et.Acknowledge(ctx, first...))

	// A fresh listener under the same name no longer sees it.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer drainCancel()
	pending, err := et.Consume(drainCtx, keys, "listener-b", nil)
	require.NoError(t, err)
	select {
	case batch := <-pending:
		t.Fatalf("expected no redelivery after ack, got %d events", len(batch))
	case <-drainCtx.Done():
	}
}

func TestEventHistoryReturnsNewestFirstWithinRange(t *testing.T) {
	broker := NewBroker()
	et := NewEventTransport(broker)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, et.SendEvent(ctx, message.NewEventMessage("orders", "placed", message.Kwargs{"n": i}), nil))
	}

	hist, err := et.History(ctx, "orders", "placed", 1, 3)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, 3, hist[0].Kwargs["n"])
	assert.Equal(t, 2, hist[1].Kwargs["n"])
	assert.Equal(t, 1, hist[2].Kwargs["n"])
}

func TestEventHistoryEmptyForUnknownKey(t *testing.T) {
	broker := NewBroker()
	et := NewEventTransport(broker)
	hist, err := et.History(context.Background(), "orders", "unknown", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestSchemaStoreLoadPing(t *testing.T) {
	broker := NewBroker()
	st := NewSchemaTransport(broker)
	ctx := context.Background()

	schema := map[string]any{"procedures": []string{"add"}}
	require.NoError(t, st.Store(ctx, "math", schema, 30))
	require.NoError(t, st.Ping(ctx, "math", schema, 30))

	loaded, err := st.Load(ctx)
	require.NoError(t, err)
	require.Contains(t, loaded, "math")
	assert.Equal(t, schema, loaded["math"])
}

func TestBrokerFromOptionsPrefersExplicitBroker(t *testing.T) {
	broker := NewBroker()
	assert.Same(t, broker, brokerFromOptions(map[string]any{"broker": broker}))
	assert.Same(t, defaultBroker, brokerFromOptions(nil))
}
