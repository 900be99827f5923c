package memtransport

import (
	"context"

	"corebus/message"
	"corebus/transport"
)

// ResultTransport is the in-process ResultTransport implementation.
type ResultTransport struct {
	broker *Broker
}

// NewResultTransport returns a ResultTransport backed by broker.
func NewResultTransport(broker *Broker) *ResultTransport {
	return &ResultTransport{broker: broker}
}

func (t *ResultTransport) Open(ctx context.Context) error  { return nil }
func (t *ResultTransport) Close(ctx context.Context) error { return nil }

func (t *ResultTransport) GetReturnPath(msg *message.RpcMessage) string {
	return "mem-result:" + msg.ID
}

func (t *ResultTransport) SendResult(ctx context.Context, rpcMsg *message.RpcMessage, resultMsg *message.ResultMessage, returnPath string) error {
	t.broker.mu.Lock()
	ch, ok := t.broker.waiters[returnPath]
	t.broker.mu.Unlock()
	if !ok {
		// No one armed a listener for this call (it may have already timed
		// out and moved on) — dropping the result here is the same
		// best-effort behaviour a real broker exhibits once its consumer
		// has disconnected.
		return nil
	}
	select {
	case ch <- resultMsg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *ResultTransport) Arm(ctx context.Context, rpcMsg *message.RpcMessage, returnPath string, options map[string]any) (transport.ResultWaiter, error) {
	ch := make(chan *message.ResultMessage, 1)
	t.broker.mu.Lock()
	t.broker.waiters[returnPath] = ch
	t.broker.mu.Unlock()
	return &resultWaiter{ch: ch}, nil
}

// resultWaiter is the armed, not-yet-fulfilled half of an in-process call.
type resultWaiter struct {
	ch chan *message.ResultMessage
}

func (w *resultWaiter) Wait(ctx context.Context) (*message.ResultMessage, error) {
	select {
	case m := <-w.ch:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
