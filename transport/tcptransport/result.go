package tcptransport

import (
	"context"

	"corebus/message"
	"corebus/transport"
)

// ResultTransport is the ResultTransport half of a shared Endpoint: Arm on
// a client-role endpoint, SendResult on a server-role one.
type ResultTransport struct {
	ep *Endpoint
}

// NewResultTransport wraps ep as a ResultTransport.
func NewResultTransport(ep *Endpoint) *ResultTransport {
	return &ResultTransport{ep: ep}
}

func (t *ResultTransport) Open(ctx context.Context) error  { return nil }
func (t *ResultTransport) Close(ctx context.Context) error { return t.ep.Close() }

// GetReturnPath uses the call's own ID: both sides correlate on it
// directly rather than through a second connection-local sequence number.
func (t *ResultTransport) GetReturnPath(msg *message.RpcMessage) string {
	return msg.ID
}

func (t *ResultTransport) SendResult(ctx context.Context, rpcMsg *message.RpcMessage, resultMsg *message.ResultMessage, returnPath string) error {
	return t.ep.sendResult(ctx, returnPath, resultMsg)
}

func (t *ResultTransport) Arm(ctx context.Context, rpcMsg *message.RpcMessage, returnPath string, options map[string]any) (transport.ResultWaiter, error) {
	ch := t.ep.armWaiter(returnPath)
	return &resultWaiter{ch: ch}, nil
}

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
