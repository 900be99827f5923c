package tcptransport

import (
	"context"

	"corebus/message"
)

// RpcTransport is the RpcTransport half of a shared Endpoint: CallRpc on
// a client-role endpoint, ConsumeRpcs on a server-role one.
type RpcTransport struct {
	ep *Endpoint
}

// NewRpcTransport wraps ep as an RpcTransport.
func NewRpcTransport(ep *Endpoint) *RpcTransport {
	return &RpcTransport{ep: ep}
}

func (t *RpcTransport) Open(ctx context.Context) error  { return nil }
func (t *RpcTransport) Close(ctx context.Context) error { return t.ep.Close() }

func (t *RpcTransport) CallRpc(ctx context.Context, msg *message.RpcMessage, options map[string]any) error {
	return t.ep.sendCall(ctx, msg)
}

// ConsumeRpcs starts the server's accept loop on first call (a second
// call on the same Endpoint reuses it rather than accepting twice) and
// filters its inbound stream down to apiNames.
func (t *RpcTransport) ConsumeRpcs(ctx context.Context, apiNames []string) (<-chan *message.RpcMessage, error) {
	t.ep.acceptOnce.Do(func() { go t.ep.acceptLoop(ctx) })

	wanted := make(map[string]bool, len(apiNames))
	for _, name := range apiNames {
		wanted[name] = true
	}

	out := make(chan *message.RpcMessage)
	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-t.ep.inbound:
				if !ok {
					return
				}
				if len(wanted) > 0 && !wanted[msg.APIName] {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
