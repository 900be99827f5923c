package memtransport

import (
	"context"
	"reflect"

	"corebus/message"
)

// RpcTransport is the in-process RpcTransport implementation: CallRpc hands
// msg straight to the shared Broker's per-API channel; ConsumeRpcs fans
// those channels in onto a single output channel.
type RpcTransport struct {
	broker *Broker
}

// NewRpcTransport returns an RpcTransport backed by broker.
func NewRpcTransport(broker *Broker) *RpcTransport {
	return &RpcTransport{broker: broker}
}

func (t *RpcTransport) Open(ctx context.Context) error  { return nil }
func (t *RpcTransport) Close(ctx context.Context) error { return nil }

func (t *RpcTransport) CallRpc(ctx context.Context, msg *message.RpcMessage, options map[string]any) error {
	select {
	case t.broker.rpcChan(msg.APIName) <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeRpcs fans in one channel per requested API name using
// reflect.Select, since the number of source channels is only known at
// call time.
func (t *RpcTransport) ConsumeRpcs(ctx context.Context, apiNames []string) (<-chan *message.RpcMessage, error) {
	out := make(chan *message.RpcMessage)

	cases := make([]reflect.SelectCase, 0, len(apiNames)+1)
	for _, name := range apiNames {
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(t.broker.rpcChan(name)),
		})
	}
	doneIdx := len(cases)
	cases = append(cases, reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(ctx.Done()),
	})

	go func() {
		defer close(out)
		if len(apiNames) == 0 {
			<-ctx.Done()
			return
		}
		for {
			idx, val, ok := reflect.Select(cases)
			if idx == doneIdx || !ok {
				return
			}
			msg := val.Interface().(*message.RpcMessage)
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
