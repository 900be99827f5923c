package tcptransport

import (
	"fmt"

	"corebus/codec"
	"corebus/registry"
	"corebus/transport"
)

// init registers the "tcp" rpc and result transports, the Go analogue of
// the teacher's net/rpc-style dial-on-demand client and listen-on-demand
// server, adapted to share one *Endpoint between the two transport
// families the way a real TCP connection must.
//
// A selector's options must carry an "endpoint" key holding a pre-built
// *Endpoint (see NewClientEndpoint / NewServerEndpoint) — unlike
// memtransport's broker, there is no safe zero-config default, since
// dialing or listening needs a real address from the caller.
func init() {
	registry.RegisterRpcTransport("tcp", func(opts map[string]any) (transport.RpcTransport, error) {
		ep, err := endpointFromOptions(opts)
		if err != nil {
			return nil, err
		}
		return NewRpcTransport(ep), nil
	})
	registry.RegisterResultTransport("tcp", func(opts map[string]any) (transport.ResultTransport, error) {
		ep, err := endpointFromOptions(opts)
		if err != nil {
			return nil, err
		}
		return NewResultTransport(ep), nil
	})
}

func endpointFromOptions(opts map[string]any) (*Endpoint, error) {
	v, ok := opts["endpoint"]
	if !ok {
		return nil, fmt.Errorf("tcptransport: options must carry a pre-built \"endpoint\"")
	}
	ep, ok := v.(*Endpoint)
	if !ok {
		return nil, fmt.Errorf("tcptransport: options[\"endpoint\"] must be a *Endpoint, got %T", v)
	}
	return ep, nil
}

// DefaultCodec is the codec new Endpoints should use absent a more
// specific choice; JSON, for readability during development and parity
// with the teacher's default.
var DefaultCodec codec.Codec = &codec.JSONCodec{}
