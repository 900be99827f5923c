package memtransport

import (
	"corebus/registry"
	"corebus/transport"
)

// init registers the "memory" transport under every family, the Go
// analogue of lightbus's debug transport entrypoints. A selector's options
// may carry a "broker" key holding a *Broker shared with whoever else
// needs to talk to the same in-process bus; omitting it falls back to a
// package-level default broker, which is enough for a single-process test
// where every API uses the "memory" transport with no explicit wiring.
func init() {
	registry.RegisterRpcTransport("memory", func(opts map[string]any) (transport.RpcTransport, error) {
		return NewRpcTransport(brokerFromOptions(opts)), nil
	})
	registry.RegisterResultTransport("memory", func(opts map[string]any) (transport.ResultTransport, error) {
		return NewResultTransport(brokerFromOptions(opts)), nil
	})
	registry.RegisterEventTransport("memory", func(opts map[string]any) (transport.EventTransport, error) {
		return NewEventTransport(brokerFromOptions(opts)), nil
	})
	registry.RegisterSchemaTransport("memory", func(opts map[string]any) (transport.SchemaTransport, error) {
		return NewSchemaTransport(brokerFromOptions(opts)), nil
	})
}

var defaultBroker = NewBroker()

// brokerFromOptions resolves the *Broker a transport should share, reading
// opts["broker"] when present and falling back to a package-level default
// otherwise.
func brokerFromOptions(opts map[string]any) *Broker {
	if v, ok := opts["broker"]; ok {
		if b, ok := v.(*Broker); ok {
			return b
		}
	}
	return defaultBroker
}
