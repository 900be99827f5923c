package registry

import (
	"context"
	"fmt"
	"sync"

	"corebus/buserrs"
	"corebus/config"
	"corebus/transport"
)

// Concrete transport packages (tcptransport, redisevent, etcdschema,
// memtransport) register their constructors here via an init() side
// effect, the Go analogue of lightbus's setup.py entrypoints
// (lightbus_rpc_transports, lightbus_event_transports, ...): the registry
// itself never imports a concrete transport package, so adding a new
// transport never touches this file.

// RpcFactory builds an RpcTransport from a selector's options.
type RpcFactory func(opts map[string]any) (transport.RpcTransport, error)

// ResultFactory builds a ResultTransport from a selector's options.
type ResultFactory func(opts map[string]any) (transport.ResultTransport, error)

// EventFactory builds an EventTransport from a selector's options.
type EventFactory func(opts map[string]any) (transport.EventTransport, error)

// SchemaFactory builds a SchemaTransport from a selector's options.
type SchemaFactory func(opts map[string]any) (transport.SchemaTransport, error)

var (
	factoryMu       sync.Mutex
	rpcFactories    = map[string]RpcFactory{}
	resultFactories = map[string]ResultFactory{}
	eventFactories  = map[string]EventFactory{}
	schemaFactories = map[string]SchemaFactory{}
)

// RegisterRpcTransport makes a named rpc transport available to LoadConfig.
func RegisterRpcTransport(name string, f RpcFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	rpcFactories[name] = f
}

// RegisterResultTransport makes a named result transport available to LoadConfig.
func RegisterResultTransport(name string, f ResultFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	resultFactories[name] = f
}

// RegisterEventTransport makes a named event transport available to LoadConfig.
func RegisterEventTransport(name string, f EventFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	eventFactories[name] = f
}

// RegisterSchemaTransport makes a named schema transport available to LoadConfig.
func RegisterSchemaTransport(name string, f SchemaFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	schemaFactories[name] = f
}

// defaultPoolSize is used when a selector's options omit "pool_size".
const defaultPoolSize = 8

func poolSize(opts map[string]any) int {
	if v, ok := opts["pool_size"]; ok {
		if n, ok := v.(int); ok && n > 0 {
			return n
		}
	}
	return defaultPoolSize
}

// LoadConfig wires every API's configured transports (and the bus-wide
// schema transport) into pools registered on r, using whichever
// transport packages have called Register*Transport. Mirrors lightbus's
// TransportRegistry.load_config: each transport_selector names exactly
// one transport by type and is resolved to a pool, keyed by API name.
func (r *TransportRegistry) LoadConfig(cfg *config.Config) error {
	for apiName, apiCfg := range cfg.APIs {
		if !apiCfg.RPCTransport.IsZero() {
			factoryMu.Lock()
			f, ok := rpcFactories[apiCfg.RPCTransport.Name]
			factoryMu.Unlock()
			if !ok {
				return fmt.Errorf("api %q: %w", apiName, &buserrs.TransportsNotInstalledError{Family: "rpc:" + apiCfg.RPCTransport.Name})
			}
			opts := apiCfg.RPCTransport.Options
			pool := transport.NewPool[transport.RpcTransport](poolSize(opts), func(ctx context.Context) (transport.RpcTransport, error) {
				return f(opts)
			})
			r.SetRpcTransportPool(apiName, pool)
		}

		if !apiCfg.ResultTransport.IsZero() {
			factoryMu.Lock()
			f, ok := resultFactories[apiCfg.ResultTransport.Name]
			factoryMu.Unlock()
			if !ok {
				return fmt.Errorf("api %q: %w", apiName, &buserrs.TransportsNotInstalledError{Family: "result:" + apiCfg.ResultTransport.Name})
			}
			opts := apiCfg.ResultTransport.Options
			pool := transport.NewPool[transport.ResultTransport](poolSize(opts), func(ctx context.Context) (transport.ResultTransport, error) {
				return f(opts)
			})
			r.SetResultTransportPool(apiName, pool)
		}

		if !apiCfg.EventTransport.IsZero() {
			factoryMu.Lock()
			f, ok := eventFactories[apiCfg.EventTransport.Name]
			factoryMu.Unlock()
			if !ok {
				return fmt.Errorf("api %q: %w", apiName, &buserrs.TransportsNotInstalledError{Family: "event:" + apiCfg.EventTransport.Name})
			}
			opts := apiCfg.EventTransport.Options
			pool := transport.NewPool[transport.EventTransport](poolSize(opts), func(ctx context.Context) (transport.EventTransport, error) {
				return f(opts)
			})
			r.SetEventTransportPool(apiName, pool)
		}
	}

	if sel := cfg.Bus.Schema.Transport; !sel.IsZero() {
		factoryMu.Lock()
		f, ok := schemaFactories[sel.Name]
		factoryMu.Unlock()
		if !ok {
			return fmt.Errorf("bus schema transport: %w", &buserrs.TransportsNotInstalledError{Family: "schema:" + sel.Name})
		}
		opts := sel.Options
		pool := transport.NewPool[transport.SchemaTransport](poolSize(opts), func(ctx context.Context) (transport.SchemaTransport, error) {
			return f(opts)
		})
		r.SetSchemaTransportPool(pool)
	}

	return nil
}
