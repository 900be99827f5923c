// Package registry resolves which transport pool serves a given API.
//
// Different APIs on the same bus can be wired to different transports —
// one API's events might go over Redis while another's go over an
// in-process transport used in tests. The registry holds that wiring and
// answers "which pool handles API X's rpc/result/event traffic", falling
// back to a pool registered under the special "default" API name when X
// has none of its own.
package registry

import (
	"corebus/buserrs"
	"corebus/transport"
)

// entry holds the three transport pools configured for one API name. Any
// of the three may be nil if that API doesn't use that transport family.
type entry struct {
	rpc    *transport.Pool[transport.RpcTransport]
	result *transport.Pool[transport.ResultTransport]
	event  *transport.Pool[transport.EventTransport]
}

// TransportRegistry maps API names to the transport pools that serve them,
// with a "default" API name acting as the fallback for APIs that configure
// none of their own.
type TransportRegistry struct {
	entries    map[string]*entry
	schemaPool *transport.Pool[transport.SchemaTransport]
}

// New returns an empty TransportRegistry. Use the Set* methods to wire
// pools directly, or LoadConfig to wire them from a config.Config, then
// the Get* methods to resolve them.
func New() *TransportRegistry {
	return &TransportRegistry{entries: make(map[string]*entry)}
}

func (r *TransportRegistry) entryFor(apiName string) *entry {
	e, ok := r.entries[apiName]
	if !ok {
		e = &entry{}
		r.entries[apiName] = e
	}
	return e
}

// SetRpcTransportPool wires pool as the rpc transport for apiName.
func (r *TransportRegistry) SetRpcTransportPool(apiName string, pool *transport.Pool[transport.RpcTransport]) {
	r.entryFor(apiName).rpc = pool
}

// SetResultTransportPool wires pool as the result transport for apiName.
func (r *TransportRegistry) SetResultTransportPool(apiName string, pool *transport.Pool[transport.ResultTransport]) {
	r.entryFor(apiName).result = pool
}

// SetEventTransportPool wires pool as the event transport for apiName.
func (r *TransportRegistry) SetEventTransportPool(apiName string, pool *transport.Pool[transport.EventTransport]) {
	r.entryFor(apiName).event = pool
}

// SetSchemaTransportPool wires the bus-wide schema transport pool.
func (r *TransportRegistry) SetSchemaTransportPool(pool *transport.Pool[transport.SchemaTransport]) {
	r.schemaPool = pool
}

// GetRpcTransportPool resolves apiName's rpc pool, falling back to
// "default" when apiName has none configured directly.
func (r *TransportRegistry) GetRpcTransportPool(apiName string) (*transport.Pool[transport.RpcTransport], error) {
	if e, ok := r.entries[apiName]; ok && e.rpc != nil {
		return e.rpc, nil
	}
	if apiName != "default" {
		if e, ok := r.entries["default"]; ok && e.rpc != nil {
			return e.rpc, nil
		}
	}
	return nil, &buserrs.TransportNotFoundError{TransportType: "rpc", APIName: apiName}
}

// GetResultTransportPool resolves apiName's result pool, falling back to
// "default" when apiName has none configured directly.
func (r *TransportRegistry) GetResultTransportPool(apiName string) (*transport.Pool[transport.ResultTransport], error) {
	if e, ok := r.entries[apiName]; ok && e.result != nil {
		return e.result, nil
	}
	if apiName != "default" {
		if e, ok := r.entries["default"]; ok && e.result != nil {
			return e.result, nil
		}
	}
	return nil, &buserrs.TransportNotFoundError{TransportType: "result", APIName: apiName}
}

// GetEventTransportPool resolves apiName's event pool, falling back to
// "default" when apiName has none configured directly.
func (r *TransportRegistry) GetEventTransportPool(apiName string) (*transport.Pool[transport.EventTransport], error) {
	if e, ok := r.entries[apiName]; ok && e.event != nil {
		return e.event, nil
	}
	if apiName != "default" {
		if e, ok := r.entries["default"]; ok && e.event != nil {
			return e.event, nil
		}
	}
	return nil, &buserrs.TransportNotFoundError{TransportType: "event", APIName: apiName}
}

// GetSchemaTransportPool resolves the bus-wide schema pool.
func (r *TransportRegistry) GetSchemaTransportPool() (*transport.Pool[transport.SchemaTransport], error) {
	if r.schemaPool != nil {
		return r.schemaPool, nil
	}
	return nil, &buserrs.TransportNotFoundError{TransportType: "schema", APIName: "default"}
}

// HasRpcTransport reports whether apiName resolves to an rpc pool, directly
// or via the default fallback.
func (r *TransportRegistry) HasRpcTransport(apiName string) bool {
	_, err := r.GetRpcTransportPool(apiName)
	return err == nil
}

// HasResultTransport reports whether apiName resolves to a result pool,
// directly or via the default fallback.
func (r *TransportRegistry) HasResultTransport(apiName string) bool {
	_, err := r.GetResultTransportPool(apiName)
	return err == nil
}

// HasEventTransport reports whether apiName resolves to an event pool,
// directly or via the default fallback.
func (r *TransportRegistry) HasEventTransport(apiName string) bool {
	_, err := r.GetEventTransportPool(apiName)
	return err == nil
}

// RpcTransportGroup is one rpc pool and the API names that share it.
type RpcTransportGroup struct {
	Pool     *transport.Pool[transport.RpcTransport]
	APINames []string
}

// GetRpcTransportPools groups apiNames by the rpc pool that serves them,
// so a caller that needs to listen across several APIs can spawn one
// listener task per distinct pool instead of one per API.
func (r *TransportRegistry) GetRpcTransportPools(apiNames []string) ([]RpcTransportGroup, error) {
	order := []*transport.Pool[transport.RpcTransport]{}
	byPool := map[*transport.Pool[transport.RpcTransport]][]string{}
	for _, name := range apiNames {
		pool, err := r.GetRpcTransportPool(name)
		if err != nil {
			return nil, err
		}
		if _, seen := byPool[pool]; !seen {
			order = append(order, pool)
		}
		byPool[pool] = append(byPool[pool], name)
	}
	groups := make([]RpcTransportGroup, 0, len(order))
	for _, pool := range order {
		groups = append(groups, RpcTransportGroup{Pool: pool, APINames: byPool[pool]})
	}
	return groups, nil
}

// EventTransportGroup is one event pool and the API names that share it.
type EventTransportGroup struct {
	Pool     *transport.Pool[transport.EventTransport]
	APINames []string
}

// GetEventTransportPools groups apiNames by the event pool that serves
// them, mirroring GetRpcTransportPools.
func (r *TransportRegistry) GetEventTransportPools(apiNames []string) ([]EventTransportGroup, error) {
	order := []*transport.Pool[transport.EventTransport]{}
	byPool := map[*transport.Pool[transport.EventTransport]][]string{}
	for _, name := range apiNames {
		pool, err := r.GetEventTransportPool(name)
		if err != nil {
			return nil, err
		}
		if _, seen := byPool[pool]; !seen {
			order = append(order, pool)
		}
		byPool[pool] = append(byPool[pool], name)
	}
	groups := make([]EventTransportGroup, 0, len(order))
	for _, pool := range order {
		groups = append(groups, EventTransportGroup{Pool: pool, APINames: byPool[pool]})
	}
	return groups, nil
}

// AllTransportPools returns every distinct pool registered across every
// API and transport family, plus the schema pool if set. Used to close
// every open pool during bus shutdown without tracking them separately.
func (r *TransportRegistry) AllTransportPools() []any {
	seen := map[any]bool{}
	var all []any
	add := func(p any) {
		if p == nil || seen[p] {
			return
		}
		seen[p] = true
		all = append(all, p)
	}
	for _, e := range r.entries {
		if e.rpc != nil {
			add(e.rpc)
		}
		if e.result != nil {
			add(e.result)
		}
		if e.event != nil {
			add(e.event)
		}
	}
	if r.schemaPool != nil {
		add(r.schemaPool)
	}
	return all
}
