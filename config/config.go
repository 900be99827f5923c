// Package config defines the configuration surface a bus loads before
// wiring its transport registry: which transport serves each API's rpc,
// result, and event traffic, and the bus-wide schema transport.
package config

import "fmt"

// Config is the full configuration tree, unmarshalled from YAML/env/
// defaults by Loader.Load.
type Config struct {
	Bus  BusConfig            `koanf:"bus"`
	APIs map[string]APIConfig `koanf:"apis"`
}

// BusConfig holds settings that apply to the bus as a whole rather than
// to one API.
type BusConfig struct {
	Schema SchemaConfig `koanf:"schema"`
}

// SchemaConfig selects the transport used to share API schemas between
// processes.
type SchemaConfig struct {
	Transport TransportSelector `koanf:"transport"`
}

// APIConfig is one API's transport wiring. Any selector left with an
// empty Name falls back to whatever the "default" API configures — see
// registry.TransportRegistry.
type APIConfig struct {
	RPCTransport    TransportSelector `koanf:"rpc_transport"`
	ResultTransport TransportSelector `koanf:"result_transport"`
	EventTransport  TransportSelector `koanf:"event_transport"`

	// CastValues enables best-effort coercion of incoming RPC kwargs to the
	// procedure's declared parameter types (see package api). Event kwargs
	// are not cast.
	CastValues bool `koanf:"cast_values"`
}

// TransportSelector names a transport implementation ("memory", "tcp",
// "redis", "etcd", ...) plus the backend-specific options it needs
// (addresses, pool size, consumer group name, ...). This flattens
// lightbus's config union (one NamedTuple field per known transport
// name) into a single name+options pair, since Go has no direct
// equivalent of that tagged-NamedTuple trick.
type TransportSelector struct {
	Name    string         `koanf:"name"`
	Options map[string]any `koanf:"options"`
}

// IsZero reports whether the selector names no transport at all.
func (s TransportSelector) IsZero() bool {
	return s.Name == ""
}

// Validate checks structural invariants that unmarshalling alone can't
// enforce: every named API must select a non-empty transport name
// wherever it selects a transport at all, and CastValues interacts with
// procedure binding only when an API is actually configured.
func (c *Config) Validate() error {
	for name, api := range c.APIs {
		for _, sel := range []struct {
			kind string
			ts   TransportSelector
		}{
			{"rpc_transport", api.RPCTransport},
			{"result_transport", api.ResultTransport},
			{"event_transport", api.EventTransport},
		} {
			if sel.ts.Name == "" && sel.ts.Options != nil {
				return fmt.Errorf("api %q: %s has options but no transport name", name, sel.kind)
			}
		}
	}
	return nil
}
