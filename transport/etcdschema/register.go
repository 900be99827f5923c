package etcdschema

import (
	"fmt"

	"corebus/registry"
	"corebus/transport"
)

// init registers the "etcd" schema transport. A selector's options must
// carry an "endpoints" key ([]string).
func init() {
	registry.RegisterSchemaTransport("etcd", func(opts map[string]any) (transport.SchemaTransport, error) {
		raw, ok := opts["endpoints"]
		if !ok {
			return nil, fmt.Errorf("etcdschema: options must carry \"endpoints\" ([]string)")
		}
		endpoints, ok := raw.([]string)
		if !ok {
			return nil, fmt.Errorf("etcdschema: options[\"endpoints\"] must be []string, got %T", raw)
		}
		return NewSchemaTransport(endpoints)
	})
}
