// Package etcdschema implements SchemaTransport over etcd v3: Store grants
// a TTL lease and puts the schema under it, Ping renews the lease, and Load
// lists everything currently under the shared key prefix.
//
// etcd expiring a lease on its own, with no explicit delete, is what gives
// a schema TTL its meaning — a server that stops Pinging (crashed or
// shut down) simply drops out of Load's result once its lease lapses.
package etcdschema

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/corebus/schema/"

// SchemaTransport is the etcd-backed SchemaTransport implementation.
type SchemaTransport struct {
	client *clientv3.Client

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // apiName -> active lease
}

// NewSchemaTransport dials etcd at the given endpoints.
func NewSchemaTransport(endpoints []string) (*SchemaTransport, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, fmt.Errorf("etcdschema: connect %v: %w", endpoints, err)
	}
	return &SchemaTransport{client: c, leases: make(map[string]clientv3.LeaseID)}, nil
}

func (t *SchemaTransport) Open(ctx context.Context) error  { return nil }
func (t *SchemaTransport) Close(ctx context.Context) error { return t.client.Close() }

// Store grants a fresh TTL lease and puts schema under it, replacing any
// previous lease for apiName. The lease ID is recorded in t.leases for
// Ping; the lock is only held to update that map entry, never across the
// etcd round trip, so concurrent Store calls for different APIs don't
// serialize.
func (t *SchemaTransport) Store(ctx context.Context, apiName string, schema map[string]any, ttlSeconds int64) error {
	lease, err := t.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return fmt.Errorf("etcdschema: grant lease for %s: %w", apiName, err)
	}

	val, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("etcdschema: marshal schema for %s: %w", apiName, err)
	}

	_, err = t.client.Put(ctx, keyPrefix+apiName, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return fmt.Errorf("etcdschema: put schema for %s: %w", apiName, err)
	}

	t.mu.Lock()
	t.leases[apiName] = lease.ID
	t.mu.Unlock()
	return nil
}

// Ping keeps apiName's schema alive. If a lease is already on record it
// sends a single KeepAliveOnce heartbeat; a caller that never called Store
// first (or whose lease already expired) falls back to a fresh Store, the
// same recovery path the teacher's KeepAlive loop gets for free by running
// continuously in the background.
func (t *SchemaTransport) Ping(ctx context.Context, apiName string, schema map[string]any, ttlSeconds int64) error {
	t.mu.Lock()
	leaseID, ok := t.leases[apiName]
	t.mu.Unlock()
	if !ok {
		return t.Store(ctx, apiName, schema, ttlSeconds)
	}

	if _, err := t.client.KeepAliveOnce(ctx, leaseID); err != nil {
		return t.Store(ctx, apiName, schema, ttlSeconds)
	}
	return nil
}

// Load returns every schema currently stored under the shared prefix,
// across all processes sharing this etcd cluster — not just the ones this
// SchemaTransport instance has itself Stored.
func (t *SchemaTransport) Load(ctx context.Context) (map[string]map[string]any, error) {
	resp, err := t.client.Get(ctx, keyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcdschema: list schemas: %w", err)
	}

	out := make(map[string]map[string]any, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		apiName := string(kv.Key[len(keyPrefix):])
		var schema map[string]any
		if err := json.Unmarshal(kv.Value, &schema); err != nil {
			continue
		}
		out[apiName] = schema
	}
	return out, nil
}
