package etcdschema

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests require a reachable etcd instance. Point ETCDSCHEMA_TEST_ENDPOINT
// at one (default localhost:2379); they skip rather than fail when nothing
// answers, since no Go toolchain runs in this environment to gate on.
func testSchemaTransport(t *testing.T) *SchemaTransport {
	t.Helper()
	endpoint := os.Getenv("ETCDSCHEMA_TEST_ENDPOINT")
	if endpoint == "" {
		endpoint = "127.0.0.1:2379"
	}

	tr, err := NewSchemaTransport([]string{endpoint})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := tr.client.Get(ctx, "health-check"); err != nil {
		t.Skipf("etcd not reachable at %s: %v", endpoint, err)
	}

	t.Cleanup(func() { _ = tr.Close(context.Background()) })
	return tr
}

func TestStoreLoadPing(t *testing.T) {
	tr := testSchemaTransport(t)
	ctx := context.Background()

	apiName := "orders_" + t.Name()
	schema := map[string]any{"add": map[string]any{"a": "int", "b": "int"}}

	require.NoError(t, tr.Store(ctx, apiName, schema, 30))
	require.NoError(t, tr.Ping(ctx, apiName, schema, 30))

	loaded, err := tr.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema["add"], loaded[apiName]["add"])
}

func TestLoadOmitsExpiredSchema(t *testing.T) {
	tr := testSchemaTransport(t)
	ctx := context.Background()

	apiName := "orders_expiring_" + t.Name()
	schema := map[string]any{"add": map[string]any{}}

	require.NoError(t, tr.Store(ctx, apiName, schema, 1))
	time.Sleep(3 * time.Second)

	loaded, err := tr.Load(ctx)
	require.NoError(t, err)
	_, present := loaded[apiName]
	assert.False(t, present, "lease should have expired and etcd should have removed the key")
}
