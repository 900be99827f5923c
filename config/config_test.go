package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFilePresent(t *testing.T) {
	dir := t.TempDir()
	cfg, err := NewLoader(WithConfigPaths(filepath.Join(dir, "missing.yaml"))).Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Bus.Schema.Transport.Name)
	assert.Empty(t, cfg.APIs)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bus.yaml")
	content := `
bus:
  schema:
    transport:
      name: etcd
      options:
        endpoints: ["127.0.0.1:2379"]
apis:
  mycompany.auth:
    rpc_transport:
      name: tcp
      options:
        addr: "127.0.0.1:9001"
    event_transport:
      name: redis
      options:
        addrs: ["127.0.0.1:6379"]
    cast_values: true
  default:
    rpc_transport:
      name: tcp
      options:
        addr: "127.0.0.1:9000"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewLoader(WithConfigPaths(path)).Load()
	require.NoError(t, err)

	assert.Equal(t, "etcd", cfg.Bus.Schema.Transport.Name)
	auth, ok := cfg.APIs["mycompany.auth"]
	require.True(t, ok)
	assert.Equal(t, "tcp", auth.RPCTransport.Name)
	assert.Equal(t, "redis", auth.EventTransport.Name)
	assert.True(t, auth.CastValues)

	def, ok := cfg.APIs["default"]
	require.True(t, ok)
	assert.Equal(t, "tcp", def.RPCTransport.Name)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bus.yaml")
	content := "bus:\n  schema:\n    transport:\n      name: etcd\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("COREBUS_BUS_SCHEMA_TRANSPORT_NAME", "memory")

	cfg, err := NewLoader(WithConfigPaths(path)).Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Bus.Schema.Transport.Name)
}

func TestValidateRejectsOptionsWithoutName(t *testing.T) {
	cfg := &Config{
		APIs: map[string]APIConfig{
			"mycompany.auth": {
				RPCTransport: TransportSelector{Options: map[string]any{"addr": "x"}},
			},
		},
	}
	assert.Error(t, cfg.Validate())
}
