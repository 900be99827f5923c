// Package buslog gives every corebus component a named, leveled logger.
//
// go.uber.org/zap is already pulled in transitively by go.etcd.io/etcd/client/v3
// (etcd's own client accepts a *zap.Logger directly); this package promotes
// it to a direct dependency and is the one place component construction
// reaches for a default logger if the caller doesn't supply one.
package buslog

import "go.uber.org/zap"

// Named returns a child logger scoped to the given component name. A nil
// base falls back to a production zap logger.
func Named(base *zap.Logger, name string) *zap.Logger {
	if base == nil {
		base, _ = zap.NewProduction()
	}
	return base.Named(name)
}

// NewNop returns a logger that discards everything, for tests that don't
// want log noise.
func NewNop() *zap.Logger {
	return zap.NewNop()
}
