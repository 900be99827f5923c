// Package loadbalance provides shard-selection strategies for event
// transports backed by more than one broker address.
//
// Originally written to pick which server instance should receive an RPC
// call (service discovery, which spec.md names as an explicit non-goal for
// this client), the same three strategies are repurposed here to pick which
// address of a multi-address EventTransport (see transport/redisevent)
// should own a given api.event stream:
//   - RoundRobin:      shards with equal capacity
//   - WeightedRandom:  heterogeneous shards (different memory/throughput)
//   - ConsistentHash:  keep a given event stream pinned to one shard
package loadbalance

// Shard identifies one address a multi-address transport can route to.
type Shard struct {
	Addr   string // Network address, e.g. "127.0.0.1:6379"
	Weight int    // Relative weight for WeightedRandom
}

// Balancer picks one shard from the configured set.
type Balancer interface {
	// Pick selects one shard from the available list. Called on every
	// routing decision — must be goroutine-safe.
	Pick(shards []Shard) (*Shard, error)

	// Name returns the strategy name (for logging/config validation).
	Name() string
}
