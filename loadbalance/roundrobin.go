package loadbalance

import (
	"fmt"
	"sync/atomic"
)

// RoundRobinBalancer distributes routing decisions evenly across all shards
// in order. Uses an atomic counter for lock-free, goroutine-safe operation.
//
// Best for: equal-capacity shards with no need for stream affinity.
type RoundRobinBalancer struct {
	counter int64 // Atomic counter, incremented on each Pick()
}

// Pick selects the next shard in round-robin order.
func (b *RoundRobinBalancer) Pick(shards []Shard) (*Shard, error) {
	if len(shards) == 0 {
		return nil, fmt.Errorf("no shards available")
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(shards))
	return &shards[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
