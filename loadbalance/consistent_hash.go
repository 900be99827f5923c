package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
)

// ConsistentHashBalancer maps keys (here, "api.event" stream names) to
// shards using a hash ring. The same key always maps to the same shard
// (until the ring changes), keeping a given event stream pinned to one
// Redis connection — the property an EventTransport's consumer group needs
// to preserve per-stream ordering.
//
// Virtual nodes: each real shard is mapped to N virtual nodes on the ring.
// Without virtual nodes, a handful of shards might cluster together,
// causing uneven distribution. 100 virtual nodes per shard ensures
// statistical uniformity.
type ConsistentHashBalancer struct {
	replicas int              // Virtual nodes per real shard
	ring     []uint32         // Sorted hash values on the ring
	nodes    map[uint32]*Shard // Hash value → shard mapping
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per shard.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		ring:     []uint32{},
		nodes:    make(map[uint32]*Shard),
	}
}

// Add places a shard onto the hash ring with N virtual nodes.
// Each virtual node is hashed from "{addr}#{i}" to spread evenly across the ring.
func (b *ConsistentHashBalancer) Add(shard *Shard) {
	for i := 0; i < b.replicas; i++ {
		key := fmt.Sprintf("%s#%d", shard.Addr, i)
		hash := crc32.ChecksumIEEE([]byte(key))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = shard
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// PickForKey finds the shard responsible for the given stream key. It
// hashes the key, then binary-searches for the first node >= hash on the
// ring, wrapping around to the first node if the hash exceeds all of them.
func (b *ConsistentHashBalancer) PickForKey(key string) (*Shard, error) {
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("no shards available")
	}

	hash := crc32.ChecksumIEEE([]byte(key))

	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}

	return b.nodes[b.ring[idx]], nil
}

// Pick satisfies Balancer by hashing an empty key against a ring built
// from shards on each call; the receiver's own ring is left untouched.
// Callers that need stream affinity should prefer PickForKey directly
// against a pre-built ring.
func (b *ConsistentHashBalancer) Pick(shards []Shard) (*Shard, error) {
	ring := &ConsistentHashBalancer{replicas: b.replicas, nodes: make(map[uint32]*Shard, len(shards)*b.replicas)}
	for i := range shards {
		ring.Add(&shards[i])
	}
	return ring.PickForKey("")
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
