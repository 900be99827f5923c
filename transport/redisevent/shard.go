// Package redisevent implements EventTransport over Redis Streams: SendEvent
// is XADD, Consume is a consumer-group XREADGROUP loop, Acknowledge is
// XACK, and History is XREVRANGE. Consumer groups give at-least-once
// delivery semantics for free — an entry stays in a group's Pending
// Entries List until XACK'd, so a listener that crashes before acking
// sees it again on restart, the same contract memtransport's ack-cursor
// log gives in-process.
package redisevent

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"corebus/loadbalance"
)

// ShardSet is the set of Redis connections an EventTransport routes across.
// With a ConsistentHashBalancer a stream key ("corebus:event:<api>:<event>")
// always resolves to the same shard — spreading a large deployment's event
// traffic across more than one Redis instance while keeping each
// individual stream's entries (and therefore its ordering) on one shard.
// The other balancers pick a shard on every call, so the same stream key
// can resolve to different shards.
type ShardSet struct {
	clients  []*redis.Client
	balancer loadbalance.Balancer
	shards   []loadbalance.Shard
}

// ShardConfig names one Redis connection's address and relative weight
// (used only by the WeightedRandom strategy).
type ShardConfig struct {
	Addr     string
	Password string
	DB       int
	Weight   int
}

// NewShardSet dials one *redis.Client per config entry and wires them
// behind balancer. A single-shard deployment just passes one config and
// any balancer (RoundRobin degenerates to always picking it).
func NewShardSet(ctx context.Context, configs []ShardConfig, balancer loadbalance.Balancer) (*ShardSet, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("redisevent: at least one shard is required")
	}

	ss := &ShardSet{balancer: balancer}
	for _, cfg := range configs {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("redisevent: ping %s: %w", cfg.Addr, err)
		}

		ss.clients = append(ss.clients, client)
		shard := loadbalance.Shard{Addr: cfg.Addr, Weight: cfg.Weight}
		ss.shards = append(ss.shards, shard)

		if ring, ok := balancer.(*loadbalance.ConsistentHashBalancer); ok {
			ring.Add(&ss.shards[len(ss.shards)-1])
		}
	}
	return ss, nil
}

// clientFor resolves the *redis.Client that owns streamKey.
func (ss *ShardSet) clientFor(streamKey string) (*redis.Client, error) {
	var (
		picked *loadbalance.Shard
		err    error
	)
	if ring, ok := ss.balancer.(*loadbalance.ConsistentHashBalancer); ok {
		picked, err = ring.PickForKey(streamKey)
	} else {
		picked, err = ss.balancer.Pick(ss.shards)
	}
	if err != nil {
		return nil, err
	}
	for i, s := range ss.shards {
		if s.Addr == picked.Addr {
			return ss.clients[i], nil
		}
	}
	return nil, fmt.Errorf("redisevent: balancer picked unknown shard %q", picked.Addr)
}

// Close closes every shard's connection.
func (ss *ShardSet) Close() error {
	var firstErr error
	for _, c := range ss.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
