package redisevent

import (
	"context"
	"fmt"

	"corebus/loadbalance"
	"corebus/registry"
	"corebus/transport"
)

// init registers the "redis" event transport. A selector's options must
// carry a "shards" key ([]ShardConfig) and may carry a "balance" key
// naming the routing strategy ("consistent_hash", "round_robin",
// "weighted_random"); it defaults to consistent hashing, the natural
// choice for pinning a stream's entries to one shard.
func init() {
	registry.RegisterEventTransport("redis", func(opts map[string]any) (transport.EventTransport, error) {
		shards, err := shardSetFromOptions(opts)
		if err != nil {
			return nil, err
		}
		return NewEventTransport(shards), nil
	})
}

func shardSetFromOptions(opts map[string]any) (*ShardSet, error) {
	if v, ok := opts["shardset"]; ok {
		if ss, ok := v.(*ShardSet); ok {
			return ss, nil
		}
		return nil, fmt.Errorf("redisevent: options[\"shardset\"] must be a *ShardSet, got %T", v)
	}

	raw, ok := opts["shards"]
	if !ok {
		return nil, fmt.Errorf("redisevent: options must carry \"shards\" ([]ShardConfig) or a pre-built \"shardset\"")
	}
	configs, ok := raw.([]ShardConfig)
	if !ok {
		return nil, fmt.Errorf("redisevent: options[\"shards\"] must be []ShardConfig, got %T", raw)
	}

	balancer := balancerFromOptions(opts)
	return NewShardSet(context.Background(), configs, balancer)
}

func balancerFromOptions(opts map[string]any) loadbalance.Balancer {
	name, _ := opts["balance"].(string)
	switch name {
	case "round_robin":
		return &loadbalance.RoundRobinBalancer{}
	case "weighted_random":
		return &loadbalance.WeightedRandomBalancer{}
	default:
		return loadbalance.NewConsistentHashBalancer()
	}
}
