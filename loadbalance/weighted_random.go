package loadbalance

import (
	"fmt"
	"math/rand"
)

// WeightedRandomBalancer selects shards probabilistically based on their
// weight. A shard with weight 10 gets roughly 2x the traffic of one with
// weight 5.
//
// Best for: heterogeneous shards (e.g. some Redis nodes have more memory).
//
// Algorithm:
//  1. Sum all weights → totalWeight
//  2. Generate random number r in [0, totalWeight)
//  3. Subtract each shard's weight from r until r < 0
//  4. The shard that makes r negative is selected
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(shards []Shard) (*Shard, error) {
	if len(shards) == 0 {
		return nil, fmt.Errorf("no shards available")
	}

	totalWeight := 0
	for _, v := range shards {
		totalWeight += v.Weight
	}

	r := rand.Intn(totalWeight)
	for i := range shards {
		r -= shards[i].Weight
		if r < 0 {
			return &shards[i], nil
		}
	}

	return nil, fmt.Errorf("unexpected error in weighted random selection")
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
