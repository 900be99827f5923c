package loadbalance

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testShards = []Shard{
	{Addr: ":8001", Weight: 10},
	{Addr: ":8002", Weight: 5},
	{Addr: ":8003", Weight: 10},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		shard, err := b.Pick(testShards)
		require.NoError(t, err)
		results[i] = shard.Addr
	}

	shard, err := b.Pick(testShards)
	require.NoError(t, err)
	assert.Equal(t, results[0], shard.Addr, "round robin should wrap around to the first shard")
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	_, err := b.Pick(nil)
	assert.Error(t, err)
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		shard, err := b.Pick(testShards)
		require.NoError(t, err)
		counts[shard.Addr]++
	}

	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	assert.InDelta(t, 2.0, ratio, 0.5, "weight ratio 10:5 should land close to 2.0")
}

func TestConsistentHashPicksSameShardForSameKey(t *testing.T) {
	b := NewConsistentHashBalancer()
	for i := range testShards {
		b.Add(&testShards[i])
	}

	s1, err := b.PickForKey("company.auth.user_created")
	require.NoError(t, err)
	s2, err := b.PickForKey("company.auth.user_created")
	require.NoError(t, err)
	assert.Equal(t, s1.Addr, s2.Addr, "the same stream key must always land on the same shard")

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		s, err := b.PickForKey(fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		seen[s.Addr] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2, "100 distinct keys across 3 shards should spread across at least 2")
}
