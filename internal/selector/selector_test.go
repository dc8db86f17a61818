package selector_test

import (
	"testing"

	"switchgear/internal/model"
	"switchgear/internal/selector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backendEntry(key string, weight uint32, inbound int64) selector.Entry {
	addr := model.Address{Kind: model.AddressURL, URL: key}
	return selector.Entry{
		Address: addr,
		Backend: model.DiscoveryBackend{Address: addr, Name: key, Weight: weight},
		Weight:  weight,
		Inbound: inbound,
	}
}

func publishSingle(partition string, entries []selector.Entry) *selector.Pool {
	pool := selector.NewPool()
	pool.Publish(map[string]*selector.Snapshot{
		partition: selector.BuildSnapshot(partition, entries, 0),
	})
	return pool
}

func drain(t *testing.T, stream selector.Stream) []string {
	t.Helper()
	var keys []string
	for {
		c, ok := stream.Next()
		if !ok {
			break
		}
		keys = append(keys, c.Backend.Address.Key())
		c.Release()
	}
	return keys
}

func TestCandidatesReturnsFalseForUnknownPartition(t *testing.T) {
	pool := selector.NewPool()
	sel := selector.New(pool, selector.Config{Policy: selector.PolicyRoundRobin, MaxIterations: 10})

	_, ok := sel.Candidates(selector.Request{Partition: "missing", AmountMsat: 1000})
	assert.False(t, ok)
}

func TestRoundRobinVisitsEachEligibleBackendExactlyOnce(t *testing.T) {
	entries := []selector.Entry{
		backendEntry("a", 1, 1_000_000),
		backendEntry("b", 2, 1_000_000),
		backendEntry("c", 1, 1_000_000),
	}
	pool := publishSingle("default", entries)
	sel := selector.New(pool, selector.Config{Policy: selector.PolicyRoundRobin, MaxIterations: 10})

	stream, ok := sel.Candidates(selector.Request{Partition: "default", AmountMsat: 1000})
	require.True(t, ok)

	keys := drain(t, stream)
	assert.ElementsMatch(t, []string{"url:a", "url:b", "url:c"}, keys)
	assert.Len(t, keys, 3)
}

func TestRandomPolicyVisitsEachEligibleBackendExactlyOnce(t *testing.T) {
	entries := []selector.Entry{
		backendEntry("a", 1, 1_000_000),
		backendEntry("b", 3, 1_000_000),
		backendEntry("c", 1, 1_000_000),
	}
	pool := publishSingle("default", entries)
	sel := selector.New(pool, selector.Config{Policy: selector.PolicyRandom, MaxIterations: 10})

	stream, ok := sel.Candidates(selector.Request{Partition: "default", AmountMsat: 1000})
	require.True(t, ok)

	keys := drain(t, stream)
	assert.ElementsMatch(t, []string{"url:a", "url:b", "url:c"}, keys)
}

func TestConsistentPolicyIsStableForSameRoutingKey(t *testing.T) {
	entries := []selector.Entry{
		backendEntry("a", 1, 1_000_000),
		backendEntry("b", 1, 1_000_000),
		backendEntry("c", 1, 1_000_000),
	}
	pool := publishSingle("default", entries)
	sel := selector.New(pool, selector.Config{Policy: selector.PolicyConsistent, MaxIterations: 10})

	req := selector.Request{Partition: "default", OfferID: "offer-123", AmountMsat: 1000}

	firstStream, ok := sel.Candidates(req)
	require.True(t, ok)
	first, firstOK := firstStream.Next()
	require.True(t, firstOK)
	first.Release()

	secondStream, ok := sel.Candidates(req)
	require.True(t, ok)
	second, secondOK := secondStream.Next()
	require.True(t, secondOK)
	second.Release()

	assert.Equal(t, first.Backend.Address.Key(), second.Backend.Address.Key())
}

func TestCapacityFilterRelaxesWhenNoEntrySatisfiesBias(t *testing.T) {
	entries := []selector.Entry{
		backendEntry("a", 1, 100),
		backendEntry("b", 1, 200),
	}
	pool := publishSingle("default", entries)
	sel := selector.New(pool, selector.Config{Policy: selector.PolicyRoundRobin, MaxIterations: 10, CapacityBias: 0})

	// amount far exceeds every backend's inbound capacity: the filter
	// must relax back to the full set rather than starving the request.
	stream, ok := sel.Candidates(selector.Request{Partition: "default", AmountMsat: 1_000_000})
	require.True(t, ok)

	keys := drain(t, stream)
	assert.ElementsMatch(t, []string{"url:a", "url:b"}, keys)
}

func TestCapacityFilterExcludesUndersizedBackendsWhenOthersQualify(t *testing.T) {
	entries := []selector.Entry{
		backendEntry("small", 1, 100),
		backendEntry("big", 1, 10_000_000),
	}
	pool := publishSingle("default", entries)
	sel := selector.New(pool, selector.Config{Policy: selector.PolicyRoundRobin, MaxIterations: 10, CapacityBias: 0})

	stream, ok := sel.Candidates(selector.Request{Partition: "default", AmountMsat: 1_000_000})
	require.True(t, ok)

	keys := drain(t, stream)
	assert.Equal(t, []string{"url:big"}, keys)
}

func TestConsistentPolicyServesCommentRequestFromSoleBackend(t *testing.T) {
	entries := []selector.Entry{backendEntry("a", 1, 1_000_000)}
	pool := publishSingle("default", entries)
	sel := selector.New(pool, selector.Config{Policy: selector.PolicyConsistent, MaxIterations: 10, CommentAllowed: 1})

	withComment, ok := sel.Candidates(selector.Request{Partition: "default", OfferID: "offer-1", AmountMsat: 1000, Comment: "hi"})
	require.True(t, ok)
	c, ok := withComment.Next()
	require.True(t, ok)
	c.Release()
	assert.Equal(t, "url:a", c.Backend.Address.Key())
}
