package selector

import "math/rand"

// randomStream implements spec.md §4.2's random policy: a
// weighted-with-replacement pick for the first candidate, then
// successive weighted draws over the remaining (not-yet-tried)
// entries — equivalent to randomizing the tail by remaining weight.
// Indices returned are into the Snapshot.Entries slice passed at
// construction, restricted to the allowed set.
type randomStream struct {
	remaining []int    // indices into Snapshot.Entries not yet yielded
	weights   []uint32 // weights parallel to remaining
	rng       *rand.Rand
}

func newRandomStream(entries []Entry, allowed map[int]bool, rng *rand.Rand) *randomStream {
	remaining := make([]int, 0, len(entries))
	weights := make([]uint32, 0, len(entries))
	for i, e := range entries {
		if e.Weight == 0 || !allowed[i] {
			continue
		}
		remaining = append(remaining, i)
		weights = append(weights, e.Weight)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &randomStream{remaining: remaining, weights: weights, rng: rng}
}

func (s *randomStream) Next() (int, bool) {
	if len(s.remaining) == 0 {
		return 0, false
	}

	var total uint32
	for _, w := range s.weights {
		total += w
	}
	pick := uint32(s.rng.Int63n(int64(total)))

	var cumulative uint32
	chosen := len(s.remaining) - 1
	for i, w := range s.weights {
		cumulative += w
		if pick < cumulative {
			chosen = i
			break
		}
	}

	idx := s.remaining[chosen]
	s.remaining = append(s.remaining[:chosen], s.remaining[chosen+1:]...)
	s.weights = append(s.weights[:chosen], s.weights[chosen+1:]...)
	return idx, true
}
