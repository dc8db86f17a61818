package selector

import "sync/atomic"

// roundRobinIndex implements spec.md §4.2's weighted round-robin:
// each eligible backend is expanded `weight` times into one flat
// index, and a per-snapshot atomic cursor walks it. The index resets
// whenever the snapshot is rebuilt, which is acceptable since a
// rebuild already changes the eligible set.
type roundRobinIndex struct {
	expansion []int // indices into Snapshot.Entries, each backend repeated Weight times
	cursor    atomic.Uint64
}

func newRoundRobinIndex(entries []Entry) *roundRobinIndex {
	idx := &roundRobinIndex{}
	for i, e := range entries {
		w := int(e.Weight)
		if w == 0 {
			continue
		}
		for j := 0; j < w; j++ {
			idx.expansion = append(idx.expansion, i)
		}
	}
	return idx
}

// next returns the next flat-expansion position, advancing the shared
// cursor by one. Returns false if the expansion is empty.
func (r *roundRobinIndex) next() (int, bool) {
	if len(r.expansion) == 0 {
		return 0, false
	}
	pos := r.cursor.Add(1) - 1
	return r.expansion[int(pos%uint64(len(r.expansion)))], true
}

// roundRobinStream yields eligible entries in weighted round-robin
// order, skipping any entry index already yielded, until every
// distinct entry index has been produced once.
type roundRobinStream struct {
	idx    *roundRobinIndex
	seen   map[int]bool
	left   int
	budget int // total idx.next() calls remaining across this stream's lifetime
}

func newRoundRobinStream(idx *roundRobinIndex, distinctEntries int) *roundRobinStream {
	return &roundRobinStream{
		idx:    idx,
		seen:   map[int]bool{},
		left:   distinctEntries,
		budget: len(idx.expansion) + 1,
	}
}

func (s *roundRobinStream) Next() (int, bool) {
	if s.left <= 0 {
		return 0, false
	}
	for s.budget > 0 {
		s.budget--
		pos, ok := s.idx.next()
		if !ok {
			return 0, false
		}
		if s.seen[pos] {
			continue
		}
		s.seen[pos] = true
		s.left--
		return pos, true
	}
	return 0, false
}
