package selector

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// vnodesPerWeightUnit is "k" from spec.md §4.2: the number of virtual
// nodes placed on the ring for each unit of a backend's weight.
const vnodesPerWeightUnit = 100

// boundedLoadFactor bounds how far above the minimum current in-flight
// load (among eligible backends) a candidate may sit and still be
// accepted by the consistent policy's walk, per spec.md §4.2.
const boundedLoadFactor = 1.25

type ringNode struct {
	hash     uint64
	entryIdx int
}

// consistentRing is the Ketama-style hash ring used by the consistent
// selection policy: vnodesPerWeightUnit virtual points per weight
// unit, looked up by hashing (entry address || virtual-node-id) and
// sorted so a lookup key walks the ring via binary search.
type consistentRing struct {
	nodes []ringNode // sorted by hash ascending
}

func newConsistentRing(entries []Entry, vnodesOverride int) *consistentRing {
	k := vnodesPerWeightUnit
	if vnodesOverride > 0 {
		k = vnodesOverride
	}

	var nodes []ringNode
	for i, e := range entries {
		units := int(e.Weight)
		if units == 0 {
			continue
		}
		for u := 0; u < units*k; u++ {
			h := hashVirtualNode(e.Address.Key(), u)
			nodes = append(nodes, ringNode{hash: h, entryIdx: i})
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].hash < nodes[j].hash })
	return &consistentRing{nodes: nodes}
}

func hashVirtualNode(address string, vnode int) uint64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(vnode))
	h := xxhash.New()
	h.WriteString(address)
	h.Write(buf[:])
	return h.Sum64()
}

// hashKey hashes the request's routing key — "(comment || partition ||
// id)" or the bare offer id, per spec.md §4.2 — to a ring position.
func hashKey(key string) uint64 {
	return xxhash.Sum64String(key)
}

// walk returns the ring position index (into c.nodes) of the first
// node at or after hash, wrapping around.
func (c *consistentRing) walk(hash uint64) int {
	if len(c.nodes) == 0 {
		return -1
	}
	i := sort.Search(len(c.nodes), func(i int) bool { return c.nodes[i].hash >= hash })
	if i == len(c.nodes) {
		i = 0
	}
	return i
}

// consistentStream walks the ring clockwise from a request's key,
// applying the bounded-load acceptance test for up to maxIterations
// probes before falling back to unconditional ring-successor walking,
// and never repeating an entry index.
type consistentStream struct {
	ring          *consistentRing
	pos           int
	probes        int
	maxIterations int
	loadOf        func(entryIdx int) int64
	minLoad       func() int64
	allowed       map[int]bool
	seen          map[int]bool
	left          int
	started       bool
}

func newConsistentStream(ring *consistentRing, key string, maxIterations int, allowed map[int]bool, loadOf func(int) int64, minLoad func() int64) *consistentStream {
	start := ring.walk(hashKey(key))
	return &consistentStream{
		ring:          ring,
		pos:           start,
		maxIterations: maxIterations,
		loadOf:        loadOf,
		minLoad:       minLoad,
		allowed:       allowed,
		seen:          map[int]bool{},
		left:          len(allowed),
	}
}

func (s *consistentStream) Next() (int, bool) {
	if s.pos < 0 || s.left <= 0 || len(s.ring.nodes) == 0 {
		return 0, false
	}

	budget := len(s.ring.nodes) + 1
	for budget > 0 {
		budget--
		idx := s.ring.nodes[s.pos].entryIdx
		cur := s.pos
		s.advance()

		if s.seen[idx] || !s.allowed[idx] {
			continue
		}

		s.probes++
		if s.probes <= s.maxIterations {
			min := s.minLoad()
			load := s.loadOf(idx)
			allowed := float64(min+1) * boundedLoadFactor
			if float64(load) > allowed {
				continue
			}
		}

		_ = cur
		s.seen[idx] = true
		s.left--
		return idx, true
	}
	return 0, false
}

func (s *consistentStream) advance() {
	s.pos++
	if s.pos >= len(s.ring.nodes) {
		s.pos = 0
	}
}
