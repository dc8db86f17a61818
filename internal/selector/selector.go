package selector

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"switchgear/internal/lnnode"
	"switchgear/internal/model"
)

// PolicyType names the three selection policies of spec.md §4.2.
type PolicyType string

const (
	PolicyRoundRobin PolicyType = "round-robin"
	PolicyRandom     PolicyType = "random"
	PolicyConsistent PolicyType = "consistent"
)

// Request is the (partition, amount_msat, comment?) input to the
// selector, per spec.md §4.2.
type Request struct {
	Partition string
	OfferID   string
	AmountMsat int64
	Comment   string
}

// Candidate is one backend yielded by a Stream, paired with a release
// function the dispatcher must call once it is done with this
// attempt (success or failure) so the consistent policy's in-flight
// load bookkeeping stays accurate.
type Candidate struct {
	Backend    model.DiscoveryBackend
	Capability lnnode.Capability
	Release    func()
}

// Stream is a lazy, finite, non-repeating sequence of eligible
// backends for one request, per spec.md §4.2. Exhaustion (ok=false)
// means no candidate remains for this request.
type Stream interface {
	Next() (Candidate, bool)
}

// Selector picks candidate backends for invoice dispatch, per
// spec.md §4.2. It holds no mutable selection state itself beyond
// in-flight load counters for the consistent policy; partition
// snapshots live in the Pool and are swapped in by the health
// monitor/backend pool.
type Selector struct {
	pool           *Pool
	policy         PolicyType
	maxIterations  int
	capacityBias   float64
	commentAllowed int

	inFlightMu sync.Mutex
	inFlight   map[string]*atomic.Int64 // by model.Address.Key()

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Config bundles the selector's static configuration, sourced from
// lnurl-service.backend-selection / selection-capacity-bias /
// comment-allowed in spec.md §6.
type Config struct {
	Policy         PolicyType
	MaxIterations  int
	CapacityBias   float64
	CommentAllowed int
}

func New(pool *Pool, cfg Config) *Selector {
	return &Selector{
		pool:           pool,
		policy:         cfg.Policy,
		maxIterations:  cfg.MaxIterations,
		capacityBias:   cfg.CapacityBias,
		commentAllowed: cfg.CommentAllowed,
		inFlight:       map[string]*atomic.Int64{},
		rng:            rand.New(rand.NewSource(rand.Int63())),
	}
}

func (s *Selector) counter(key string) *atomic.Int64 {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	c, ok := s.inFlight[key]
	if !ok {
		c = &atomic.Int64{}
		s.inFlight[key] = c
	}
	return c
}

// routingKey builds the consistent policy's ring key: "(comment ||
// partition || id)" when a comment is configured and present on the
// request, else the bare offer id, per spec.md §4.2.
func (s *Selector) routingKey(req Request) string {
	if s.commentAllowed > 0 && req.Comment != "" {
		return req.Comment + "|" + req.Partition + "|" + req.OfferID
	}
	return req.OfferID
}

// Candidates returns the candidate stream for one invoice request. It
// returns ok=false if the partition currently has no published
// snapshot (no eligible backends at all).
func (s *Selector) Candidates(req Request) (Stream, bool) {
	snap := s.pool.Snapshot(req.Partition)
	if snap == nil || len(snap.Entries) == 0 {
		return nil, false
	}

	eligible := filterByCapacity(snap.Entries, req.AmountMsat, s.capacityBias)
	if len(eligible) == 0 {
		return nil, false
	}

	// eligible is a (possibly relaxed) subset of snap.Entries; map
	// back to indices into snap.Entries so the round-robin/consistent
	// auxiliary indices (built over the full entry set) stay valid.
	allowed := make(map[int]bool, len(eligible))
	for _, e := range eligible {
		for i, full := range snap.Entries {
			if full.Address.Key() == e.Address.Key() {
				allowed[i] = true
				break
			}
		}
	}

	switch s.policy {
	case PolicyRandom:
		s.rngMu.Lock()
		seed := s.rng.Int63()
		s.rngMu.Unlock()
		rng := rand.New(rand.NewSource(seed))
		return s.wrap(snap, newRandomStream(snap.Entries, allowed, rng), allowed), true

	case PolicyConsistent:
		key := s.routingKey(req)
		loadOf := func(idx int) int64 {
			return s.counter(snap.Entries[idx].Address.Key()).Load()
		}
		minLoad := func() int64 {
			min := int64(-1)
			for i := range snap.Entries {
				if !allowed[i] {
					continue
				}
				l := loadOf(i)
				if min < 0 || l < min {
					min = l
				}
			}
			if min < 0 {
				return 0
			}
			return min
		}
		stream := newConsistentStream(snap.consistent, key, s.maxIterations, allowed, loadOf, minLoad)
		return s.wrap(snap, stream, allowed), true

	default: // PolicyRoundRobin
		stream := newRoundRobinStream(snap.roundRobin, len(snap.Entries))
		return s.wrap(snap, indexFilter{inner: stream, allowed: allowed}, allowed), true
	}
}

// indexStream is the minimal shape wrap() needs from any of the three
// policy-specific streams: Next() returning an index into
// Snapshot.Entries.
type indexStream interface {
	Next() (int, bool)
}

// indexFilter adapts a stream built over the full entry set (e.g.
// round-robin, whose expansion/cursor spans every configured backend)
// down to only the capacity-eligible subset, skipping disallowed
// indices without disturbing the underlying cursor's position.
type indexFilter struct {
	inner   indexStream
	allowed map[int]bool
}

func (f indexFilter) Next() (int, bool) {
	for {
		idx, ok := f.inner.Next()
		if !ok {
			return 0, false
		}
		if f.allowed[idx] {
			return idx, true
		}
	}
}

func (s *Selector) wrap(snap *Snapshot, stream indexStream, allowed map[int]bool) Stream {
	return &boundStream{selector: s, snap: snap, inner: stream}
}

type boundStream struct {
	selector *Selector
	snap     *Snapshot
	inner    indexStream
}

func (b *boundStream) Next() (Candidate, bool) {
	idx, ok := b.inner.Next()
	if !ok {
		return Candidate{}, false
	}
	entry := b.snap.Entries[idx]
	counter := b.selector.counter(entry.Address.Key())
	counter.Add(1)
	released := false
	release := func() {
		if !released {
			released = true
			counter.Add(-1)
		}
	}
	return Candidate{Backend: entry.Backend, Capability: entry.Capability, Release: release}, true
}
