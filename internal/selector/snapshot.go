// Package selector implements the backend selector: eligibility
// filtering by partition/health/liquidity bias, and the three
// selection policies (round-robin, random, consistent/Ketama)
// described in spec.md §4.2. A Pool holds one immutable
// SelectorSnapshot per partition behind an atomic pointer, so readers
// never block writers and vice versa (spec.md §5).
package selector

import (
	"bytes"
	"sort"
	"sync/atomic"

	"switchgear/internal/lnnode"
	"switchgear/internal/model"
)

// Entry is one eligible backend inside a snapshot, paired with its
// configured weight and the live RPC capability the dispatcher should
// use to reach it (owned by the pool, not by the snapshot).
type Entry struct {
	Address    model.Address
	Backend    model.DiscoveryBackend
	Weight     uint32
	Inbound    int64
	Capability lnnode.Capability
}

// Snapshot is the immutable, per-partition selection structure built
// by the pool and installed with a single atomic swap, per spec.md
// §3's SelectorSnapshot.
type Snapshot struct {
	Partition string
	Entries   []Entry // enabled ∧ healthy, sorted by address bytes ascending

	roundRobin *roundRobinIndex
	consistent *consistentRing
}

// BuildSnapshot constructs a Snapshot from the current eligible entry
// set for one partition. Entries must already satisfy "enabled ∧
// healthy"; BuildSnapshot only establishes ordering and the auxiliary
// per-policy index structures.
func BuildSnapshot(partition string, entries []Entry, consistentVNodesPerWeight int) *Snapshot {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare([]byte(sorted[i].Address.Key()), []byte(sorted[j].Address.Key())) < 0
	})

	return &Snapshot{
		Partition:  partition,
		Entries:    sorted,
		roundRobin: newRoundRobinIndex(sorted),
		consistent: newConsistentRing(sorted, consistentVNodesPerWeight),
	}
}

// Pool is the set of per-partition snapshots published by the health
// monitor, exposed to request handlers via an atomic pointer so a
// snapshot rebuild never blocks or races with an in-flight request
// that already took its reference (spec.md §5).
type Pool struct {
	snapshots atomic.Pointer[map[string]*Snapshot]
}

// NewPool returns an empty, ready-to-publish snapshot pool.
func NewPool() *Pool {
	p := &Pool{}
	empty := map[string]*Snapshot{}
	p.snapshots.Store(&empty)
	return p
}

// Publish atomically swaps in a freshly-built set of per-partition snapshots.
func (p *Pool) Publish(byPartition map[string]*Snapshot) {
	p.snapshots.Store(&byPartition)
}

// Snapshot returns the currently-published snapshot for a partition,
// or nil if the partition has no eligible backends (or is unknown).
// The caller should hold the returned reference for the lifetime of
// one request; it will not mutate underneath them.
func (p *Pool) Snapshot(partition string) *Snapshot {
	m := *p.snapshots.Load()
	return m[partition]
}

// AnyHealthy reports whether any published partition currently has at
// least one eligible backend — used by GET /health/full.
func (p *Pool) AnyHealthy() bool {
	m := *p.snapshots.Load()
	for _, snap := range m {
		if snap != nil && len(snap.Entries) > 0 {
			return true
		}
	}
	return false
}
