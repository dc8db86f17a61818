// Package pool implements the backend pool of spec.md §4.1: it keeps
// one lnnode.Capability connection and one model.BackendRuntimeState
// per registered Discovery backend, runs the health-check and
// change-observer tickers, and publishes rebuilt selector.Snapshots
// after every health transition or backend-set change.
//
// Grounded on the teacher's cmd/worker/fund_card graceful-shutdown
// loop (context cancellation + signal channel) for the ticker
// lifecycle, and internal/lnd's GetInfo/ChannelBalance calls as the
// shape of a health probe, generalized from "one LND client" to "a
// dynamic set of CLN/LND capabilities".
package pool

import (
	"context"
	"sync"
	"time"

	"switchgear/internal/lnnode"
	"switchgear/internal/model"
	"switchgear/internal/selector"
	"switchgear/internal/store"
	"switchgear/pkg/logger"

	"go.uber.org/zap"
)

// Config bundles the pool's tunables, sourced from lnurl-service.* in
// spec.md §6.
type Config struct {
	HealthCheckFrequency        time.Duration
	ParallelHealthCheck         bool
	ConsecutiveSuccessToHealthy int
	ConsecutiveFailureToUnhealthy int
	BackendUpdateFrequency      time.Duration
	ProbeTimeout                time.Duration
	ConsistentVNodesPerWeight   int
	Partitions                  []string
}

// entry is the pool's bookkeeping for one registered backend.
type entry struct {
	backend model.DiscoveryBackend
	state   *model.BackendRuntimeState
	cap     lnnode.Capability
}

// Pool owns the live backend registry, runs its tickers, and
// publishes rebuilt snapshots into the shared selector.Pool.
type Pool struct {
	cfg    Config
	store  store.BackendStore
	snaps  *selector.Pool
	dialer func(model.DiscoveryBackend) (lnnode.Capability, error)

	mu      sync.Mutex
	entries map[string]*entry // by model.Address.Key()
}

// New wires a Pool over a Discovery backend store and a target
// selector.Pool to publish into. dialer is lnnode.Dial in production,
// swappable in tests.
func New(cfg Config, backendStore store.BackendStore, snaps *selector.Pool, dialer func(model.DiscoveryBackend) (lnnode.Capability, error)) *Pool {
	return &Pool{
		cfg:     cfg,
		store:   backendStore,
		snaps:   snaps,
		dialer:  dialer,
		entries: map[string]*entry{},
	}
}

// Run blocks until ctx is canceled, driving the health-check and
// change-observer tickers described in spec.md §4.1. It performs an
// initial reconcile + probe pass before entering the ticker loop so
// the first snapshot publish doesn't wait a full tick.
func (p *Pool) Run(ctx context.Context) {
	p.reconcile(ctx)
	p.probeAll(ctx)
	p.publish()

	healthTicker := time.NewTicker(p.cfg.HealthCheckFrequency)
	defer healthTicker.Stop()
	updateTicker := time.NewTicker(p.cfg.BackendUpdateFrequency)
	defer updateTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.closeAll()
			return
		case <-healthTicker.C:
			p.probeAll(ctx)
			p.publish()
		case <-updateTicker.C:
			if p.reconcile(ctx) {
				p.publish()
			}
		}
	}
}

// reconcile fetches the full Discovery backend set and adds/removes
// pool entries to match it, per spec.md §4.1's change-observer. It
// returns true if the entry set (not just field values) changed.
func (p *Pool) reconcile(ctx context.Context) bool {
	var all []model.DiscoveryBackend
	for _, partition := range p.cfg.Partitions {
		page, _, err := p.store.GetAll(ctx, partition, store.Page{})
		if err != nil {
			logger.Sink(logger.SinkLNURL).Warn("failed to list discovery backends; keeping previous snapshot", zap.Error(err))
			return false
		}
		all = append(all, page...)
	}

	p.mu.Lock()

	seen := make(map[string]bool, len(all))
	changed := false
	var newlyAdded []string

	for _, b := range all {
		key := b.Address.Key()
		seen[key] = true
		if e, ok := p.entries[key]; ok {
			e.backend = b
			continue
		}
		cap, err := p.dialer(b)
		if err != nil {
			logger.Sink(logger.SinkLNURL).Warn("failed to dial backend", zap.String("address", key), zap.Error(err))
			continue
		}
		p.entries[key] = &entry{backend: b, state: model.NewBackendRuntimeState(), cap: cap}
		newlyAdded = append(newlyAdded, key)
		changed = true
	}

	for key, e := range p.entries {
		if !seen[key] {
			e.cap.Close()
			delete(p.entries, key)
			changed = true
		}
	}
	p.mu.Unlock()

	// Probe newly-added entries immediately, per spec.md §4.1's
	// "triggers an immediate probe of new entries" — done outside the
	// lock since probeOne takes it itself.
	for _, key := range newlyAdded {
		p.probeOne(ctx, key)
	}

	return changed
}

// probeAll runs a getinfo + inbound-capacity probe against every
// registered backend, sequentially or concurrently depending on
// parallel-health-check, per spec.md §4.1.
func (p *Pool) probeAll(ctx context.Context) {
	p.mu.Lock()
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	p.mu.Unlock()

	if !p.cfg.ParallelHealthCheck {
		for _, key := range keys {
			p.probeOne(ctx, key)
		}
		return
	}

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			p.probeOne(ctx, key)
		}(key)
	}
	wg.Wait()
}

func (p *Pool) probeOne(ctx context.Context, key string) {
	p.mu.Lock()
	e, ok := p.entries[key]
	p.mu.Unlock()
	if !ok {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	_, err := e.cap.GetInfo(probeCtx)
	var inbound int64
	if err == nil {
		inbound, err = e.cap.GetInboundCapacityMsat(probeCtx)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if err != nil {
		logger.Sink(logger.SinkLNURL).Warn("backend probe failed", zap.String("address", key), zap.Error(err))
		e.state.RecordFailure(p.cfg.ConsecutiveFailureToUnhealthy, now)
		return
	}
	e.state.RecordSuccess(p.cfg.ConsecutiveSuccessToHealthy, inbound, now)
}

// publish rebuilds and atomically swaps in one selector.Snapshot per
// configured partition, restricted to enabled ∧ Healthy entries, per
// spec.md §4.1/§5.
func (p *Pool) publish() {
	p.mu.Lock()
	byPartition := make(map[string][]selector.Entry, len(p.cfg.Partitions))
	for _, partition := range p.cfg.Partitions {
		byPartition[partition] = nil
	}
	for _, e := range p.entries {
		if !e.backend.Enabled || !e.state.Health.SelectableHealthy() {
			continue
		}
		for _, partition := range e.backend.Partitions {
			if _, tracked := byPartition[partition]; !tracked {
				continue
			}
			byPartition[partition] = append(byPartition[partition], selector.Entry{
				Address:    e.backend.Address,
				Backend:    e.backend,
				Weight:     e.backend.Weight,
				Inbound:    e.state.InboundCapacityMsat,
				Capability: e.cap,
			})
		}
	}
	p.mu.Unlock()

	snapshots := make(map[string]*selector.Snapshot, len(byPartition))
	for partition, entries := range byPartition {
		snapshots[partition] = selector.BuildSnapshot(partition, entries, p.cfg.ConsistentVNodesPerWeight)
	}
	p.snaps.Publish(snapshots)
}

func (p *Pool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		e.cap.Close()
	}
}
