package pool

import (
	"context"
	"testing"
	"time"

	"switchgear/internal/lnnode"
	"switchgear/internal/model"
	"switchgear/internal/selector"
	"switchgear/internal/store"
	"switchgear/internal/store/memory"
	"switchgear/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = logger.Init("development")
}

type fakeCapability struct {
	inbound int64
	fail    bool
}

func (f *fakeCapability) CreateInvoice(ctx context.Context, req lnnode.CreateInvoiceRequest) (*lnnode.CreateInvoiceResult, error) {
	return &lnnode.CreateInvoiceResult{PaymentRequest: "lnbc1..."}, nil
}

func (f *fakeCapability) GetInfo(ctx context.Context) (*lnnode.NodeInfo, error) {
	if f.fail {
		return nil, assertErr
	}
	return &lnnode.NodeInfo{Alias: "fake", SyncedToChain: true}, nil
}

func (f *fakeCapability) GetInboundCapacityMsat(ctx context.Context) (int64, error) {
	if f.fail {
		return 0, assertErr
	}
	return f.inbound, nil
}

func (f *fakeCapability) Close() error { return nil }

var assertErr = context.DeadlineExceeded

func TestPoolPublishesHealthyBackendsAfterProbing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backendStore := memory.NewBackendStore()
	addr, err := model.NewURLAddress("http://node-a.example")
	require.NoError(t, err)
	require.NoError(t, backendStore.Put(ctx, addr.Key(), model.DiscoveryBackend{
		Address:    addr,
		Partitions: []string{"us"},
		Weight:     1,
		Enabled:    true,
		Implementation: model.Implementation{
			Kind: model.ImplementationLndGrpc,
			Lnd:  &model.LndGrpcImplementation{URL: "lnd.example:10009"},
		},
	}))

	snaps := selector.NewPool()
	var backendStoreIface store.BackendStore = backendStore

	p := New(Config{
		HealthCheckFrequency:          time.Hour,
		ConsecutiveSuccessToHealthy:   1,
		ConsecutiveFailureToUnhealthy: 1,
		BackendUpdateFrequency:        time.Hour,
		ProbeTimeout:                  time.Second,
		Partitions:                    []string{"us"},
	}, backendStoreIface, snaps, func(model.DiscoveryBackend) (lnnode.Capability, error) {
		return &fakeCapability{inbound: 500_000}, nil
	})

	p.reconcile(ctx)
	p.probeAll(ctx)
	p.publish()

	snap := snaps.Snapshot("us")
	require.NotNil(t, snap)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, int64(500_000), snap.Entries[0].Inbound)
}

func TestPoolUnhealthyBackendExcludedFromSnapshot(t *testing.T) {
	ctx := context.Background()
	backendStore := memory.NewBackendStore()
	addr, err := model.NewURLAddress("http://node-b.example")
	require.NoError(t, err)
	require.NoError(t, backendStore.Put(ctx, addr.Key(), model.DiscoveryBackend{
		Address:    addr,
		Partitions: []string{"us"},
		Weight:     1,
		Enabled:    true,
		Implementation: model.Implementation{
			Kind: model.ImplementationLndGrpc,
			Lnd:  &model.LndGrpcImplementation{URL: "lnd.example:10009"},
		},
	}))

	snaps := selector.NewPool()
	var backendStoreIface store.BackendStore = backendStore

	p := New(Config{
		ConsecutiveSuccessToHealthy:   1,
		ConsecutiveFailureToUnhealthy: 1,
		ProbeTimeout:                  time.Second,
		Partitions:                    []string{"us"},
	}, backendStoreIface, snaps, func(model.DiscoveryBackend) (lnnode.Capability, error) {
		return &fakeCapability{fail: true}, nil
	})

	p.reconcile(ctx)
	p.probeAll(ctx)
	p.publish()

	snap := snaps.Snapshot("us")
	if snap != nil {
		assert.Empty(t, snap.Entries)
	}
}
