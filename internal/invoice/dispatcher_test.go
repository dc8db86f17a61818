package invoice

import (
	"context"
	"errors"
	"testing"
	"time"

	"switchgear/internal/lnnode"
	"switchgear/internal/model"
	"switchgear/internal/selector"
	"switchgear/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = logger.Init("development")
}

// fakeCapability is a minimal lnnode.Capability stub that either fails
// every CreateInvoice call or succeeds with a fixed payment request.
type fakeCapability struct {
	fail bool
}

func (f *fakeCapability) CreateInvoice(ctx context.Context, req lnnode.CreateInvoiceRequest) (*lnnode.CreateInvoiceResult, error) {
	if f.fail {
		return nil, errors.New("backend unreachable")
	}
	return &lnnode.CreateInvoiceResult{PaymentRequest: "lnbc1..."}, nil
}

func (f *fakeCapability) GetInfo(ctx context.Context) (*lnnode.NodeInfo, error) {
	return &lnnode.NodeInfo{}, nil
}

func (f *fakeCapability) GetInboundCapacityMsat(ctx context.Context) (int64, error) {
	return 10_000_000, nil
}

func (f *fakeCapability) Close() error { return nil }

func backendEntry(t *testing.T, urlAddr string, weight uint32, cap lnnode.Capability) selector.Entry {
	t.Helper()
	addr, err := model.NewURLAddress(urlAddr)
	require.NoError(t, err)
	return selector.Entry{
		Address: addr,
		Backend: model.DiscoveryBackend{
			Address:    addr,
			Partitions: []string{"us"},
			Weight:     weight,
			Enabled:    true,
			Implementation: model.Implementation{
				Kind: model.ImplementationLndGrpc,
				Lnd:  &model.LndGrpcImplementation{URL: urlAddr},
			},
		},
		Weight:     weight,
		Inbound:    10_000_000,
		Capability: cap,
	}
}

func TestDispatchSucceedsOnSingleHealthyBackend(t *testing.T) {
	pool := selector.NewPool()
	entry := backendEntry(t, "http://node-a.example", 1, &fakeCapability{})
	pool.Publish(map[string]*selector.Snapshot{
		"us": selector.BuildSnapshot("us", []selector.Entry{entry}, 0),
	})

	sel := selector.New(pool, selector.Config{Policy: selector.PolicyRoundRobin})
	d := NewDispatcher(sel, time.Second, BackoffConfig{
		Type:                BackoffExponential,
		InitialInterval:     time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          1,
		MaxInterval:         time.Millisecond,
		MaxElapsedTime:      time.Second,
	})

	res, err := d.Dispatch(context.Background(), Request{Partition: "us", OfferID: "offer-1", AmountMsat: 1000})
	require.NoError(t, err)
	assert.Equal(t, "lnbc1...", res.PaymentRequest)
}

func TestDispatchRetriesNextCandidateOnFailure(t *testing.T) {
	pool := selector.NewPool()
	failing := backendEntry(t, "http://node-a.example", 1, &fakeCapability{fail: true})
	healthy := backendEntry(t, "http://node-b.example", 1, &fakeCapability{})
	pool.Publish(map[string]*selector.Snapshot{
		"us": selector.BuildSnapshot("us", []selector.Entry{failing, healthy}, 0),
	})

	sel := selector.New(pool, selector.Config{Policy: selector.PolicyRoundRobin})
	d := NewDispatcher(sel, time.Second, BackoffConfig{
		Type:                BackoffExponential,
		InitialInterval:     time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          1,
		MaxInterval:         time.Millisecond,
		MaxElapsedTime:      time.Second,
	})

	res, err := d.Dispatch(context.Background(), Request{Partition: "us", OfferID: "offer-1", AmountMsat: 1000})
	require.NoError(t, err)
	assert.Equal(t, "lnbc1...", res.PaymentRequest)
}

func TestDispatchFailsWhenNoBackendsEligible(t *testing.T) {
	pool := selector.NewPool() // never published for "us"
	sel := selector.New(pool, selector.Config{Policy: selector.PolicyRoundRobin})
	d := NewDispatcher(sel, time.Second, BackoffConfig{Type: BackoffStop})

	_, err := d.Dispatch(context.Background(), Request{Partition: "us", OfferID: "offer-1", AmountMsat: 1000})
	require.Error(t, err)
}

func TestDispatchExhaustsAllCandidatesBeforeFailing(t *testing.T) {
	pool := selector.NewPool()
	a := backendEntry(t, "http://node-a.example", 1, &fakeCapability{fail: true})
	b := backendEntry(t, "http://node-b.example", 1, &fakeCapability{fail: true})
	pool.Publish(map[string]*selector.Snapshot{
		"us": selector.BuildSnapshot("us", []selector.Entry{a, b}, 0),
	})

	sel := selector.New(pool, selector.Config{Policy: selector.PolicyRoundRobin})
	d := NewDispatcher(sel, time.Second, BackoffConfig{
		Type:                BackoffExponential,
		InitialInterval:     time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          1,
		MaxInterval:         time.Millisecond,
		MaxElapsedTime:      time.Second,
	})

	_, err := d.Dispatch(context.Background(), Request{Partition: "us", OfferID: "offer-1", AmountMsat: 1000})
	require.Error(t, err)
}
