// Package lnnode defines the capability set switchgear depends on for
// any Lightning node backend — {CreateInvoice, GetInfo,
// GetInboundCapacity} — and provides the CLN and LND gRPC variants.
// The selector and invoice dispatcher depend only on the Capability
// interface (see spec.md §9 "Polymorphism over CLN vs LND"); adding a
// future node type requires a new variant and nothing else.
//
// Grounded on the teacher's internal/lnd package: NewClient's
// macaroon/TLS credential dialing (client.go), GetInfo/ChannelBalance
// (treasury.go), and invoice creation patterned after PayInvoice's
// streaming RPC usage (lightning.go) — generalized from "pay an
// invoice" to "create one bound to a description hash".
package lnnode

import (
	"context"
	"time"
)

// CreateInvoiceRequest is the input to Capability.CreateInvoice.
type CreateInvoiceRequest struct {
	AmountMsat      int64
	DescriptionHash [32]byte
	Expiry          time.Duration
	Memo            string // only attached when the backend supports memos and a comment was forwarded
	AMP             bool
}

// CreateInvoiceResult is the output of Capability.CreateInvoice.
type CreateInvoiceResult struct {
	PaymentRequest string // BOLT-11
}

// NodeInfo mirrors the subset of getinfo switchgear cares about.
type NodeInfo struct {
	Alias         string
	PubKey        string
	SyncedToChain bool
	BlockHeight   uint32
}

// Capability is the RPC surface switchgear depends on for any
// Lightning node backend. Implementations must be safe for concurrent
// use — the health monitor and invoice dispatcher call the same
// instance concurrently.
type Capability interface {
	// CreateInvoice asks the backend for a BOLT-11 invoice bound to
	// the given amount and description hash.
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*CreateInvoiceResult, error)

	// GetInfo probes basic liveness/identity — used by the health
	// monitor as the "getinfo" half of a probe.
	GetInfo(ctx context.Context) (*NodeInfo, error)

	// GetInboundCapacityMsat sums inbound capacity across active
	// channels — used by the health monitor as the
	// "channelbalance-equivalent" half of a probe.
	GetInboundCapacityMsat(ctx context.Context) (int64, error)

	// Close releases the underlying RPC connection. Called when the
	// backend is deregistered or the pool shuts down.
	Close() error
}
