package lnnode

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/lightningnetwork/lnd/lnrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// lndMacaroonCredential implements grpc.PerRPCCredentials, attaching
// the hex-encoded macaroon as gRPC metadata on every RPC call.
// Identical to the teacher's macaroonCredential in internal/lnd/client.go.
type lndMacaroonCredential struct {
	macaroon string
}

func (m lndMacaroonCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.macaroon}, nil
}

func (m lndMacaroonCredential) RequireTransportSecurity() bool {
	return true
}

// LndClient is the LND gRPC variant of Capability.
type LndClient struct {
	conn       *grpc.ClientConn
	lnClient   lnrpc.LightningClient
	ampInvoice bool
}

// DialLnd opens a long-lived gRPC connection to an LND node using its
// TLS cert and macaroon, and validates the connection with GetInfo.
// Grounded on the teacher's lnd.NewClient.
func DialLnd(url, sniDomain, tlsCertPath, macaroonPath string, ampInvoice bool) (*LndClient, error) {
	creds, err := credentials.NewClientTLSFromFile(tlsCertPath, sniDomain)
	if err != nil {
		return nil, fmt.Errorf("could not load tls cert from %s: %w", tlsCertPath, err)
	}

	macBytes, err := os.ReadFile(macaroonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read macaroon file %s: %w", macaroonPath, err)
	}
	macCreds := lndMacaroonCredential{macaroon: hex.EncodeToString(macBytes)}

	conn, err := grpc.NewClient(url, grpc.WithTransportCredentials(creds), grpc.WithPerRPCCredentials(macCreds))
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", url, err)
	}

	lnClient := lnrpc.NewLightningClient(conn)

	if _, err := lnClient.GetInfo(context.Background(), &lnrpc.GetInfoRequest{}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to lnd at %s: %w", url, err)
	}

	return &LndClient{conn: conn, lnClient: lnClient, ampInvoice: ampInvoice}, nil
}

func (c *LndClient) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*CreateInvoiceResult, error) {
	invReq := &lnrpc.Invoice{
		ValueMsat:       req.AmountMsat,
		DescriptionHash: req.DescriptionHash[:],
		Expiry:          int64(req.Expiry.Seconds()),
	}
	if req.Memo != "" {
		invReq.Memo = req.Memo
	}
	if c.ampInvoice && req.AMP {
		invReq.IsAmp = true
	}

	resp, err := c.lnClient.AddInvoice(ctx, invReq)
	if err != nil {
		return nil, fmt.Errorf("lnd AddInvoice failed: %w", err)
	}

	return &CreateInvoiceResult{PaymentRequest: resp.PaymentRequest}, nil
}

func (c *LndClient) GetInfo(ctx context.Context) (*NodeInfo, error) {
	resp, err := c.lnClient.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return nil, fmt.Errorf("lnd GetInfo failed: %w", err)
	}
	return &NodeInfo{
		Alias:         resp.Alias,
		PubKey:        resp.IdentityPubkey,
		SyncedToChain: resp.SyncedToChain,
		BlockHeight:   resp.BlockHeight,
	}, nil
}

func (c *LndClient) GetInboundCapacityMsat(ctx context.Context) (int64, error) {
	resp, err := c.lnClient.ChannelBalance(ctx, &lnrpc.ChannelBalanceRequest{})
	if err != nil {
		return 0, fmt.Errorf("lnd ChannelBalance failed: %w", err)
	}
	if resp.RemoteBalance == nil {
		return 0, nil
	}
	return resp.RemoteBalance.Msat, nil
}

func (c *LndClient) Close() error {
	return c.conn.Close()
}
