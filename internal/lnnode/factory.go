package lnnode

import (
	"fmt"

	"switchgear/internal/model"
)

// Dial builds the Capability client for one DiscoveryBackend,
// dispatching on its Implementation tag. Called by the pool when a
// backend address first appears; a backend already in the pool keeps
// its client when its Implementation (credentials, URL) changes.
func Dial(backend model.DiscoveryBackend) (Capability, error) {
	impl := backend.Implementation
	switch impl.Kind {
	case model.ImplementationLndGrpc:
		cfg := impl.Lnd
		return DialLnd(cfg.URL, cfg.SNIDomain, cfg.Auth.TLSCertPath, cfg.Auth.MacaroonPath, cfg.AmpInvoice)
	case model.ImplementationClnGrpc:
		cfg := impl.Cln
		return DialCln(cfg.URL, cfg.SNIDomain, cfg.Auth.CACertPath, cfg.Auth.ClientCertPath, cfg.Auth.ClientKeyPath)
	default:
		return nil, fmt.Errorf("unsupported implementation kind %q for backend %s", impl.Kind, backend.Address)
	}
}
