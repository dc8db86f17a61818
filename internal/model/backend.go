// Package model holds the persistent record types shared by the
// Discovery store, Offer store, and the backend pool: DiscoveryBackend,
// Offer, OfferMetadata, plus the health/runtime types the pool keeps
// in memory. These mirror spec.md §3 field-for-field.
package model

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ImplementationKind tags which Lightning node software a backend
// runs, per spec.md §3's DiscoveryBackend.implementation variant.
type ImplementationKind string

const (
	ImplementationClnGrpc ImplementationKind = "cln_grpc"
	ImplementationLndGrpc ImplementationKind = "lnd_grpc"
)

// TLSAuth carries the mutual-TLS material for a CLN gRPC backend.
type TLSAuth struct {
	CACertPath     string `json:"caCertPath"`
	ClientCertPath string `json:"clientCertPath"`
	ClientKeyPath  string `json:"clientKeyPath"`
}

// MacaroonAuth carries the TLS + macaroon material for an LND gRPC backend.
type MacaroonAuth struct {
	TLSCertPath  string `json:"tlsCertPath"`
	MacaroonPath string `json:"macaroonPath"`
}

// ClnGrpcImplementation describes a core-lightning node reached over gRPC.
type ClnGrpcImplementation struct {
	URL       string  `json:"url"`
	SNIDomain string  `json:"sniDomain,omitempty"`
	Auth      TLSAuth `json:"auth"`
}

// LndGrpcImplementation describes an LND node reached over gRPC.
type LndGrpcImplementation struct {
	URL        string       `json:"url"`
	SNIDomain  string       `json:"sniDomain,omitempty"`
	Auth       MacaroonAuth `json:"auth"`
	AmpInvoice bool         `json:"ampInvoice"`
}

// Implementation is the tagged union of backend RPC implementations.
// Exactly one of Cln / Lnd is set, selected by Kind.
type Implementation struct {
	Kind ImplementationKind     `json:"kind"`
	Cln  *ClnGrpcImplementation `json:"cln,omitempty"`
	Lnd  *LndGrpcImplementation `json:"lnd,omitempty"`
}

func (i Implementation) Validate() error {
	switch i.Kind {
	case ImplementationClnGrpc:
		if i.Cln == nil {
			return errors.New("implementation kind is cln_grpc but cln config is missing")
		}
		if i.Cln.URL == "" {
			return errors.New("cln implementation requires a url")
		}
	case ImplementationLndGrpc:
		if i.Lnd == nil {
			return errors.New("implementation kind is lnd_grpc but lnd config is missing")
		}
		if i.Lnd.URL == "" {
			return errors.New("lnd implementation requires a url")
		}
	default:
		return fmt.Errorf("unknown implementation kind %q", i.Kind)
	}
	return nil
}

// AddressKind distinguishes the two legal shapes of DiscoveryBackend.Address.
type AddressKind string

const (
	AddressPublicKey AddressKind = "publicKey"
	AddressURL       AddressKind = "url"
)

// Address is the polymorphic backend identifier: either a 33-byte
// compressed secp256k1 public key (lower hex, 66 chars) or an opaque
// URL. It uniquely identifies a DiscoveryBackend.
type Address struct {
	Kind      AddressKind
	PublicKey string
	URL       string
}

// addressWire is Address's wire shape, per spec.md §6: "address
// polymorphic as {publicKey} | {url}".
type addressWire struct {
	PublicKey string `json:"publicKey,omitempty"`
	URL       string `json:"url,omitempty"`
}

// MarshalJSON emits only the field that matches a.Kind, so the two
// variants never both appear on the wire.
func (a Address) MarshalJSON() ([]byte, error) {
	w := addressWire{}
	if a.Kind == AddressPublicKey {
		w.PublicKey = a.PublicKey
	} else {
		w.URL = a.URL
	}
	return json.Marshal(w)
}

// UnmarshalJSON infers Kind from whichever of publicKey/url is
// present, reconstructing the tagged union from its untagged wire
// form.
func (a *Address) UnmarshalJSON(data []byte) error {
	var w addressWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.PublicKey != "":
		addr, err := NewPublicKeyAddress(w.PublicKey)
		if err != nil {
			return err
		}
		*a = addr
	case w.URL != "":
		addr, err := NewURLAddress(w.URL)
		if err != nil {
			return err
		}
		*a = addr
	default:
		*a = Address{}
	}
	return nil
}

// Key returns the canonical string used as the store primary key and
// map key throughout the pool/selector.
func (a Address) Key() string {
	if a.Kind == AddressPublicKey {
		return "pk:" + a.PublicKey
	}
	return "url:" + a.URL
}

func (a Address) String() string {
	if a.Kind == AddressPublicKey {
		return a.PublicKey
	}
	return a.URL
}

// RoutePath returns the two-segment path suffix spec.md §4.5 uses to
// address one backend: "pk/{hex}" or "url/{base64url}".
func (a Address) RoutePath() string {
	if a.Kind == AddressPublicKey {
		return "pk/" + a.PublicKey
	}
	return "url/" + base64.RawURLEncoding.EncodeToString([]byte(a.URL))
}

// AddressFromRoute reverses RoutePath, reconstructing the Address a
// "/discovery/pk/{hex}" or "/discovery/url/{base64url}" route was
// addressed to.
func AddressFromRoute(kind, value string) (Address, error) {
	switch kind {
	case "pk":
		return NewPublicKeyAddress(value)
	case "url":
		raw, err := base64.RawURLEncoding.DecodeString(value)
		if err != nil {
			return Address{}, fmt.Errorf("url address segment must be base64url: %w", err)
		}
		return NewURLAddress(string(raw))
	default:
		return Address{}, fmt.Errorf("unknown address kind %q", kind)
	}
}

// NewPublicKeyAddress validates and canonicalizes a hex-encoded
// compressed secp256k1 public key into an Address. Grounded on the
// teacher's wallet package use of btcec for key parsing, generalized
// here from wallet-address generation to peer identity validation.
func NewPublicKeyAddress(hexKey string) (Address, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return Address{}, fmt.Errorf("public key must be hex-encoded: %w", err)
	}
	if len(raw) != 33 {
		return Address{}, fmt.Errorf("public key must be 33 bytes compressed, got %d", len(raw))
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return Address{}, fmt.Errorf("invalid secp256k1 public key: %w", err)
	}
	return Address{
		Kind:      AddressPublicKey,
		PublicKey: hex.EncodeToString(pub.SerializeCompressed()),
	}, nil
}

// NewURLAddress wraps an opaque URL address. No further validation is
// performed here beyond non-emptiness; the gRPC dial at client
// construction time is the real validity check.
func NewURLAddress(url string) (Address, error) {
	if url == "" {
		return Address{}, errors.New("url address must not be empty")
	}
	return Address{Kind: AddressURL, URL: url}, nil
}

// DiscoveryBackend is the persistent record describing one Lightning
// node, per spec.md §3.
type DiscoveryBackend struct {
	Address        Address        `json:"address"`
	Partitions     []string       `json:"partitions"`
	Name           string         `json:"name"`
	Weight         uint32         `json:"weight"`
	Enabled        bool           `json:"enabled"`
	Implementation Implementation `json:"implementation"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func (b DiscoveryBackend) Validate() error {
	if b.Address.Kind != AddressPublicKey && b.Address.Kind != AddressURL {
		return errors.New("address must be a publicKey or url")
	}
	if len(b.Partitions) == 0 {
		return errors.New("partitions must not be empty")
	}
	return b.Implementation.Validate()
}

// InPartition reports whether the backend serves the given partition.
func (b DiscoveryBackend) InPartition(partition string) bool {
	for _, p := range b.Partitions {
		if p == partition {
			return true
		}
	}
	return false
}

// PatchDiscoveryBackend is the partial-update payload accepted by
// PATCH /discovery/... — only non-nil fields are applied.
type PatchDiscoveryBackend struct {
	Partitions     []string        `json:"partitions,omitempty"`
	Name           *string         `json:"name,omitempty"`
	Weight         *uint32         `json:"weight,omitempty"`
	Enabled        *bool           `json:"enabled,omitempty"`
	Implementation *Implementation `json:"implementation,omitempty"`
}

// Apply merges a partial update into a copy of b.
func (p PatchDiscoveryBackend) Apply(b DiscoveryBackend) DiscoveryBackend {
	if p.Partitions != nil {
		b.Partitions = p.Partitions
	}
	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Weight != nil {
		b.Weight = *p.Weight
	}
	if p.Enabled != nil {
		b.Enabled = *p.Enabled
	}
	if p.Implementation != nil {
		b.Implementation = *p.Implementation
	}
	b.UpdatedAt = time.Now()
	return b
}
