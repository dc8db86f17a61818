// Package auth implements spec.md §4.7's token mint/verify utility
// surface: bearer tokens signed with an ECDSA private key over a
// payload carrying an expiry timestamp, verified against a configured
// public key. Key management and minting are a utility surface
// consumed by the (out-of-scope) CLI; the server only verifies, via
// the gin middleware in internal/httpapi/middleware.go.
//
// Grounded on `_examples/zalando-skipper`'s filters/auth package for
// the "parse a bearer token with golang-jwt, map failures to an
// unauthorized response" shape, generalized here from JWKS-based
// OIDC verification to a single statically-configured ECDSA public
// key, per spec.md §3/§4.7 ("Verified by a configured public key").
package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// claims is the JWT payload: only the expiry spec.md §3's Token
// carries. golang-jwt's RegisteredClaims already models ExpiresAt
// with the validation golang-jwt performs automatically on Parse.
type claims struct {
	jwt.RegisteredClaims
}

// GenerateKeyPair creates a new P-256 ECDSA key pair for token
// signing, per spec.md §4.7. This is the CLI's "generate keypair"
// operation; the server never calls it.
func GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key pair: %w", err)
	}
	return key, nil
}

// Mint signs a new bearer token that expires at expiresAt, per
// spec.md §3's Token ("Opaque bearer string ... payload carries an
// expiry timestamp"). This is the CLI's "mint token" operation.
func Mint(key *ecdsa.PrivateKey, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verifier checks bearer tokens against one configured ECDSA public
// key, per spec.md §4.7 ("the server only verifies"). It is the
// "auth-authority" half of discovery-service/offer-service's config.
type Verifier struct {
	pub *ecdsa.PublicKey
}

// NewVerifier loads the PEM-encoded ECDSA public key at path as the
// discovery-service.auth-authority / offer-service.auth-authority
// configured trust root.
func NewVerifier(path string) (*Verifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth authority key %s: %w", path, err)
	}
	pub, err := jwt.ParseECPublicKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse auth authority key %s: %w", path, err)
	}
	return &Verifier{pub: pub}, nil
}

// Verify checks a bearer token's signature and expiry. A token past
// its expiry, or signed by a different key, is rejected — spec.md
// §4.7: "Verification rejects tokens past expires_at or with invalid
// signatures."
func (v *Verifier) Verify(token string) error {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.pub, nil
	})
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

// WritePrivateKeyPEM and WritePublicKeyPEM persist a generated key
// pair to disk for the CLI's "generate keypair" operation.
func WritePrivateKeyPEM(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
}

func WritePublicKeyPEM(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o644)
}
