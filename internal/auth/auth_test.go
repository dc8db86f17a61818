package auth_test

import (
	"path/filepath"
	"testing"
	"time"

	"switchgear/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeyPair(t *testing.T) (privPath, pubPath string) {
	t.Helper()
	key, err := auth.GenerateKeyPair()
	require.NoError(t, err)

	dir := t.TempDir()
	privPath = filepath.Join(dir, "private.pem")
	pubPath = filepath.Join(dir, "public.pem")
	require.NoError(t, auth.WritePrivateKeyPEM(privPath, key))
	require.NoError(t, auth.WritePublicKeyPEM(pubPath, key))
	return privPath, pubPath
}

func TestVerifyAcceptsTokenSignedByMatchingKey(t *testing.T) {
	key, err := auth.GenerateKeyPair()
	require.NoError(t, err)

	dir := t.TempDir()
	pubPath := filepath.Join(dir, "public.pem")
	require.NoError(t, auth.WritePublicKeyPEM(pubPath, key))

	token, err := auth.Mint(key, time.Now().Add(time.Hour))
	require.NoError(t, err)

	verifier, err := auth.NewVerifier(pubPath)
	require.NoError(t, err)

	assert.NoError(t, verifier.Verify(token))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	key, err := auth.GenerateKeyPair()
	require.NoError(t, err)

	dir := t.TempDir()
	pubPath := filepath.Join(dir, "public.pem")
	require.NoError(t, auth.WritePublicKeyPEM(pubPath, key))

	token, err := auth.Mint(key, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	verifier, err := auth.NewVerifier(pubPath)
	require.NoError(t, err)

	assert.Error(t, verifier.Verify(token))
}

func TestVerifyRejectsTokenFromDifferentKey(t *testing.T) {
	signingKey, err := auth.GenerateKeyPair()
	require.NoError(t, err)
	token, err := auth.Mint(signingKey, time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, pubPath := writeKeyPair(t) // unrelated key pair
	verifier, err := auth.NewVerifier(pubPath)
	require.NoError(t, err)

	assert.Error(t, verifier.Verify(token))
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	_, pubPath := writeKeyPair(t)
	verifier, err := auth.NewVerifier(pubPath)
	require.NoError(t, err)

	assert.Error(t, verifier.Verify("not-a-jwt"))
}
