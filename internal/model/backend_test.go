package model_test

import (
	"encoding/json"
	"testing"

	"switchgear/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPubKeyHex = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

func TestAddressJSONRoundTripPublicKey(t *testing.T) {
	addr, err := model.NewPublicKeyAddress(testPubKeyHex)
	require.NoError(t, err)

	raw, err := json.Marshal(addr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"publicKey":"`+addr.PublicKey+`"}`, string(raw))

	var out model.Address
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, model.AddressPublicKey, out.Kind)
	assert.Equal(t, addr.PublicKey, out.PublicKey)
	assert.Equal(t, addr.Key(), out.Key())
}

func TestAddressJSONRoundTripURL(t *testing.T) {
	addr, err := model.NewURLAddress("https://node.example.com:9735")
	require.NoError(t, err)

	raw, err := json.Marshal(addr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://node.example.com:9735"}`, string(raw))

	var out model.Address
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, model.AddressURL, out.Kind)
	assert.Equal(t, addr.URL, out.URL)
	assert.Equal(t, addr.Key(), out.Key())
}

// A backend round-tripped through JSON (as it is on PUT then GET)
// must keep its Address.Kind so Key() and RoutePath() stay stable —
// the property spec.md §8's PUT(x); GET(x) = x law depends on.
func TestDiscoveryBackendPutThenGetPreservesAddressKind(t *testing.T) {
	addr, err := model.NewPublicKeyAddress(testPubKeyHex)
	require.NoError(t, err)

	backend := model.DiscoveryBackend{
		Address:    addr,
		Partitions: []string{"default"},
		Name:       "alice",
		Weight:     1,
		Enabled:    true,
		Implementation: model.Implementation{
			Kind: model.ImplementationLndGrpc,
			Lnd:  &model.LndGrpcImplementation{URL: "lnd.example.com:10009"},
		},
	}
	require.NoError(t, backend.Validate())

	raw, err := json.Marshal(backend)
	require.NoError(t, err)

	var roundTripped model.DiscoveryBackend
	require.NoError(t, json.Unmarshal(raw, &roundTripped))

	assert.Equal(t, backend.Address.Key(), roundTripped.Address.Key())
	assert.Equal(t, backend.Address.RoutePath(), roundTripped.Address.RoutePath())
	require.NoError(t, roundTripped.Validate())
}

func TestAddressFromRouteReversesRoutePath(t *testing.T) {
	pkAddr, err := model.NewPublicKeyAddress(testPubKeyHex)
	require.NoError(t, err)
	kind, value, _ := splitRoute(pkAddr.RoutePath())
	got, err := model.AddressFromRoute(kind, value)
	require.NoError(t, err)
	assert.Equal(t, pkAddr.Key(), got.Key())

	urlAddr, err := model.NewURLAddress("https://node.example.com:9735")
	require.NoError(t, err)
	kind, value, _ = splitRoute(urlAddr.RoutePath())
	got, err = model.AddressFromRoute(kind, value)
	require.NoError(t, err)
	assert.Equal(t, urlAddr.Key(), got.Key())
}

func splitRoute(routePath string) (kind, value string, ok bool) {
	for i := 0; i < len(routePath); i++ {
		if routePath[i] == '/' {
			return routePath[:i], routePath[i+1:], true
		}
	}
	return routePath, "", false
}

func TestNewPublicKeyAddressRejectsInvalidHex(t *testing.T) {
	_, err := model.NewPublicKeyAddress("not-hex")
	assert.Error(t, err)
}

func TestNewURLAddressRejectsEmpty(t *testing.T) {
	_, err := model.NewURLAddress("")
	assert.Error(t, err)
}

func TestImplementationValidateRequiresMatchingVariant(t *testing.T) {
	impl := model.Implementation{Kind: model.ImplementationClnGrpc}
	assert.Error(t, impl.Validate())

	impl = model.Implementation{
		Kind: model.ImplementationClnGrpc,
		Cln:  &model.ClnGrpcImplementation{URL: "cln.example.com:9736"},
	}
	assert.NoError(t, impl.Validate())
}
