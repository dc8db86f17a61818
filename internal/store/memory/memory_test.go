package memory

import (
	"context"
	"testing"

	"switchgear/internal/apperr"
	"switchgear/internal/model"
	"switchgear/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewBackendStore()

	addr, err := model.NewPublicKeyAddress("0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	require.NoError(t, err)

	var changes int
	s.OnChange(func(store.ChangeEvent) { changes++ })

	backend := model.DiscoveryBackend{
		Address:    addr,
		Partitions: []string{"us"},
		Name:       "node-a",
		Weight:     1,
		Enabled:    true,
		Implementation: model.Implementation{
			Kind: model.ImplementationLndGrpc,
			Lnd:  &model.LndGrpcImplementation{URL: "lnd.example:10009"},
		},
	}

	require.NoError(t, s.Put(ctx, addr.Key(), backend))
	assert.Equal(t, 1, changes)

	got, err := s.Get(ctx, addr.Key())
	require.NoError(t, err)
	assert.Equal(t, backend.Name, got.Name)

	_, err = s.Get(ctx, "does-not-exist")
	assert.Equal(t, apperr.KindNotFound, apperr.As(err).Kind)

	require.NoError(t, s.Delete(ctx, addr.Key()))
	assert.Equal(t, 2, changes)

	_, err = s.Get(ctx, addr.Key())
	assert.Equal(t, apperr.KindNotFound, apperr.As(err).Kind)
}

func TestBackendStorePatch(t *testing.T) {
	ctx := context.Background()
	s := NewBackendStore()

	addr, err := model.NewURLAddress("http://node-b.example")
	require.NoError(t, err)

	backend := model.DiscoveryBackend{
		Address:    addr,
		Partitions: []string{"us"},
		Weight:     1,
		Enabled:    true,
		Implementation: model.Implementation{
			Kind: model.ImplementationLndGrpc,
			Lnd:  &model.LndGrpcImplementation{URL: "lnd.example:10009"},
		},
	}
	require.NoError(t, s.Put(ctx, addr.Key(), backend))

	disabled := false
	updated, err := s.Patch(ctx, addr.Key(), model.PatchDiscoveryBackend{Enabled: &disabled})
	require.NoError(t, err)
	assert.False(t, updated.Enabled)

	_, err = s.Patch(ctx, "missing", model.PatchDiscoveryBackend{Enabled: &disabled})
	assert.Equal(t, apperr.KindNotFound, apperr.As(err).Kind)
}

func TestBackendStoreGetAllFiltersByPartitionAndPaginates(t *testing.T) {
	ctx := context.Background()
	s := NewBackendStore()

	for i := 0; i < 3; i++ {
		addr, err := model.NewURLAddress("http://node.example/" + string(rune('a'+i)))
		require.NoError(t, err)
		require.NoError(t, s.Put(ctx, addr.Key(), model.DiscoveryBackend{
			Address:    addr,
			Partitions: []string{"us"},
			Weight:     1,
			Enabled:    true,
			Implementation: model.Implementation{
				Kind: model.ImplementationLndGrpc,
				Lnd:  &model.LndGrpcImplementation{URL: "lnd.example:10009"},
			},
		}))
	}

	all, total, err := s.GetAll(ctx, "us", store.Page{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 3)

	page, total, err := s.GetAll(ctx, "us", store.Page{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 1)

	none, _, err := s.GetAll(ctx, "ca", store.Page{})
	require.NoError(t, err)
	assert.Empty(t, none)
}
