package sqlstore

import (
	"context"
	"testing"

	"switchgear/internal/apperr"
	"switchgear/internal/model"
	"switchgear/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DialectSQLite, ":memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLBackendStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := NewBackendStore(db)

	addr, err := model.NewURLAddress("http://node-a.example")
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

	got, err := s.Get(ctx, addr.Key())
	require.NoError(t, err)
	assert.Equal(t, backend.Partitions, got.Partitions)

	require.NoError(t, s.Delete(ctx, addr.Key()))
	_, err = s.Get(ctx, addr.Key())
	assert.Equal(t, apperr.KindNotFound, apperr.As(err).Kind)
}

func TestSQLOfferAndMetadataReferentialIntegrity(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	offers := NewOfferStore(db)
	metadata := NewMetadataStore(db)

	meta := model.OfferMetadata{ID: uuid.New(), Partition: "us", Text: "Payment"}
	metaKey := store.Key(meta.Partition, meta.ID.String())
	require.NoError(t, metadata.Put(ctx, metaKey, meta))

	offer := model.Offer{
		Partition:       "us",
		ID:              uuid.New(),
		MinSendableMsat: 1000,
		MaxSendableMsat: 2000,
		MetadataID:      meta.ID,
	}
	offerKey := store.Key(offer.Partition, offer.ID.String())
	require.NoError(t, offers.Put(ctx, offerKey, offer))

	got, err := offers.Get(ctx, offerKey)
	require.NoError(t, err)
	assert.Equal(t, offer.MinSendableMsat, got.MinSendableMsat)

	err = metadata.Delete(ctx, metaKey)
	assert.Equal(t, apperr.KindReferentialIntegrity, apperr.As(err).Kind)

	require.NoError(t, offers.Delete(ctx, offerKey))
	require.NoError(t, metadata.Delete(ctx, metaKey))
}
