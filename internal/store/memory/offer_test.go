package memory

import (
	"context"
	"testing"
	"time"

	"switchgear/internal/apperr"
	"switchgear/internal/model"
	"switchgear/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfferStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewOfferStore()

	var changes int
	s.OnChange(func(store.ChangeEvent) { changes++ })

	offer := model.Offer{
		Partition:       "us",
		ID:              uuid.New(),
		MinSendableMsat: 1000,
		MaxSendableMsat: 2000,
		MetadataID:      uuid.New(),
		Timestamp:       time.Now(),
	}
	key := store.Key(offer.Partition, offer.ID.String())

	require.NoError(t, s.Put(ctx, key, offer))
	assert.Equal(t, 1, changes)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, offer.MinSendableMsat, got.MinSendableMsat)

	require.NoError(t, s.Delete(ctx, key))
	assert.Equal(t, 2, changes)

	_, err = s.Get(ctx, key)
	assert.Equal(t, apperr.KindNotFound, apperr.As(err).Kind)
}

func TestMetadataStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMetadataStore()

	meta := model.OfferMetadata{
		ID:        uuid.New(),
		Partition: "us",
		Text:      "Payment",
	}
	key := store.Key(meta.Partition, meta.ID.String())

	require.NoError(t, s.Put(ctx, key, meta))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, meta.Text, got.Text)

	all, total, err := s.GetAll(ctx, "us", store.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, all, 1)

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.Equal(t, apperr.KindNotFound, apperr.As(err).Kind)
}
