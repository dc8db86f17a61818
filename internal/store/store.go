// Package store defines the shared contract for the three entity
// stores (Discovery backends, Offers, OfferMetadata) described in
// spec.md §4.6, each implemented in memory, SQL, or remote-HTTP form
// by the memory, sqlstore, and httpstore subpackages.
package store

import (
	"context"

	"switchgear/internal/model"
)

// Page bounds a get_all listing. A PageSize of 0 or less makes the
// memory and SQL stores return every matching record; httpstore then
// omits page_size, so the remote instance applies its max-page-size.
type Page struct {
	Page     int
	PageSize int
}

// ChangeEvent is delivered to on_change subscribers after a successful
// mutation, per spec.md §4.6. Polling-backed implementations may
// coalesce several mutations within one tick into a single event.
type ChangeEvent struct {
	Partition string // empty for stores that are not partition-scoped
}

// OnChangeFunc is a subscriber callback, invoked at least once after
// every successful mutation.
type OnChangeFunc func(ChangeEvent)

// BackendStore is the Discovery backend store contract. Keys are
// model.Address.Key() strings.
type BackendStore interface {
	GetAll(ctx context.Context, partition string, page Page) ([]model.DiscoveryBackend, int, error)
	Get(ctx context.Context, key string) (model.DiscoveryBackend, error)
	Put(ctx context.Context, key string, rec model.DiscoveryBackend) error
	Patch(ctx context.Context, key string, patch model.PatchDiscoveryBackend) (model.DiscoveryBackend, error)
	Delete(ctx context.Context, key string) error
	OnChange(fn OnChangeFunc)
}

// OfferStore is the Offer store contract. Keys are "partition/id".
type OfferStore interface {
	GetAll(ctx context.Context, partition string, page Page) ([]model.Offer, int, error)
	Get(ctx context.Context, key string) (model.Offer, error)
	Put(ctx context.Context, key string, rec model.Offer) error
	Delete(ctx context.Context, key string) error
	OnChange(fn OnChangeFunc)
}

// MetadataStore is the OfferMetadata store contract. Keys are
// "partition/id". Referential integrity against Offer rows
// (spec.md §3/§8: delete rejected while an Offer still references the
// row) is enforced once, generically, by the Offer admin HTTP handler
// (internal/httpapi), since that is the only caller with both an
// OfferStore and a MetadataStore in hand across all three store
// flavors. sqlstore's MetadataStore additionally enforces it at the
// SQL layer itself, where a single query is cheaper than a full
// GetAll scan.
type MetadataStore interface {
	GetAll(ctx context.Context, partition string, page Page) ([]model.OfferMetadata, int, error)
	Get(ctx context.Context, key string) (model.OfferMetadata, error)
	Put(ctx context.Context, key string, rec model.OfferMetadata) error
	Delete(ctx context.Context, key string) error
	OnChange(fn OnChangeFunc)
}

// Key builds the "partition/id" composite key used by Offer and
// OfferMetadata stores.
func Key(partition, id string) string {
	return partition + "/" + id
}

// SplitKey reverses Key, splitting on the first "/".
func SplitKey(key string) (partition, id string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
