package memory

import (
	"context"
	"sort"
	"sync"

	"switchgear/internal/apperr"
	"switchgear/internal/model"
	"switchgear/internal/store"
)

// OfferStore is the in-memory Offer store, keyed by "partition/id".
type OfferStore struct {
	mu   sync.RWMutex
	data map[string]model.Offer

	subMu sync.Mutex
	subs  []store.OnChangeFunc
}

func NewOfferStore() *OfferStore {
	return &OfferStore{data: map[string]model.Offer{}}
}

func (s *OfferStore) OnChange(fn store.OnChangeFunc) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *OfferStore) notify(partition string) {
	s.subMu.Lock()
	subs := append([]store.OnChangeFunc(nil), s.subs...)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(store.ChangeEvent{Partition: partition})
	}
}

func (s *OfferStore) GetAll(ctx context.Context, partition string, page store.Page) ([]model.Offer, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []model.Offer
	for _, o := range s.data {
		if partition == "" || o.Partition == partition {
			matched = append(matched, o)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID.String() < matched[j].ID.String() })
	return paginate(matched, page), len(matched), nil
}

func (s *OfferStore) Get(ctx context.Context, key string) (model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.data[key]
	if !ok {
		return model.Offer{}, apperr.NotFound("offer " + key + " not found")
	}
	return o, nil
}

func (s *OfferStore) Put(ctx context.Context, key string, rec model.Offer) error {
	s.mu.Lock()
	s.data[key] = rec
	s.mu.Unlock()
	s.notify(rec.Partition)
	return nil
}

func (s *OfferStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	rec, ok := s.data[key]
	if !ok {
		s.mu.Unlock()
		return apperr.NotFound("offer " + key + " not found")
	}
	delete(s.data, key)
	s.mu.Unlock()
	s.notify(rec.Partition)
	return nil
}

// MetadataStore is the in-memory OfferMetadata store, keyed by
// "partition/id".
type MetadataStore struct {
	mu   sync.RWMutex
	data map[string]model.OfferMetadata

	subMu sync.Mutex
	subs  []store.OnChangeFunc
}

func NewMetadataStore() *MetadataStore {
	return &MetadataStore{data: map[string]model.OfferMetadata{}}
}

func (s *MetadataStore) OnChange(fn store.OnChangeFunc) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *MetadataStore) notify(partition string) {
	s.subMu.Lock()
	subs := append([]store.OnChangeFunc(nil), s.subs...)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(store.ChangeEvent{Partition: partition})
	}
}

func (s *MetadataStore) GetAll(ctx context.Context, partition string, page store.Page) ([]model.OfferMetadata, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []model.OfferMetadata
	for _, m := range s.data {
		if partition == "" || m.Partition == partition {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID.String() < matched[j].ID.String() })
	return paginate(matched, page), len(matched), nil
}

func (s *MetadataStore) Get(ctx context.Context, key string) (model.OfferMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.data[key]
	if !ok {
		return model.OfferMetadata{}, apperr.NotFound("metadata " + key + " not found")
	}
	return m, nil
}

func (s *MetadataStore) Put(ctx context.Context, key string, rec model.OfferMetadata) error {
	s.mu.Lock()
	s.data[key] = rec
	s.mu.Unlock()
	s.notify(rec.Partition)
	return nil
}

func (s *MetadataStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	rec, ok := s.data[key]
	if !ok {
		s.mu.Unlock()
		return apperr.NotFound("metadata " + key + " not found")
	}
	delete(s.data, key)
	s.mu.Unlock()
	s.notify(rec.Partition)
	return nil
}
