// Package memory implements the in-memory flavor of the store
// contracts in internal/store, backed by a mutex-guarded map per
// entity kind, per spec.md §4.6. Grounded on the teacher's
// mutex-free-but-single-client redis cache package's get/set/delete
// shape, adapted here to an actual concurrent in-process map since
// there is no external cache to delegate locking to.
package memory

import (
	"context"
	"sort"
	"sync"

	"switchgear/internal/apperr"
	"switchgear/internal/model"
	"switchgear/internal/store"
)

// BackendStore is the in-memory Discovery backend store.
type BackendStore struct {
	mu   sync.RWMutex
	data map[string]model.DiscoveryBackend

	subMu sync.Mutex
	subs  []store.OnChangeFunc
}

func NewBackendStore() *BackendStore {
	return &BackendStore{data: map[string]model.DiscoveryBackend{}}
}

func (s *BackendStore) OnChange(fn store.OnChangeFunc) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *BackendStore) notify(partition string) {
	s.subMu.Lock()
	subs := append([]store.OnChangeFunc(nil), s.subs...)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(store.ChangeEvent{Partition: partition})
	}
}

func (s *BackendStore) GetAll(ctx context.Context, partition string, page store.Page) ([]model.DiscoveryBackend, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []model.DiscoveryBackend
	for _, b := range s.data {
		if partition == "" || b.InPartition(partition) {
			matched = append(matched, b)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Address.Key() < matched[j].Address.Key() })
	return paginate(matched, page), len(matched), nil
}

func (s *BackendStore) Get(ctx context.Context, key string) (model.DiscoveryBackend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[key]
	if !ok {
		return model.DiscoveryBackend{}, apperr.NotFound("backend " + key + " not found")
	}
	return b, nil
}

func (s *BackendStore) Put(ctx context.Context, key string, rec model.DiscoveryBackend) error {
	s.mu.Lock()
	s.data[key] = rec
	s.mu.Unlock()
	s.notify("")
	return nil
}

func (s *BackendStore) Patch(ctx context.Context, key string, patch model.PatchDiscoveryBackend) (model.DiscoveryBackend, error) {
	s.mu.Lock()
	existing, ok := s.data[key]
	if !ok {
		s.mu.Unlock()
		return model.DiscoveryBackend{}, apperr.NotFound("backend " + key + " not found")
	}
	updated := patch.Apply(existing)
	s.data[key] = updated
	s.mu.Unlock()
	s.notify("")
	return updated, nil
}

func (s *BackendStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	if _, ok := s.data[key]; !ok {
		s.mu.Unlock()
		return apperr.NotFound("backend " + key + " not found")
	}
	delete(s.data, key)
	s.mu.Unlock()
	s.notify("")
	return nil
}

func paginate[T any](all []T, page store.Page) []T {
	if page.PageSize <= 0 {
		return all
	}
	start := page.Page * page.PageSize
	if start >= len(all) || start < 0 {
		return []T{}
	}
	end := start + page.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}
