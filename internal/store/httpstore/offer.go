package httpstore

import (
	"context"
	"net/http"
	"sync"
	"time"

	"switchgear/internal/apperr"
	"switchgear/internal/model"
	"switchgear/internal/store"
)

// OfferStore proxies the Offer store contract to a remote switchgear
// instance's /offers admin surface, per spec.md §4.5's
// partition-scoped routes. Like httpstore.BackendStore, it has no
// native change notification and falls back to polling.
type OfferStore struct {
	c            *client
	pollInterval time.Duration

	subMu sync.Mutex
	subs  []store.OnChangeFunc

	pollOnce sync.Once
	lastSeen map[string]struct{}
}

func NewOfferStore(cfg Config, pollInterval time.Duration) (*OfferStore, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &OfferStore{c: c, pollInterval: pollInterval}, nil
}

func (s *OfferStore) OnChange(fn store.OnChangeFunc) {
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
	s.pollOnce.Do(func() { go s.pollLoop() })
}

func (s *OfferStore) pollLoop() {
	interval := s.pollInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		all, _, err := s.GetAll(context.Background(), "", store.Page{})
		if err != nil {
			continue
		}
		seen := make(map[string]struct{}, len(all))
		for _, o := range all {
			seen[store.Key(o.Partition, o.ID.String())] = struct{}{}
		}
		if !sameKeySet(s.lastSeen, seen) {
			s.lastSeen = seen
			s.subMu.Lock()
			subs := append([]store.OnChangeFunc(nil), s.subs...)
			s.subMu.Unlock()
			for _, fn := range subs {
				fn(store.ChangeEvent{})
			}
		}
	}
}

func (s *OfferStore) GetAll(ctx context.Context, partition string, page store.Page) ([]model.Offer, int, error) {
	var out struct {
		Items []model.Offer `json:"items"`
		Total int           `json:"total"`
	}
	if err := s.c.do(ctx, http.MethodGet, "/offers/"+partition+query("", page), nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Items, out.Total, nil
}

func (s *OfferStore) Get(ctx context.Context, key string) (model.Offer, error) {
	partition, id := store.SplitKey(key)
	var out model.Offer
	err := s.c.do(ctx, http.MethodGet, "/offers/"+partition+"/"+id, nil, &out)
	return out, err
}

func (s *OfferStore) Put(ctx context.Context, key string, rec model.Offer) error {
	partition, id := store.SplitKey(key)
	err := s.c.do(ctx, http.MethodPut, "/offers/"+partition+"/"+id, rec, nil)
	if err != nil && apperr.As(err).Kind == apperr.KindNotFound {
		return s.c.do(ctx, http.MethodPost, "/offers/"+partition, rec, nil)
	}
	return err
}

func (s *OfferStore) Delete(ctx context.Context, key string) error {
	partition, id := store.SplitKey(key)
	return s.c.do(ctx, http.MethodDelete, "/offers/"+partition+"/"+id, nil, nil)
}

// MetadataStore proxies the OfferMetadata store contract to a remote
// switchgear instance's /metadata admin surface.
type MetadataStore struct {
	c            *client
	pollInterval time.Duration

	subMu sync.Mutex
	subs  []store.OnChangeFunc

	pollOnce sync.Once
	lastSeen map[string]struct{}
}

func NewMetadataStore(cfg Config, pollInterval time.Duration) (*MetadataStore, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &MetadataStore{c: c, pollInterval: pollInterval}, nil
}

func (s *MetadataStore) OnChange(fn store.OnChangeFunc) {
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
	s.pollOnce.Do(func() { go s.pollLoop() })
}

func (s *MetadataStore) pollLoop() {
	interval := s.pollInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		all, _, err := s.GetAll(context.Background(), "", store.Page{})
		if err != nil {
			continue
		}
		seen := make(map[string]struct{}, len(all))
		for _, m := range all {
			seen[store.Key(m.Partition, m.ID.String())] = struct{}{}
		}
		if !sameKeySet(s.lastSeen, seen) {
			s.lastSeen = seen
			s.subMu.Lock()
			subs := append([]store.OnChangeFunc(nil), s.subs...)
			s.subMu.Unlock()
			for _, fn := range subs {
				fn(store.ChangeEvent{})
			}
		}
	}
}

func (s *MetadataStore) GetAll(ctx context.Context, partition string, page store.Page) ([]model.OfferMetadata, int, error) {
	var out struct {
		Items []model.OfferMetadata `json:"items"`
		Total int                   `json:"total"`
	}
	if err := s.c.do(ctx, http.MethodGet, "/metadata/"+partition+query("", page), nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Items, out.Total, nil
}

func (s *MetadataStore) Get(ctx context.Context, key string) (model.OfferMetadata, error) {
	partition, id := store.SplitKey(key)
	var out model.OfferMetadata
	err := s.c.do(ctx, http.MethodGet, "/metadata/"+partition+"/"+id, nil, &out)
	return out, err
}

func (s *MetadataStore) Put(ctx context.Context, key string, rec model.OfferMetadata) error {
	partition, id := store.SplitKey(key)
	err := s.c.do(ctx, http.MethodPut, "/metadata/"+partition+"/"+id, rec, nil)
	if err != nil && apperr.As(err).Kind == apperr.KindNotFound {
		return s.c.do(ctx, http.MethodPost, "/metadata/"+partition, rec, nil)
	}
	return err
}

func (s *MetadataStore) Delete(ctx context.Context, key string) error {
	partition, id := store.SplitKey(key)
	return s.c.do(ctx, http.MethodDelete, "/metadata/"+partition+"/"+id, nil, nil)
}
