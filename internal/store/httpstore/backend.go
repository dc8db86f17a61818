package httpstore

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"switchgear/internal/apperr"
	"switchgear/internal/model"
	"switchgear/internal/store"
)

// routePath rebuilds the "pk/{hex}" or "url/{base64url}" route suffix
// spec.md §4.5 addresses a backend by, from the store key this
// package is handed (model.Address.Key()'s "pk:{hex}" or
// "url:{raw-url}" form — the raw form, not base64, so this can't
// reuse Address.RoutePath without re-parsing the key's prefix first).
func routePath(key string) string {
	if rest, ok := strings.CutPrefix(key, "pk:"); ok {
		return "pk/" + rest
	}
	rest := strings.TrimPrefix(key, "url:")
	return "url/" + base64.RawURLEncoding.EncodeToString([]byte(rest))
}

// BackendStore proxies the Discovery backend store contract to a
// remote switchgear instance's /discovery admin surface. It has no
// native change notification, so it falls back to polling: OnChange
// subscribers are invoked from a background ticker whenever GetAll
// observes a different address set than last seen, per spec.md §4.6's
// "polling-based implementations may coalesce bursts" allowance.
type BackendStore struct {
	c            *client
	pollInterval time.Duration

	subMu sync.Mutex
	subs  []store.OnChangeFunc

	pollOnce sync.Once
	lastSeen map[string]struct{}
}

func NewBackendStore(cfg Config, pollInterval time.Duration) (*BackendStore, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &BackendStore{c: c, pollInterval: pollInterval}, nil
}

func (s *BackendStore) OnChange(fn store.OnChangeFunc) {
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
	s.pollOnce.Do(func() { go s.pollLoop() })
}

func (s *BackendStore) pollLoop() {
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
		for _, b := range all {
			seen[b.Address.Key()] = struct{}{}
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

func sameKeySet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func (s *BackendStore) GetAll(ctx context.Context, partition string, page store.Page) ([]model.DiscoveryBackend, int, error) {
	var out struct {
		Items []model.DiscoveryBackend `json:"items"`
		Total int                      `json:"total"`
	}
	if err := s.c.do(ctx, http.MethodGet, "/discovery"+query(partition, page), nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Items, out.Total, nil
}

func (s *BackendStore) Get(ctx context.Context, key string) (model.DiscoveryBackend, error) {
	var out model.DiscoveryBackend
	err := s.c.do(ctx, http.MethodGet, "/discovery/"+routePath(key), nil, &out)
	return out, err
}

// Put replaces the remote record with PUT and, when the remote has no
// record at key (PUT answers 404), creates it with POST.
func (s *BackendStore) Put(ctx context.Context, key string, rec model.DiscoveryBackend) error {
	err := s.c.do(ctx, http.MethodPut, "/discovery/"+routePath(key), rec, nil)
	if err != nil && apperr.As(err).Kind == apperr.KindNotFound {
		return s.c.do(ctx, http.MethodPost, "/discovery", rec, nil)
	}
	return err
}

func (s *BackendStore) Patch(ctx context.Context, key string, patch model.PatchDiscoveryBackend) (model.DiscoveryBackend, error) {
	var out model.DiscoveryBackend
	err := s.c.do(ctx, "PATCH", "/discovery/"+routePath(key), patch, &out)
	return out, err
}

func (s *BackendStore) Delete(ctx context.Context, key string) error {
	return s.c.do(ctx, http.MethodDelete, "/discovery/"+routePath(key), nil, nil)
}
