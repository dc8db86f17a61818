package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"switchgear/internal/apperr"
	"switchgear/internal/model"
	"switchgear/internal/store"

	"switchgear/pkg/cache"
)

// BackendStore is the SQL-backed Discovery backend store.
type BackendStore struct {
	db *DB

	subMu sync.Mutex
	subs  []store.OnChangeFunc
}

// NewBackendStore wires a BackendStore over db. If db.Bus is set, the
// store both publishes its own mutations to the shared change channel
// and relays remote publishes into its local subscriber list.
func NewBackendStore(db *DB) *BackendStore {
	s := &BackendStore{db: db}
	s.subscribeBus()
	return s
}

func (s *BackendStore) subscribeBus() {
	if s.db.Bus == nil {
		return
	}
	s.db.Bus.Subscribe(context.Background(), cache.EntityChannel("backends", ""), func(string) {
		s.notifyLocal()
	})
}

func (s *BackendStore) OnChange(fn store.OnChangeFunc) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *BackendStore) notifyLocal() {
	s.subMu.Lock()
	subs := append([]store.OnChangeFunc(nil), s.subs...)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(store.ChangeEvent{})
	}
}

// notify fires local subscribers immediately and, if a change bus is
// attached, fans the mutation out to every other instance sharing
// this database.
func (s *BackendStore) notify() {
	s.notifyLocal()
	if s.db.Bus != nil {
		s.db.Bus.Publish(context.Background(), cache.EntityChannel("backends", ""), "")
	}
}

func (s *BackendStore) GetAll(ctx context.Context, partition string, page store.Page) ([]model.DiscoveryBackend, int, error) {
	rows, err := s.db.SQL.QueryContext(ctx, `SELECT body FROM backends ORDER BY address_key ASC`)
	if err != nil {
		return nil, 0, apperr.Internal("failed to list backends", err)
	}
	defer rows.Close()

	var all []model.DiscoveryBackend
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, 0, apperr.Internal("failed to scan backend row", err)
		}
		b, err := unmarshal[model.DiscoveryBackend](body)
		if err != nil {
			return nil, 0, apperr.Internal("failed to decode backend row", err)
		}
		if partition == "" || b.InPartition(partition) {
			all = append(all, b)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Internal("failed to iterate backend rows", err)
	}

	return paginate(all, page), len(all), nil
}

func (s *BackendStore) Get(ctx context.Context, key string) (model.DiscoveryBackend, error) {
	var body string
	err := s.db.SQL.QueryRowContext(ctx, `SELECT body FROM backends WHERE address_key = `+s.db.Dialect.placeholder(1), key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DiscoveryBackend{}, apperr.NotFound("backend " + key + " not found")
	}
	if err != nil {
		return model.DiscoveryBackend{}, apperr.Internal("failed to get backend", err)
	}
	return unmarshal[model.DiscoveryBackend](body)
}

func (s *BackendStore) Put(ctx context.Context, key string, rec model.DiscoveryBackend) error {
	body, err := marshal(rec)
	if err != nil {
		return apperr.Internal("failed to encode backend", err)
	}

	query := upsertQuery(s.db.Dialect, "backends", "address_key", []string{"body"})
	if _, err := s.db.SQL.ExecContext(ctx, query, key, body); err != nil {
		return apperr.Internal("failed to put backend", err)
	}
	s.notify()
	return nil
}

func (s *BackendStore) Patch(ctx context.Context, key string, patch model.PatchDiscoveryBackend) (model.DiscoveryBackend, error) {
	tx, err := s.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return model.DiscoveryBackend{}, apperr.Internal("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var body string
	err = tx.QueryRowContext(ctx, `SELECT body FROM backends WHERE address_key = `+s.db.Dialect.placeholder(1), key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DiscoveryBackend{}, apperr.NotFound("backend " + key + " not found")
	}
	if err != nil {
		return model.DiscoveryBackend{}, apperr.Internal("failed to get backend for patch", err)
	}

	existing, err := unmarshal[model.DiscoveryBackend](body)
	if err != nil {
		return model.DiscoveryBackend{}, apperr.Internal("failed to decode backend for patch", err)
	}
	updated := patch.Apply(existing)

	newBody, err := marshal(updated)
	if err != nil {
		return model.DiscoveryBackend{}, apperr.Internal("failed to encode patched backend", err)
	}

	updateQuery := fmt.Sprintf(`UPDATE backends SET body = %s WHERE address_key = %s`,
		s.db.Dialect.placeholder(1), s.db.Dialect.placeholder(2))
	if _, err := tx.ExecContext(ctx, updateQuery, newBody, key); err != nil {
		return model.DiscoveryBackend{}, apperr.Internal("failed to patch backend", err)
	}
	if err := tx.Commit(); err != nil {
		return model.DiscoveryBackend{}, apperr.Internal("failed to commit patch", err)
	}

	s.notify()
	return updated, nil
}

func (s *BackendStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.SQL.ExecContext(ctx, `DELETE FROM backends WHERE address_key = `+s.db.Dialect.placeholder(1), key)
	if err != nil {
		return apperr.Internal("failed to delete backend", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("backend " + key + " not found")
	}
	s.notify()
	return nil
}

// upsertQuery builds an "insert or replace" statement across the
// three dialects' differing upsert syntax, for a table with a single
// primary-key column followed by the given value columns.
func upsertQuery(d Dialect, table, keyCol string, valueCols []string) string {
	cols := append([]string{keyCol}, valueCols...)
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = d.placeholder(i + 1)
	}

	switch d {
	case DialectMySQL:
		sets := ""
		for i, c := range valueCols {
			if i > 0 {
				sets += ", "
			}
			sets += fmt.Sprintf("%s = VALUES(%s)", c, c)
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
			table, join(cols), join(placeholders), sets)
	default: // postgres, sqlite both support ON CONFLICT
		sets := ""
		for i, c := range valueCols {
			if i > 0 {
				sets += ", "
			}
			sets += fmt.Sprintf("%s = excluded.%s", c, c)
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
			table, join(cols), join(placeholders), keyCol, sets)
	}
}

func join(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ", "
		}
		out += it
	}
	return out
}
