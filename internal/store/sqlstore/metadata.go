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

// MetadataStore is the SQL-backed OfferMetadata store, keyed by
// "partition/id". Delete enforces spec.md §4.6/§8's referential
// integrity rule against the offers table directly, since the two
// entities share this package's connection pool.
type MetadataStore struct {
	db *DB

	subMu sync.Mutex
	subs  []store.OnChangeFunc
}

// NewMetadataStore wires a MetadataStore over db, relaying the shared
// change bus (if any) the same way sqlstore.BackendStore does.
func NewMetadataStore(db *DB) *MetadataStore {
	s := &MetadataStore{db: db}
	if s.db.Bus != nil {
		s.db.Bus.Subscribe(context.Background(), cache.EntityChannel("offer_metadata", ""), func(partition string) {
			s.notifyLocal(partition)
		})
	}
	return s
}

func (s *MetadataStore) OnChange(fn store.OnChangeFunc) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *MetadataStore) notifyLocal(partition string) {
	s.subMu.Lock()
	subs := append([]store.OnChangeFunc(nil), s.subs...)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(store.ChangeEvent{Partition: partition})
	}
}

func (s *MetadataStore) notify(partition string) {
	s.notifyLocal(partition)
	if s.db.Bus != nil {
		s.db.Bus.Publish(context.Background(), cache.EntityChannel("offer_metadata", ""), partition)
	}
}

func (s *MetadataStore) GetAll(ctx context.Context, partition string, page store.Page) ([]model.OfferMetadata, int, error) {
	var rows *sql.Rows
	var err error
	if partition == "" {
		rows, err = s.db.SQL.QueryContext(ctx, `SELECT body FROM offer_metadata ORDER BY partition_tag ASC, id ASC`)
	} else {
		rows, err = s.db.SQL.QueryContext(ctx, `SELECT body FROM offer_metadata WHERE partition_tag = `+s.db.Dialect.placeholder(1)+` ORDER BY id ASC`, partition)
	}
	if err != nil {
		return nil, 0, apperr.Internal("failed to list metadata", err)
	}
	defer rows.Close()

	var all []model.OfferMetadata
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, 0, apperr.Internal("failed to scan metadata row", err)
		}
		m, err := unmarshal[model.OfferMetadata](body)
		if err != nil {
			return nil, 0, apperr.Internal("failed to decode metadata row", err)
		}
		all = append(all, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Internal("failed to iterate metadata rows", err)
	}

	return paginate(all, page), len(all), nil
}

func (s *MetadataStore) Get(ctx context.Context, key string) (model.OfferMetadata, error) {
	partition, id := store.SplitKey(key)
	var body string
	err := s.db.SQL.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT body FROM offer_metadata WHERE partition_tag = %s AND id = %s`, s.db.Dialect.placeholder(1), s.db.Dialect.placeholder(2)),
		partition, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.OfferMetadata{}, apperr.NotFound("metadata " + key + " not found")
	}
	if err != nil {
		return model.OfferMetadata{}, apperr.Internal("failed to get metadata", err)
	}
	return unmarshal[model.OfferMetadata](body)
}

func (s *MetadataStore) Put(ctx context.Context, key string, rec model.OfferMetadata) error {
	partition, id := store.SplitKey(key)
	body, err := marshal(rec)
	if err != nil {
		return apperr.Internal("failed to encode metadata", err)
	}

	query := upsertCompositeQuery(s.db.Dialect, "offer_metadata", []string{"partition_tag", "id"}, []string{"body"})
	if _, err := s.db.SQL.ExecContext(ctx, query, partition, id, body); err != nil {
		return apperr.Internal("failed to put metadata", err)
	}
	s.notify(partition)
	return nil
}

func (s *MetadataStore) Delete(ctx context.Context, key string) error {
	partition, id := store.SplitKey(key)

	var refCount int
	err := s.db.SQL.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM offers WHERE partition_tag = %s AND metadata_id = %s`, s.db.Dialect.placeholder(1), s.db.Dialect.placeholder(2)),
		partition, id,
	).Scan(&refCount)
	if err != nil {
		return apperr.Internal("failed to check metadata references", err)
	}
	if refCount > 0 {
		return apperr.ReferentialIntegrity("metadata " + key + " is still referenced by an offer")
	}

	res, err := s.db.SQL.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM offer_metadata WHERE partition_tag = %s AND id = %s`, s.db.Dialect.placeholder(1), s.db.Dialect.placeholder(2)),
		partition, id,
	)
	if err != nil {
		return apperr.Internal("failed to delete metadata", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("metadata " + key + " not found")
	}
	s.notify(partition)
	return nil
}
