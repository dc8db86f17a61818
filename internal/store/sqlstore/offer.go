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

// OfferStore is the SQL-backed Offer store, keyed by "partition/id".
type OfferStore struct {
	db *DB

	subMu sync.Mutex
	subs  []store.OnChangeFunc
}

// NewOfferStore wires an OfferStore over db, relaying the shared
// change bus (if any) the same way sqlstore.BackendStore does.
func NewOfferStore(db *DB) *OfferStore {
	s := &OfferStore{db: db}
	if s.db.Bus != nil {
		s.db.Bus.Subscribe(context.Background(), cache.EntityChannel("offers", ""), func(partition string) {
			s.notifyLocal(partition)
		})
	}
	return s
}

func (s *OfferStore) OnChange(fn store.OnChangeFunc) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *OfferStore) notifyLocal(partition string) {
	s.subMu.Lock()
	subs := append([]store.OnChangeFunc(nil), s.subs...)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(store.ChangeEvent{Partition: partition})
	}
}

func (s *OfferStore) notify(partition string) {
	s.notifyLocal(partition)
	if s.db.Bus != nil {
		s.db.Bus.Publish(context.Background(), cache.EntityChannel("offers", ""), partition)
	}
}

func (s *OfferStore) GetAll(ctx context.Context, partition string, page store.Page) ([]model.Offer, int, error) {
	var rows *sql.Rows
	var err error
	if partition == "" {
		rows, err = s.db.SQL.QueryContext(ctx, `SELECT body FROM offers ORDER BY partition_tag ASC, id ASC`)
	} else {
		rows, err = s.db.SQL.QueryContext(ctx, `SELECT body FROM offers WHERE partition_tag = `+s.db.Dialect.placeholder(1)+` ORDER BY id ASC`, partition)
	}
	if err != nil {
		return nil, 0, apperr.Internal("failed to list offers", err)
	}
	defer rows.Close()

	var all []model.Offer
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, 0, apperr.Internal("failed to scan offer row", err)
		}
		o, err := unmarshal[model.Offer](body)
		if err != nil {
			return nil, 0, apperr.Internal("failed to decode offer row", err)
		}
		all = append(all, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Internal("failed to iterate offer rows", err)
	}

	return paginate(all, page), len(all), nil
}

func (s *OfferStore) Get(ctx context.Context, key string) (model.Offer, error) {
	partition, id := store.SplitKey(key)
	var body string
	err := s.db.SQL.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT body FROM offers WHERE partition_tag = %s AND id = %s`, s.db.Dialect.placeholder(1), s.db.Dialect.placeholder(2)),
		partition, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Offer{}, apperr.NotFound("offer " + key + " not found")
	}
	if err != nil {
		return model.Offer{}, apperr.Internal("failed to get offer", err)
	}
	return unmarshal[model.Offer](body)
}

func (s *OfferStore) Put(ctx context.Context, key string, rec model.Offer) error {
	partition, id := store.SplitKey(key)
	body, err := marshal(rec)
	if err != nil {
		return apperr.Internal("failed to encode offer", err)
	}

	query := upsertCompositeQuery(s.db.Dialect, "offers", []string{"partition_tag", "id"}, []string{"metadata_id", "body"})
	if _, err := s.db.SQL.ExecContext(ctx, query, partition, id, rec.MetadataID.String(), body); err != nil {
		return apperr.Internal("failed to put offer", err)
	}
	s.notify(partition)
	return nil
}

func (s *OfferStore) Delete(ctx context.Context, key string) error {
	partition, id := store.SplitKey(key)
	res, err := s.db.SQL.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM offers WHERE partition_tag = %s AND id = %s`, s.db.Dialect.placeholder(1), s.db.Dialect.placeholder(2)),
		partition, id,
	)
	if err != nil {
		return apperr.Internal("failed to delete offer", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFound("offer " + key + " not found")
	}
	s.notify(partition)
	return nil
}

// upsertCompositeQuery is upsertQuery generalized to a composite
// primary key.
func upsertCompositeQuery(d Dialect, table string, keyCols, valueCols []string) string {
	cols := append(append([]string{}, keyCols...), valueCols...)
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
	default:
		sets := ""
		for i, c := range valueCols {
			if i > 0 {
				sets += ", "
			}
			sets += fmt.Sprintf("%s = excluded.%s", c, c)
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
			table, join(cols), join(placeholders), join(keyCols), sets)
	}
}
