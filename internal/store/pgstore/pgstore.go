package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/config"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
)

// docCache is the cache tier backing cache-scoped reads.
type docCache interface {
	GetDocs(ctx context.Context, key string) ([]store.Document, error)
	SetDocs(ctx context.Context, key string, docs []store.Document) error
}

// Store implements the remote document store contract on PostgreSQL.
// Documents live in a single documents(collection, id, data jsonb,
// created_at) table; live queries ride on LISTEN/NOTIFY.
type Store struct {
	db     *sqlx.DB
	cache  docCache
	hub    *listenHub
	prefix string
	logger *zap.Logger
}

// New constructs the adapter. dsn is needed separately because pq.Listener
// opens its own connection outside the pool. cache may be nil, in which
// case every cache-scoped read misses.
func New(db *sqlx.DB, dsn string, cfg config.StoreConfig, cache docCache, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{db: db, cache: cache, prefix: cfg.NotifyChannelPrefix, logger: logger}

	hub, err := newListenHub(dsn, cfg, s.runSnapshot, logger)
	if err != nil {
		return nil, err
	}
	s.hub = hub
	return s, nil
}

type docRow struct {
	ID        string    `db:"id"`
	Data      []byte    `db:"data"`
	CreatedAt time.Time `db:"created_at"`
}

// Query executes q under the given scope hint.
func (s *Store) Query(ctx context.Context, q store.Query, scope store.Scope) ([]store.Document, error) {
	if scope == store.ScopeCache {
		if s.cache == nil {
			return nil, appErrors.ErrCacheMiss
		}
		return s.cache.GetDocs(ctx, q.Digest())
	}

	query, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}

	var rows []docRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}

	docs := make([]store.Document, 0, len(rows))
	for _, row := range rows {
		doc := store.Document{Collection: q.Collection, ID: row.ID, CreatedAt: row.CreatedAt}
		if err := json.Unmarshal(row.Data, &doc.Data); err != nil {
			s.logger.Warn("skipping undecodable document",
				zap.String("collection", q.Collection), zap.String("id", row.ID), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}

	// First pages feed the cache tier; cursored pages are never cached.
	if s.cache != nil && q.StartAfter == nil {
		if err := s.cache.SetDocs(ctx, q.Digest(), docs); err != nil {
			s.logger.Warn("cache write failed", zap.String("collection", q.Collection), zap.Error(err))
		}
	}
	return docs, nil
}

// buildQuery renders q to SQL over the documents table.
func buildQuery(q store.Query) (string, []interface{}, error) {
	where := []string{"collection = $1"}
	args := []interface{}{q.Collection}

	for _, f := range q.Filters {
		switch f.Op {
		case store.OpEqual:
			args = append(args, fmt.Sprintf("%v", f.Value))
			where = append(where, fmt.Sprintf("data->>'%s' = $%d", f.Field, len(args)))
		case store.OpArrayContains:
			payload, err := json.Marshal([]interface{}{f.Value})
			if err != nil {
				return "", nil, fmt.Errorf("marshal array-contains value: %w", err)
			}
			args = append(args, string(payload))
			where = append(where, fmt.Sprintf("data->'%s' @> $%d::jsonb", f.Field, len(args)))
		case store.OpArrayContainsAny, store.OpIn:
			if len(f.Values) == 0 {
				return "", nil, appErrors.Clone(appErrors.ErrValidation, "empty filter value set")
			}
			if len(f.Values) > store.MaxInValues {
				return "", nil, appErrors.Clone(appErrors.ErrValidation,
					fmt.Sprintf("filter value set exceeds the %d-value cap", store.MaxInValues))
			}
			values := make([]string, len(f.Values))
			for i, v := range f.Values {
				values[i] = fmt.Sprintf("%v", v)
			}
			args = append(args, pq.Array(values))
			if f.Op == store.OpIn {
				where = append(where, fmt.Sprintf("data->>'%s' = ANY($%d)", f.Field, len(args)))
			} else {
				where = append(where, fmt.Sprintf("data->'%s' ?| $%d", f.Field, len(args)))
			}
		default:
			return "", nil, appErrors.Clone(appErrors.ErrValidation, "unsupported filter op "+string(f.Op))
		}
	}

	dir := "ASC"
	cmp := ">"
	if q.Desc {
		dir = "DESC"
		cmp = "<"
	}
	if q.StartAfter != nil {
		args = append(args, q.StartAfter.OrderValue, q.StartAfter.ID)
		where = append(where, fmt.Sprintf("(created_at, id) %s ($%d, $%d)", cmp, len(args)-1, len(args)))
	}

	query := fmt.Sprintf("SELECT id, data, created_at FROM documents WHERE %s ORDER BY created_at %s, id %s",
		strings.Join(where, " AND "), dir, dir)
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return query, args, nil
}

// RunTransaction executes fn with read-then-write atomicity; touched rows
// are locked FOR UPDATE. A failing fn aborts the transaction and its error
// surfaces unchanged.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	wrapped := &pgTx{tx: sqlTx, prefix: s.prefix, touched: make(map[string]struct{})}
	if err := fn(ctx, wrapped); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := wrapped.notify(ctx); err != nil {
		_ = sqlTx.Rollback()
		return fmt.Errorf("notify: %w", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// BatchWrite applies ops in a single transaction, all or nothing.
func (s *Store) BatchWrite(ctx context.Context, ops []store.WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	return s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, op := range ops {
			var err error
			switch op.Kind {
			case store.WriteSet:
				err = tx.Set(ctx, op.Collection, op.ID, op.Data)
			case store.WriteMerge:
				err = tx.Merge(ctx, op.Collection, op.ID, op.Data)
			case store.WriteIncrement:
				err = tx.Increment(ctx, op.Collection, op.ID, op.Field, op.Delta)
			case store.WriteDelete:
				err = deleteDoc(ctx, tx, op.Collection, op.ID)
			default:
				err = appErrors.Clone(appErrors.ErrValidation, "unsupported write kind")
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func deleteDoc(ctx context.Context, tx store.Tx, collection, id string) error {
	pg, ok := tx.(*pgTx)
	if !ok {
		return appErrors.Clone(appErrors.ErrInternal, "transaction type mismatch")
	}
	pg.touch(collection)
	_, err := pg.tx.ExecContext(ctx, "DELETE FROM documents WHERE collection = $1 AND id = $2", collection, id)
	return err
}

// Subscribe opens a live query. The subscription delivers an initial
// snapshot immediately and a fresh one whenever the collection changes.
func (s *Store) Subscribe(ctx context.Context, q store.Query) (store.Subscription, error) {
	return s.hub.add(ctx, q)
}

// Close shuts the listener down. The sqlx pool is owned by the caller.
func (s *Store) Close() error {
	return s.hub.close()
}

// runSnapshot re-executes a subscribed query from the network for delivery
// to listeners.
func (s *Store) runSnapshot(ctx context.Context, q store.Query) ([]store.Document, error) {
	return s.Query(ctx, q, store.ScopeNetwork)
}

// pgTx implements store.Tx on a sqlx transaction. Field keys in Merge and
// Increment may be dotted paths ("stats.quizzesCompleted") addressing nested
// objects.
type pgTx struct {
	tx      *sqlx.Tx
	prefix  string
	touched map[string]struct{}
}

func (t *pgTx) touch(collection string) {
	t.touched[collection] = struct{}{}
}

func (t *pgTx) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	var row docRow
	err := t.tx.GetContext(ctx, &row,
		"SELECT id, data, created_at FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE", collection, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, collection+" document not found")
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	doc := &store.Document{Collection: collection, ID: row.ID, CreatedAt: row.CreatedAt}
	if err := json.Unmarshal(row.Data, &doc.Data); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (t *pgTx) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	t.touch(collection)
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO documents (collection, id, data, created_at)
VALUES ($1, $2, $3::jsonb, NOW())
ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data`, collection, id, string(payload))
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (t *pgTx) Merge(ctx context.Context, collection, id string, data map[string]interface{}) error {
	t.touch(collection)
	if err := t.ensureRow(ctx, collection, id); err != nil {
		return err
	}
	for field, value := range data {
		path := strings.Split(field, ".")
		if err := t.ensurePath(ctx, collection, id, path); err != nil {
			return err
		}
		payload, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal %s/%s field %s: %w", collection, id, field, err)
		}
		_, err = t.tx.ExecContext(ctx, `UPDATE documents SET data = jsonb_set(data, $3, $4::jsonb, true)
WHERE collection = $1 AND id = $2`, collection, id, pq.Array(path), string(payload))
		if err != nil {
			return fmt.Errorf("merge %s/%s field %s: %w", collection, id, field, err)
		}
	}
	return nil
}

// ensurePath materializes the intermediate objects of a dotted field path;
// jsonb_set silently no-ops when a parent key is missing.
func (t *pgTx) ensurePath(ctx context.Context, collection, id string, path []string) error {
	for depth := 1; depth < len(path); depth++ {
		prefix := pq.Array(path[:depth])
		_, err := t.tx.ExecContext(ctx, `UPDATE documents
SET data = jsonb_set(data, $3, COALESCE(data #> $3, '{}'::jsonb), true)
WHERE collection = $1 AND id = $2`, collection, id, prefix)
		if err != nil {
			return fmt.Errorf("ensure path %s/%s %v: %w", collection, id, path[:depth], err)
		}
	}
	return nil
}

func (t *pgTx) Increment(ctx context.Context, collection, id, field string, delta float64) error {
	t.touch(collection)
	if err := t.ensureRow(ctx, collection, id); err != nil {
		return err
	}
	parts := strings.Split(field, ".")
	if err := t.ensurePath(ctx, collection, id, parts); err != nil {
		return err
	}
	path := pq.Array(parts)
	_, err := t.tx.ExecContext(ctx, `UPDATE documents
SET data = jsonb_set(data, $3, to_jsonb(COALESCE((data #>> $3)::numeric, 0) + $4), true)
WHERE collection = $1 AND id = $2`, collection, id, path, delta)
	if err != nil {
		return fmt.Errorf("increment %s/%s field %s: %w", collection, id, field, err)
	}
	return nil
}

func (t *pgTx) ensureRow(ctx context.Context, collection, id string) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO documents (collection, id, data, created_at)
VALUES ($1, $2, '{}'::jsonb, NOW())
ON CONFLICT (collection, id) DO NOTHING`, collection, id)
	if err != nil {
		return fmt.Errorf("ensure %s/%s: %w", collection, id, err)
	}
	return nil
}

// notify wakes subscribers of every touched collection once the transaction
// commits.
func (t *pgTx) notify(ctx context.Context) error {
	for collection := range t.touched {
		if _, err := t.tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", t.prefix+collection, collection); err != nil {
			return err
		}
	}
	return nil
}
