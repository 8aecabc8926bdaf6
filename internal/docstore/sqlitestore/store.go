// Package sqlitestore implements docstore.Store on SQLite. Documents are
// rows holding a JSON body; equality and array-containment predicates are
// pushed into SQL with json_extract and json_each, and the shared matcher
// finishes filtering and ordering so both backends agree exactly.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/mchen/ripple/internal/docstore"
	"github.com/mchen/ripple/pkg/errors"
)

type SQLiteStore struct {
	db     *sql.DB
	clock  *docstore.ServerClock
	hub    *docstore.Hub
	logger *slog.Logger
}

func New(dataSourceName string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if dataSourceName != ":memory:" {
		if dir := filepath.Dir(dataSourceName); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, errors.StoreUnavailable("create database directory", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, errors.StoreUnavailable("open database", err)
	}
	if err = db.Ping(); err != nil {
		return nil, errors.StoreUnavailable("ping database", err)
	}
	// A single connection keeps :memory: databases from silently forking
	// into independent copies across the pool.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		clock:  docstore.NewServerClock(),
		hub:    docstore.NewHub(logger),
		logger: logger,
	}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	go s.hub.Run()
	return s, nil
}

// SetClock swaps the server clock. Tests use it to pin write timestamps.
func (s *SQLiteStore) SetClock(clock *docstore.ServerClock) { s.clock = clock }

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		ts TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_ts ON documents(collection, ts);
	`
	if _, err := s.db.Exec(query); err != nil {
		return errors.StoreUnavailable("create tables", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, ts, data FROM documents WHERE collection = ? AND id = ?", collection, id)

	doc, err := scanDoc(row, collection)
	if err == sql.ErrNoRows {
		return docstore.Doc{}, errors.NotFound(fmt.Sprintf("%s/%s not found", collection, id))
	}
	if err != nil {
		return docstore.Doc{}, errors.StoreUnavailable("get document", err)
	}
	return doc, nil
}

func (s *SQLiteStore) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Doc, error) {
	query := "SELECT id, ts, data FROM documents WHERE collection = ?"
	args := []any{collection}

	// Predicate pushdown for the common cases. The shared matcher
	// re-applies every condition afterwards, so partial pushdown is safe.
	for _, c := range q.Where {
		switch c.Op {
		case docstore.OpEq:
			query += fmt.Sprintf(" AND json_extract(data, '$.%s') = ?", c.Field)
			args = append(args, sqlValue(c.Value))
		case docstore.OpArrayContains:
			query += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM json_each(data, '$.%s') je WHERE je.value = ?)", c.Field)
			args = append(args, sqlValue(c.Value))
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StoreUnavailable("query documents", err)
	}
	defer rows.Close()

	var docs []docstore.Doc
	for rows.Next() {
		doc, err := scanDoc(rows, collection)
		if err != nil {
			return nil, errors.StoreUnavailable("scan document", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreUnavailable("query documents", err)
	}

	return docstore.FilterDocs(docs, q)
}

func (s *SQLiteStore) Create(ctx context.Context, collection string, v any) (docstore.Doc, error) {
	body, err := normalize(v)
	if err != nil {
		return docstore.Doc{}, errors.InvalidArg(fmt.Sprintf("encode document: %v", err))
	}

	id := uuid.NewString()
	ts := s.clock.Next()
	body = docstore.ReplaceSentinels(body, ts)

	data, err := json.Marshal(body)
	if err != nil {
		return docstore.Doc{}, errors.InvalidArg(fmt.Sprintf("encode document: %v", err))
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, ts, data) VALUES (?, ?, ?, ?)",
		collection, id, ts.Format(time.RFC3339Nano), string(data))
	if err != nil {
		return docstore.Doc{}, errors.StoreUnavailable("create document", err)
	}

	s.hub.Notify(collection)
	return docstore.Doc{ID: id, Collection: collection, Timestamp: ts, Data: data}, nil
}

func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	ts := s.clock.Next()

	// One transaction pins the read and the write to the same connection,
	// so concurrent merges on a document serialize instead of overwriting
	// each other's fields.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreUnavailable("begin update", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?", collection, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return errors.NotFound(fmt.Sprintf("%s/%s not found", collection, id))
	}
	if err != nil {
		return errors.StoreUnavailable("get document", err)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return errors.StoreUnavailable("decode document", err)
	}

	for k, v := range fields {
		if v == nil {
			delete(body, k)
			continue
		}
		nv, err := normalize(v)
		if err != nil {
			return errors.InvalidArg(fmt.Sprintf("encode field %s: %v", k, err))
		}
		body[k] = docstore.ReplaceSentinels(nv, ts)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return errors.StoreUnavailable("encode document", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET data = ? WHERE collection = ? AND id = ?",
		string(data), collection, id); err != nil {
		return errors.StoreUnavailable("update document", err)
	}
	if err := tx.Commit(); err != nil {
		return errors.StoreUnavailable("commit update", err)
	}

	s.hub.Notify(collection)
	return nil
}

func (s *SQLiteStore) Subscribe(ctx context.Context, collection string, q docstore.Query) (docstore.Subscription, error) {
	return s.hub.Watch(ctx, collection, func() ([]docstore.Doc, error) {
		return s.Query(context.Background(), collection, q)
	})
}

func (s *SQLiteStore) Close() error {
	s.hub.Close()
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDoc(row scanner, collection string) (docstore.Doc, error) {
	var id, tsStr, data string
	if err := row.Scan(&id, &tsStr, &data); err != nil {
		return docstore.Doc{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, tsStr)
	if err != nil {
		return docstore.Doc{}, err
	}
	return docstore.Doc{ID: id, Collection: collection, Timestamp: ts, Data: []byte(data)}, nil
}

// normalize round-trips v through JSON so every document body is a plain
// decoded value regardless of the caller's Go type.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// sqlValue converts a condition value to something the driver can bind.
func sqlValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
