// Package badgerstore implements docstore.Store on BadgerDB, an embedded
// key-value store with low-latency access. Documents live under
// "collection/id" keys as JSON envelopes; predicates and ordering reuse
// the shared matcher so the backends never disagree.
package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mchen/ripple/internal/docstore"
	"github.com/mchen/ripple/pkg/errors"
)

// Config holds configuration for a badger-backed store.
type Config struct {
	// Path is the directory for database files. Required unless InMemory.
	Path string

	// InMemory disables disk persistence. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives store and BadgerDB log output. Required.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults for the given path.
func DefaultConfig(path string, logger *slog.Logger) Config {
	return Config{Path: path, SyncWrites: true, Logger: logger}
}

// InMemoryConfig returns configuration for tests: no disk I/O, no sync.
func InMemoryConfig(logger *slog.Logger) Config {
	return Config{InMemory: true, Logger: logger}
}

type BadgerStore struct {
	db     *badger.DB
	clock  *docstore.ServerClock
	hub    *docstore.Hub
	logger *slog.Logger
}

func Open(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.InvalidArg("path is required for persistent database")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, errors.StoreUnavailable("create database directory", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.StoreUnavailable("open badger database", err)
	}

	s := &BadgerStore{
		db:     db,
		clock:  docstore.NewServerClock(),
		hub:    docstore.NewHub(cfg.Logger),
		logger: cfg.Logger,
	}
	go s.hub.Run()
	return s, nil
}

// SetClock swaps the server clock. Tests use it to pin write timestamps.
func (s *BadgerStore) SetClock(clock *docstore.ServerClock) { s.clock = clock }

// envelope is the stored value: the server write timestamp plus the body.
type envelope struct {
	TS   time.Time       `json:"ts"`
	Body json.RawMessage `json:"body"`
}

func key(collection, id string) []byte {
	return []byte(collection + "/" + id)
}

func (s *BadgerStore) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	var doc docstore.Doc
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(collection, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			doc, err = decodeDoc(collection, id, val)
			return err
		})
	})
	if err == badger.ErrKeyNotFound {
		return docstore.Doc{}, errors.NotFound(fmt.Sprintf("%s/%s not found", collection, id))
	}
	if err != nil {
		return docstore.Doc{}, errors.StoreUnavailable("get document", err)
	}
	return doc, nil
}

func (s *BadgerStore) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Doc, error) {
	var docs []docstore.Doc
	prefix := []byte(collection + "/")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), collection+"/")
			err := item.Value(func(val []byte) error {
				doc, err := decodeDoc(collection, id, val)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.StoreUnavailable("query documents", err)
	}
	return docstore.FilterDocs(docs, q)
}

func (s *BadgerStore) Create(ctx context.Context, collection string, v any) (docstore.Doc, error) {
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
	val, err := json.Marshal(envelope{TS: ts, Body: data})
	if err != nil {
		return docstore.Doc{}, errors.StoreUnavailable("encode envelope", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(collection, id), val)
	})
	if err != nil {
		return docstore.Doc{}, errors.StoreUnavailable("create document", err)
	}

	s.hub.Notify(collection)
	return docstore.Doc{ID: id, Collection: collection, Timestamp: ts, Data: data}, nil
}

func (s *BadgerStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	ts := s.clock.Next()
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key(collection, id))
		if err != nil {
			return err
		}

		var env envelope
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		}); err != nil {
			return err
		}

		var body map[string]any
		if err := json.Unmarshal(env.Body, &body); err != nil {
			return err
		}
		for k, v := range fields {
			if v == nil {
				delete(body, k)
				continue
			}
			nv, err := normalize(v)
			if err != nil {
				return err
			}
			body[k] = docstore.ReplaceSentinels(nv, ts)
		}

		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		val, err := json.Marshal(envelope{TS: env.TS, Body: data})
		if err != nil {
			return err
		}
		return txn.Set(key(collection, id), val)
	})
	if err == badger.ErrKeyNotFound {
		return errors.NotFound(fmt.Sprintf("%s/%s not found", collection, id))
	}
	if err != nil {
		return errors.StoreUnavailable("update document", err)
	}

	s.hub.Notify(collection)
	return nil
}

func (s *BadgerStore) Subscribe(ctx context.Context, collection string, q docstore.Query) (docstore.Subscription, error) {
	return s.hub.Watch(ctx, collection, func() ([]docstore.Doc, error) {
		return s.Query(context.Background(), collection, q)
	})
}

func (s *BadgerStore) Close() error {
	s.hub.Close()
	return s.db.Close()
}

func decodeDoc(collection, id string, val []byte) (docstore.Doc, error) {
	var env envelope
	if err := json.Unmarshal(val, &env); err != nil {
		return docstore.Doc{}, err
	}
	return docstore.Doc{ID: id, Collection: collection, Timestamp: env.TS, Data: env.Body}, nil
}

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

// badgerLogger adapts slog to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
