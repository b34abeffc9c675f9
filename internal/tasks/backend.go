package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Backend stores task results.
type Backend interface {
	Set(ctx context.Context, r Result) error
	// Get returns the result of id; ok is false when nothing is recorded.
	Get(ctx context.Context, id string) (r Result, ok bool, err error)
	Close() error
}

// DefaultResultTTL bounds how long finished results are kept.
const DefaultResultTTL = time.Hour

// BadgerBackend keeps results in a badger database with a per-entry TTL.
type BadgerBackend struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenBadger opens a result store in dir. An empty dir keeps results in
// memory only.
func OpenBadger(dir string, ttl time.Duration) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil).
		WithMemTableSize(8 << 20).
		WithValueLogFileSize(16 << 20).
		WithNumMemtables(2).
		WithBlockCacheSize(8 << 20).
		WithIndexCacheSize(4 << 20)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("tasks: open badger: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &BadgerBackend{db: db, ttl: ttl}, nil
}

func resultKey(id string) []byte { return []byte("task:" + id) }

func (b *BadgerBackend) Set(_ context.Context, r Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("tasks: encode result: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(resultKey(r.TaskID), data).WithTTL(b.ttl))
	})
}

func (b *BadgerBackend) Get(_ context.Context, id string) (Result, bool, error) {
	var r Result
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(resultKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("tasks: read result %s: %w", id, err)
	}
	return r, true, nil
}

func (b *BadgerBackend) Close() error { return b.db.Close() }
