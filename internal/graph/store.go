package graph

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/feinschmecker/internal/apperr"
	"github.com/starford/feinschmecker/internal/checksum"
	"github.com/starford/feinschmecker/internal/storage"
)

const driverName = "sqlite3_graph"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS triples (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	s   TEXT NOT NULL,
	p   TEXT NOT NULL,
	o   NOT NULL,
	dt  TEXT NOT NULL,
	UNIQUE(s, p, o)
);

CREATE INDEX IF NOT EXISTS idx_triples_sp ON triples(s, p);
CREATE INDEX IF NOT EXISTS idx_triples_po ON triples(p, o);
CREATE INDEX IF NOT EXISTS idx_triples_o ON triples(o);
`

var patternCache sync.Map

func matchRegexp(pattern string, value any) (bool, error) {
	var re *regexp.Regexp
	if cached, ok := patternCache.Load(pattern); ok {
		re = cached.(*regexp.Regexp)
	} else {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return false, err
		}
		patternCache.Store(pattern, compiled)
		re = compiled
	}
	return re.MatchString(lexical(value)), nil
}

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("regexp", matchRegexp, true)
		},
	})
}

// Query is a compiled statement with positional arguments.
type Query struct {
	SQL  string
	Args []any
}

// Store is one loaded copy of the graph. It is safe for concurrent use;
// mutations are serialized.
type Store struct {
	db     *sql.DB
	files  storage.Provider
	name   string
	schema Schema

	mu       sync.Mutex
	checksum atomic.Value // string
	stale    atomic.Bool
}

// New returns an empty store that persists to name inside files.
// files may be nil for a purely in-memory graph.
func New(files storage.Provider, name string) (*Store, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("graph: open db: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("graph: apply schema: %w", err)
	}
	s := &Store{db: db, files: files, name: name, schema: RecipeSchema}
	s.checksum.Store("")
	return s, nil
}

// Open loads name from files into a new store.
func Open(ctx context.Context, files storage.Provider, name string) (*Store, error) {
	data, err := files.Read(name)
	if err != nil {
		return nil, fmt.Errorf("graph: read %s: %w", name, err)
	}
	triples, err := DecodeNTriples(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("graph: parse %s: %w", name, err)
	}
	s, err := New(files, name)
	if err != nil {
		return nil, err
	}
	if err := s.insertAll(ctx, triples); err != nil {
		s.Close()
		return nil, err
	}
	s.checksum.Store(checksum.Sum(data))
	return s, nil
}

func (s *Store) insertAll(ctx context.Context, triples []Triple) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO triples (s, p, o, dt) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("graph: prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, t := range triples {
		if _, err := stmt.ExecContext(ctx, t.S, t.P, t.O.sqlValue(), string(t.O.Type)); err != nil {
			return fmt.Errorf("graph: insert: %w", err)
		}
	}
	return tx.Commit()
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Name returns the file name the store persists to.
func (s *Store) Name() string { return s.name }

// Checksum returns the SHA-256 of the last loaded or written file.
func (s *Store) Checksum() string { return s.checksum.Load().(string) }

// Stale reports whether the in-memory graph may differ from the file.
func (s *Store) Stale() bool { return s.stale.Load() }

// Select runs a read query and returns the raw rows.
func (s *Store) Select(ctx context.Context, q Query) ([][]any, error) {
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("graph: select: %w: %w", apperr.ErrQueryFailed, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("graph: columns: %w", err)
	}
	var out [][]any
	for rows.Next() {
		row := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("graph: scan: %w: %w", apperr.ErrQueryFailed, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("graph: rows: %w: %w", apperr.ErrQueryFailed, err)
	}
	return out, nil
}

// Count runs a query returning a single integer.
func (s *Store) Count(ctx context.Context, q Query) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("graph: count: %w: %w", apperr.ErrQueryFailed, err)
	}
	return n, nil
}

// View runs fn against a read-only view of the graph.
func (s *Store) View(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph: begin view: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only
	return fn(&Tx{ctx: ctx, tx: tx, schema: s.schema, readOnly: true})
}

// Mutate applies fn in one transaction, writes the resulting graph to its
// file, and only then commits. If fn or the write fails nothing changes
// in memory. A write failure is reported as apperr.ErrPersistFailed.
func (s *Store) Mutate(ctx context.Context, fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	gtx := &Tx{ctx: ctx, tx: tx, schema: s.schema}
	if err := fn(gtx); err != nil {
		return err
	}

	var sum string
	if s.files != nil {
		triples, err := gtx.all()
		if err != nil {
			return err
		}
		hashed := checksum.NewWriter()
		err = s.files.WriteFrom(s.name, func(w io.Writer) error {
			return EncodeNTriples(io.MultiWriter(w, hashed), triples)
		})
		if err != nil {
			return fmt.Errorf("graph: %w: %w", apperr.ErrPersistFailed, err)
		}
		sum = hashed.Sum()
	}

	if err := tx.Commit(); err != nil {
		// The file already holds the new graph; force a reload.
		s.stale.Store(true)
		return fmt.Errorf("graph: commit: %w", err)
	}
	if sum != "" {
		s.checksum.Store(sum)
	}
	return nil
}

// Triples returns every statement in insertion order.
func (s *Store) Triples(ctx context.Context) ([]Triple, error) {
	var out []Triple
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.all()
		return err
	})
	return out, err
}

// Len returns the number of statements.
func (s *Store) Len(ctx context.Context) (int, error) {
	return s.Count(ctx, Query{SQL: `SELECT count(*) FROM triples`})
}

// Path returns the absolute path of the backing file, or "" for an
// in-memory graph.
func (s *Store) Path() string {
	if s.files == nil {
		return ""
	}
	p, err := s.files.Abs(s.name)
	if err != nil {
		return ""
	}
	return p
}
