// Package store resolves store identifiers to DuckDB database files and
// hands out short-lived connections to them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DefaultID is the store used when a caller does not name one.
const DefaultID = "uk_biobank.duckdb"

// Store is a single DuckDB database file. Every operation opens its own
// connection and closes it before returning; operations against the same
// store are serialised.
type Store struct {
	id     string
	path   string
	mu     sync.Mutex
	gen    atomic.Uint64
	logger *slog.Logger
}

// Option configures a Store or a Registry.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	defaultID string
}

// WithLogger sets the logger used for connection events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDefaultID overrides DefaultID for a Registry.
func WithDefaultID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.defaultID = id
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:    slog.New(slog.DiscardHandler),
		defaultID: DefaultID,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New returns a Store for the database file at path.
func New(id, path string, opts ...Option) *Store {
	o := buildOptions(opts)
	return &Store{id: id, path: path, logger: o.logger}
}

// ID returns the identifier the store was resolved from.
func (s *Store) ID() string { return s.id }

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Generation counts completed writes made through this Store. It only
// increases.
func (s *Store) Generation() uint64 { return s.gen.Load() }

// Version identifies the content of a store. It combines the in-process
// write generation with the size and modification time of the database
// file and its write-ahead log, so writes from other processes change it
// too. Equal Versions mean the store was not written in between.
type Version struct {
	Generation uint64
	Size       int64
	ModTime    int64
	WALSize    int64
	WALModTime int64
}

// Version reports the current Version of the store.
func (s *Store) Version() Version {
	v := Version{Generation: s.Generation()}
	if info, err := os.Stat(s.path); err == nil {
		v.Size, v.ModTime = info.Size(), info.ModTime().UnixNano()
	}
	if info, err := os.Stat(s.path + ".wal"); err == nil {
		v.WALSize, v.WALModTime = info.Size(), info.ModTime().UnixNano()
	}
	return v
}

// Conn opens the database, runs fn and closes the database again. The
// database file is created if it does not exist yet. Conn must not be
// called from inside fn.
func (s *Store) Conn(ctx context.Context, fn func(db *sql.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open(ctx, s.path, fn)
}

// ConnReadOnly is Conn with the database attached in read-only mode, so
// fn cannot change the store whatever it executes. A missing database file
// is created empty first.
func (s *Store) ConnReadOnly(ctx context.Context, fn func(db *sql.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		if err := s.open(ctx, s.path, func(*sql.DB) error { return nil }); err != nil {
			return err
		}
	}
	return s.open(ctx, s.path+"?access_mode=read_only", fn)
}

// Write runs fn like Conn and then records a write, whether or not fn
// failed part way. It returns the Version of the store once the database
// is closed again.
func (s *Store) Write(ctx context.Context, fn func(db *sql.DB) error) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.open(ctx, s.path, fn)
	s.gen.Add(1)
	return s.Version(), err
}

func (s *Store) open(ctx context.Context, dsn string, fn func(db *sql.DB) error) error {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		s.logger.Error("Failed to open DuckDB database", "error", err, "db_path", s.path)
		return WrapIO(err, "failed to open store %q", s.id)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			s.logger.Warn("Failed to close DuckDB database", "error", cerr, "db_path", s.path)
		}
	}()
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		s.logger.Error("Failed to reach DuckDB database", "error", err, "db_path", s.path)
		return WrapIO(err, "failed to reach store %q", s.id)
	}

	return fn(db)
}

// Registry maps store identifiers to Stores so that every caller in the
// process shares one Store, and therefore one lock and one generation
// counter, per database file.
type Registry struct {
	dataDir   string
	defaultID string
	logger    *slog.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry creates a Registry resolving relative identifiers inside
// dataDir.
func NewRegistry(dataDir string, opts ...Option) *Registry {
	o := buildOptions(opts)
	return &Registry{
		dataDir:   dataDir,
		defaultID: o.defaultID,
		logger:    o.logger,
		stores:    make(map[string]*Store),
	}
}

// DataDir returns the directory relative identifiers resolve against.
func (r *Registry) DataDir() string { return r.dataDir }

// DefaultID returns the identifier used when none is given.
func (r *Registry) DefaultID() string { return r.defaultID }

// Resolve returns the database file path for id without registering it.
func (r *Registry) Resolve(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = r.defaultID
	}
	if filepath.IsAbs(id) {
		return filepath.Clean(id), nil
	}
	if !filepath.IsLocal(id) {
		return "", ErrInput("store identifier %q escapes the data directory", id)
	}
	path, err := filepath.Abs(filepath.Join(r.dataDir, id))
	if err != nil {
		return "", WrapIO(err, "failed to resolve store %q", id)
	}
	return path, nil
}

// Get returns the Store for id, creating it on first use. An empty id
// selects the default store.
func (r *Registry) Get(id string) (*Store, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = r.defaultID
	}
	path, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[path]; ok {
		return s, nil
	}
	s := New(id, path, WithLogger(r.logger.With("store", id)))
	r.stores[path] = s
	r.logger.Debug("Registered store", "store", id, "db_path", path)
	return s, nil
}
