// Package ingest loads delimited text files into a store, one table per
// file, named after the file's stem.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/metastore"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

// Delimiter separates fields in every source file. Pinning it makes
// malformed rows fail to load instead of collapsing into one column.
const Delimiter = ","

// Recorder receives one record per table written.
type Recorder interface {
	RecordIngestion(ctx context.Context, rec *metastore.Ingestion) error
}

// TableLoad describes one table written by an ingestion.
type TableLoad struct {
	Table       string `json:"table"`
	Source      string `json:"source"`
	Rows        int64  `json:"rows"`
	Columns     int    `json:"columns"`
	Fingerprint string `json:"fingerprint"`
}

// Result is the outcome of Load.
type Result struct {
	StoreID  string      `json:"store_id"`
	Tables   []TableLoad `json:"tables"`
	Cached   bool        `json:"cached"`
	Duration string      `json:"duration"`
}

// LoadOptions tunes a single Load call.
type LoadOptions struct {
	// Force reloads every file even when an identical ingestion is memoised.
	Force bool
}

type source struct {
	path        string
	table       string
	fingerprint string
}

// Ingestor writes source files into stores resolved through a Registry.
type Ingestor struct {
	registry *store.Registry
	fetcher  *Fetcher
	recorder Recorder
	memo     *Memo
	logger   *slog.Logger

	httpClient *http.Client
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithLogger sets the ingestor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingestor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithRecorder records every written table, typically in the metastore.
func WithRecorder(r Recorder) Option {
	return func(i *Ingestor) { i.recorder = r }
}

// WithHTTPClient sets the client used to fetch remote sources.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Ingestor) { i.httpClient = c }
}

// New creates an Ingestor. Remote sources are downloaded into the
// "downloads" folder of the registry's data directory.
func New(registry *store.Registry, opts ...Option) *Ingestor {
	i := &Ingestor{
		registry: registry,
		memo:     NewMemo(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.fetcher = NewFetcher(filepath.Join(registry.DataDir(), "downloads"), i.httpClient, i.logger)
	return i
}

// Ingest loads every path into the store identified by storeID (the
// default store when empty), replacing same-named tables, and returns the
// store identifier.
func (i *Ingestor) Ingest(ctx context.Context, storeID string, paths []string) (string, error) {
	res, err := i.Load(ctx, storeID, paths, LoadOptions{})
	if err != nil {
		return "", err
	}
	return res.StoreID, nil
}

// Load is Ingest with per-table detail. Paths are processed in order, so
// when two paths share a stem the later one wins. Every path is checked
// before the first write; a failure while writing leaves earlier tables in
// place.
func (i *Ingestor) Load(ctx context.Context, storeID string, paths []string, opts LoadOptions) (*Result, error) {
	start := time.Now()

	if len(paths) == 0 {
		return nil, store.ErrInput("no file paths provided")
	}
	for n, p := range paths {
		if strings.TrimSpace(p) == "" {
			return nil, store.ErrInput("path %d is empty", n+1)
		}
	}

	s, err := i.registry.Get(storeID)
	if err != nil {
		return nil, err
	}

	local, err := i.expand(ctx, paths)
	if err != nil {
		return nil, err
	}

	sources, err := prepare(local)
	if err != nil {
		i.logger.Error("Ingestion rejected", "error", err, "store", s.ID())
		return nil, err
	}
	if err := fingerprint(ctx, sources); err != nil {
		i.logger.Error("Failed to read source files", "error", err, "store", s.ID())
		return nil, err
	}

	key := memoKey(s.Path(), sources)
	if !opts.Force {
		if res, ok := i.memo.get(key, s.Version()); ok {
			i.logger.Info("Ingestion skipped, inputs unchanged", "store", s.ID(), "tables", len(res.Tables))
			res.Cached = true
			res.Duration = time.Since(start).String()
			return res, nil
		}
	}

	res := &Result{StoreID: s.ID(), Tables: make([]TableLoad, 0, len(sources))}
	version, err := s.Write(ctx, func(db *sql.DB) error {
		for _, src := range sources {
			load, err := i.loadTable(ctx, db, src)
			if err != nil {
				return err
			}
			res.Tables = append(res.Tables, *load)
		}
		return nil
	})
	i.record(ctx, s.ID(), res.Tables)
	if err != nil {
		i.logger.Error("Ingestion failed", "error", err, "store", s.ID(), "tables_written", len(res.Tables))
		return nil, err
	}

	res.Duration = time.Since(start).String()
	i.memo.put(key, version, res)
	i.logger.Info("Ingestion complete", "store", s.ID(), "tables", len(res.Tables), "duration", res.Duration)
	return res, nil
}

// expand replaces remote sources with the local files they download to.
func (i *Ingestor) expand(ctx context.Context, paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if !IsURL(p) {
			out = append(out, p)
			continue
		}
		fetched, err := i.fetcher.Fetch(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, fetched...)
	}
	return out, nil
}

// TableName derives the table name for path: the base name without its
// final extension. Names that are all extension, such as ".csv", keep the
// whole base name.
func TableName(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return base
	}
	return stem
}

func prepare(paths []string) ([]source, error) {
	sources := make([]source, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, store.WrapIO(err, "failed to resolve %s", p)
		}
		table := TableName(abs)
		if table == "" || table == "." || table == string(filepath.Separator) {
			return nil, store.ErrInput("cannot derive a table name from %q", p)
		}

		info, err := os.Stat(abs)
		if err != nil {
			return nil, store.WrapIO(err, "cannot read %s", p)
		}
		if !info.Mode().IsRegular() {
			return nil, store.WrapIO(fmt.Errorf("not a regular file"), "cannot read %s", p)
		}
		sources = append(sources, source{path: abs, table: table})
	}
	return sources, nil
}

// fingerprint hashes every source concurrently.
func fingerprint(ctx context.Context, sources []source) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for n := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := os.Open(sources[n].path)
			if err != nil {
				return store.WrapIO(err, "cannot read %s", sources[n].path)
			}
			defer func() { _ = f.Close() }()

			h := xxhash.New()
			if _, err := io.Copy(h, f); err != nil {
				return store.WrapIO(err, "cannot read %s", sources[n].path)
			}
			sources[n].fingerprint = strconv.FormatUint(h.Sum64(), 16)
			return nil
		})
	}
	return g.Wait()
}

func (i *Ingestor) loadTable(ctx context.Context, db *sql.DB, src source) (*TableLoad, error) {
	start := time.Now()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.WrapIO(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	ident := store.QuoteIdent(src.table)
	create := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv(%s, header = true, delim = %s)",
		ident, store.QuoteLiteral(src.path), store.QuoteLiteral(Delimiter))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		i.logger.Error("Failed to load table", "error", err, "table", src.table, "path", src.path)
		return nil, store.ClassifyLoadError(err, "failed to load %s into table %q", src.path, src.table)
	}

	load := &TableLoad{Table: src.table, Source: src.path, Fingerprint: src.fingerprint}
	if err := tx.QueryRowContext(ctx, "SELECT count(*) FROM "+ident).Scan(&load.Rows); err != nil {
		return nil, store.WrapIO(err, "failed to count rows of %q", src.table)
	}
	err = tx.QueryRowContext(ctx,
		"SELECT count(*) FROM information_schema.columns WHERE table_schema = 'main' AND table_name = ?",
		src.table,
	).Scan(&load.Columns)
	if err != nil {
		return nil, store.WrapIO(err, "failed to count columns of %q", src.table)
	}

	if err := tx.Commit(); err != nil {
		return nil, store.WrapIO(err, "failed to commit table %q", src.table)
	}

	i.logger.Info("Loaded table", "table", src.table, "rows", load.Rows, "columns", load.Columns, "duration", time.Since(start))
	return load, nil
}

func (i *Ingestor) record(ctx context.Context, storeID string, loads []TableLoad) {
	if i.recorder == nil {
		return
	}
	for _, l := range loads {
		rec := &metastore.Ingestion{
			StoreID:     storeID,
			Table:       l.Table,
			SourcePath:  l.Source,
			RowCount:    l.Rows,
			ColumnCount: l.Columns,
			Fingerprint: l.Fingerprint,
		}
		if err := i.recorder.RecordIngestion(ctx, rec); err != nil {
			i.logger.Warn("Failed to record ingestion", "error", err, "table", l.Table)
		}
	}
}
