package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

const tablesQuery = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'main'
  AND table_type = 'BASE TABLE'
  AND table_catalog = current_database()
ORDER BY table_name`

const columnsQuery = `
SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = 'main'
  AND table_catalog = current_database()
ORDER BY table_name, ordinal_position`

// Catalog introspects stores resolved through a Registry.
type Catalog struct {
	registry *store.Registry
	cache    *Cache
	logger   *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the catalog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Catalog over the stores in registry.
func New(registry *store.Registry, opts ...Option) *Catalog {
	c := &Catalog{
		registry: registry,
		cache:    NewCache(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schema returns every base table of the store identified by storeID with
// its columns in physical order. An empty store yields an empty map. Results
// are cached until the store is written again, by this process or another.
func (c *Catalog) Schema(ctx context.Context, storeID string) (SchemaMap, error) {
	s, err := c.registry.Get(storeID)
	if err != nil {
		return nil, err
	}

	version := s.Version()
	if cached, ok := c.cache.Get(s.Path(), version); ok {
		c.logger.Debug("Schema cache hit", "store", s.ID(), "generation", version.Generation)
		return cached, nil
	}

	var schema SchemaMap
	err = s.ConnReadOnly(ctx, func(db *sql.DB) error {
		var err error
		schema, err = readSchema(ctx, db)
		return err
	})
	if err != nil {
		c.logger.Error("Failed to read schema", "error", err, "store", s.ID())
		return nil, err
	}

	c.cache.Put(s.Path(), version, schema)
	c.logger.Info("Schema loaded", "store", s.ID(), "tables", len(schema), "generation", version.Generation)
	return schema, nil
}

// Invalidate drops any cached schema for storeID.
func (c *Catalog) Invalidate(storeID string) {
	path, err := c.registry.Resolve(storeID)
	if err != nil {
		return
	}
	c.cache.Invalidate(path)
}

func readSchema(ctx context.Context, db *sql.DB) (SchemaMap, error) {
	schema := make(SchemaMap)

	rows, err := db.QueryContext(ctx, tablesQuery)
	if err != nil {
		return nil, store.WrapIO(err, "failed to list tables")
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return nil, store.WrapIO(err, "failed to scan table name")
		}
		schema[name] = []string{}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, store.WrapIO(err, "failed to list tables")
	}
	_ = rows.Close()

	if len(schema) == 0 {
		return schema, nil
	}

	cols, err := readColumns(ctx, db)
	if err != nil {
		return nil, err
	}
	for table, list := range cols {
		if _, ok := schema[table]; !ok {
			continue // views
		}
		for _, col := range list {
			schema[table] = append(schema[table], col.Name)
		}
	}
	return schema, nil
}

func readColumns(ctx context.Context, db *sql.DB) (map[string][]Column, error) {
	rows, err := db.QueryContext(ctx, columnsQuery)
	if err != nil {
		return nil, store.WrapIO(err, "failed to list columns")
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]Column)
	for rows.Next() {
		var table, name, typ, nullable string
		if err := rows.Scan(&table, &name, &typ, &nullable); err != nil {
			return nil, store.WrapIO(err, "failed to scan column")
		}
		out[table] = append(out[table], Column{
			Name:     name,
			Type:     typ,
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, store.WrapIO(err, "failed to list columns")
	}
	return out, nil
}

// Describe returns the column details and row count of one table.
func (c *Catalog) Describe(ctx context.Context, storeID, table string) (*TableDetail, error) {
	schema, err := c.Schema(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if _, ok := schema[table]; !ok {
		return nil, store.ErrNotFound("table %q not found", table)
	}

	s, err := c.registry.Get(storeID)
	if err != nil {
		return nil, err
	}

	detail := &TableDetail{TableName: table}
	err = s.ConnReadOnly(ctx, func(db *sql.DB) error {
		cols, err := readColumns(ctx, db)
		if err != nil {
			return err
		}
		detail.Columns = cols[table]
		detail.ColumnCount = len(detail.Columns)

		q := fmt.Sprintf("SELECT count(*) FROM %s", store.QuoteIdent(table))
		if err := db.QueryRowContext(ctx, q).Scan(&detail.RowCount); err != nil {
			return store.WrapIO(err, "failed to count rows of %q", table)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// RowCounts returns the number of rows in every table of the store.
func (c *Catalog) RowCounts(ctx context.Context, storeID string) (map[string]int64, error) {
	schema, err := c.Schema(ctx, storeID)
	if err != nil {
		return nil, err
	}
	s, err := c.registry.Get(storeID)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(schema))
	err = s.ConnReadOnly(ctx, func(db *sql.DB) error {
		for _, table := range schema.Tables() {
			var n int64
			q := fmt.Sprintf("SELECT count(*) FROM %s", store.QuoteIdent(table))
			if err := db.QueryRowContext(ctx, q).Scan(&n); err != nil {
				return store.WrapIO(err, "failed to count rows of %q", table)
			}
			counts[table] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Info renders the DDL of the named tables followed by a few sample rows
// of each. With no names every table is included.
func (c *Catalog) Info(ctx context.Context, storeID string, tables []string, sampleRows int) (string, error) {
	schema, err := c.Schema(ctx, storeID)
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		tables = schema.Tables()
	}
	for _, t := range tables {
		if _, ok := schema[t]; !ok {
			return "", store.ErrNotFound("table %q not found", t)
		}
	}

	s, err := c.registry.Get(storeID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	err = s.ConnReadOnly(ctx, func(db *sql.DB) error {
		for i, table := range tables {
			if i > 0 {
				b.WriteString("\n\n")
			}
			var ddl string
			err := db.QueryRowContext(ctx,
				"SELECT sql FROM duckdb_tables() WHERE schema_name = 'main' AND table_name = ?", table,
			).Scan(&ddl)
			if err != nil {
				return store.WrapIO(err, "failed to read definition of %q", table)
			}
			b.WriteString(strings.TrimSpace(ddl))

			if sampleRows <= 0 {
				continue
			}
			q := fmt.Sprintf("SELECT * FROM %s LIMIT %d", store.QuoteIdent(table), sampleRows)
			res, err := store.ReadRows(ctx, db, q, sampleRows)
			if err != nil {
				return err
			}
			fmt.Fprintf(&b, "\n\n/*\n%d rows from %s table:\n%s\n", len(res.Rows), table, strings.Join(res.Columns, "\t"))
			for _, row := range res.Rows {
				cells := make([]string, len(row))
				for j, v := range row {
					if v == nil {
						cells[j] = "NULL"
					} else {
						cells[j] = fmt.Sprint(v)
					}
				}
				b.WriteString(strings.Join(cells, "\t"))
				b.WriteString("\n")
			}
			b.WriteString("*/")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
