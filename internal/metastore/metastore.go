// Package metastore keeps a SQLite record of ingestion runs and asked
// questions, separate from the DuckDB stores holding user data.
package metastore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLite DSN parameters.
const (
	busyTimeout = "5000"
	journalMode = "WAL"
)

// Ingestion records one table written by an ingestion run.
type Ingestion struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"store_id"`
	Table       string    `json:"table"`
	SourcePath  string    `json:"source_path"`
	RowCount    int64     `json:"row_count"`
	ColumnCount int       `json:"column_count"`
	Fingerprint string    `json:"fingerprint"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Question records a natural-language question and what came of it.
type Question struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	Question  string    `json:"question"`
	SQL       string    `json:"sql,omitempty"`
	Attempts  int       `json:"attempts"`
	Report    string    `json:"report,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DB is an open metastore.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the metastore at path and applies any
// pending migrations.
func Open(path string) (*DB, error) {
	params := url.Values{}
	params.Set("_journal_mode", journalMode)
	params.Set("_busy_timeout", busyTimeout)
	params.Set("_foreign_keys", "on")

	db, err := sql.Open("sqlite3", path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open metastore: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping metastore: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (m *DB) Close() error {
	return m.db.Close()
}

// RecordIngestion stores rec, filling in ID and IngestedAt when unset.
func (m *DB) RecordIngestion(ctx context.Context, rec *Ingestion) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now().UTC()
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO ingestions (id, store_id, table_name, source_path, row_count, column_count, fingerprint, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.StoreID, rec.Table, rec.SourcePath, rec.RowCount, rec.ColumnCount, rec.Fingerprint, rec.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("record ingestion: %w", err)
	}
	return nil
}

// Ingestions lists the most recent ingestion records, newest first. An
// empty storeID lists every store.
func (m *DB) Ingestions(ctx context.Context, storeID string, limit int) ([]Ingestion, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, store_id, table_name, source_path, row_count, column_count, fingerprint, ingested_at
		FROM ingestions
		WHERE (? = '' OR store_id = ?)
		ORDER BY ingested_at DESC, rowid DESC
		LIMIT ?`, storeID, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ingestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Ingestion
	for rows.Next() {
		var rec Ingestion
		if err := rows.Scan(&rec.ID, &rec.StoreID, &rec.Table, &rec.SourcePath,
			&rec.RowCount, &rec.ColumnCount, &rec.Fingerprint, &rec.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan ingestion: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordQuestion stores q, filling in ID and CreatedAt when unset.
func (m *DB) RecordQuestion(ctx context.Context, q *Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO questions (id, store_id, question, sql, attempts, report, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.StoreID, q.Question, q.SQL, q.Attempts, q.Report, q.Error, q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record question: %w", err)
	}
	return nil
}

// Questions lists the most recent questions, newest first. An empty
// storeID lists every store.
func (m *DB) Questions(ctx context.Context, storeID string, limit int) ([]Question, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, store_id, question, sql, attempts, report, error, created_at
		FROM questions
		WHERE (? = '' OR store_id = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, storeID, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.StoreID, &q.Question, &q.SQL,
			&q.Attempts, &q.Report, &q.Error, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
