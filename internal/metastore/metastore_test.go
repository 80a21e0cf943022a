package metastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "metastore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metastore.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestIngestions(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := &Ingestion{StoreID: "uk_biobank.duckdb", Table: "patients", SourcePath: "/data/patients.csv", RowCount: 3, ColumnCount: 3, IngestedAt: base}
	second := &Ingestion{StoreID: "uk_biobank.duckdb", Table: "visits", SourcePath: "/data/visits.csv", RowCount: 5, ColumnCount: 3, IngestedAt: base.Add(time.Minute)}
	other := &Ingestion{StoreID: "other.duckdb", Table: "labs", SourcePath: "/data/labs.csv"}

	for _, rec := range []*Ingestion{first, second, other} {
		require.NoError(t, db.RecordIngestion(ctx, rec))
		assert.NotEmpty(t, rec.ID)
	}

	got, err := db.Ingestions(ctx, "uk_biobank.duckdb", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "visits", got[0].Table)
	assert.Equal(t, "patients", got[1].Table)
	assert.Equal(t, int64(3), got[1].RowCount)
	assert.True(t, got[1].IngestedAt.Equal(base))

	all, err := db.Ingestions(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := db.Ingestions(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestQuestions(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	q := &Question{
		StoreID:  "uk_biobank.duckdb",
		Question: "How many patients are female?",
		SQL:      "SELECT count(*) FROM patients WHERE sex = 'F'",
		Attempts: 1,
		Report:   "Two patients are female.",
	}
	require.NoError(t, db.RecordQuestion(ctx, q))
	require.NoError(t, db.RecordQuestion(ctx, &Question{StoreID: "uk_biobank.duckdb", Question: "broken", Error: "translation failed"}))

	got, err := db.Questions(ctx, "uk_biobank.duckdb", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	var found *Question
	for i := range got {
		if got[i].ID == q.ID {
			found = &got[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, q.SQL, found.SQL)
	assert.Equal(t, 1, found.Attempts)
	assert.Equal(t, "Two patients are female.", found.Report)

	none, err := db.Questions(ctx, "other.duckdb", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
