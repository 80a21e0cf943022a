package ingest

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/catalog"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/metastore"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

type fakeRecorder struct {
	mu   sync.Mutex
	recs []metastore.Ingestion
}

func (f *fakeRecorder) RecordIngestion(_ context.Context, rec *metastore.Ingestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, *rec)
	return nil
}

type testEnv struct {
	dir      string
	registry *store.Registry
	ingestor *Ingestor
	catalog  *catalog.Catalog
	recorder *fakeRecorder
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	reg := store.NewRegistry(dir)
	rec := &fakeRecorder{}
	return &testEnv{
		dir:      dir,
		registry: reg,
		ingestor: New(reg, WithRecorder(rec)),
		catalog:  catalog.New(reg),
		recorder: rec,
	}
}

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestIngestTwoFiles(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	patients := writeCSV(t, env.dir, "patients.csv", "id,age,sex\n1,54,F\n2,61,M\n")
	visits := writeCSV(t, env.dir, "visits.csv", "id,date,diagnosis\n1,2020-01-03,I10\n")

	id, err := env.ingestor.Ingest(ctx, "", []string{patients, visits})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if id != store.DefaultID {
		t.Errorf("Ingest() = %q, want %q", id, store.DefaultID)
	}

	got, err := env.catalog.Schema(ctx, id)
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	want := catalog.SchemaMap{
		"patients": {"id", "age", "sex"},
		"visits":   {"id", "date", "diagnosis"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Schema() = %v, want %v", got, want)
	}

	if len(env.recorder.recs) != 2 {
		t.Fatalf("recorded %d ingestions, want 2", len(env.recorder.recs))
	}
	if rec := env.recorder.recs[0]; rec.Table != "patients" || rec.RowCount != 2 || rec.ColumnCount != 3 {
		t.Errorf("first record = %+v", rec)
	}
}

func TestIngestReplacesTable(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	first := writeCSV(t, env.dir, "a/patients.csv", "id,age,sex\n1,54,F\n")
	second := writeCSV(t, env.dir, "b/patients.csv", "id,age,sex,weight\n1,54,F,70.5\n2,61,M,80.1\n")

	if _, err := env.ingestor.Ingest(ctx, "", []string{first}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.ingestor.Ingest(ctx, "", []string{second}); err != nil {
		t.Fatal(err)
	}

	got, err := env.catalog.Schema(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	want := catalog.SchemaMap{"patients": {"id", "age", "sex", "weight"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Schema() = %v, want %v", got, want)
	}

	counts, err := env.catalog.RowCounts(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if counts["patients"] != 2 {
		t.Errorf("patients rows = %d, want 2", counts["patients"])
	}
}

func TestIngestSameStemInOneCall(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	first := writeCSV(t, env.dir, "x/labs.csv", "id,value\n1,3.2\n")
	second := writeCSV(t, env.dir, "y/labs.csv", "id,value,unit\n1,3.2,mmol\n")

	res, err := env.ingestor.Load(ctx, "", []string{first, second}, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tables) != 2 {
		t.Errorf("Load() wrote %d tables, want 2 writes", len(res.Tables))
	}

	got, err := env.catalog.Schema(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	want := catalog.SchemaMap{"labs": {"id", "value", "unit"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Schema() = %v, want %v", got, want)
	}
}

func TestIngestErrors(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	good := writeCSV(t, env.dir, "patients.csv", "id,age,sex\n1,54,F\n")

	tests := []struct {
		name    string
		paths   []string
		storeID string
		check   func(error) bool
	}{
		{name: "empty list", paths: nil, check: store.IsInput},
		{name: "blank entry", paths: []string{good, "  "}, check: store.IsInput},
		{name: "missing file", paths: []string{good, filepath.Join(env.dir, "nope.csv")}, check: store.IsIO},
		{name: "directory", paths: []string{env.dir}, check: store.IsIO},
		{name: "escaping store", paths: []string{good}, storeID: "../x.duckdb", check: store.IsInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ingestor.Ingest(ctx, tt.storeID, tt.paths)
			if !tt.check(err) {
				t.Fatalf("Ingest() error = %v (%T)", err, err)
			}
		})
	}

	// Nothing was written by any rejected call.
	got, err := env.catalog.Schema(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("store was mutated by rejected ingestions: %v", got)
	}
}

func TestIngestMalformedCSV(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	ragged := writeCSV(t, env.dir, "patients.csv", "id,age,sex\n1,54,F\n2,61,M,extra,more\n3,1,F\n")

	_, err := env.ingestor.Ingest(ctx, "", []string{ragged})
	if !store.IsParse(err) {
		t.Fatalf("Ingest() error = %v (%T), want ParseError", err, err)
	}

	got, err := env.catalog.Schema(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("malformed file left tables behind: %v", got)
	}
	if len(env.recorder.recs) != 0 {
		t.Errorf("recorded %d ingestions for a failed load", len(env.recorder.recs))
	}
}

func TestIngestUnreachableStore(t *testing.T) {
	env := setupEnv(t)
	good := writeCSV(t, env.dir, "patients.csv", "id\n1\n")

	_, err := env.ingestor.Ingest(context.Background(), filepath.Join(env.dir, "missing", "x.duckdb"), []string{good})
	if !store.IsIO(err) {
		t.Fatalf("Ingest() error = %v, want IOError", err)
	}
}

func TestIngestMemo(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	path := writeCSV(t, env.dir, "patients.csv", "id,age\n1,54\n")

	first, err := env.ingestor.Load(ctx, "", []string{path}, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Error("first load reported as cached")
	}

	second, err := env.ingestor.Load(ctx, "", []string{path}, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached {
		t.Error("identical load was not memoised")
	}
	if second.Tables[0].Fingerprint != first.Tables[0].Fingerprint {
		t.Error("memoised result has a different fingerprint")
	}

	forced, err := env.ingestor.Load(ctx, "", []string{path}, LoadOptions{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if forced.Cached {
		t.Error("forced load was served from the memo")
	}

	writeCSV(t, env.dir, "patients.csv", "id,age,sex\n1,54,F\n")
	changed, err := env.ingestor.Load(ctx, "", []string{path}, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if changed.Cached {
		t.Error("changed file was served from the memo")
	}
	if changed.Tables[0].Columns != 3 {
		t.Errorf("Columns = %d, want 3", changed.Tables[0].Columns)
	}
}

func TestIngestMemoInvalidatedByOtherWrites(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	path := writeCSV(t, env.dir, "patients.csv", "id,age\n1,54\n")

	if _, err := env.ingestor.Load(ctx, "", []string{path}, LoadOptions{}); err != nil {
		t.Fatal(err)
	}
	s, err := env.registry.Get("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Exec(ctx, "DROP TABLE patients"); err != nil {
		t.Fatal(err)
	}

	res, err := env.ingestor.Load(ctx, "", []string{path}, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Fatal("memo survived a write to the store")
	}
	schema, err := env.catalog.Schema(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := schema["patients"]; !ok {
		t.Error("patients table was not recreated")
	}
}

func TestIngestMemoSeesOtherRegistries(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t)
	path := writeCSV(t, env.dir, "patients.csv", "id,age\n1,54\n")

	if _, err := env.ingestor.Load(ctx, "", []string{path}, LoadOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.catalog.Schema(ctx, ""); err != nil {
		t.Fatal(err)
	}

	other, err := store.NewRegistry(env.dir).Get("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Exec(ctx, "DROP TABLE patients"); err != nil {
		t.Fatal(err)
	}

	schema, err := env.catalog.Schema(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := schema["patients"]; ok {
		t.Error("catalog still lists a table dropped through another registry")
	}

	res, err := env.ingestor.Load(ctx, "", []string{path}, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Fatal("memo survived a write through another registry")
	}
	schema, err = env.catalog.Schema(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := schema["patients"]; !ok {
		t.Error("patients table was not recreated")
	}
}

func TestTableName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/data/patients.csv", "patients"},
		{"visits.CSV", "visits"},
		{"/data/archive.tar.gz", "archive.tar"},
		{"/data/noext", "noext"},
		{"/data/.csv", ".csv"},
	}
	for _, tt := range tests {
		if got := TableName(tt.path); got != tt.want {
			t.Errorf("TableName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
