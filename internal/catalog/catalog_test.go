package catalog

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

func setupCatalog(t *testing.T) (*Catalog, *store.Store) {
	t.Helper()
	reg := store.NewRegistry(t.TempDir())
	s, err := reg.Get("")
	if err != nil {
		t.Fatalf("failed to resolve store: %v", err)
	}
	return New(reg), s
}

func mustExec(t *testing.T, s *store.Store, stmts ...string) {
	t.Helper()
	for _, q := range stmts {
		if _, err := s.Exec(context.Background(), q); err != nil {
			t.Fatalf("Exec(%q) error = %v", q, err)
		}
	}
}

func TestSchemaEmptyStore(t *testing.T) {
	c, _ := setupCatalog(t)

	got, err := c.Schema(context.Background(), "")
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Schema() = %v, want empty map", got)
	}
}

func TestSchemaColumnsInPhysicalOrder(t *testing.T) {
	c, s := setupCatalog(t)
	mustExec(t, s,
		"CREATE TABLE patients (id INTEGER, age INTEGER, sex VARCHAR)",
		"CREATE TABLE visits (id INTEGER, date DATE, diagnosis VARCHAR)",
		"CREATE VIEW adults AS SELECT * FROM patients WHERE age >= 18",
	)

	got, err := c.Schema(context.Background(), "")
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	want := SchemaMap{
		"patients": {"id", "age", "sex"},
		"visits":   {"id", "date", "diagnosis"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Schema() = %v, want %v", got, want)
	}
}

func TestSchemaCacheFollowsWrites(t *testing.T) {
	ctx := context.Background()
	c, s := setupCatalog(t)
	mustExec(t, s, "CREATE TABLE patients (id INTEGER, age INTEGER, sex VARCHAR)")

	first, err := c.Schema(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	// Mutating the returned map must not leak into the cache.
	first["patients"] = append(first["patients"], "bogus")

	again, err := c.Schema(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(again["patients"]) != 3 {
		t.Errorf("cached schema was mutated: %v", again["patients"])
	}

	mustExec(t, s, "CREATE OR REPLACE TABLE patients (id INTEGER, age INTEGER, sex VARCHAR, weight DOUBLE)")

	fresh, err := c.Schema(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"id", "age", "sex", "weight"}; !reflect.DeepEqual(fresh["patients"], want) {
		t.Errorf("Schema() after write = %v, want %v", fresh["patients"], want)
	}
}

func TestSchemaCacheSeesOtherRegistries(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c := New(store.NewRegistry(dir))

	empty, err := c.Schema(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Fatalf("Schema() = %v, want empty map", empty)
	}

	other, err := store.NewRegistry(dir).Get("")
	if err != nil {
		t.Fatal(err)
	}
	mustExec(t, other, "CREATE TABLE patients (id INTEGER, age INTEGER, sex VARCHAR)")

	got, err := c.Schema(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"id", "age", "sex"}; !reflect.DeepEqual(got["patients"], want) {
		t.Errorf("Schema() after a write through another registry = %v, want patients %v", got, want)
	}
}

func TestSchemaUnreachableStore(t *testing.T) {
	dir := t.TempDir()
	c := New(store.NewRegistry(dir))

	_, err := c.Schema(context.Background(), filepath.Join(dir, "missing", "x.duckdb"))
	if !store.IsIO(err) {
		t.Fatalf("Schema() error = %v, want IOError", err)
	}
}

func TestDescribeAndRowCounts(t *testing.T) {
	ctx := context.Background()
	c, s := setupCatalog(t)
	mustExec(t, s,
		"CREATE TABLE patients (id INTEGER NOT NULL, age INTEGER, sex VARCHAR)",
		"INSERT INTO patients VALUES (1, 54, 'F'), (2, 61, 'M')",
		"CREATE TABLE visits (id INTEGER, diagnosis VARCHAR)",
	)

	detail, err := c.Describe(ctx, "", "patients")
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if detail.ColumnCount != 3 || detail.RowCount != 2 {
		t.Errorf("Describe() = %+v", detail)
	}
	if detail.Columns[0].Name != "id" || detail.Columns[0].Nullable {
		t.Errorf("first column = %+v, want non-nullable id", detail.Columns[0])
	}
	if detail.Columns[2].Type != "VARCHAR" {
		t.Errorf("sex type = %q, want VARCHAR", detail.Columns[2].Type)
	}

	if _, err := c.Describe(ctx, "", "nope"); !store.IsNotFound(err) {
		t.Errorf("Describe(unknown) error = %v, want NotFoundError", err)
	}

	counts, err := c.RowCounts(ctx, "")
	if err != nil {
		t.Fatalf("RowCounts() error = %v", err)
	}
	if counts["patients"] != 2 || counts["visits"] != 0 {
		t.Errorf("RowCounts() = %v", counts)
	}
}

func TestInfo(t *testing.T) {
	ctx := context.Background()
	c, s := setupCatalog(t)
	mustExec(t, s,
		"CREATE TABLE patients (id INTEGER, sex VARCHAR)",
		"INSERT INTO patients VALUES (1, 'F'), (2, NULL), (3, 'M')",
	)

	info, err := c.Info(ctx, "", []string{"patients"}, 2)
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	for _, want := range []string{"CREATE TABLE patients", "2 rows from patients table:", "id\tsex", "2\tNULL"} {
		if !strings.Contains(info, want) {
			t.Errorf("Info() missing %q in:\n%s", want, info)
		}
	}

	if _, err := c.Info(ctx, "", []string{"ghost"}, 1); !store.IsNotFound(err) {
		t.Errorf("Info(unknown) error = %v, want NotFoundError", err)
	}
}

func TestSchemaMapString(t *testing.T) {
	m := SchemaMap{
		"visits":   {"id", "date"},
		"patients": {"id", "age"},
	}
	want := "patients(id, age)\nvisits(id, date)"
	if got := m.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := m.Tables(); !reflect.DeepEqual(got, []string{"patients", "visits"}) {
		t.Errorf("Tables() = %v", got)
	}
}

func TestCacheVersion(t *testing.T) {
	c := NewCache()
	v1 := store.Version{Generation: 1, Size: 12288}
	c.Put("k", v1, SchemaMap{"a": {"x"}})

	if _, ok := c.Get("k", store.Version{Generation: 2, Size: 12288}); ok {
		t.Error("expected a miss for a newer generation")
	}
	if _, ok := c.Get("k", store.Version{Generation: 1, Size: 274432}); ok {
		t.Error("expected a miss when the file changed on disk")
	}
	if got, ok := c.Get("k", v1); !ok || got["a"][0] != "x" {
		t.Errorf("Get() = %v, %v", got, ok)
	}
	c.Invalidate("k")
	if _, ok := c.Get("k", v1); ok {
		t.Error("expected a miss after Invalidate")
	}
}
