package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/catalog"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

func zipArchive(t *testing.T, files map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newSourceServer(t *testing.T) *httptest.Server {
	t.Helper()
	archive := zipArchive(t, map[string]string{
		"bundle/patients.csv": "id,age,sex\n1,54,F\n",
		"bundle/README.txt":   "not data",
		"bundle/visits.csv":   "id,date,diagnosis\n1,2020-01-03,I10\n",
	}, []string{"bundle/patients.csv", "bundle/README.txt", "bundle/visits.csv"})

	mux := http.NewServeMux()
	mux.HandleFunc("/files/labs.csv", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("id,value\n1,3.2\n"))
	})
	mux.HandleFunc("/files/bundle.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestIsURL(t *testing.T) {
	tests := map[string]bool{
		"https://example.org/a.csv": true,
		"HTTP://example.org/a.csv":  true,
		"/data/a.csv":               false,
		"ftp://example.org/a.csv":   false,
	}
	for in, want := range tests {
		if got := IsURL(in); got != want {
			t.Errorf("IsURL(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIngestRemoteSources(t *testing.T) {
	ctx := context.Background()
	srv := newSourceServer(t)
	env := setupEnv(t)
	env.ingestor = New(env.registry, WithHTTPClient(srv.Client()))

	res, err := env.ingestor.Load(ctx, "", []string{srv.URL + "/files/bundle.zip", srv.URL + "/files/labs.csv"}, LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var tables []string
	for _, tl := range res.Tables {
		tables = append(tables, tl.Table)
	}
	if want := []string{"patients", "visits", "labs"}; !reflect.DeepEqual(tables, want) {
		t.Errorf("tables = %v, want %v", tables, want)
	}

	schema, err := catalog.New(env.registry).Schema(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"id", "value"}; !reflect.DeepEqual(schema["labs"], want) {
		t.Errorf("labs columns = %v, want %v", schema["labs"], want)
	}
}

func TestIngestRemoteNotFound(t *testing.T) {
	srv := newSourceServer(t)
	env := setupEnv(t)
	env.ingestor = New(env.registry, WithHTTPClient(srv.Client()))

	_, err := env.ingestor.Ingest(context.Background(), "", []string{srv.URL + "/files/missing.csv"})
	if !store.IsIO(err) {
		t.Fatalf("Ingest() error = %v, want IOError", err)
	}
}
