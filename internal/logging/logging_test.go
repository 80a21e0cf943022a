package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupWritesJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	logger, cleanup, err := Setup(dir, slog.LevelInfo, "")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Info("Application started", "data_dir", dir)
	cleanup()

	raw, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1:\n%s", len(lines), raw)
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["msg"] != "Application started" || rec["data_dir"] != dir {
		t.Errorf("unexpected record: %v", rec)
	}
	if _, ok := rec["source"]; !ok {
		t.Error("expected source location in record")
	}
}

func TestMultiHandlerFanOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h).With("component", "test")

	logger.Info("info only")
	logger.Warn("both")

	if !strings.Contains(a.String(), "info only") || !strings.Contains(a.String(), "both") {
		t.Errorf("debug handler missed records: %s", a.String())
	}
	if strings.Contains(b.String(), "info only") || !strings.Contains(b.String(), "component=test") {
		t.Errorf("warn handler got unexpected output: %s", b.String())
	}
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected Enabled when any handler accepts the level")
	}
}
