// Package logging builds the application logger: JSON records appended to
// err.log in the data directory, optionally mirrored to a Seq server.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	slogseq "github.com/sokkalf/slog-seq"
)

// FileName is the log file created inside the data directory.
const FileName = "err.log"

// multiHandler forwards log records to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// Setup opens <dataDir>/err.log and returns a logger writing JSON records
// to it at level. When seqURL is set, records are also shipped to Seq. The
// returned cleanup flushes and closes everything.
func Setup(dataDir string, level slog.Level, seqURL string) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logPath := filepath.Join(dataDir, FileName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger, closeSeq := build(logFile, level, seqURL)
	cleanup := func() {
		closeSeq()
		_ = logFile.Close()
	}
	return logger, cleanup, nil
}

func build(w io.Writer, level slog.Level, seqURL string) (*slog.Logger, func()) {
	fileHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
	if seqURL == "" {
		return slog.New(fileHandler), func() {}
	}

	_, seqHandler := slogseq.NewLogger(
		seqURL,
		slogseq.WithBatchSize(1),
		slogseq.WithFlushInterval(500*time.Millisecond),
		slogseq.WithHandlerOptions(&slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		}),
	)
	if seqHandler == nil {
		return slog.New(fileHandler), func() {}
	}

	logger := slog.New(&multiHandler{handlers: []slog.Handler{fileHandler, seqHandler}})
	return logger, func() { seqHandler.Close() }
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
