package ingest

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

// IsURL reports whether source names a remote file rather than a local path.
func IsURL(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Fetcher downloads remote sources into a local directory so they can be
// loaded like any other file.
type Fetcher struct {
	client *http.Client
	dir    string
	logger *slog.Logger
}

// NewFetcher returns a Fetcher that stores downloads in dir. A nil client
// gets a default one with a generous timeout.
func NewFetcher(dir string, client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{client: client, dir: dir, logger: logger}
}

// Fetch downloads rawURL and returns the local CSV paths it yields. A zip
// archive yields every CSV member, in archive order; anything else is
// returned as a single file.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, store.ErrInput("invalid source URL %q: %v", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		name = "download.csv"
	}

	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return nil, store.WrapIO(err, "failed to create download directory")
	}

	dest := filepath.Join(f.dir, name)
	if err := f.download(ctx, rawURL, dest); err != nil {
		return nil, err
	}

	if !strings.EqualFold(filepath.Ext(name), ".zip") {
		return []string{dest}, nil
	}

	extracted, err := unzipCSV(dest, f.dir)
	if err != nil {
		return nil, store.WrapIO(err, "failed to extract %s", name)
	}
	_ = os.Remove(dest)
	if len(extracted) == 0 {
		return nil, store.ErrInput("archive %s contains no CSV files", rawURL)
	}
	f.logger.Info("Extracted archive", "url", rawURL, "files", len(extracted))
	return extracted, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, dest string) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return store.ErrInput("invalid source URL %q: %v", rawURL, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("Download failed", "error", err, "url", rawURL)
		return store.WrapIO(err, "failed to download %s", rawURL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		f.logger.Error("Download returned non-OK status", "status_code", resp.StatusCode, "url", rawURL)
		return store.WrapIO(fmt.Errorf("bad status: %s", resp.Status), "failed to download %s", rawURL)
	}

	out, err := os.Create(dest)
	if err != nil {
		return store.WrapIO(err, "failed to create %s", dest)
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return store.WrapIO(err, "failed to save %s", rawURL)
	}

	f.logger.Info("Downloaded source", "url", rawURL, "path", dest, "bytes", n, "duration", time.Since(start))
	return nil
}

// unzipCSV extracts the CSV members of the archive at src into dest,
// flattening any directory structure.
func unzipCSV(src, dest string) ([]string, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	var paths []string
	for _, zf := range r.File {
		if zf.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(zf.Name), ".csv") {
			continue
		}
		base := filepath.Base(filepath.FromSlash(zf.Name))
		if base == "." || base == string(filepath.Separator) || strings.HasPrefix(base, "..") {
			continue
		}
		fpath := filepath.Join(dest, base)

		if err := extractFile(zf, fpath); err != nil {
			return nil, err
		}
		paths = append(paths, fpath)
	}
	return paths, nil
}

func extractFile(zf *zip.File, fpath string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.Create(fpath)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}
