package fetcher

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Stager turns a source location (local path, file://, http(s)://, ftp://,
// optionally zipped) into a local file path ready for loading.
type Stager struct {
	dir  string
	http Fetcher
	ftp  Fetcher
}

// NewStager creates a Stager writing downloads under dir.
func NewStager(dir string, httpFetcher, ftpFetcher Fetcher) *Stager {
	return &Stager{dir: dir, http: httpFetcher, ftp: ftpFetcher}
}

// Stage resolves location to a local file. key namespaces staged files so
// two sources with the same file name never collide.
func (s *Stager) Stage(ctx context.Context, key, location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil || len(u.Scheme) <= 1 { // one-letter schemes are Windows drive letters
		return s.local(key, location)
	}

	var f Fetcher
	switch strings.ToLower(u.Scheme) {
	case "file":
		return s.local(key, u.Path)
	case "http", "https":
		f = s.http
	case "ftp":
		f = s.ftp
	default:
		return "", eris.Errorf("stage: unsupported scheme %q in %s", u.Scheme, location)
	}
	if f == nil {
		return "", eris.Errorf("stage: no fetcher configured for %s", u.Scheme)
	}

	dir, err := s.keyDir(key)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "extract.csv"
	}
	dest := filepath.Join(dir, name)

	n, err := f.DownloadToFile(ctx, location, dest)
	if err != nil {
		return "", eris.Wrapf(err, "stage: download %s", location)
	}
	zap.L().Info("stage: downloaded extract",
		zap.String("source", key),
		zap.String("url", location),
		zap.Int64("bytes", n),
	)

	return s.unzip(key, dest)
}

func (s *Stager) local(key, p string) (string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", eris.Wrapf(err, "stage: source %s", p)
	}
	if info.IsDir() {
		return "", eris.Errorf("stage: source %s is a directory", p)
	}
	return s.unzip(key, p)
}

func (s *Stager) unzip(key, p string) (string, error) {
	if !strings.EqualFold(filepath.Ext(p), ".zip") {
		return p, nil
	}
	dir, err := s.keyDir(key)
	if err != nil {
		return "", err
	}
	out, err := ExtractZIPSingle(p, filepath.Join(dir, "unzipped"))
	if err != nil {
		return "", eris.Wrapf(err, "stage: extract %s", p)
	}
	return out, nil
}

func (s *Stager) keyDir(key string) (string, error) {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	dir := filepath.Join(s.dir, safe)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "stage: create staging directory")
	}
	return dir, nil
}
