// Package fetcher reads retailer extracts (CSV, XLSX) and stages remote
// extracts (HTTP, FTP, ZIP) onto local disk before loading.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads a remote extract.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
