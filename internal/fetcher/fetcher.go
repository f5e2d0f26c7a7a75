// Package fetcher downloads procurement pages and documents and turns
// document files (PDF, DOCX, XLSX, DOC, ZIP) into plain text.
package fetcher

import "context"

// Fetcher downloads remote resources.
type Fetcher interface {
	// DownloadToFile fetches the URL and writes it to path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// Fetch reads the whole response, keeping the content type for charset
	// detection.
	Fetch(ctx context.Context, url string) (*Response, error)
}

// Response is a fully read HTTP response body.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}
