package scrape

import (
	"context"
)

// Page is the content of one fetched listing page. HTML is the raw markup
// when the scraper has it; Markdown is always a readable text rendition.
type Page struct {
	URL        string
	Title      string
	Markdown   string
	HTML       string
	StatusCode int
}

// Result holds a scraped page with its source.
type Result struct {
	Page   Page
	Source string // "local_http" or "jina"
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}
