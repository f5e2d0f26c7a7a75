package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zakupki-realty/internal/resilience"
	"github.com/sells-group/zakupki-realty/pkg/jina"
)

// JinaOptions configures how the reader renders listing pages.
type JinaOptions struct {
	Format          string // "markdown" (default) or "html"
	WaitForSelector string
	PageTimeout     time.Duration
	Proxy           string
}

// JinaAdapter wraps a Jina Reader client as a Scraper with a circuit breaker.
type JinaAdapter struct {
	client  jina.Client
	opts    []jina.ReadOption
	breaker *resilience.CircuitBreaker
}

// NewJinaAdapter creates a JinaAdapter from a Jina client. Three
// consecutive failures open the circuit for 60s, during which the chain
// skips the reader.
func NewJinaAdapter(client jina.Client, opts JinaOptions) *JinaAdapter {
	var readOpts []jina.ReadOption
	if opts.Format != "" {
		readOpts = append(readOpts, jina.WithFormat(opts.Format))
	}
	if opts.WaitForSelector != "" {
		readOpts = append(readOpts, jina.WithWaitForSelector(opts.WaitForSelector))
	}
	if opts.PageTimeout > 0 {
		readOpts = append(readOpts, jina.WithPageTimeout(opts.PageTimeout))
	}
	if opts.Proxy != "" {
		readOpts = append(readOpts, jina.WithProxy(opts.Proxy))
	}
	readOpts = append(readOpts, jina.WithLocale("ru-RU"))

	return &JinaAdapter{
		client:  client,
		opts:    readOpts,
		breaker: resilience.NewCircuitBreaker(resilience.FromCircuitConfig("jina", 3, 60)),
	}
}

func (j *JinaAdapter) Name() string { return "jina" }

// Supports returns true unless the circuit breaker is open.
func (j *JinaAdapter) Supports(_ string) bool {
	return j.breaker.State() != resilience.CircuitOpen
}

// Scrape fetches a URL via Jina Reader and validates the response.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := resilience.ExecuteVal(ctx, j.breaker, func(ctx context.Context) (*jina.ReadResponse, error) {
		resp, err := j.client.Read(ctx, targetURL, j.opts...)
		if err != nil {
			return nil, err
		}
		if needsFallback(resp) {
			return nil, eris.New("jina: response needs fallback")
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	page := Page{
		URL:        resp.Data.URL,
		Title:      resp.Data.Title,
		Markdown:   resp.Data.Content,
		HTML:       resp.Data.HTML,
		StatusCode: resp.Code,
	}
	if page.URL == "" {
		page.URL = targetURL
	}
	// In html format the reader may put the markup in content.
	if page.HTML == "" && looksLikeHTML(page.Markdown) {
		page.HTML = page.Markdown
		page.Markdown = stripHTML(page.HTML)
	}
	return &Result{Page: page, Source: "jina"}, nil
}

func looksLikeHTML(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "<") && strings.Contains(s, "</")
}

// challengeSignatures mark interstitial pages the reader rendered instead
// of the target.
var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"cloudflare",
	"attention required",
	"вы не робот",
	"доступ ограничен",
}

// needsFallback checks whether a Jina response contains usable content
// or indicates the page is blocked/empty. Returns true if the response
// should be retried with a different scraper.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}

	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Content)
	if content == "" {
		content = strings.TrimSpace(resp.Data.HTML)
	}

	if len(content) < 100 {
		return true
	}

	lower := strings.ToLower(content)

	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}

	return false
}
