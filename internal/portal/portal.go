// Package portal reads residential purchase notices from the zakupki.gov.ru
// public registry: the extended search listing, the notice print form and
// the attached documents.
package portal

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/zakupki-realty/internal/fetcher"
	"github.com/sells-group/zakupki-realty/internal/model"
	"github.com/sells-group/zakupki-realty/internal/resilience"
)

// DefaultBaseURL is the public registry host.
const DefaultBaseURL = "https://zakupki.gov.ru"

// OKPD2 68.10.11.000 (purchase of housing) and its registry id.
const (
	housingOKPD2Code = "68.10.11.000"
	housingOKPD2ID   = "8890776"
)

// DefaultExcludedKeywords drop multi-object and new-build purchases, which
// cannot be priced against single secondary-market listings.
var DefaultExcludedKeywords = []string{
	"многолотовый", "несколько объектов", "комплекс",
	"долевое строительство", "ДДУ", "первичном",
	"две", "три", "четыре", "помещений",
}

// Options configures the registry client.
type Options struct {
	BaseURL          string
	OKPD2Codes       []string // default 68.10.11.000, purchase of housing
	OKPD2IDs         []string // registry ids of OKPD2Codes
	ExcludedKeywords []string
	DocsDir          string // per-record document directories live here
	DocWorkers       int
	PageAttempts     int
	RetryBackoff     time.Duration
}

func (o *Options) applyDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if len(o.OKPD2Codes) == 0 {
		o.OKPD2Codes = []string{housingOKPD2Code}
	}
	if len(o.OKPD2IDs) == 0 && len(o.OKPD2Codes) == 1 && o.OKPD2Codes[0] == housingOKPD2Code {
		o.OKPD2IDs = []string{housingOKPD2ID}
	}
	if o.ExcludedKeywords == nil {
		o.ExcludedKeywords = DefaultExcludedKeywords
	}
	if o.DocsDir == "" {
		o.DocsDir = filepath.Join(os.TempDir(), "zakupki")
	}
	if o.DocWorkers <= 0 {
		o.DocWorkers = 4
	}
	if o.PageAttempts <= 0 {
		o.PageAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 5 * time.Second
	}
}

// Client implements the ingestion source on top of a Fetcher.
type Client struct {
	fetcher fetcher.Fetcher
	opts    Options
}

// New creates a registry client.
func New(f fetcher.Fetcher, opts Options) *Client {
	opts.applyDefaults()
	return &Client{fetcher: f, opts: opts}
}

// SearchURL returns the extended-search results page for 44-FZ notices at
// the application stage, newest update first.
func (c *Client) SearchURL(page int) string {
	q := url.Values{}
	q.Set("morphology", "on")
	q.Set("search-filter", "Дате обновления")
	q.Set("sortDirection", "false")
	q.Set("recordsPerPage", "_10")
	q.Set("showLotsInfoHidden", "false")
	q.Set("sortBy", "UPDATE_DATE")
	q.Set("fz44", "on")
	q.Set("af", "on")
	q.Set("orderStages", "AF")
	q.Set("currencyIdGeneral", "-1")
	if len(c.opts.OKPD2IDs) > 0 {
		q.Set("okpd2Ids", strings.Join(c.opts.OKPD2IDs, ","))
	}
	q.Set("okpd2IdsCodes", strings.Join(c.opts.OKPD2Codes, ","))
	q.Set("pageNumber", strconv.Itoa(page))
	return c.opts.BaseURL + "/epz/order/extendedsearch/results.html?" + q.Encode()
}

// Search returns the candidates on one results page, excluded keywords
// already filtered out. An error means the page could not be loaded after
// all attempts.
func (c *Client) Search(ctx context.Context, page int) ([]model.Candidate, error) {
	doc, err := c.fetchPage(ctx, "search", c.SearchURL(page))
	if err != nil {
		return nil, eris.Wrapf(err, "portal: search page %d", page)
	}

	found := parseSearchResults(doc, c.opts.BaseURL)
	kept := found[:0]
	for _, cand := range found {
		if kw, ok := c.excluded(cand.Description); ok {
			zap.L().Debug("portal: candidate excluded",
				zap.String("reg_number", cand.RegNumber),
				zap.String("keyword", kw),
			)
			continue
		}
		kept = append(kept, cand)
	}

	zap.L().Debug("portal: search page parsed",
		zap.Int("page", page),
		zap.Int("found", len(found)),
		zap.Int("kept", len(kept)),
	)
	return kept, nil
}

func (c *Client) excluded(description string) (string, bool) {
	desc := strings.ToLower(description)
	for _, kw := range c.opts.ExcludedKeywords {
		if kw != "" && strings.Contains(desc, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

// fetchPage loads and parses an HTML page, retrying everything but
// permanent HTTP statuses.
func (c *Client) fetchPage(ctx context.Context, op, rawURL string) (*html.Node, error) {
	cfg := resilience.RetryConfig{
		MaxAttempts:    c.opts.PageAttempts,
		InitialBackoff: c.opts.RetryBackoff,
		MaxBackoff:     c.opts.RetryBackoff,
		Multiplier:     1,
		ShouldRetry:    resilience.Retriable,
		OnRetry:        resilience.RetryLogger("portal", op),
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*html.Node, error) {
		// Non-200 responses arrive as classified status errors.
		resp, err := c.fetcher.Fetch(ctx, rawURL)
		if err != nil {
			return nil, eris.Wrapf(err, "portal: %s", op)
		}
		text, err := fetcher.DecodeHTML(resp.Body, resp.ContentType)
		if err != nil {
			return nil, err
		}
		doc, err := html.Parse(bytes.NewBufferString(text))
		if err != nil {
			return nil, eris.Wrap(err, "portal: parse html")
		}
		return doc, nil
	})
}
