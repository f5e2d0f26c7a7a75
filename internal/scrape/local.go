package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zakupki-realty/internal/fetcher"
	"github.com/sells-group/zakupki-realty/internal/resilience"
)

// BrowserUserAgent is sent by LocalScraper; listing sites serve bots a
// captcha page.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxBodyBytes caps a listing page. Search pages embed their state as JSON
// and run to a few megabytes.
const maxBodyBytes = 8 << 20

// LocalOptions configures LocalScraper.
type LocalOptions struct {
	UserAgent string
	Proxy     string
	Timeout   time.Duration
}

// LocalScraper fetches HTML via net/http, detects blocks, and keeps both the
// raw markup and a plaintext rendition. Falls through to Jina when blocked.
type LocalScraper struct {
	client    *http.Client
	userAgent string
}

// NewLocalScraper creates a LocalScraper. Zero options select a browser
// user agent, no proxy and a 30s timeout.
func NewLocalScraper(opts LocalOptions) (*LocalScraper, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = BrowserUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, eris.Wrap(err, "local_http: parse proxy")
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &LocalScraper{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		userAgent: opts.UserAgent,
	}, nil
}

func (l *LocalScraper) Name() string           { return "local_http" }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches a URL, detects blocks and strips HTML to plaintext.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if block := DetectBlock(resp.StatusCode, resp.Header, body); block != BlockNone {
		return nil, eris.Errorf("local_http: blocked (%s)", block)
	}

	if resp.StatusCode >= 400 {
		return nil, resilience.StatusError("local_http", resp.StatusCode, targetURL)
	}

	if len(body) < 100 {
		return nil, eris.New("local_http: empty page")
	}

	markup, err := fetcher.DecodeHTML(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: decode")
	}

	return &Result{
		Page: Page{
			URL:        targetURL,
			Title:      extractTitle(markup),
			Markdown:   stripHTML(markup),
			HTML:       markup,
			StatusCode: resp.StatusCode,
		},
		Source: "local_http",
	}, nil
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// extractTitle pulls the <title> from HTML.
func extractTitle(markup string) string {
	m := titleRe.FindStringSubmatch(markup)
	if len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

var (
	dropBlockRes = func() []*regexp.Regexp {
		var out []*regexp.Regexp
		for _, tag := range []string{"script", "style", "noscript", "nav", "footer"} {
			out = append(out, regexp.MustCompile(`(?is)<`+tag+`[^>]*>.*?</`+tag+`>`))
		}
		return out
	}()
	lineBreakRe = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|li|h[1-6]|article|section|tr)>`)
	tagRe       = regexp.MustCompile(`<[^>]+>`)
	spaceRe     = regexp.MustCompile(`[ \t]+`)
	lineTrimRe  = regexp.MustCompile(`(?m)^ +| +$`)
	nlRe        = regexp.MustCompile(`\n{3,}`)

	entityReplacer = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
		"&#8381;", "₽",
		"\u00a0", " ",
	)
)

// stripHTML removes scripts, styles and page chrome, turns block ends into
// line breaks, strips tags, decodes entities and collapses whitespace. Each
// visible block ends up on its own line.
func stripHTML(markup string) string {
	for _, re := range dropBlockRes {
		markup = re.ReplaceAllString(markup, "")
	}

	markup = lineBreakRe.ReplaceAllString(markup, "\n")
	markup = tagRe.ReplaceAllString(markup, " ")
	markup = entityReplacer.Replace(markup)

	markup = spaceRe.ReplaceAllString(markup, " ")
	markup = lineTrimRe.ReplaceAllString(markup, "")
	markup = nlRe.ReplaceAllString(markup, "\n\n")

	return strings.TrimSpace(markup)
}
