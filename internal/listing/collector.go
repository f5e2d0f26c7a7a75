// Package listing collects real-estate offers from a 2GIS search page: the
// page is fetched through the scrape chain, cards are read from the
// rendered markup, the embedded page state or the readable text, and an
// optional details pass visits each offer for the building year.
package listing

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/zakupki-realty/internal/model"
	"github.com/sells-group/zakupki-realty/internal/resilience"
	"github.com/sells-group/zakupki-realty/internal/scrape"
)

const (
	// DefaultBaseURL resolves relative offer links.
	DefaultBaseURL = "https://2gis.ru"

	// SourceName tags every collection result.
	SourceName = "2gis"

	noAddress = "Адрес не указан"
)

var addressKeywords = []string{"улица", "ул.", "пр.", "пр-т", "район", "мкр"}

// PageScraper fetches rendered pages. *scrape.Chain implements it.
type PageScraper interface {
	Scrape(ctx context.Context, url string) (*scrape.Result, error)
	ScrapeAll(ctx context.Context, urls []string, maxConcurrent int) []*scrape.Result
}

// Options configures a Collector.
type Options struct {
	BaseURL       string
	Sort          string // sort order encoded in query URLs; recorded on results
	Retries       int
	RetryBackoff  time.Duration
	DetailWorkers int
}

func (o *Options) applyDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.Sort == "" {
		o.Sort = "price_asc"
	}
	if o.Retries <= 0 {
		o.Retries = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 5 * time.Second
	}
	if o.DetailWorkers <= 0 {
		o.DetailWorkers = 2
	}
}

// Collector turns 2GIS search URLs into ranked listings.
type Collector struct {
	scraper PageScraper
	opts    Options
	now     func() time.Time
}

// New creates a Collector.
func New(s PageScraper, opts Options) *Collector {
	opts.applyDefaults()
	return &Collector{scraper: s, opts: opts, now: time.Now}
}

// Collect returns up to topN listings for queryURL, ranked from 1 in page
// order. A page that cannot be fetched yields a result with Error set and
// no items; a page without recognizable cards yields no items and no error.
func (c *Collector) Collect(ctx context.Context, queryURL string, topN int, details bool) model.CollectResult {
	res := model.CollectResult{
		Source:    SourceName,
		QueryURL:  queryURL,
		Sort:      c.opts.Sort,
		FetchedAt: c.now().UTC(),
		TopN:      topN,
		Items:     []model.Listing{},
	}
	log := zap.L().With(zap.String("query_url", queryURL))

	cfg := resilience.RetryConfig{
		MaxAttempts:    c.opts.Retries,
		InitialBackoff: c.opts.RetryBackoff,
		MaxBackoff:     4 * c.opts.RetryBackoff,
		Multiplier:     2,
		ShouldRetry:    resilience.Retriable,
		OnRetry:        resilience.RetryLogger("2gis", "search_page"),
	}
	page, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*scrape.Result, error) {
		return c.scraper.Scrape(ctx, queryURL)
	})
	if err != nil {
		log.Warn("listing: search page unavailable", zap.Error(err))
		res.Error = err.Error()
		return res
	}

	items := c.parse(page.Page)
	if items == nil {
		items = []model.Listing{}
	}
	if topN > 0 && len(items) > topN {
		items = items[:topN]
	}
	for i := range items {
		items[i].Rank = i + 1
		items[i].QueryURL = queryURL
		items[i].FetchedAt = res.FetchedAt
	}

	if details && len(items) > 0 {
		c.details(ctx, items)
	}

	res.Items = items
	log.Info("listing: collected",
		zap.String("scraper", page.Source),
		zap.Int("items", len(items)),
		zap.Int("top_n", topN),
	)
	return res
}

// parse prefers cards in the markup, then embedded page state, then the
// readable text.
func (c *Collector) parse(p scrape.Page) []model.Listing {
	if p.HTML != "" {
		doc, err := html.Parse(strings.NewReader(p.HTML))
		if err != nil {
			zap.L().Debug("listing: unparseable markup", zap.String("url", p.URL), zap.Error(err))
		} else {
			if items := c.fromCards(htmlCards(doc)); len(items) > 0 {
				return items
			}
			if items := stateListings(doc); len(items) > 0 {
				for i := range items {
					items[i].TwoGISURL = c.absolute(items[i].TwoGISURL)
				}
				return items
			}
		}
	}
	return c.fromCards(textCards(p.Markdown))
}

func (c *Collector) fromCards(cards []card) []model.Listing {
	var out []model.Listing
	for _, cd := range cards {
		if l, ok := c.parseCard(cd); ok {
			out = append(out, l)
		}
	}
	return out
}

// parseCard reads one card. Cards without a price are not listings.
func (c *Collector) parseCard(cd card) (model.Listing, bool) {
	price, ok := ParsePrice(cd.Text)
	if !ok {
		return model.Listing{}, false
	}

	title := cd.Title
	if title == "" {
		title = firstLine(cd.Text)
	}

	l := model.Listing{
		PriceRub: &price,
		Address:  cd.Address,
	}
	if l.Address == "" {
		l.Address = addressFromText(cd.Text)
	}

	for _, href := range cd.Links {
		src := ClassifyExternalSource(href)
		if src != model.SourceOther {
			if l.ExternalURL == "" {
				l.ExternalURL, l.ExternalSource = href, src
			}
			continue
		}
		if l.TwoGISURL == "" && (strings.HasPrefix(href, "/") || strings.Contains(href, "2gis.")) {
			l.TwoGISURL = c.absolute(href)
		}
	}

	if n, ok := ParseRooms(title); ok {
		l.Rooms = &n
	}
	if a, ok := ParseArea(title); ok {
		l.AreaM2 = &a
	}
	if f, building, ok := ParseFloor(title); ok {
		l.Floor = &f
		l.BuildingFloors = building
	}
	return l, true
}

// addressFromText picks the first line with a street or district marker,
// else the first line after the headline that is not a price.
func addressFromText(text string) string {
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		for _, kw := range addressKeywords {
			if strings.Contains(lower, kw) {
				return line
			}
		}
	}
	for _, line := range lines[min(1, len(lines)):] {
		if line = strings.TrimSpace(line); line != "" && !strings.Contains(line, "₽") {
			return line
		}
	}
	return noAddress
}

func (c *Collector) absolute(href string) string {
	if strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "//") {
		return c.opts.BaseURL + href
	}
	return href
}
