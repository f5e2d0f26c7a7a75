package listing

import (
	"context"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/zakupki-realty/internal/model"
)

var (
	yearRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)год\s+постройки[\s:]+(\d{4})`),
		regexp.MustCompile(`(?i)дата\s+постройки[\s:]+(\d{4})`),
		regexp.MustCompile(`(?i)построен\p{L}*\s+(?:в\s+)?(\d{4})`),
		regexp.MustCompile(`(?i)(\d{4})\s*(?:год|г\.?)(?:[^\p{L}]|$)`),
	}
	buildingFloorsRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+)[/-]этажн`),
		regexp.MustCompile(`(?i)этаж(?:ей|а)?\s*(?:в\s+доме)?[\s:]+(\d+)`),
		regexp.MustCompile(`(?i)(\d+)\s*этаж\p{L}*\s+(?:дом|здани)`),
	}
)

// details visits each offer page and fills the building year, and building
// floors when the card did not carry them. Pages that fail to load leave
// the listing unchanged.
func (c *Collector) details(ctx context.Context, items []model.Listing) {
	var (
		urls []string
		idx  []int
	)
	for i, l := range items {
		if l.TwoGISURL != "" {
			urls = append(urls, l.TwoGISURL)
			idx = append(idx, i)
		}
	}
	if len(urls) == 0 {
		return
	}

	pages := c.scraper.ScrapeAll(ctx, urls, c.opts.DetailWorkers)
	filled := 0
	for k, page := range pages {
		if page == nil {
			continue
		}
		if applyDetails(&items[idx[k]], page.Page.Markdown, c.now().Year()) {
			filled++
		}
	}
	zap.L().Debug("listing: details pass",
		zap.Int("requested", len(urls)),
		zap.Int("filled", filled),
	)
}

// applyDetails reports whether any field was filled.
func applyDetails(l *model.Listing, text string, maxYear int) bool {
	changed := false
	for _, re := range yearRes {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if y, err := strconv.Atoi(m[1]); err == nil && y >= 1900 && y <= maxYear {
			l.BuildingYear = &y
			changed = true
			break
		}
	}

	if l.BuildingFloors == nil {
		for _, re := range buildingFloorsRes {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 100 {
				l.BuildingFloors = &n
				changed = true
				break
			}
		}
	}
	return changed
}
