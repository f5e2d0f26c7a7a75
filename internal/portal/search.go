package portal

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/zakupki-realty/internal/model"
)

var dateLayouts = []string{"02.01.2006 15:04", "02.01.2006", "2006-01-02"}

var (
	blockMatch = element("", "data-block", "registry-entry__body-block", "price-block")
	titleMatch = element("", "data-block__title", "registry-entry__body-title", "price-block__title")
	valueMatch = element("", "data-block__value", "registry-entry__body-value", "price-block__value")
)

// parseSearchResults reads the notice cards of an extended-search page.
// Cards without a number link are skipped.
func parseSearchResults(doc *html.Node, baseURL string) []model.Candidate {
	blocks := findAll(doc, element("div", "search-registry-entry-block"))
	if len(blocks) == 0 {
		blocks = findAll(doc, element("div", "registry-entry__form"))
	}

	out := make([]model.Candidate, 0, len(blocks))
	for _, block := range blocks {
		if cand, ok := parseEntry(block, baseURL); ok {
			out = append(out, cand)
		}
	}
	return out
}

func parseEntry(block *html.Node, baseURL string) (model.Candidate, bool) {
	num := findFirst(block, element("div", "registry-entry__header-mid__number"))
	if num == nil {
		return model.Candidate{}, false
	}
	link := findFirst(num, func(n *html.Node) bool {
		return element("a")(n) && attr(n, "href") != ""
	})
	if link == nil {
		return model.Candidate{}, false
	}

	href := attr(link, "href")
	regNumber := queryParam(href, "regNumber")
	if regNumber == "" {
		regNumber = strings.TrimLeft(textContent(link), "№ ")
	}
	if regNumber == "" {
		return model.Candidate{}, false
	}
	if strings.HasPrefix(href, "/") {
		href = baseURL + href
	}

	cand := model.Candidate{
		RegNumber:   regNumber,
		Description: textContent(findFirst(block, element("div", "registry-entry__body-value"))),
		UpdateDate:  parseDate(textContent(findFirst(block, element("div", "data-block__value")))),
		Link:        href,
	}

	for _, db := range findAll(block, blockMatch) {
		titleEl := findFirst(db, titleMatch)
		valueEl := findFirst(db, valueMatch)
		if titleEl == nil || valueEl == nil {
			continue
		}
		title := strings.ToLower(textContent(titleEl))
		value := textContent(valueEl)
		switch {
		case strings.Contains(title, "окончани"):
			cand.BidEndDate = value
		case strings.Contains(title, "начальная цена"):
			if price, ok := parsePrice(value); ok {
				cand.InitialPrice = &price
			} else {
				zap.L().Warn("portal: unparseable initial price",
					zap.String("reg_number", regNumber),
					zap.String("value", value),
				)
			}
		}
	}
	return cand, true
}

// queryParam extracts key=value from a possibly relative, possibly
// malformed href.
func queryParam(href, key string) string {
	_, after, ok := strings.Cut(href, key+"=")
	if !ok {
		return ""
	}
	v, _, _ := strings.Cut(after, "&")
	return strings.TrimSpace(v)
}

// parseDate returns the zero time for empty or unknown formats.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

var priceReplacer = strings.NewReplacer("\u202f", "", "₽", "", "руб.", "", "руб", "", "р.", "", "р", "")

// parsePrice reads "1 234 567,89 ₽" as 1234567.89.
func parsePrice(s string) (float64, bool) {
	v, err := model.ParseNumber(priceReplacer.Replace(s))
	if err != nil {
		return 0, false
	}
	return v, true
}
