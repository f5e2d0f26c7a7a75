package listing

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/zakupki-realty/internal/model"
)

// Price bounds for a bare number to be read as an apartment price.
const (
	minPrice = 100_000
	maxPrice = 1_000_000_000
)

var (
	millionRe   = regexp.MustCompile(`([\d,.]+)\s*млн`)
	numberRunRe = regexp.MustCompile(`\d[\d ]*\d|\d`)
)

// ParsePrice reads a price from card text. Only the first line carrying a
// ruble sign or "руб" is considered: "5 300 000 ₽" is 5300000 and
// "3,5 млн ₽" is 3500000. Otherwise the first digit group within
// 100 000..1 000 000 000 is the price.
func ParsePrice(text string) (float64, bool) {
	var line string
	for _, l := range strings.Split(text, "\n") {
		if strings.Contains(l, "₽") || strings.Contains(strings.ToLower(l), "руб") {
			line = l
			break
		}
	}
	if line == "" {
		return 0, false
	}

	line = strings.ToLower(line)
	line = strings.NewReplacer("₽", "", "\u00a0", " ", "\u202f", " ").Replace(line)

	if m := millionRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64); err == nil {
			return math.Round(v * 1_000_000), true
		}
	}

	for _, run := range numberRunRe.FindAllString(line, -1) {
		v, err := strconv.ParseInt(strings.ReplaceAll(run, " ", ""), 10, 64)
		if err == nil && v >= minPrice && v <= maxPrice {
			return float64(v), true
		}
	}
	return 0, false
}

var (
	areaRes = []*regexp.Regexp{
		regexp.MustCompile(`([\d,.]+)\s*м[²2]`),
		regexp.MustCompile(`([\d,.]+)\s*кв\.?\s*м`),
		regexp.MustCompile(`([\d,.]+)\s*кв\.?`),
	}
	bareNumberRe = regexp.MustCompile(`[\d,.]+`)
)

// ParseArea reads "54 м²", "30,5 кв.м" or "площадь 45". A bare number is
// accepted only next to the word "площадь" or on its own, so "2-комн."
// never reads as two square meters.
func ParseArea(text string) (float64, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0, false
	}
	for _, re := range areaRes {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, ok := parseDecimal(m[1]); ok {
				return v, true
			}
		}
	}
	if strings.Contains(text, "площад") || bareNumberRe.FindString(text) == text {
		if v, ok := parseDecimal(bareNumberRe.FindString(text)); ok {
			return v, true
		}
	}
	return 0, false
}

func parseDecimal(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var (
	floorPairRes = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)\s*/\s*(\d+)`),
		regexp.MustCompile(`(\d+)\s*из\s*(\d+)`),
		regexp.MustCompile(`этаж\s*(\d+)\s*из\s*(\d+)`),
		regexp.MustCompile(`(\d+)\s*этаж.*?(\d+)\s*этаж`),
	}
	floorOnlyRe = regexp.MustCompile(`(\d+)\s*этаж`)
	digitsRe    = regexp.MustCompile(`^\d+$`)
)

// ParseFloor reads "5/9", "этаж 1 из 9" or "1 этаж, 9 этажей" as floor and
// building floors. Building floors is nil when only the floor is known; ok
// is false when neither is.
func ParseFloor(text string) (floor int, buildingFloors *int, ok bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0, nil, false
	}
	for _, re := range floorPairRes {
		if m := re.FindStringSubmatch(text); m != nil {
			f, err1 := strconv.Atoi(m[1])
			b, err2 := strconv.Atoi(m[2])
			if err1 == nil && err2 == nil {
				return f, &b, true
			}
		}
	}
	if m := floorOnlyRe.FindStringSubmatch(text); m != nil {
		if f, err := strconv.Atoi(m[1]); err == nil {
			return f, nil, true
		}
	}
	if digitsRe.MatchString(text) {
		if f, err := strconv.Atoi(text); err == nil {
			return f, nil, true
		}
	}
	return 0, nil, false
}

var roomsRes = []*regexp.Regexp{
	regexp.MustCompile(`(\d+)\s*-?\s*к(?:омн|\.)`),
	regexp.MustCompile(`(\d+)\s*комн`),
	regexp.MustCompile(`(\d+)\s*-?\s*к$`),
}

// ParseRooms reads "2-комн.", "1-к" or "3 комн"; a studio is 0 rooms.
func ParseRooms(text string) (int, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0, false
	}
	if strings.Contains(text, "студ") {
		return 0, true
	}
	for _, re := range roomsRes {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}
	if text[0] >= '0' && text[0] <= '9' {
		return int(text[0] - '0'), true
	}
	return 0, false
}

var yearRe = regexp.MustCompile(`(19\d{2}|20\d{2})`)

// ParseBuildingYear returns the first four-digit year 1900..2099 in text.
func ParseBuildingYear(text string) (int, bool) {
	m := yearRe.FindString(text)
	if m == "" {
		return 0, false
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return y, true
}

// ClassifyExternalSource names the listing site behind a link. Empty links
// classify as "".
func ClassifyExternalSource(link string) string {
	if link == "" {
		return ""
	}
	link = strings.ToLower(link)
	switch {
	case strings.Contains(link, "domclick") || strings.Contains(link, "dom.click"):
		return model.SourceDomclick
	case strings.Contains(link, "cian"):
		return model.SourceCian
	case strings.Contains(link, "avito"):
		return model.SourceAvito
	default:
		return model.SourceOther
	}
}
