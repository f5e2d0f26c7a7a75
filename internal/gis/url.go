package gis

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrCityNotFound is returned when the city has no known coordinates.
var ErrCityNotFound = eris.New("gis: city not found")

// URLOptions controls the non-filter parts of generated links.
type URLOptions struct {
	Zoom  float64
	Sort  string
	OnMap bool
}

// DefaultURLOptions returns the map view used for listing searches.
func DefaultURLOptions() URLOptions {
	return URLOptions{Zoom: 14.67, Sort: "price_asc", OnMap: true}
}

// roomIDs maps a room count to the 2GIS "komnat" filter value.
var roomIDs = map[int]string{
	1: "4181700697707238747",
	2: "9052824901306559087",
	3: "14883364286970164480",
	4: "13648940551269033600",
	5: "4391054652267765575",
}

// SearchParams are the normalized filters for one listings search.
type SearchParams struct {
	City     string
	AreaMin  *float64
	AreaMax  *float64
	Rooms    []int
	FloorMin *int
	PriceMax *float64
}

// Builder turns SearchParams into a 2GIS URL.
type Builder struct {
	locator *Locator
	opts    URLOptions
}

// NewBuilder creates a Builder. A non-positive zoom selects the default.
func NewBuilder(locator *Locator, opts URLOptions) *Builder {
	if opts.Zoom <= 0 {
		opts.Zoom = DefaultURLOptions().Zoom
	}
	return &Builder{locator: locator, opts: opts}
}

// BuildURL resolves the city and formats the search URL. It returns
// ErrCityNotFound for unknown cities.
func (b *Builder) BuildURL(ctx context.Context, p SearchParams) (string, error) {
	coords, ok, err := b.locator.Lookup(ctx, p.City)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", eris.Wrapf(ErrCityNotFound, "%q", p.City)
	}
	return FormatURL(coords, p, b.opts), nil
}

// FormatURL renders the realty search URL. Filter fragments appear in a
// fixed order (rooms, on_map, sort, area, floor, price) joined by ";", with
// ";", "," and "=" percent-encoded. Without filters a plain map link is
// returned.
func FormatURL(c Coordinates, p SearchParams, opts URLOptions) string {
	var fragments []string

	if frag, ok := roomsFragment(p.Rooms); ok {
		fragments = append(fragments, frag)
	}
	if opts.OnMap {
		fragments = append(fragments, "on_map")
	}
	if opts.Sort != "" {
		fragments = append(fragments, "sort="+opts.Sort)
	}
	if frag, ok := rangeFragment("obshchaya_ploshchad", p.AreaMin, p.AreaMax); ok {
		fragments = append(fragments, frag)
	}
	if p.FloorMin != nil {
		fragments = append(fragments, "etazh="+strconv.Itoa(*p.FloorMin)+",")
	}
	if p.PriceMax != nil {
		fragments = append(fragments, "price=,"+strconv.Itoa(int(*p.PriceMax)))
	}

	m := formatFloat(c.Lon) + "%2C" + formatFloat(c.Lat) + "%2F" + formatFloat(opts.Zoom)
	if len(fragments) == 0 {
		return "https://2gis.ru/?m=" + m
	}

	filters := strings.NewReplacer(";", "%3B", ",", "%2C", "=", "%3D").Replace(strings.Join(fragments, ";"))
	return "https://2gis.ru/realty/sale/filters/" + filters + "?m=" + m
}

// roomsFragment is omitted entirely when any count lacks a filter id.
func roomsFragment(rooms []int) (string, bool) {
	if len(rooms) == 0 {
		return "", false
	}
	uniq := make(map[int]bool, len(rooms))
	var counts []int
	for _, r := range rooms {
		if !uniq[r] {
			uniq[r] = true
			counts = append(counts, r)
		}
	}
	sort.Ints(counts)

	ids := make([]string, 0, len(counts))
	for _, r := range counts {
		id, ok := roomIDs[r]
		if !ok {
			return "", false
		}
		ids = append(ids, id)
	}
	return "komnat=" + strings.Join(ids, ","), true
}

func rangeFragment(slug string, lo, hi *float64) (string, bool) {
	switch {
	case lo == nil && hi == nil:
		return "", false
	case lo == nil:
		return slug + "=," + strconv.Itoa(int(*hi)), true
	case hi == nil:
		return slug + "=" + strconv.Itoa(int(*lo)) + ",", true
	}
	a, b := *lo, *hi
	if a > b {
		a, b = b, a
	}
	return slug + "=" + strconv.Itoa(int(a)) + "," + strconv.Itoa(int(b)), true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
