// Package gis builds 2GIS real-estate search URLs from resolved record
// attributes.
package gis

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zakupki-realty/internal/fetcher"
)

// Coordinates is a settlement's map position.
type Coordinates struct {
	Lat float64
	Lon float64
}

var cityPrefixes = []string{
	"пгт.", "пгт ", "ст.", "ст-ца ",
	"г.", "г ", "п.", "п ", "с.", "с ", "д.", "д ",
	"пос.", "пос ", "село ", "город ", "деревня ",
}

// CleanCity strips one leading settlement-type prefix ("г.", "пос ", "село ", ...)
// and surrounding whitespace.
func CleanCity(name string) string {
	name = strings.TrimSpace(name)
	lower := strings.ToLower(name)
	for _, p := range cityPrefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(name[len(p):])
		}
	}
	return name
}

// Locator resolves city names to coordinates from a CSV with name, lat and
// lon columns. The file is read once on first use.
type Locator struct {
	path string

	once   sync.Once
	byName map[string]Coordinates
	err    error
}

// NewLocator creates a Locator backed by the CSV at path.
func NewLocator(path string) *Locator {
	return &Locator{path: path}
}

// Lookup finds coordinates for city, matching case-insensitively after
// prefix cleanup. The first row for a name wins.
func (l *Locator) Lookup(ctx context.Context, city string) (Coordinates, bool, error) {
	l.once.Do(func() { l.byName, l.err = loadCoordinates(ctx, l.path) })
	if l.err != nil {
		return Coordinates{}, false, l.err
	}
	c, ok := l.byName[strings.ToLower(CleanCity(city))]
	return c, ok, nil
}

func loadCoordinates(ctx context.Context, path string) (map[string]Coordinates, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "gis: open coordinates %s", path)
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rows, errs := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		HasHeader:  true,
		HeaderCh:   headerCh,
		TrimSpace:  true,
		LazyQuotes: true,
	})

	nameIdx, latIdx, lonIdx := 0, 1, 2
	out := make(map[string]Coordinates)
	skipped := 0
	for row := range rows {
		select {
		case header := <-headerCh:
			nameIdx, latIdx, lonIdx = columnIndexes(header)
		default:
		}
		if len(row) <= max(nameIdx, latIdx, lonIdx) {
			skipped++
			continue
		}
		lat, errLat := strconv.ParseFloat(row[latIdx], 64)
		lon, errLon := strconv.ParseFloat(row[lonIdx], 64)
		if errLat != nil || errLon != nil {
			skipped++
			continue
		}
		key := strings.ToLower(row[nameIdx])
		if _, dup := out[key]; !dup {
			out[key] = Coordinates{Lat: lat, Lon: lon}
		}
	}
	if err := <-errs; err != nil {
		return nil, eris.Wrap(err, "gis: read coordinates")
	}

	zap.L().Info("gis: coordinates loaded",
		zap.String("path", path),
		zap.Int("cities", len(out)),
		zap.Int("skipped", skipped),
	)
	return out, nil
}

// columnIndexes locates name/lat/lon in a header row, defaulting to 0/1/2.
func columnIndexes(header []string) (name, lat, lon int) {
	name, lat, lon = 0, 1, 2
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name", "city":
			name = i
		case "lat", "latitude":
			lat = i
		case "lon", "lng", "longitude":
			lon = i
		}
	}
	return name, lat, lon
}
