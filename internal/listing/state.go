package listing

import (
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/zakupki-realty/internal/model"
)

// Keys probed on embedded state objects, most specific first.
var (
	priceKeys    = []string{"price_rub", "priceRub", "price", "price.value", "price.amount", "cost"}
	addressKeys  = []string{"address_name", "addressName", "full_address", "fullAddress", "address", "address.name", "address.text"}
	roomsKeys    = []string{"rooms_count", "roomsCount", "rooms"}
	areaKeys     = []string{"area_m2", "total_area", "totalArea", "area", "area.value"}
	floorKeys    = []string{"floor"}
	floorsKeys   = []string{"building_floors", "floors_count", "floorsCount", "floors"}
	yearKeys     = []string{"building_year", "buildingYear", "build_year", "year"}
	linkKeys     = []string{"url", "link", "href"}
	externalKeys = []string{"external_url", "externalUrl", "source_url", "sourceUrl"}
)

// stateListings reads listings from JSON embedded in <script> elements: page
// state assignments ("window.__STATE__ = {...};") and JSON script blocks.
// Any object with a price and an address counts as a listing; matched
// objects are not searched further.
func stateListings(doc *html.Node) []model.Listing {
	var out []model.Listing
	for _, s := range collect(doc, func(n *html.Node) bool { return n.DataAtom == atom.Script }) {
		body := scriptJSON(innerScript(s))
		if body == "" {
			continue
		}
		walkState(gjson.Parse(body), &out)
	}
	return out
}

func innerScript(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// scriptJSON returns the JSON document a script carries, or "".
func scriptJSON(src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	if src[0] != '{' && src[0] != '[' {
		eq := strings.Index(src, "=")
		if eq < 0 {
			return ""
		}
		src = strings.TrimSpace(src[eq+1:])
	}
	src = strings.TrimRight(src, "; \n\r\t")
	if !gjson.Valid(src) {
		return ""
	}
	return src
}

func walkState(v gjson.Result, out *[]model.Listing) {
	switch {
	case v.IsObject():
		if l, ok := stateListing(v); ok {
			*out = append(*out, l)
			return
		}
		v.ForEach(func(_, child gjson.Result) bool {
			walkState(child, out)
			return true
		})
	case v.IsArray():
		v.ForEach(func(_, child gjson.Result) bool {
			walkState(child, out)
			return true
		})
	}
}

func stateListing(obj gjson.Result) (model.Listing, bool) {
	price, ok := firstNumber(obj, priceKeys)
	if !ok || price < minPrice || price > maxPrice {
		return model.Listing{}, false
	}
	address := firstString(obj, addressKeys)
	if address == "" {
		return model.Listing{}, false
	}

	l := model.Listing{PriceRub: &price, Address: address}
	if n, ok := firstNumber(obj, roomsKeys); ok {
		l.Rooms = intPtr(int(n))
	}
	if n, ok := firstNumber(obj, areaKeys); ok {
		l.AreaM2 = &n
	}
	if n, ok := firstNumber(obj, floorKeys); ok {
		l.Floor = intPtr(int(n))
	}
	if n, ok := firstNumber(obj, floorsKeys); ok {
		l.BuildingFloors = intPtr(int(n))
	}
	if n, ok := firstNumber(obj, yearKeys); ok && n >= 1800 {
		l.BuildingYear = intPtr(int(n))
	}
	l.TwoGISURL = firstString(obj, linkKeys)
	if ext := firstString(obj, externalKeys); ext != "" {
		l.ExternalURL = ext
		l.ExternalSource = ClassifyExternalSource(ext)
	}
	return l, true
}

// firstNumber accepts JSON numbers and numeric strings ("5 300 000").
func firstNumber(obj gjson.Result, keys []string) (float64, bool) {
	for _, k := range keys {
		v := obj.Get(k)
		switch v.Type {
		case gjson.Number:
			return v.Num, true
		case gjson.String:
			if n, err := model.ParseNumber(v.Str); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func firstString(obj gjson.Result, keys []string) string {
	for _, k := range keys {
		if v := obj.Get(k); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return strings.TrimSpace(v.Str)
		}
	}
	return ""
}

func intPtr(n int) *int { return &n }
