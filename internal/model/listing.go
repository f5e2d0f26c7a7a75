package model

import "time"

// Listing is one scraped real-estate offer attached to a record.
type Listing struct {
	ID             int64     `json:"id" db:"id"`
	RegNumber      string    `json:"reg_number" db:"reg_number"`
	Rank           int       `json:"rank" db:"rank"`
	PriceRub       *float64  `json:"price_rub" db:"price_rub"`
	Address        string    `json:"address" db:"address"`
	Rooms          *int      `json:"rooms" db:"rooms"`
	AreaM2         *float64  `json:"area_m2" db:"area_m2"`
	Floor          *int      `json:"floor" db:"floor"`
	BuildingFloors *int      `json:"building_floors" db:"building_floors"`
	BuildingYear   *int      `json:"building_year" db:"building_year"`
	TwoGISURL      string    `json:"two_gis_url" db:"two_gis_url"`
	ExternalSource string    `json:"external_source" db:"external_source"`
	ExternalURL    string    `json:"external_url" db:"external_url"`
	FetchedAt      time.Time `json:"fetched_at" db:"fetched_at"`
	QueryURL       string    `json:"query_url" db:"query_url"`
}

// External listing sources recognized by link classification.
const (
	SourceDomclick = "domclick"
	SourceCian     = "cian"
	SourceAvito    = "avito"
	SourceOther    = "other"
)

// CollectResult is the outcome of one listing collection for a search URL.
// Error is set when collection partially or fully failed.
type CollectResult struct {
	Source    string    `json:"source"`
	QueryURL  string    `json:"query_url"`
	Sort      string    `json:"sort"`
	FetchedAt time.Time `json:"fetched_at"`
	TopN      int       `json:"top_n"`
	Items     []Listing `json:"items"`
	Error     string    `json:"error,omitempty"`
}

// ListingStats summarizes stored listings for one record. Min and Max cover
// non-null prices only.
type ListingStats struct {
	Count    int      `json:"count" db:"count"`
	MinPrice *float64 `json:"min_price" db:"min_price"`
	MaxPrice *float64 `json:"max_price" db:"max_price"`
}
