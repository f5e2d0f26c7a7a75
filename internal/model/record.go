// Package model defines the domain types shared across the procurement pipeline.
package model

import (
	"strings"
	"time"
)

// Status represents a record's position in the pipeline lifecycle.
type Status string

const (
	StatusRaw           Status = "raw"
	StatusUserSelected  Status = "user_selected" // reserved, no stage produces it
	StatusAIReady       Status = "ai_ready"
	StatusURLReady      Status = "url_ready"
	StatusListingsFresh Status = "listings_fresh"
	StatusListingsStale Status = "listings_stale" // reserved, no stage produces it
)

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusRaw,
		StatusUserSelected,
		StatusAIReady,
		StatusURLReady,
		StatusListingsFresh,
		StatusListingsStale,
	}
}

var statusRank = map[Status]int{
	StatusRaw:           0,
	StatusUserSelected:  1,
	StatusAIReady:       2,
	StatusURLReady:      3,
	StatusListingsFresh: 4,
	StatusListingsStale: 5,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank returns the position of s in the lifecycle, or -1 for unknown values.
func (s Status) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.Valid() && next.Rank() > s.Rank()
}

// Record is a single procurement notice tracked through the pipeline.
type Record struct {
	RegNumber        string     `json:"reg_number" db:"reg_number"`
	Description      string     `json:"description" db:"description"`
	UpdateDate       string     `json:"update_date" db:"update_date"`
	BidEndDate       string     `json:"bid_end_date" db:"bid_end_date"`
	InitialPrice     *float64   `json:"initial_price,omitempty" db:"initial_price"`
	Link             string     `json:"link" db:"link"`
	CombinedText     string     `json:"combined_text,omitempty" db:"combined_text"`
	TwoGISURL        *string    `json:"two_gis_url,omitempty" db:"two_gis_url"`
	ProcessedAt      time.Time  `json:"processed_at" db:"processed_at"`
	Status           Status     `json:"status" db:"status"`
	PreparedByUserID *int64     `json:"prepared_by_user_id,omitempty" db:"prepared_by_user_id"`
	PreparedAt       *time.Time `json:"prepared_at,omitempty" db:"prepared_at"`
}

// HasText reports whether the record carries non-blank document text.
func (r *Record) HasText() bool {
	return strings.TrimSpace(r.CombinedText) != ""
}

// URL returns the generated listings-search URL, or "" if none.
func (r *Record) URL() string {
	if r.TwoGISURL == nil {
		return ""
	}
	return strings.TrimSpace(*r.TwoGISURL)
}

// Candidate is a search hit from the procurement portal before its
// documents have been fetched.
type Candidate struct {
	RegNumber    string    `json:"reg_number"`
	Description  string    `json:"description"`
	UpdateDate   time.Time `json:"update_date"`
	BidEndDate   string    `json:"bid_end_date"`
	InitialPrice *float64  `json:"initial_price,omitempty"`
	Link         string    `json:"link"`
}

// User is a reviewer who records decisions, overrides and selections.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
