package store

import (
	"context"

	"github.com/sells-group/zakupki-realty/internal/model"
)

// RecordFilter specifies criteria for listing records. Results are ordered
// newest first by processed_at.
type RecordFilter struct {
	Statuses []model.Status `json:"statuses,omitempty"`
	WithURL  bool           `json:"with_url,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
}

// Store defines the persistence interface for the procurement pipeline.
// Lookups return nil, nil when the row does not exist.
type Store interface {
	// Records
	SaveRecord(ctx context.Context, rec *model.Record) error
	GetRecord(ctx context.Context, regNumber string) (*model.Record, error)
	GetRecords(ctx context.Context, regNumbers []string) ([]model.Record, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error)
	UpdateRecordURL(ctx context.Context, regNumber, url string) error
	AdvanceStatus(ctx context.Context, regNumber string, to model.Status, preparedBy *int64) (bool, error)
	CountRecords(ctx context.Context) (int, error)
	StatusCounts(ctx context.Context) (map[model.Status]int, error)
	DeleteRecord(ctx context.Context, regNumber string) error

	// Extraction results
	SaveExtraction(ctx context.Context, res *model.ExtractionResult) (bool, error)
	GetExtraction(ctx context.Context, regNumber string) (*model.ExtractionResult, error)
	ListExtractions(ctx context.Context, limit int) ([]model.ExtractionResult, error)
	CountExtractions(ctx context.Context) (int, error)

	// Listings
	ReplaceListings(ctx context.Context, regNumber string, items []model.Listing) error
	GetListings(ctx context.Context, regNumber string) ([]model.Listing, error)
	CountListings(ctx context.Context) (int, error)
	ListingStats(ctx context.Context, regNumber string) (model.ListingStats, error)

	// Decisions
	SaveDecision(ctx context.Context, d *model.Decision) error
	CurrentDecision(ctx context.Context, userID int64, regNumber string, stage int) (*model.Decision, error)
	ApprovedRegNumbers(ctx context.Context, userID int64, stage int) ([]string, error)
	SelectedRegNumbers(ctx context.Context, userID int64, stage int) ([]string, error)

	// Overrides
	UpsertOverride(ctx context.Context, o *model.Override) error
	GetOverrides(ctx context.Context, userID int64, regNumber string) (map[string]string, error)
	DeleteOverride(ctx context.Context, userID int64, regNumber, field string) error

	// Selections
	AddSelection(ctx context.Context, userID int64, regNumber string) error
	RemoveSelection(ctx context.Context, userID int64, regNumber string) error
	ListSelections(ctx context.Context, userID int64) ([]string, error)
	ClearSelections(ctx context.Context, userID int64) (int, error)

	// Users
	CreateUser(ctx context.Context, email, role string) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	// Stage runs
	SaveStageRun(ctx context.Context, run *model.StageRun) error
	ListStageRuns(ctx context.Context, limit int) ([]model.StageRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
