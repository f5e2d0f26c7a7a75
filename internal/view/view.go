// Package view assembles the per-stage review tables shown to users.
package view

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zakupki-realty/internal/model"
	"github.com/sells-group/zakupki-realty/internal/store"
)

// DefaultLimit caps the intake table when the caller gives no limit.
const DefaultLimit = 100

// Row is one record as seen at a review stage. Every joined field is
// optional.
type Row struct {
	RegNumber    string       `json:"reg_number"`
	Description  string       `json:"description"`
	UpdateDate   string       `json:"update_date"`
	BidEndDate   string       `json:"bid_end_date"`
	InitialPrice *float64     `json:"initial_price"`
	Status       model.Status `json:"status"`
	TwoGISURL    *string      `json:"two_gis_url"`
	Stage        int          `json:"stage"`

	MyDecision        *model.DecisionKind `json:"my_decision"`
	MyDecisionComment *string             `json:"my_decision_comment"`

	HasAIResult         bool     `json:"has_ai_result"`
	AIZakupkaName       *string  `json:"ai_zakupka_name"`
	AIAddress           *string  `json:"ai_address"`
	AICity              *string  `json:"ai_city"`
	AIAreaMin           *float64 `json:"ai_area_min"`
	AIAreaMax           *float64 `json:"ai_area_max"`
	AIRooms             *string  `json:"ai_rooms"`
	AIRoomsParsed       *string  `json:"ai_rooms_parsed"`
	AIFloor             *string  `json:"ai_floor"`
	AIBuildingFloorsMin *string  `json:"ai_building_floors_min"`
	AIYearBuild         *string  `json:"ai_year_build"`
	AIWearPercent       *float64 `json:"ai_wear_percent"`
	AIZakazchik         *string  `json:"ai_zakazchik"`

	Overrides map[string]string  `json:"overrides"`
	Effective map[string]*string `json:"effective"`

	ListingsCount    int      `json:"listings_count"`
	ListingsMinPrice *float64 `json:"listings_min_price"`
	ListingsMaxPrice *float64 `json:"listings_max_price"`

	CombinedText string `json:"combined_text"`
}

// Assembler joins records with decisions, extraction results, overrides
// and listing aggregates. It never writes.
type Assembler struct {
	store store.Store
}

// New creates an Assembler.
func New(st store.Store) *Assembler {
	return &Assembler{store: st}
}

// StageView returns the rows visible to userID at review stage:
//
//	1: every record, newest first, capped by limit
//	2: records whose current intake decision is exactly "selected"
//	N: records approved or selected at stage N-1
//
// A record that fails to assemble is logged and left out. An error is
// returned only when the candidate list itself cannot be loaded.
func (a *Assembler) StageView(ctx context.Context, userID int64, stage, limit int) ([]Row, error) {
	recs, err := a.candidates(ctx, userID, stage, limit)
	if err != nil {
		return []Row{}, err
	}

	rows := make([]Row, 0, len(recs))
	for i := range recs {
		row, err := a.row(ctx, userID, stage, &recs[i])
		if err != nil {
			zap.L().Warn("view: skipping record",
				zap.String("reg_number", recs[i].RegNumber),
				zap.Int("stage", stage),
				zap.Error(err),
			)
			continue
		}
		rows = append(rows, *row)
	}
	return rows, nil
}

func (a *Assembler) candidates(ctx context.Context, userID int64, stage, limit int) ([]model.Record, error) {
	switch {
	case stage < model.ReviewIntake:
		return nil, eris.Errorf("view: invalid stage %d", stage)
	case stage == model.ReviewIntake:
		if limit <= 0 {
			limit = DefaultLimit
		}
		recs, err := a.store.ListRecords(ctx, store.RecordFilter{Limit: limit})
		return recs, eris.Wrap(err, "view: list records")
	case stage == model.ReviewExtracted:
		ids, err := a.store.SelectedRegNumbers(ctx, userID, model.ReviewIntake)
		if err != nil {
			return nil, eris.Wrap(err, "view: selected at intake")
		}
		recs, err := a.store.GetRecords(ctx, ids)
		return recs, eris.Wrap(err, "view: get records")
	default:
		ids, err := a.store.ApprovedRegNumbers(ctx, userID, stage-1)
		if err != nil {
			return nil, eris.Wrapf(err, "view: approved at stage %d", stage-1)
		}
		recs, err := a.store.GetRecords(ctx, ids)
		return recs, eris.Wrap(err, "view: get records")
	}
}

func (a *Assembler) row(ctx context.Context, userID int64, stage int, rec *model.Record) (*Row, error) {
	dec, err := a.store.CurrentDecision(ctx, userID, rec.RegNumber, stage)
	if err != nil {
		return nil, err
	}
	ext, err := a.store.GetExtraction(ctx, rec.RegNumber)
	if err != nil {
		return nil, err
	}
	overrides, err := a.store.GetOverrides(ctx, userID, rec.RegNumber)
	if err != nil {
		return nil, err
	}
	stats, err := a.store.ListingStats(ctx, rec.RegNumber)
	if err != nil {
		return nil, err
	}
	if overrides == nil {
		overrides = map[string]string{}
	}

	row := &Row{
		RegNumber:        rec.RegNumber,
		Description:      rec.Description,
		UpdateDate:       rec.UpdateDate,
		BidEndDate:       rec.BidEndDate,
		InitialPrice:     rec.InitialPrice,
		Status:           rec.Status,
		TwoGISURL:        rec.TwoGISURL,
		Stage:            stage,
		Overrides:        overrides,
		Effective:        model.ResolveAll(overrides, ext, rec),
		ListingsCount:    stats.Count,
		ListingsMinPrice: stats.MinPrice,
		ListingsMaxPrice: stats.MaxPrice,
		CombinedText:     rec.CombinedText,
	}
	if dec != nil {
		row.MyDecision = &dec.Decision
		row.MyDecisionComment = dec.Comment
	}
	if ext != nil {
		row.HasAIResult = true
		row.AIZakupkaName = ext.ZakupkaName
		row.AIAddress = ext.Address
		row.AICity = ext.City
		row.AIAreaMin = ext.AreaMinM2
		row.AIAreaMax = ext.AreaMaxM2
		row.AIRooms = ext.Rooms
		row.AIRoomsParsed = ext.RoomsParsed
		row.AIFloor = ext.Floor
		row.AIBuildingFloorsMin = ext.BuildingFloorsMin
		row.AIYearBuild = ext.YearBuildStr
		row.AIWearPercent = ext.WearPercent
		row.AIZakazchik = ext.Zakazchik
	}
	return row, nil
}
