package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zakupki-realty/internal/metrics"
	"github.com/sells-group/zakupki-realty/internal/model"
	"github.com/sells-group/zakupki-realty/internal/store"
)

// RunListingCollection scrapes listings for records with a search URL. With
// ids, only those approved at the link review are considered. A record
// advances to listings_fresh only when at least one listing was found.
func (p *Pipeline) RunListingCollection(ctx context.Context, userID int64, topN, limit int, details bool, ids []string) *model.StageResult {
	if topN <= 0 {
		topN = p.opts.TopN
	}
	return p.track(ctx, model.StageListings, &userID, func(res *model.StageResult) {
		var (
			recs    []model.Record
			ignored int
			err     error
		)
		if len(ids) > 0 {
			ids, ignored, err = p.gatedIDs(ctx, model.StageListings, userID, model.ReviewLinked, gateApproved, ids)
			if err != nil {
				fail(res, "listing gate", err)
				return
			}
			recs, err = p.store.GetRecords(ctx, ids)
		} else {
			recs, err = p.store.ListRecords(ctx, store.RecordFilter{WithURL: true, Limit: limit})
		}
		if err != nil {
			fail(res, "load records", err)
			return
		}
		if limit > 0 && len(recs) > limit {
			recs = recs[:limit]
		}

		var processed, total int
		for i := range recs {
			rec := &recs[i]
			if err := ctx.Err(); err != nil {
				res.Errors = append(res.Errors, err.Error())
				break
			}
			if rec.URL() == "" {
				continue
			}
			n, err := p.collectOne(ctx, rec, topN, details)
			processed++
			total += n
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rec.RegNumber, err))
			}
		}

		metrics.AddRecords(model.StageListings, metrics.OutcomeProcessed, processed)

		res.Success = total > 0
		res.Message = fmt.Sprintf("collected %d listings for %d records", total, processed)
		res.Data = map[string]any{
			"processed":      processed,
			"total_records":  len(recs),
			"total_listings": total,
			"top_n":          topN,
			"details":        details,
			"ignored":        ignored,
		}
	})
}

// RunSelectedListingCollection collects listings for the user's selected
// records that have a URL and are url_ready. Selections are cleared once
// at least one record got listings.
func (p *Pipeline) RunSelectedListingCollection(ctx context.Context, userID int64, topN int, details bool) *model.StageResult {
	if topN <= 0 {
		topN = p.opts.TopN
	}
	return p.track(ctx, model.StageListings, &userID, func(res *model.StageResult) {
		ids, err := p.store.ListSelections(ctx, userID)
		if err != nil {
			fail(res, "load selections", err)
			return
		}
		if len(ids) == 0 {
			res.Message = "no selected records"
			return
		}
		recs, err := p.store.GetRecords(ctx, ids)
		if err != nil {
			fail(res, "load records", err)
			return
		}

		ready := recs[:0]
		for _, rec := range recs {
			if rec.URL() != "" && rec.Status == model.StatusURLReady {
				ready = append(ready, rec)
			}
		}
		if len(ready) == 0 {
			res.Message = "selected records have no search links"
			return
		}

		var processed, total int
		for i := range ready {
			rec := &ready[i]
			n, err := p.collectOne(ctx, rec, topN, details)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rec.RegNumber, err))
			}
			if n > 0 {
				processed++
				total += n
			}
		}

		cleared := 0
		if processed > 0 {
			if cleared, err = p.store.ClearSelections(ctx, userID); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("clear selections: %v", err))
			}
		}

		metrics.AddRecords(model.StageListings, metrics.OutcomeProcessed, processed)

		res.Success = processed > 0
		res.Message = fmt.Sprintf("collected %d listings for %d records", total, processed)
		res.Data = map[string]any{
			"processed":      processed,
			"total_records":  len(ready),
			"total_listings": total,
			"top_n":          topN,
			"details":        details,
			"cleared":        cleared,
		}
	})
}

// collectOne scrapes one record and replaces its listings when anything
// was found. It returns the number of stored listings and the collector
// or store error, if any. Partial results with an error are still stored.
func (p *Pipeline) collectOne(ctx context.Context, rec *model.Record, topN int, details bool) (int, error) {
	log := zap.L().With(zap.String("reg_number", rec.RegNumber))

	result := p.listings.Collect(ctx, rec.URL(), topN, details)
	var collectErr error
	if result.Error != "" {
		collectErr = eris.New(result.Error)
		log.Warn("pipeline: listing collection reported an error", zap.String("error", result.Error))
	}
	if len(result.Items) == 0 {
		log.Info("pipeline: no listings found, status unchanged")
		return 0, collectErr
	}

	for i := range result.Items {
		result.Items[i].RegNumber = rec.RegNumber
	}
	if err := p.store.ReplaceListings(ctx, rec.RegNumber, result.Items); err != nil {
		return 0, err
	}
	if _, err := p.store.AdvanceStatus(ctx, rec.RegNumber, model.StatusListingsFresh, nil); err != nil {
		return len(result.Items), err
	}
	log.Info("pipeline: listings stored", zap.Int("count", len(result.Items)))
	return len(result.Items), collectErr
}
