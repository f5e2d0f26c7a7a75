package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zakupki-realty/internal/extract"
	"github.com/sells-group/zakupki-realty/internal/gis"
	"github.com/sells-group/zakupki-realty/internal/metrics"
	"github.com/sells-group/zakupki-realty/internal/model"
	"github.com/sells-group/zakupki-realty/internal/store"
)

const (
	maxReportedURLs = 10
	reportedURLLen  = 80
)

// RunLinkGeneration builds the listings search URL for extracted records
// from the user's effective values. With ids, only those approved at the
// extraction review are considered.
func (p *Pipeline) RunLinkGeneration(ctx context.Context, userID int64, limit int, ids []string) *model.StageResult {
	return p.track(ctx, model.StageLinks, &userID, func(res *model.StageResult) {
		var (
			exts    []model.ExtractionResult
			ignored int
			err     error
		)
		if len(ids) > 0 {
			ids, ignored, err = p.gatedIDs(ctx, model.StageLinks, userID, model.ReviewExtracted, gateApproved, ids)
			if err != nil {
				fail(res, "link gate", err)
				return
			}
			exts, err = p.extractionsFor(ctx, ids)
		} else {
			exts, err = p.store.ListExtractions(ctx, limit)
		}
		if err != nil {
			fail(res, "load extraction results", err)
			return
		}
		if limit > 0 && len(exts) > limit {
			exts = exts[:limit]
		}
		p.generateLinks(ctx, userID, exts, ignored, res)
	})
}

// BatchLinks generates URLs for every ai_ready record, up to limit, without
// a review gate. userID supplies overrides and is recorded as preparer.
func (p *Pipeline) BatchLinks(ctx context.Context, userID int64, limit int) *model.StageResult {
	return p.track(ctx, model.StageLinks, &userID, func(res *model.StageResult) {
		recs, err := p.store.ListRecords(ctx, store.RecordFilter{
			Statuses: []model.Status{model.StatusAIReady},
			Limit:    limit,
		})
		if err != nil {
			fail(res, "load ai_ready records", err)
			return
		}
		ids := make([]string, len(recs))
		for i := range recs {
			ids[i] = recs[i].RegNumber
		}
		exts, err := p.extractionsFor(ctx, ids)
		if err != nil {
			fail(res, "load extraction results", err)
			return
		}
		p.generateLinks(ctx, userID, exts, 0, res)
		res.Data["total_available"] = len(recs)
	})
}

// extractionsFor loads results in id order. Ids without a result are
// logged and left out.
func (p *Pipeline) extractionsFor(ctx context.Context, ids []string) ([]model.ExtractionResult, error) {
	out := make([]model.ExtractionResult, 0, len(ids))
	for _, id := range ids {
		ext, err := p.store.GetExtraction(ctx, id)
		if err != nil {
			return nil, err
		}
		if ext == nil {
			zap.L().Warn("pipeline: no extraction result", zap.String("reg_number", id))
			continue
		}
		out = append(out, *ext)
	}
	return out, nil
}

func (p *Pipeline) generateLinks(ctx context.Context, userID int64, exts []model.ExtractionResult, ignored int, res *model.StageResult) {
	var (
		generated int
		skipped   int
		urls      []map[string]string
	)
	for i := range exts {
		ext := &exts[i]
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err.Error())
			break
		}

		u, err := p.linkOne(ctx, userID, ext)
		if err != nil {
			zap.L().Warn("pipeline: link generation failed", zap.String("reg_number", ext.RegNumber), zap.Error(err))
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", ext.RegNumber, err))
			continue
		}
		if u == "" {
			skipped++
			continue
		}
		generated++
		if len(urls) < maxReportedURLs {
			urls = append(urls, map[string]string{
				"reg_number": ext.RegNumber,
				"url":        truncateURL(u),
			})
		}
	}

	metrics.AddRecords(model.StageLinks, metrics.OutcomeProcessed, generated)
	metrics.AddRecords(model.StageLinks, metrics.OutcomeSkipped, skipped)

	if urls == nil {
		urls = []map[string]string{}
	}
	res.Success = generated > 0
	res.Message = fmt.Sprintf("generated %d links from %d records", generated, len(exts))
	res.Data = map[string]any{
		"total":     len(exts),
		"generated": generated,
		"urls":      urls,
		"ignored":   ignored,
	}
}

// linkOne returns "" without error when the record lacks a usable city.
func (p *Pipeline) linkOne(ctx context.Context, userID int64, ext *model.ExtractionResult) (string, error) {
	log := zap.L().With(zap.String("reg_number", ext.RegNumber))

	rec, err := p.store.GetRecord(ctx, ext.RegNumber)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", eris.Errorf("pipeline: record %s not found", ext.RegNumber)
	}
	overrides, err := p.store.GetOverrides(ctx, userID, ext.RegNumber)
	if err != nil {
		return "", err
	}

	eff := model.ResolveEffective(overrides, ext, rec)
	if eff.City == nil {
		log.Warn("pipeline: no effective city")
		return "", nil
	}

	u, err := p.urls.BuildURL(ctx, SearchParams(eff))
	if eris.Is(err, gis.ErrCityNotFound) {
		log.Warn("pipeline: city has no coordinates", zap.String("city", *eff.City))
		return "", nil
	}
	if err != nil {
		return "", err
	}

	if err := p.store.UpdateRecordURL(ctx, ext.RegNumber, u); err != nil {
		return "", err
	}
	if _, err := p.store.AdvanceStatus(ctx, ext.RegNumber, model.StatusURLReady, &userID); err != nil {
		return "", err
	}
	log.Info("pipeline: link generated", zap.String("city", *eff.City))
	return u, nil
}

// SearchParams converts effective values into URL filters. Room and floor
// text is parsed into numbers; rooms fall back to the normalized extraction
// value, and unparseable text drops the filter.
func SearchParams(eff model.Effective) gis.SearchParams {
	var params gis.SearchParams
	if eff.City != nil {
		params.City = *eff.City
	}
	params.AreaMin = eff.AreaMinM2
	params.PriceMax = eff.PriceRub
	if eff.Rooms != nil {
		params.Rooms = extract.ParseRoomsList(*eff.Rooms)
	}
	if len(params.Rooms) == 0 && eff.RoomsParsed != nil {
		params.Rooms = extract.ParseRoomsList(*eff.RoomsParsed)
	}
	if eff.Floor != nil {
		params.FloorMin = extract.ParseFloor(*eff.Floor)
	}
	return params
}

func truncateURL(u string) string {
	if len(u) <= reportedURLLen {
		return u
	}
	return u[:reportedURLLen]
}
