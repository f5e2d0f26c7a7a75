package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/zakupki-realty/internal/metrics"
	"github.com/sells-group/zakupki-realty/internal/model"
	"github.com/sells-group/zakupki-realty/internal/store"
)

// RunExtraction runs the LLM over records without a result. With ids, only
// those the user selected at intake review are considered; without ids, all
// records newest first. A positive limit caps the candidates.
func (p *Pipeline) RunExtraction(ctx context.Context, userID int64, limit int, ids []string) *model.StageResult {
	return p.track(ctx, model.StageExtract, &userID, func(res *model.StageResult) {
		var (
			recs    []model.Record
			ignored int
			err     error
		)
		if len(ids) > 0 {
			ids, ignored, err = p.gatedIDs(ctx, model.StageExtract, userID, model.ReviewIntake, gateSelected, ids)
			if err != nil {
				fail(res, "extraction gate", err)
				return
			}
			recs, err = p.store.GetRecords(ctx, ids)
		} else {
			recs, err = p.store.ListRecords(ctx, store.RecordFilter{Limit: limit})
		}
		if err != nil {
			fail(res, "load records", err)
			return
		}
		if limit > 0 && len(recs) > limit {
			recs = recs[:limit]
		}
		p.extract(ctx, recs, limit, ignored, res)
	})
}

// BatchExtract extracts every raw record, up to limit, without a review
// gate.
func (p *Pipeline) BatchExtract(ctx context.Context, limit int) *model.StageResult {
	return p.track(ctx, model.StageExtract, nil, func(res *model.StageResult) {
		recs, err := p.store.ListRecords(ctx, store.RecordFilter{
			Statuses: []model.Status{model.StatusRaw},
			Limit:    limit,
		})
		if err != nil {
			fail(res, "load raw records", err)
			return
		}
		p.extract(ctx, recs, limit, 0, res)
		res.Data["total_available"] = len(recs)
	})
}

func (p *Pipeline) extract(ctx context.Context, recs []model.Record, limit, ignored int, res *model.StageResult) {
	log := zap.L().With(zap.String("stage", model.StageExtract))
	log.Info("pipeline: extraction candidates", zap.Int("count", len(recs)))

	var processed, noText, already int
	for i := range recs {
		rec := &recs[i]
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err.Error())
			break
		}
		if !rec.HasText() {
			noText++
			continue
		}

		existing, err := p.store.GetExtraction(ctx, rec.RegNumber)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rec.RegNumber, err))
			continue
		}
		if existing != nil {
			already++
			// A run interrupted between the two writes leaves the record raw.
			if rec.Status == model.StatusRaw {
				if _, err := p.store.AdvanceStatus(ctx, rec.RegNumber, model.StatusAIReady, nil); err != nil {
					log.Warn("pipeline: status repair failed", zap.String("reg_number", rec.RegNumber), zap.Error(err))
				}
			}
			continue
		}

		inserted, err := p.extractOne(ctx, rec)
		if err != nil {
			log.Error("pipeline: extraction failed", zap.String("reg_number", rec.RegNumber), zap.Error(err))
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rec.RegNumber, err))
			continue
		}
		if !inserted {
			already++
			continue
		}
		processed++
	}

	metrics.AddRecords(model.StageExtract, metrics.OutcomeProcessed, processed)
	metrics.AddRecords(model.StageExtract, metrics.OutcomeSkipped, noText+already)

	res.Success = processed > 0 || len(res.Errors) == 0
	res.Message = extractionMessage(processed, already, noText, len(res.Errors))
	res.Data = map[string]any{
		"limit":                     limit,
		"processed":                 processed,
		"skipped_no_text":           noText,
		"skipped_already_processed": already,
		"ignored":                   ignored,
	}
}

// extractOne saves the LLM result and advances the record. It reports
// false when a concurrent run stored a result first.
func (p *Pipeline) extractOne(ctx context.Context, rec *model.Record) (bool, error) {
	out, err := p.extractor.Extract(ctx, rec)
	if err != nil {
		return false, err
	}
	out.RegNumber = rec.RegNumber

	inserted, err := p.store.SaveExtraction(ctx, out)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}
	if _, err := p.store.AdvanceStatus(ctx, rec.RegNumber, model.StatusAIReady, nil); err != nil {
		return false, err
	}
	return true, nil
}

func extractionMessage(processed, already, noText, errs int) string {
	var parts []string
	if processed > 0 {
		parts = append(parts, fmt.Sprintf("extracted %d records", processed))
	}
	if already > 0 {
		parts = append(parts, fmt.Sprintf("%d already extracted", already))
	}
	if noText > 0 {
		parts = append(parts, fmt.Sprintf("%d without text", noText))
	}
	msg := "nothing extracted"
	if len(parts) > 0 {
		msg = strings.Join(parts, ", ")
	}
	if errs > 0 {
		msg += fmt.Sprintf(". Errors: %d", errs)
	}
	return msg
}
