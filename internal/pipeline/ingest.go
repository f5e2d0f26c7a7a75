package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/zakupki-realty/internal/metrics"
	"github.com/sells-group/zakupki-realty/internal/model"
)

// RunIngestion pages through the source until limit new or already stored
// records are found or the page ceiling is reached. Records already stored
// with text are skipped without fetching documents. A failure on the first
// page fails the whole run.
func (p *Pipeline) RunIngestion(ctx context.Context, limit int) *model.StageResult {
	if limit <= 0 {
		limit = p.opts.IngestLimit
	}
	return p.track(ctx, model.StageIngest, nil, func(res *model.StageResult) {
		p.ingest(ctx, limit, res)
	})
}

func (p *Pipeline) ingest(ctx context.Context, limit int, res *model.StageResult) {
	log := zap.L().With(zap.String("stage", model.StageIngest))

	var found, downloaded, skipped int
	seen := make(map[string]bool)

pages:
	for page := 1; found < limit && page <= p.opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err.Error())
			break
		}

		cands, err := p.source.Search(ctx, page)
		if err != nil {
			if page == 1 {
				fail(res, "source unavailable", err)
				res.Data = map[string]any{"limit": limit, "downloaded": 0, "skipped": 0}
				return
			}
			log.Warn("pipeline: search page failed", zap.Int("page", page), zap.Error(err))
			res.Errors = append(res.Errors, fmt.Sprintf("page %d: %v", page, err))
			continue
		}
		if len(cands) == 0 {
			log.Info("pipeline: no more candidates", zap.Int("page", page))
			break
		}

		for i := range cands {
			if found >= limit {
				break pages
			}
			cand := &cands[i]
			if seen[cand.RegNumber] {
				continue
			}
			seen[cand.RegNumber] = true

			existing, err := p.store.GetRecord(ctx, cand.RegNumber)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", cand.RegNumber, err))
				continue
			}
			if existing != nil && existing.HasText() {
				skipped++
				found++
				continue
			}

			saved, err := p.ingestOne(ctx, cand)
			if err != nil {
				log.Warn("pipeline: ingest failed", zap.String("reg_number", cand.RegNumber), zap.Error(err))
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", cand.RegNumber, err))
				continue
			}
			if saved {
				downloaded++
				found++
			}
		}
	}

	metrics.AddRecords(model.StageIngest, metrics.OutcomeProcessed, downloaded)
	metrics.AddRecords(model.StageIngest, metrics.OutcomeSkipped, skipped)

	res.Success = downloaded > 0 || len(res.Errors) == 0
	res.Message = fmt.Sprintf("downloaded %d new records, skipped %d already stored", downloaded, skipped)
	if len(res.Errors) > 0 {
		res.Message += fmt.Sprintf(", %d errors", len(res.Errors))
	}
	res.Data = map[string]any{
		"limit":      limit,
		"downloaded": downloaded,
		"skipped":    skipped,
	}
}

// ingestOne fetches documents and saves the record at raw. It reports false
// without error when no text could be read. Downloaded files are removed in
// every case.
func (p *Pipeline) ingestOne(ctx context.Context, cand *model.Candidate) (bool, error) {
	defer func() {
		if err := p.source.Cleanup(cand.RegNumber); err != nil {
			zap.L().Warn("pipeline: document cleanup failed", zap.String("reg_number", cand.RegNumber), zap.Error(err))
		}
	}()

	text, err := p.source.FetchDocuments(ctx, cand.RegNumber)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(text) == "" {
		zap.L().Info("pipeline: candidate has no readable documents", zap.String("reg_number", cand.RegNumber))
		return false, nil
	}

	rec := &model.Record{
		RegNumber:    cand.RegNumber,
		Description:  cand.Description,
		BidEndDate:   cand.BidEndDate,
		InitialPrice: cand.InitialPrice,
		Link:         cand.Link,
		CombinedText: text,
		ProcessedAt:  p.now(),
		Status:       model.StatusRaw,
	}
	if !cand.UpdateDate.IsZero() {
		rec.UpdateDate = cand.UpdateDate.Format("02.01.2006")
	}
	if err := p.store.SaveRecord(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}
