// Package pipeline runs the four batch stages that move procurement
// records from ingestion to collected listings:
//
//	ingest   -> raw
//	extract  -> ai_ready
//	links    -> url_ready
//	listings -> listings_fresh
//
// Every stage is re-run safe. Per-record failures are collected into the
// returned StageResult and never abort sibling records.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/zakupki-realty/internal/gis"
	"github.com/sells-group/zakupki-realty/internal/metrics"
	"github.com/sells-group/zakupki-realty/internal/model"
	"github.com/sells-group/zakupki-realty/internal/store"
)

// Source lists notices and assembles their document text.
type Source interface {
	Search(ctx context.Context, page int) ([]model.Candidate, error)
	FetchDocuments(ctx context.Context, regNumber string) (string, error)
	Cleanup(regNumber string) error
}

// Extractor computes structured attributes from a record's combined text.
type Extractor interface {
	Extract(ctx context.Context, rec *model.Record) (*model.ExtractionResult, error)
}

// URLBuilder turns search filters into a listings search URL.
type URLBuilder interface {
	BuildURL(ctx context.Context, p gis.SearchParams) (string, error)
}

// ListingCollector scrapes listings for a search URL. Failures are reported
// through CollectResult.Error.
type ListingCollector interface {
	Collect(ctx context.Context, queryURL string, topN int, details bool) model.CollectResult
}

// Options tunes batch bounds.
type Options struct {
	MaxPages    int // search page ceiling for ingestion
	IngestLimit int // new records per ingestion when the caller gives none
	TopN        int // listings per record when the caller gives none
}

func (o *Options) applyDefaults() {
	if o.MaxPages <= 0 {
		o.MaxPages = 50
	}
	if o.IngestLimit <= 0 {
		o.IngestLimit = 10
	}
	if o.TopN <= 0 {
		o.TopN = 20
	}
}

// Pipeline orchestrates the stages. One instance is built at startup and
// shared by every caller.
type Pipeline struct {
	store     store.Store
	source    Source
	extractor Extractor
	urls      URLBuilder
	listings  ListingCollector
	opts      Options
	now       func() time.Time
}

// New creates a Pipeline with all collaborators.
func New(
	st store.Store,
	src Source,
	ext Extractor,
	urls URLBuilder,
	lc ListingCollector,
	opts Options,
) *Pipeline {
	opts.applyDefaults()
	return &Pipeline{
		store:     st,
		source:    src,
		extractor: ext,
		urls:      urls,
		listings:  lc,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the pipeline's store for read paths that share it.
func (p *Pipeline) Store() store.Store {
	return p.store
}

// track runs one stage, stamps its timing and run id, records metrics and
// persists the audit row. Audit failures are logged only.
func (p *Pipeline) track(ctx context.Context, stage string, userID *int64, fn func(res *model.StageResult)) *model.StageResult {
	log := zap.L().With(zap.String("stage", stage))

	res := &model.StageResult{
		RunID:     uuid.NewString(),
		Stage:     stage,
		Data:      map[string]any{},
		Errors:    []string{},
		StartedAt: p.now(),
	}
	log.Info("pipeline: stage starting", zap.String("run_id", res.RunID))

	fn(res)
	res.FinishedAt = p.now()

	metrics.ObserveStage(stage, res.Success, res.Duration())
	metrics.AddRecords(stage, metrics.OutcomeFailed, len(res.Errors))

	fields := []zap.Field{
		zap.String("run_id", res.RunID),
		zap.Bool("success", res.Success),
		zap.String("message", res.Message),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("duration", res.Duration()),
	}
	if res.Success {
		log.Info("pipeline: stage complete", fields...)
	} else {
		log.Warn("pipeline: stage finished without success", fields...)
	}

	if err := p.store.SaveStageRun(context.WithoutCancel(ctx), stageRun(res, userID)); err != nil {
		log.Warn("pipeline: failed to save stage run", zap.Error(err))
	}
	return res
}

func stageRun(res *model.StageResult, userID *int64) *model.StageRun {
	data, err := json.Marshal(res.Data)
	if err != nil {
		data = []byte("{}")
	}
	errs, err := json.Marshal(res.Errors)
	if err != nil {
		errs = []byte("[]")
	}
	return &model.StageRun{
		ID:         res.RunID,
		Stage:      res.Stage,
		UserID:     userID,
		Success:    res.Success,
		Message:    res.Message,
		Data:       string(data),
		Errors:     string(errs),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
}
