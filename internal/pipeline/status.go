package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zakupki-realty/internal/model"
)

// StatusSummary groups status counts by the work still pending.
type StatusSummary struct {
	NeedsAI       int `json:"needs_ai"`
	NeedsLinks    int `json:"needs_links"`
	ReadyForUsers int `json:"ready_for_users"`
	Completed     int `json:"completed"`
}

// AdminStatus is the operator's view of pipeline progress.
type AdminStatus struct {
	Total    int                  `json:"total"`
	ByStatus map[model.Status]int `json:"by_status"`
	Summary  StatusSummary        `json:"summary"`
}

// GetStatistics returns row counts of the main tables.
func (p *Pipeline) GetStatistics(ctx context.Context) (model.Statistics, error) {
	var (
		stats model.Statistics
		err   error
	)
	if stats.Records, err = p.store.CountRecords(ctx); err != nil {
		return stats, eris.Wrap(err, "pipeline: count records")
	}
	if stats.ExtractionResults, err = p.store.CountExtractions(ctx); err != nil {
		return stats, eris.Wrap(err, "pipeline: count extraction results")
	}
	if stats.Listings, err = p.store.CountListings(ctx); err != nil {
		return stats, eris.Wrap(err, "pipeline: count listings")
	}
	return stats, nil
}

// GetStatusCounts returns the number of records per status. Every status
// is present; the values sum to the record count.
func (p *Pipeline) GetStatusCounts(ctx context.Context) (map[model.Status]int, error) {
	counts, err := p.store.StatusCounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: status counts")
	}
	return counts, nil
}

// GetAdminStatus returns status counts with the pending-work summary.
func (p *Pipeline) GetAdminStatus(ctx context.Context) (*AdminStatus, error) {
	counts, err := p.GetStatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return &AdminStatus{
		Total:    total,
		ByStatus: counts,
		Summary: StatusSummary{
			NeedsAI:       counts[model.StatusRaw],
			NeedsLinks:    counts[model.StatusAIReady],
			ReadyForUsers: counts[model.StatusURLReady],
			Completed:     counts[model.StatusListingsFresh],
		},
	}, nil
}

// AddToStage2 marks ids as selected at intake review and runs extraction
// for them. It returns the number of decisions saved and the extraction
// result, which is nil when nothing was saved.
func (p *Pipeline) AddToStage2(ctx context.Context, userID int64, ids []string) (int, *model.StageResult) {
	added := 0
	for _, id := range ids {
		d := &model.Decision{
			UserID:    userID,
			RegNumber: id,
			Stage:     model.ReviewIntake,
			Decision:  model.DecisionSelected,
		}
		if err := p.store.SaveDecision(ctx, d); err != nil {
			zap.L().Warn("pipeline: failed to save selection decision", zap.String("reg_number", id), zap.Error(err))
			continue
		}
		added++
	}
	if added == 0 {
		return 0, nil
	}
	return added, p.RunExtraction(ctx, userID, 0, ids)
}
