package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zakupki-realty/internal/metrics"
	"github.com/sells-group/zakupki-realty/internal/model"
)

// gateKind selects which current decisions open a review gate.
type gateKind int

const (
	// gateSelected admits only "selected" (intake triage).
	gateSelected gateKind = iota
	// gateApproved admits "approved" or "selected".
	gateApproved
)

// gatedIDs filters caller-supplied ids against the user's current decisions
// at review. Ids outside the gate are dropped with a warning and counted as
// ignored. Order of the request is kept and duplicates are removed.
func (p *Pipeline) gatedIDs(ctx context.Context, stage string, userID int64, review int, kind gateKind, ids []string) ([]string, int, error) {
	var (
		allowed []string
		err     error
	)
	switch kind {
	case gateSelected:
		allowed, err = p.store.SelectedRegNumbers(ctx, userID, review)
	default:
		allowed, err = p.store.ApprovedRegNumbers(ctx, userID, review)
	}
	if err != nil {
		return nil, 0, eris.Wrapf(err, "pipeline: load review %d decisions", review)
	}

	open := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		open[id] = true
	}

	seen := make(map[string]bool, len(ids))
	kept := make([]string, 0, len(ids))
	var dropped []string
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !open[id] {
			dropped = append(dropped, id)
			continue
		}
		kept = append(kept, id)
	}

	if len(dropped) > 0 {
		zap.L().Warn("pipeline: ignoring ids without a passing decision",
			zap.String("stage", stage),
			zap.Int64("user_id", userID),
			zap.Int("review", review),
			zap.Strings("reg_numbers", dropped),
		)
		metrics.AddRecords(stage, metrics.OutcomeIgnored, len(dropped))
	}
	return kept, len(dropped), nil
}

// fail marks a stage result as a batch-level failure.
func fail(res *model.StageResult, msg string, err error) {
	res.Success = false
	res.Message = msg
	if err != nil {
		res.Message = msg + ": " + err.Error()
		res.Errors = append(res.Errors, err.Error())
	}
}
