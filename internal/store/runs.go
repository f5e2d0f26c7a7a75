package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zakupki-realty/internal/model"
)

func (s *SQLiteStore) SaveStageRun(ctx context.Context, run *model.StageRun) error {
	return s.do(ctx, "save_stage_run", func(ctx context.Context) error {
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO stage_runs (id, stage, user_id, success, message, data, errors, started_at, finished_at)
			VALUES (:id, :stage, :user_id, :success, :message, :data, :errors, :started_at, :finished_at)`, run)
		return eris.Wrapf(err, "sqlite: save stage run %s", run.ID)
	})
}

// ListStageRuns returns the most recent runs first.
func (s *SQLiteStore) ListStageRuns(ctx context.Context, limit int) ([]model.StageRun, error) {
	if limit <= 0 {
		limit = 50
	}
	return doVal(ctx, s, "list_stage_runs", func(ctx context.Context) ([]model.StageRun, error) {
		var runs []model.StageRun
		err := s.db.SelectContext(ctx, &runs, `
			SELECT id, stage, user_id, success, message, data, errors, started_at, finished_at
			FROM stage_runs ORDER BY started_at DESC LIMIT ?`, limit)
		return runs, eris.Wrap(err, "sqlite: list stage runs")
	})
}
