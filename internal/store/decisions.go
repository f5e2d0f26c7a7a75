package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zakupki-realty/internal/model"
)

// currentDecisions ranks each record's decisions for one (user, stage),
// newest first. created_at ties fall back to insertion order.
const currentDecisions = `
	SELECT reg_number, decision FROM (
		SELECT d.*, ROW_NUMBER() OVER (
			PARTITION BY reg_number ORDER BY created_at DESC, id DESC
		) AS rn
		FROM decisions d
		WHERE user_id = ? AND stage = ?
	) WHERE rn = 1`

// SaveDecision appends a decision and fills in its id.
func (s *SQLiteStore) SaveDecision(ctx context.Context, d *model.Decision) error {
	if !d.Decision.Valid() {
		return eris.Errorf("sqlite: invalid decision %q", d.Decision)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return s.do(ctx, "save_decision", func(ctx context.Context) error {
		res, err := s.db.NamedExecContext(ctx, `
			INSERT INTO decisions (user_id, reg_number, stage, decision, comment, created_at)
			VALUES (:user_id, :reg_number, :stage, :decision, :comment, :created_at)`, d)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save decision %s", d.RegNumber)
		}
		d.ID, err = res.LastInsertId()
		return eris.Wrap(err, "sqlite: last insert id")
	})
}

// CurrentDecision returns the user's latest decision for the record at stage.
func (s *SQLiteStore) CurrentDecision(ctx context.Context, userID int64, regNumber string, stage int) (*model.Decision, error) {
	return doVal(ctx, s, "current_decision", func(ctx context.Context) (*model.Decision, error) {
		var d model.Decision
		err := s.db.GetContext(ctx, &d, `
			SELECT id, user_id, reg_number, stage, decision, comment, created_at
			FROM decisions WHERE user_id = ? AND reg_number = ? AND stage = ?
			ORDER BY created_at DESC, id DESC LIMIT 1`,
			userID, regNumber, stage,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: current decision %s", regNumber)
		}
		return &d, nil
	})
}

// ApprovedRegNumbers lists records whose current decision at stage is
// approved or selected.
func (s *SQLiteStore) ApprovedRegNumbers(ctx context.Context, userID int64, stage int) ([]string, error) {
	return s.currentWith(ctx, "approved_reg_numbers", userID, stage, model.DecisionApproved, model.DecisionSelected)
}

// SelectedRegNumbers lists records whose current decision at stage is
// exactly selected.
func (s *SQLiteStore) SelectedRegNumbers(ctx context.Context, userID int64, stage int) ([]string, error) {
	return s.currentWith(ctx, "selected_reg_numbers", userID, stage, model.DecisionSelected)
}

func (s *SQLiteStore) currentWith(ctx context.Context, op string, userID int64, stage int, kinds ...model.DecisionKind) ([]string, error) {
	return doVal(ctx, s, op, func(ctx context.Context) ([]string, error) {
		var current []struct {
			RegNumber string             `db:"reg_number"`
			Decision  model.DecisionKind `db:"decision"`
		}
		if err := s.db.SelectContext(ctx, &current, currentDecisions+` ORDER BY created_at DESC, id DESC`, userID, stage); err != nil {
			return nil, eris.Wrapf(err, "sqlite: %s", op)
		}
		regs := make([]string, 0, len(current))
		for _, d := range current {
			for _, k := range kinds {
				if d.Decision == k {
					regs = append(regs, d.RegNumber)
					break
				}
			}
		}
		return regs, nil
	})
}
