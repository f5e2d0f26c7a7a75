package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zakupki-realty/internal/model"
)

// UpsertOverride sets the user's value for one field of one record.
func (s *SQLiteStore) UpsertOverride(ctx context.Context, o *model.Override) error {
	if !model.IsOverridableField(o.FieldName) {
		return eris.Errorf("sqlite: field %q cannot be overridden", o.FieldName)
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	return s.do(ctx, "upsert_override", func(ctx context.Context) error {
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO user_overrides (user_id, reg_number, field_name, value, created_at, updated_at)
			VALUES (:user_id, :reg_number, :field_name, :value, :created_at, :updated_at)
			ON CONFLICT(user_id, reg_number, field_name) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at`, o)
		return eris.Wrapf(err, "sqlite: upsert override %s.%s", o.RegNumber, o.FieldName)
	})
}

// GetOverrides returns field name → value for the user and record.
func (s *SQLiteStore) GetOverrides(ctx context.Context, userID int64, regNumber string) (map[string]string, error) {
	return doVal(ctx, s, "get_overrides", func(ctx context.Context) (map[string]string, error) {
		var rows []model.Override
		err := s.db.SelectContext(ctx, &rows, `
			SELECT id, user_id, reg_number, field_name, value, created_at, updated_at
			FROM user_overrides WHERE user_id = ? AND reg_number = ?`, userID, regNumber)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: get overrides %s", regNumber)
		}
		out := make(map[string]string, len(rows))
		for _, r := range rows {
			out[r.FieldName] = r.Value
		}
		return out, nil
	})
}

func (s *SQLiteStore) DeleteOverride(ctx context.Context, userID int64, regNumber, field string) error {
	return s.do(ctx, "delete_override", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM user_overrides WHERE user_id = ? AND reg_number = ? AND field_name = ?`,
			userID, regNumber, field)
		return eris.Wrapf(err, "sqlite: delete override %s.%s", regNumber, field)
	})
}

// AddSelection queues a record for the user's listing run. Re-adding is a no-op.
func (s *SQLiteStore) AddSelection(ctx context.Context, userID int64, regNumber string) error {
	return s.do(ctx, "add_selection", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO user_selections (user_id, reg_number, selected_at) VALUES (?, ?, ?)
			ON CONFLICT(user_id, reg_number) DO NOTHING`,
			userID, regNumber, time.Now().UTC())
		return eris.Wrapf(err, "sqlite: add selection %s", regNumber)
	})
}

func (s *SQLiteStore) RemoveSelection(ctx context.Context, userID int64, regNumber string) error {
	return s.do(ctx, "remove_selection", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM user_selections WHERE user_id = ? AND reg_number = ?`, userID, regNumber)
		return eris.Wrapf(err, "sqlite: remove selection %s", regNumber)
	})
}

// ListSelections returns the user's selected reg numbers, oldest first.
func (s *SQLiteStore) ListSelections(ctx context.Context, userID int64) ([]string, error) {
	return doVal(ctx, s, "list_selections", func(ctx context.Context) ([]string, error) {
		var regs []string
		err := s.db.SelectContext(ctx, &regs,
			`SELECT reg_number FROM user_selections WHERE user_id = ? ORDER BY selected_at, id`, userID)
		return regs, eris.Wrap(err, "sqlite: list selections")
	})
}

func (s *SQLiteStore) ClearSelections(ctx context.Context, userID int64) (int, error) {
	return doVal(ctx, s, "clear_selections", func(ctx context.Context) (int, error) {
		res, err := s.db.ExecContext(ctx, `DELETE FROM user_selections WHERE user_id = ?`, userID)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: clear selections")
		}
		n, err := res.RowsAffected()
		return int(n), eris.Wrap(err, "sqlite: rows affected")
	})
}
