package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"

	"github.com/sells-group/zakupki-realty/internal/model"
)

const recordColumns = `reg_number, description, update_date, bid_end_date, initial_price, link,
	combined_text, two_gis_url, processed_at, status, prepared_by_user_id, prepared_at`

// SaveRecord inserts a record or refreshes its portal fields. Pipeline state
// (status, URL, prepared_by) of an existing row is left untouched.
func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *model.Record) error {
	if rec.Status == "" {
		rec.Status = model.StatusRaw
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now().UTC()
	}
	return s.do(ctx, "save_record", func(ctx context.Context) error {
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO records (`+recordColumns+`)
			VALUES (:reg_number, :description, :update_date, :bid_end_date, :initial_price, :link,
				:combined_text, :two_gis_url, :processed_at, :status, :prepared_by_user_id, :prepared_at)
			ON CONFLICT(reg_number) DO UPDATE SET
				description   = excluded.description,
				update_date   = excluded.update_date,
				bid_end_date  = excluded.bid_end_date,
				initial_price = excluded.initial_price,
				link          = excluded.link,
				combined_text = excluded.combined_text,
				processed_at  = excluded.processed_at`,
			rec,
		)
		return eris.Wrapf(err, "sqlite: save record %s", rec.RegNumber)
	})
}

func (s *SQLiteStore) GetRecord(ctx context.Context, regNumber string) (*model.Record, error) {
	return doVal(ctx, s, "get_record", func(ctx context.Context) (*model.Record, error) {
		var rec model.Record
		err := s.db.GetContext(ctx, &rec, `SELECT `+recordColumns+` FROM records WHERE reg_number = ?`, regNumber)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: get record %s", regNumber)
		}
		return &rec, nil
	})
}

// GetRecords returns the existing records among regNumbers, newest first.
func (s *SQLiteStore) GetRecords(ctx context.Context, regNumbers []string) ([]model.Record, error) {
	if len(regNumbers) == 0 {
		return nil, nil
	}
	return doVal(ctx, s, "get_records", func(ctx context.Context) ([]model.Record, error) {
		query, args, err := sqlx.In(
			`SELECT `+recordColumns+` FROM records WHERE reg_number IN (?) ORDER BY processed_at DESC, reg_number`,
			regNumbers,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: expand reg numbers")
		}
		var recs []model.Record
		err = s.db.SelectContext(ctx, &recs, s.db.Rebind(query), args...)
		return recs, eris.Wrap(err, "sqlite: get records")
	})
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.WithURL {
		where = append(where, "two_gis_url IS NOT NULL AND TRIM(two_gis_url) != ''")
	}

	query := `SELECT ` + recordColumns + ` FROM records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY processed_at DESC, reg_number`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	return doVal(ctx, s, "list_records", func(ctx context.Context) ([]model.Record, error) {
		var recs []model.Record
		err := s.db.SelectContext(ctx, &recs, query, args...)
		return recs, eris.Wrap(err, "sqlite: list records")
	})
}

func (s *SQLiteStore) UpdateRecordURL(ctx context.Context, regNumber, url string) error {
	return s.do(ctx, "update_record_url", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `UPDATE records SET two_gis_url = ? WHERE reg_number = ?`, url, regNumber)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update url %s", regNumber)
		}
		return checkRowsAffected(res, "record", regNumber)
	})
}

// AdvanceStatus moves a record forward to the given status. A request for a
// status at or behind the current one, or for a missing record, changes
// nothing and reports false. preparedBy is recorded only on the move to
// url_ready.
func (s *SQLiteStore) AdvanceStatus(ctx context.Context, regNumber string, to model.Status, preparedBy *int64) (bool, error) {
	if !to.Valid() {
		return false, eris.Errorf("sqlite: invalid status %q", to)
	}
	var behind []string
	for _, st := range model.AllStatuses() {
		if st.Rank() < to.Rank() {
			behind = append(behind, string(st))
		}
	}
	if len(behind) == 0 {
		return false, nil
	}

	var prepBy *int64
	var prepAt *time.Time
	if to == model.StatusURLReady {
		now := time.Now().UTC()
		prepBy, prepAt = preparedBy, &now
	}

	return doVal(ctx, s, "advance_status", func(ctx context.Context) (bool, error) {
		query, args, err := sqlx.In(`
			UPDATE records SET
				status = ?,
				prepared_by_user_id = COALESCE(?, prepared_by_user_id),
				prepared_at = COALESCE(?, prepared_at)
			WHERE reg_number = ? AND status IN (?)`,
			string(to), prepBy, prepAt, regNumber, behind,
		)
		if err != nil {
			return false, eris.Wrap(err, "sqlite: expand statuses")
		}
		res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
		if err != nil {
			return false, eris.Wrapf(err, "sqlite: advance %s to %s", regNumber, to)
		}
		n, err := res.RowsAffected()
		return n > 0, eris.Wrap(err, "sqlite: rows affected")
	})
}

func (s *SQLiteStore) CountRecords(ctx context.Context) (int, error) {
	return s.count(ctx, "count_records", `SELECT COUNT(*) FROM records`)
}

// StatusCounts returns the number of records per status. Every known status
// is present, zero when unused.
func (s *SQLiteStore) StatusCounts(ctx context.Context) (map[model.Status]int, error) {
	type row struct {
		Status model.Status `db:"status"`
		N      int          `db:"n"`
	}
	return doVal(ctx, s, "status_counts", func(ctx context.Context) (map[model.Status]int, error) {
		var rows []row
		if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM records GROUP BY status`); err != nil {
			return nil, eris.Wrap(err, "sqlite: status counts")
		}
		out := make(map[model.Status]int, len(model.AllStatuses()))
		for _, st := range model.AllStatuses() {
			out[st] = 0
		}
		for _, r := range rows {
			out[r.Status] += r.N
		}
		return out, nil
	})
}

// DeleteRecord removes a record together with its extraction result,
// listings, overrides, selections and decisions.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, regNumber string) error {
	return s.do(ctx, "delete_record", func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *sqlx.Tx) error {
			for _, table := range []string{"listings", "extraction_results", "user_overrides", "user_selections", "decisions"} {
				if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE reg_number = ?`, regNumber); err != nil {
					return eris.Wrapf(err, "sqlite: delete %s for %s", table, regNumber)
				}
			}
			res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE reg_number = ?`, regNumber)
			if err != nil {
				return eris.Wrapf(err, "sqlite: delete record %s", regNumber)
			}
			return checkRowsAffected(res, "record", regNumber)
		})
	})
}

func (s *SQLiteStore) count(ctx context.Context, op, query string, args ...any) (int, error) {
	return doVal(ctx, s, op, func(ctx context.Context) (int, error) {
		var n int
		err := s.db.GetContext(ctx, &n, query, args...)
		return n, eris.Wrapf(err, "sqlite: %s", op)
	})
}
