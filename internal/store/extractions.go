package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zakupki-realty/internal/model"
)

const extractionColumns = `reg_number, zakupka_name, address, city, area_min_m2, area_max_m2, rooms,
	rooms_parsed, floor, building_floors_min, year_build_str, wear_percent, zakazchik, created_at`

// SaveExtraction writes the result if none exists for the record yet and
// reports whether a row was inserted. Results are never overwritten.
func (s *SQLiteStore) SaveExtraction(ctx context.Context, res *model.ExtractionResult) (bool, error) {
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	return doVal(ctx, s, "save_extraction", func(ctx context.Context) (bool, error) {
		r, err := s.db.NamedExecContext(ctx, `
			INSERT INTO extraction_results (`+extractionColumns+`)
			VALUES (:reg_number, :zakupka_name, :address, :city, :area_min_m2, :area_max_m2, :rooms,
				:rooms_parsed, :floor, :building_floors_min, :year_build_str, :wear_percent, :zakazchik, :created_at)
			ON CONFLICT(reg_number) DO NOTHING`,
			res,
		)
		if err != nil {
			return false, eris.Wrapf(err, "sqlite: save extraction %s", res.RegNumber)
		}
		n, err := r.RowsAffected()
		return n > 0, eris.Wrap(err, "sqlite: rows affected")
	})
}

func (s *SQLiteStore) GetExtraction(ctx context.Context, regNumber string) (*model.ExtractionResult, error) {
	return doVal(ctx, s, "get_extraction", func(ctx context.Context) (*model.ExtractionResult, error) {
		var res model.ExtractionResult
		err := s.db.GetContext(ctx, &res, `SELECT `+extractionColumns+` FROM extraction_results WHERE reg_number = ?`, regNumber)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: get extraction %s", regNumber)
		}
		return &res, nil
	})
}

// ListExtractions returns stored results, newest first. A non-positive
// limit returns all of them.
func (s *SQLiteStore) ListExtractions(ctx context.Context, limit int) ([]model.ExtractionResult, error) {
	query := `SELECT ` + extractionColumns + ` FROM extraction_results ORDER BY created_at DESC, reg_number`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return doVal(ctx, s, "list_extractions", func(ctx context.Context) ([]model.ExtractionResult, error) {
		var out []model.ExtractionResult
		err := s.db.SelectContext(ctx, &out, query, args...)
		return out, eris.Wrap(err, "sqlite: list extractions")
	})
}

func (s *SQLiteStore) CountExtractions(ctx context.Context) (int, error) {
	return s.count(ctx, "count_extractions", `SELECT COUNT(*) FROM extraction_results`)
}
