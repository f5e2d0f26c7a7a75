package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"

	"github.com/sells-group/zakupki-realty/internal/model"
)

const listingColumns = `reg_number, rank, price_rub, address, rooms, area_m2, floor, building_floors,
	building_year, two_gis_url, external_source, external_url, fetched_at, query_url`

// ReplaceListings swaps the record's listing set for items in one
// transaction. Items without a rank are numbered 1..n in slice order.
func (s *SQLiteStore) ReplaceListings(ctx context.Context, regNumber string, items []model.Listing) error {
	now := time.Now().UTC()
	rows := make([]model.Listing, len(items))
	for i, it := range items {
		it.RegNumber = regNumber
		if it.Rank <= 0 {
			it.Rank = i + 1
		}
		if it.FetchedAt.IsZero() {
			it.FetchedAt = now
		}
		rows[i] = it
	}

	return s.do(ctx, "replace_listings", func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE reg_number = ?`, regNumber); err != nil {
				return eris.Wrapf(err, "sqlite: clear listings %s", regNumber)
			}
			for i := range rows {
				_, err := tx.NamedExecContext(ctx, `
					INSERT INTO listings (`+listingColumns+`)
					VALUES (:reg_number, :rank, :price_rub, :address, :rooms, :area_m2, :floor, :building_floors,
						:building_year, :two_gis_url, :external_source, :external_url, :fetched_at, :query_url)`,
					&rows[i],
				)
				if err != nil {
					return eris.Wrapf(err, "sqlite: insert listing %s#%d", regNumber, rows[i].Rank)
				}
			}
			return nil
		})
	})
}

// GetListings returns the record's listings ordered by rank.
func (s *SQLiteStore) GetListings(ctx context.Context, regNumber string) ([]model.Listing, error) {
	return doVal(ctx, s, "get_listings", func(ctx context.Context) ([]model.Listing, error) {
		var items []model.Listing
		err := s.db.SelectContext(ctx, &items,
			`SELECT id, `+listingColumns+` FROM listings WHERE reg_number = ? ORDER BY rank, id`, regNumber)
		return items, eris.Wrapf(err, "sqlite: get listings %s", regNumber)
	})
}

func (s *SQLiteStore) CountListings(ctx context.Context) (int, error) {
	return s.count(ctx, "count_listings", `SELECT COUNT(*) FROM listings`)
}

// ListingStats aggregates count and price range; MIN/MAX skip null prices.
func (s *SQLiteStore) ListingStats(ctx context.Context, regNumber string) (model.ListingStats, error) {
	return doVal(ctx, s, "listing_stats", func(ctx context.Context) (model.ListingStats, error) {
		var st model.ListingStats
		err := s.db.GetContext(ctx, &st,
			`SELECT COUNT(*) AS count, MIN(price_rub) AS min_price, MAX(price_rub) AS max_price
			 FROM listings WHERE reg_number = ?`, regNumber)
		return st, eris.Wrapf(err, "sqlite: listing stats %s", regNumber)
	})
}
