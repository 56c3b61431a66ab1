// Package rankings implements C11: materializing a per-date quote-volume
// ranking of every symbol with non-null aggregates, exported as a
// standalone columnar artifact (spec.md §4.11). Grounded on the store's
// own embedded engine rather than a second columnar library: DuckDB's
// native COPY ... TO ... (FORMAT PARQUET) reuses duckdb-go/v2 instead of
// adding apache/arrow-go purely for writing (see DESIGN.md).
package rankings

import (
	"context"
	"database/sql"
	"fmt"
)

// rankQuery recomputes the rank from scratch across the full history on
// every materialization (spec.md §4.11: "no incremental rank maintenance
// is attempted"). Ties break lexicographically by symbol (spec.md §9
// open question, resolved in DESIGN.md).
const rankQuery = `
SELECT
	date, symbol, quote_volume_usdt, trade_count,
	volume_base, taker_buy_volume_base, taker_buy_quote_volume_usdt,
	open_price, high_price, low_price, close_price,
	RANK() OVER (PARTITION BY date ORDER BY quote_volume_usdt DESC, symbol ASC) AS rank
FROM daily_availability
WHERE quote_volume_usdt IS NOT NULL
`

// Materialize writes the rankings artifact to path as a single Parquet
// file via DuckDB's COPY statement.
func Materialize(ctx context.Context, db *sql.DB, path string) error {
	stmt := fmt.Sprintf("COPY (%s) TO '%s' (FORMAT PARQUET)", rankQuery, path)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("materializing rankings to %s: %w", path, err)
	}
	return nil
}
