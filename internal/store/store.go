package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Store wraps the single-file embedded columnar database. It is owned
// exclusively by the pipeline driver for the duration of one run
// (spec.md §4.6, §5 "Concurrency").
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent on disk) the DuckDB file at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer per run, per spec.md §5
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for the schema-drift guard and rankings
// materializer, which need to issue their own queries against the same
// connection.
func (s *Store) DB() *sql.DB { return s.db }

const createTableSQL = `
CREATE TABLE IF NOT EXISTS daily_availability (
	date DATE NOT NULL,
	symbol VARCHAR NOT NULL,
	available BOOLEAN NOT NULL,
	file_size_bytes UBIGINT,
	last_modified VARCHAR,
	url VARCHAR NOT NULL,
	status_code INTEGER NOT NULL,
	probe_timestamp TIMESTAMP NOT NULL,
	quote_volume_usdt DOUBLE,
	trade_count BIGINT,
	volume_base DOUBLE,
	taker_buy_volume_base DOUBLE,
	taker_buy_quote_volume_usdt DOUBLE,
	open_price DOUBLE,
	high_price DOUBLE,
	low_price DOUBLE,
	close_price DOUBLE,
	PRIMARY KEY (date, symbol)
);`

const createCountsTableSQL = `
CREATE TABLE IF NOT EXISTS daily_symbol_counts (
	date DATE NOT NULL PRIMARY KEY,
	available_count BIGINT NOT NULL
);`

var createIndexSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_daily_availability_date ON daily_availability(date);`,
	`CREATE INDEX IF NOT EXISTS idx_daily_availability_symbol ON daily_availability(symbol);`,
	`CREATE INDEX IF NOT EXISTS idx_daily_availability_date_symbol ON daily_availability(date, symbol);`,
	`CREATE INDEX IF NOT EXISTS idx_daily_availability_quote_volume ON daily_availability(quote_volume_usdt DESC, date);`,
}

// CreateIfAbsent is idempotent DDL: the canonical column list, the
// derived counts table, and the four covering indices from spec.md §4.6.
func (s *Store) CreateIfAbsent(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("creating daily_availability: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createCountsTableSQL); err != nil {
		return fmt.Errorf("creating daily_symbol_counts: %w", err)
	}
	for _, stmt := range createIndexSQL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}

const upsertSQL = `
INSERT INTO daily_availability (
	date, symbol, available, file_size_bytes, last_modified, url, status_code, probe_timestamp,
	quote_volume_usdt, trade_count, volume_base, taker_buy_volume_base, taker_buy_quote_volume_usdt,
	open_price, high_price, low_price, close_price
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (date, symbol) DO UPDATE SET
	available = EXCLUDED.available,
	file_size_bytes = EXCLUDED.file_size_bytes,
	last_modified = EXCLUDED.last_modified,
	url = EXCLUDED.url,
	status_code = EXCLUDED.status_code,
	probe_timestamp = EXCLUDED.probe_timestamp,
	quote_volume_usdt = EXCLUDED.quote_volume_usdt,
	trade_count = EXCLUDED.trade_count,
	volume_base = EXCLUDED.volume_base,
	taker_buy_volume_base = EXCLUDED.taker_buy_volume_base,
	taker_buy_quote_volume_usdt = EXCLUDED.taker_buy_quote_volume_usdt,
	open_price = EXCLUDED.open_price,
	high_price = EXCLUDED.high_price,
	low_price = EXCLUDED.low_price,
	close_price = EXCLUDED.close_price;
`

const refreshCountsSQL = `
INSERT OR REPLACE INTO daily_symbol_counts (date, available_count)
SELECT date, COUNT(*) FILTER (WHERE available) FROM daily_availability GROUP BY date;
`

// UpsertBatch is the primary-key-keyed insert-or-replace contract: a
// later probe for the same (date, symbol) overwrites every field,
// including flipping available true→false (spec.md §4.6, §9 "Idempotent
// upsert"). The daily-counts refresh runs in the same transaction, satisfying
// the per-date commit discipline of spec.md §4.10.
func (s *Store) UpsertBatch(ctx context.Context, rows []Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.Date, r.Symbol, r.IsAvailable(), r.FileSizeBytes, r.LastModified, r.URL, r.StatusCode, r.ProbeTimestamp,
			r.QuoteVolumeUSDT, r.TradeCount, r.VolumeBase, r.TakerBuyVolumeBase, r.TakerBuyQuoteVolumeUSDT,
			r.OpenPrice, r.HighPrice, r.LowPrice, r.ClosePrice,
		); err != nil {
			return fmt.Errorf("upserting (%s, %s): %w", r.Date, r.Symbol, err)
		}
	}

	if _, err := tx.ExecContext(ctx, refreshCountsSQL); err != nil {
		return fmt.Errorf("refreshing daily counts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert transaction: %w", err)
	}
	return nil
}

// RefreshDailyCounts recomputes daily_symbol_counts from scratch. It is
// exposed standalone for callers (and tests) that need to refresh counts
// outside of an upsert, e.g. after an out-of-band repair; applying it
// twice yields the same counts (spec.md §8).
func (s *Store) RefreshDailyCounts(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, refreshCountsSQL); err != nil {
		return fmt.Errorf("refreshing daily counts: %w", err)
	}
	return nil
}

// DailyCount is one row of the derived daily_symbol_counts table.
type DailyCount struct {
	Date            string
	AvailableCount  int64
}

// Counts returns the full daily_symbol_counts table, ordered by date.
func (s *Store) Counts(ctx context.Context) ([]DailyCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, available_count FROM daily_symbol_counts ORDER BY date;`)
	if err != nil {
		return nil, fmt.Errorf("querying daily counts: %w", err)
	}
	defer rows.Close()

	var out []DailyCount
	for rows.Next() {
		var c DailyCount
		var d time.Time
		if err := rows.Scan(&d, &c.AvailableCount); err != nil {
			return nil, fmt.Errorf("scanning daily count: %w", err)
		}
		c.Date = d.Format("2006-01-02")
		out = append(out, c)
	}
	return out, rows.Err()
}

// AvailableSymbolsForDate returns every symbol whose row on dateISO has
// available=true, used by C8's cross-check against the latest date.
func (s *Store) AvailableSymbolsForDate(ctx context.Context, dateISO string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol FROM daily_availability WHERE date = ? AND available ORDER BY symbol;`, dateISO)
	if err != nil {
		return nil, fmt.Errorf("querying available symbols for %s: %w", dateISO, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scanning available symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// SymbolsEverSeen returns every distinct symbol that has at least one row
// in daily_availability, used by C9's gap detector.
func (s *Store) SymbolsEverSeen(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM daily_availability ORDER BY symbol;`)
	if err != nil {
		return nil, fmt.Errorf("querying known symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scanning known symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}
