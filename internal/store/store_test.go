package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUpsertBatch_SQLShape asserts the upsert statement sequence and
// transaction discipline without touching a real DuckDB file, mirroring
// the teacher's sqlmock-based connection tests.
func TestUpsertBatch_SQLShape(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	s := &Store{db: db}

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO daily_availability")
	mock.ExpectExec("INSERT INTO daily_availability").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT OR REPLACE INTO daily_symbol_counts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	row := Row{
		Date:           "2024-06-01",
		Symbol:         "BTCUSDT",
		StatusCode:     200,
		FileSizeBytes:  U64(12345),
		URL:            "https://data.binance.vision/daily/klines/BTCUSDT/1m/BTCUSDT-1m-2024-06-01.zip",
		ProbeTimestamp: time.Now(),
	}

	err = s.UpsertBatch(context.Background(), []Row{row})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatch_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	s := &Store{db: db}

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO daily_availability")
	mock.ExpectExec("INSERT INTO daily_availability").WillReturnError(assertErr)
	mock.ExpectRollback()

	row := Row{Date: "2024-06-01", Symbol: "BTCUSDT", StatusCode: 404, URL: "x"}
	err = s.UpsertBatch(context.Background(), []Row{row})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var assertErr = &sqlExecError{"forced failure"}

type sqlExecError struct{ msg string }

func (e *sqlExecError) Error() string { return e.msg }

// TestStore_RealDuckDBRoundTrip exercises CreateIfAbsent, UpsertBatch,
// Counts, SymbolsEverSeen, and CheckSchema against a real on-disk DuckDB
// file, since the sqlmock tests above never touch the actual driver.
func TestStore_RealDuckDBRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klinewatch.duckdb")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.CreateIfAbsent(ctx))
	// Idempotent: calling twice must not error.
	require.NoError(t, s.CreateIfAbsent(ctx))

	rows := []Row{
		{
			Date: "2024-06-01", Symbol: "BTCUSDT", StatusCode: 200,
			FileSizeBytes: U64(500000), URL: "https://data.binance.vision/x.zip",
			ProbeTimestamp: time.Now(), QuoteVolumeUSDT: F64(123456.78), TradeCount: I64(1000),
		},
		{
			Date: "2024-06-01", Symbol: "ETHUSDT", StatusCode: 404,
			URL: "https://data.binance.vision/y.zip", ProbeTimestamp: time.Now(),
		},
	}
	require.NoError(t, s.UpsertBatch(ctx, rows))

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, int64(1), counts[0].AvailableCount)

	symbols, err := s.SymbolsEverSeen(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, symbols)

	// Re-probing BTCUSDT as delisted (404) must flip available to false.
	rows2 := []Row{
		{Date: "2024-06-01", Symbol: "BTCUSDT", StatusCode: 404, URL: "https://data.binance.vision/x.zip", ProbeTimestamp: time.Now()},
	}
	require.NoError(t, s.UpsertBatch(ctx, rows2))
	counts, err = s.Counts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, int64(0), counts[0].AvailableCount)

	require.NoError(t, s.CheckSchema(ctx, CanonicalSchema()))
}

func TestCheckSchema_DetectsMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klinewatch.duckdb")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.CreateIfAbsent(ctx))

	want := CanonicalSchema()
	want.Columns = append(want.Columns, Column{Name: "does_not_exist", Type: "VARCHAR", Nullable: true})

	err = s.CheckSchema(ctx, want)
	require.Error(t, err)
	var driftErr *DriftError
	require.ErrorAs(t, err, &driftErr)
	found := false
	for _, d := range driftErr.Drifts {
		if d.Kind == DriftMissingColumn && d.Column == "does_not_exist" {
			found = true
		}
	}
	assert.True(t, found)
}
