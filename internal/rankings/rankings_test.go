package rankings

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/sawpanic/klinewatch/internal/store"
)

func TestMaterialize_WritesParquetFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "klinewatch.duckdb")
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.CreateIfAbsent(ctx))

	rows := []store.Row{
		{
			Date: "2024-06-01", Symbol: "BTCUSDT", StatusCode: 200,
			FileSizeBytes: store.U64(1), URL: "x", ProbeTimestamp: time.Now(),
			QuoteVolumeUSDT: store.F64(500), TradeCount: store.I64(10),
		},
		{
			Date: "2024-06-01", Symbol: "ETHUSDT", StatusCode: 200,
			FileSizeBytes: store.U64(1), URL: "y", ProbeTimestamp: time.Now(),
			QuoteVolumeUSDT: store.F64(900), TradeCount: store.I64(20),
		},
		{
			// No aggregates: excluded from the artifact entirely.
			Date: "2024-06-01", Symbol: "NODATAUSDT", StatusCode: 404, URL: "z", ProbeTimestamp: time.Now(),
		},
	}
	require.NoError(t, s.UpsertBatch(ctx, rows))

	out := filepath.Join(t.TempDir(), "rankings.parquet")
	require.NoError(t, Materialize(ctx, s.DB(), out))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// Read it back through a second connection to confirm rank assignment:
	// ETHUSDT has higher quote_volume_usdt, so it must rank 1.
	verifyDB, err := sql.Open("duckdb", ":memory:")
	require.NoError(t, err)
	defer verifyDB.Close()

	rows2, err := verifyDB.QueryContext(ctx,
		"SELECT symbol, rank FROM read_parquet(?) ORDER BY rank", out)
	require.NoError(t, err)
	defer rows2.Close()

	var symbols []string
	var ranks []int
	for rows2.Next() {
		var sym string
		var rank int
		require.NoError(t, rows2.Scan(&sym, &rank))
		symbols = append(symbols, sym)
		ranks = append(ranks, rank)
	}
	require.NoError(t, rows2.Err())

	assert.Equal(t, []string{"ETHUSDT", "BTCUSDT"}, symbols)
	assert.Equal(t, []int{1, 2}, ranks)
}
