package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/klinewatch/internal/cache"
)

func TestValid(t *testing.T) {
	assert.True(t, Valid("BTCUSDT", "USDT"))
	assert.True(t, Valid("ETHUSDT", "USDT"))
	assert.False(t, Valid("btcusdt", "USDT"))
	assert.False(t, Valid("US", "USDT"))
	assert.False(t, Valid("BTC€USDT", "USDT"))
	assert.False(t, Valid("USDT", "USDT")) // no room for a base token
}

func TestCatalog_LoadEmptyThenMerge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.manifest")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, c.Symbols())

	added, err := c.Merge([]string{"BTCUSDT"}, "USDT")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, added)

	c2, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, c2.Symbols())
}

func TestCatalog_MergeIsAdditive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.manifest")

	c, err := Load(path)
	require.NoError(t, err)
	_, err = c.Merge([]string{"BTCUSDT", "ETHUSDT"}, "USDT")
	require.NoError(t, err)

	// ETHUSDT disappears from the live set; it must remain in the catalog.
	added, err := c.Merge([]string{"BTCUSDT", "NEWUSDT"}, "USDT")
	require.NoError(t, err)
	assert.Equal(t, []string{"NEWUSDT"}, added)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "NEWUSDT"}, c.Symbols())
}

func TestCatalog_MergeEmptyDiffDoesNotRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.manifest")
	c, err := Load(path)
	require.NoError(t, err)

	added, err := c.Merge(nil, "USDT")
	require.NoError(t, err)
	assert.Nil(t, added)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "manifest must not be written for an empty diff")
}

func TestMetadataClient_LiveSymbolsCached(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","status":"TRADING"},{"symbol":"ETHUSDT","status":"TRADING"}]}`))
	}))
	defer srv.Close()

	fake := cache.NewFake()
	mc := NewMetadataClient(srv.Client(), srv.URL, fake, time.Minute)

	syms, err := mc.LiveSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, syms)
	assert.Equal(t, 1, calls)

	// Second call should be served from cache, not hit the server again.
	syms2, err := mc.LiveSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syms, syms2)
	assert.Equal(t, 1, calls)
}

func TestMetadataClient_Blocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(451)
	}))
	defer srv.Close()

	mc := NewMetadataClient(srv.Client(), srv.URL, nil, time.Minute)
	_, err := mc.LiveSymbols(context.Background())
	require.Error(t, err)
	var blocked *Blocked
	require.ErrorAs(t, err, &blocked)
}
