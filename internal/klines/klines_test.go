package klines

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, name, row string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create(name)
	require.NoError(t, err)
	_, err = f.Write([]byte(row))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const validRow = "1717200000000,60000.1,61000.2,59500.3,60500.4,1234.5,1717286399999,74000000.6,4200,600.7,36000000.8,0\n"

func TestFetch_Available(t *testing.T) {
	body := buildZip(t, "BTCUSDT-1m-2024-06-01.csv", validRow)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	r := New(srv.Client(), srv.URL, 60*time.Second)
	agg, err := r.Fetch(context.Background(), "BTCUSDT", "2024-06-01")
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Equal(t, 60000.1, agg.Open)
	assert.Equal(t, 60500.4, agg.Close)
	assert.Equal(t, int64(4200), agg.TradeCount)
	assert.Equal(t, 74000000.6, agg.QuoteVolumeUSDT)
}

func TestFetch_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := New(srv.Client(), srv.URL, 60*time.Second)
	agg, err := r.Fetch(context.Background(), "ETHUSDT", "2024-05-31")
	require.NoError(t, err)
	assert.Nil(t, agg)
}

func TestFetch_BadArity(t *testing.T) {
	body := buildZip(t, "BTCUSDT-1m-2024-06-01.csv", "1,2,3\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	r := New(srv.Client(), srv.URL, 60*time.Second)
	_, err := r.Fetch(context.Background(), "BTCUSDT", "2024-06-01")
	require.Error(t, err)
}

func TestFetch_UnparseableField(t *testing.T) {
	badRow := "1717200000000,notanumber,61000.2,59500.3,60500.4,1234.5,1717286399999,74000000.6,4200,600.7,36000000.8,0\n"
	body := buildZip(t, "BTCUSDT-1m-2024-06-01.csv", badRow)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	r := New(srv.Client(), srv.URL, 60*time.Second)
	_, err := r.Fetch(context.Background(), "BTCUSDT", "2024-06-01")
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "open", perr.Field)
}
