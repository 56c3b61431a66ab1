package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/klinewatch/internal/venue"
)

func TestProbe_Available(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Length", "57000")
		w.Header().Set("Last-Modified", "Sun, 02 Jun 2024 00:00:00 GMT")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(srv.Client(), srv.URL, venue.Interval1m, 10*time.Second)
	res, err := p.Probe(context.Background(), "BTCUSDT", "2024-06-01")
	require.NoError(t, err)
	assert.True(t, res.Available())
	require.NotNil(t, res.SizeBytes)
	assert.Equal(t, uint64(57000), *res.SizeBytes)
	require.NotNil(t, res.LastModified)
}

func TestProbe_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := New(srv.Client(), srv.URL, venue.Interval1m, 10*time.Second)
	res, err := p.Probe(context.Background(), "ETHUSDT", "2024-05-31")
	require.NoError(t, err)
	assert.False(t, res.Available())
	assert.Nil(t, res.SizeBytes)
}

func TestProbe_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(srv.Client(), srv.URL, venue.Interval1m, 10*time.Second)
	_, err := p.Probe(context.Background(), "BTCUSDT", "2024-06-01")
	require.Error(t, err)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 500, httpErr.Status)
}

func TestProbe_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(srv.Client(), srv.URL, venue.Interval1m, 5*time.Millisecond)
	_, err := p.Probe(context.Background(), "BTCUSDT", "2024-06-01")
	require.Error(t, err)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}
