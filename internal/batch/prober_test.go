package batch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/klinewatch/internal/probe"
	"github.com/sawpanic/klinewatch/internal/venue"
)

func newTestProber(t *testing.T, handler http.HandlerFunc, workers int) *Prober {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := probe.New(srv.Client(), srv.URL, venue.Interval1m, 2*time.Second)
	return New(client, Config{Workers: workers, MinSample: 20, FailRatio: 0.05})
}

func TestProbeBatch_AllSucceed(t *testing.T) {
	p := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, 10)

	symbols := make([]string, 10)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%dUSDT", i)
	}

	results, err := p.ProbeBatch(context.Background(), symbols, "2024-06-01", "")
	require.NoError(t, err)
	assert.Len(t, results, 10)
	for _, r := range results {
		assert.True(t, r.Available())
	}
}

func TestProbeBatch_SingleNotFoundDoesNotTrip(t *testing.T) {
	var n int32
	p := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&n, 1) == 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}, 1) // serialize to make the "first call is the 404" deterministic

	symbols := make([]string, 30)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%dUSDT", i)
	}

	results, err := p.ProbeBatch(context.Background(), symbols, "2024-06-01", "")
	require.NoError(t, err)
	assert.Len(t, results, 30)
}

func TestProbeBatch_CircuitTripsOnHighFailureRatio(t *testing.T) {
	p := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, 1) // serialize so the breaker's running ratio is deterministic

	symbols := make([]string, 30)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%dUSDT", i)
	}

	results, err := p.ProbeBatch(context.Background(), symbols, "2024-06-01", "batch-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitTripped)
	// Partial results are committed: strictly fewer than the full symbol set,
	// since the breaker opens after the 20th failing probe.
	assert.Less(t, len(results), 30)
}
