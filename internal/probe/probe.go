// Package probe implements C1: a single HEAD probe for one (symbol, date)
// archive, with strict error propagation and no retries (spec.md §4.1).
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sawpanic/klinewatch/internal/venue"
)

// Kind distinguishes the two non-error outcomes of a probe. A Result of
// KindNotFound always has nil SizeBytes and LastModified; a KindAvailable
// Result has them set only when the response carried the matching headers.
type Kind int

const (
	KindAvailable Kind = iota
	KindNotFound
)

// Result is the outcome of a successful probe (never populated on error).
type Result struct {
	Kind         Kind
	Symbol       string
	Date         string // YYYY-MM-DD
	URL          string
	StatusCode   int
	SizeBytes    *uint64
	LastModified *string
	ProbedAt     time.Time
}

// Available reports whether the probe saw the archive (HTTP 200). It does
// not check SizeBytes; store.Row.IsAvailable applies the full I2 rule
// (status 200 and a recorded size).
func (r Result) Available() bool {
	return r.Kind == KindAvailable
}

// NetworkError wraps a transport-level failure (DNS, connection refused, ...).
type NetworkError struct {
	Symbol, Date, URL string
	Cause             error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("probe %s %s: network error: %v", e.Symbol, e.Date, e.Cause)
}
func (e *NetworkError) Unwrap() error { return e.Cause }

// HTTPError wraps any unexpected (non-200, non-404) status code.
type HTTPError struct {
	Symbol, Date, URL string
	Status            int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("probe %s %s: unexpected status %d at %s", e.Symbol, e.Date, e.Status, e.URL)
}

// TimeoutError wraps a context deadline exceeded while probing.
type TimeoutError struct {
	Symbol, Date, URL string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("probe %s %s: timed out after deadline at %s", e.Symbol, e.Date, e.URL)
}

// Prober issues HEAD probes against a shared HTTP client.
type Prober struct {
	client     *http.Client
	bucketRoot string
	interval   venue.Interval
	timeout    time.Duration
}

// New constructs a Prober. client is typically internal/httpclient.Pool.Client().
func New(client *http.Client, bucketRoot string, interval venue.Interval, timeout time.Duration) *Prober {
	return &Prober{client: client, bucketRoot: bucketRoot, interval: interval, timeout: timeout}
}

// Probe issues one deterministic HEAD for (symbol, date) with a bounded
// total deadline. 404 is not an error — it is KindNotFound. Any other
// status or transport failure raises a typed error. No retries here:
// retry is a scheduling-layer property per spec.md §7.
func (p *Prober) Probe(ctx context.Context, symbol, dateISO string) (Result, error) {
	url := venue.KlineURL(p.bucketRoot, symbol, p.interval, dateISO)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return Result{}, &NetworkError{Symbol: symbol, Date: dateISO, URL: url, Cause: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, &TimeoutError{Symbol: symbol, Date: dateISO, URL: url}
		}
		return Result{}, &NetworkError{Symbol: symbol, Date: dateISO, URL: url, Cause: err}
	}
	defer resp.Body.Close()

	now := time.Now().UTC()

	switch resp.StatusCode {
	case http.StatusOK:
		var size *uint64
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if n, err := strconv.ParseUint(cl, 10, 64); err == nil {
				size = &n
			}
		}
		var lastMod *string
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			lastMod = &lm
		}
		return Result{
			Kind: KindAvailable, Symbol: symbol, Date: dateISO, URL: url,
			StatusCode: resp.StatusCode, SizeBytes: size, LastModified: lastMod, ProbedAt: now,
		}, nil
	case http.StatusNotFound:
		return Result{
			Kind: KindNotFound, Symbol: symbol, Date: dateISO, URL: url,
			StatusCode: resp.StatusCode, ProbedAt: now,
		}, nil
	default:
		return Result{}, &HTTPError{Symbol: symbol, Date: dateISO, URL: url, Status: resp.StatusCode}
	}
}
