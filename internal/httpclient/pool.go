// Package httpclient provides the single shared, immutable HTTP client
// value used by every component that talks to the archive bucket or the
// live metadata endpoint (spec.md §4.1, §9: "process-wide HTTP pool → a
// single shared, immutable client value").
package httpclient

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Config tunes the shared transport.
type Config struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	KeepAlive           time.Duration
}

// DefaultConfig mirrors the teacher's production-ready pool defaults.
func DefaultConfig() Config {
	return Config{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 200, // batch prober runs W=150 concurrent HEADs to one host
		IdleConnTimeout:      90 * time.Second,
		DialTimeout:          10 * time.Second,
		TLSHandshakeTimeout:  10 * time.Second,
		KeepAlive:            30 * time.Second,
	}
}

// Pool is the process-wide client. It has no mutable state after
// construction: workers in internal/batch share *http.Client freely.
type Pool struct {
	client *http.Client
}

// New constructs the pool and best-effort pre-warms the bucket host's DNS
// resolution. A pre-warm failure is logged and never aborts construction —
// it is a cold-start optimization, not a correctness property (spec.md §4.1).
func New(cfg Config, bucketHost string) *Pool {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}

	if bucketHost != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
		defer cancel()
		if _, err := net.DefaultResolver.LookupHost(ctx, bucketHost); err != nil {
			log.Warn().Err(err).Str("host", bucketHost).Msg("dns pre-warm failed, continuing")
		}
	}

	return &Pool{client: &http.Client{Transport: transport}}
}

// Client returns the shared *http.Client. Callers set their own
// per-request deadline via context; the pool applies no client-wide
// timeout so that probe (10s) and archive (60s) deadlines can differ.
func (p *Pool) Client() *http.Client {
	return p.client
}
