// Package batch implements C5: fanning C1 out over a fixed worker pool
// for one date x many symbols, with a per-batch correlation id and a
// ratio-based circuit breaker (spec.md §4.5).
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/klinewatch/internal/probe"
)

// ErrCircuitTripped is returned by ProbeBatch when the failure-ratio
// breaker trips. Results already collected are still returned alongside it.
var ErrCircuitTripped = errors.New("batch circuit breaker tripped: failure ratio exceeded threshold")

// Config tunes the worker pool and the circuit breaker rule.
type Config struct {
	Workers     int     // W, the fixed pool size (default 150 per spec.md §4.5)
	MinSample   int     // minimum completed probes before the ratio rule applies (20)
	FailRatio   float64 // failure ratio above which the breaker trips (0.05)
}

// Prober fans probe.Prober.Probe out over a worker pool.
type Prober struct {
	client *probe.Prober
	cfg    Config
}

// New constructs a Prober over the given underlying C1 client.
func New(client *probe.Prober, cfg Config) *Prober {
	return &Prober{client: client, cfg: cfg}
}

// job carries one symbol to a worker; ordering is never promised in the
// result map (spec.md §4.5).
type job struct {
	symbol string
}

// ProbeBatch fans out probe(symbol, date) over cfg.Workers workers. It
// always returns whatever partial map[symbol]probe.Result it has
// collected; a non-nil error indicates the circuit breaker tripped (the
// batch is then a hard error for the containing date, per spec.md §7).
func (p *Prober) ProbeBatch(ctx context.Context, symbols []string, dateISO string, batchID string) (map[string]probe.Result, error) {
	if batchID == "" {
		batchID = uuid.New().String()
	}
	logger := log.With().Str("batch_id", batchID).Str("date", dateISO).Logger()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "batch-" + batchID,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if int(counts.Requests) < p.cfg.MinSample {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio > p.cfg.FailRatio
		},
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan job)
	results := make(map[string]probe.Result, len(symbols))
	var mu sync.Mutex
	var tripped bool

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(symbols) {
		workers = len(symbols)
	}

	var wg sync.WaitGroup
	if workers > 0 {
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				for j := range jobs {
					res, err := breaker.Execute(func() (interface{}, error) {
						return p.client.Probe(ctx, j.symbol, dateISO)
					})
					if err != nil {
						if errors.Is(err, gobreaker.ErrOpenState) {
							mu.Lock()
							tripped = true
							mu.Unlock()
							cancel()
							continue
						}
						logger.Error().Err(err).Str("symbol", j.symbol).Msg("probe failed")
						continue
					}
					mu.Lock()
					results[j.symbol] = res.(probe.Result)
					mu.Unlock()
				}
			}()
		}
	}

feed:
	for _, s := range symbols {
		select {
		case jobs <- job{symbol: s}:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	// The breaker can open on the last in-flight probes, with no later
	// request left to observe ErrOpenState.
	if breaker.State() == gobreaker.StateOpen {
		tripped = true
	}
	if tripped {
		logger.Error().Int("completed", len(results)).Int("total", len(symbols)).Msg("circuit breaker tripped, committing partial batch")
		return results, fmt.Errorf("%w (batch_id=%s)", ErrCircuitTripped, batchID)
	}
	return results, nil
}
