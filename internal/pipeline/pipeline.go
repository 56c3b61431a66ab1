// Package pipeline implements C10: the single-shot state machine driving
// discovery, gap backfill, rolling probes, kline enrichment, validation,
// and materialization over one invocation (spec.md §4.10).
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/klinewatch/internal/batch"
	"github.com/sawpanic/klinewatch/internal/catalog"
	"github.com/sawpanic/klinewatch/internal/gap"
	"github.com/sawpanic/klinewatch/internal/klines"
	"github.com/sawpanic/klinewatch/internal/lister"
	"github.com/sawpanic/klinewatch/internal/metrics"
	"github.com/sawpanic/klinewatch/internal/probe"
	"github.com/sawpanic/klinewatch/internal/rankings"
	"github.com/sawpanic/klinewatch/internal/store"
	"github.com/sawpanic/klinewatch/internal/validate"
	"github.com/sawpanic/klinewatch/internal/venue"
)

// Mode selects the top-level invocation shape.
type Mode string

const (
	ModeDaily    Mode = "daily"
	ModeBackfill Mode = "backfill"
)

// State names the pipeline's position for the final run report.
type State string

const (
	StateInit         State = "INIT"
	StateDiscover      State = "DISCOVER"
	StateBackfillNew   State = "BACKFILL_NEW"
	StateRolling       State = "ROLLING"
	StateKlines        State = "KLINES"
	StateValidate      State = "VALIDATE"
	StateMaterialize   State = "MATERIALIZE"
	StateDone          State = "DONE"
	StateFail          State = "FAIL"
)

// Input is one invocation's parameters (spec.md §6 CLI surface).
type Input struct {
	Mode    Mode
	Start   string // backfill only, YYYY-MM-DD
	End     string // backfill only, YYYY-MM-DD
	Symbols []string // optional subset; empty means the full catalog
}

// Result reports where the run ended up and any accumulated validator
// findings. Findings never influence Err.
type Result struct {
	FinalState State
	Findings   []validate.Finding
	Err        error
}

// Driver wires together every component C1-C9/C11 into the state machine.
type Driver struct {
	Catalog   *catalog.Catalog
	Metadata  *catalog.MetadataClient
	Batch     *batch.Prober
	Klines    *klines.Reader
	Lister    *lister.Lister
	Store     *store.Store
	Metrics   *metrics.Registry

	// SchemaDescriptor, when its Table is non-empty, is checked against the
	// live database at the start of every Run (C7, spec.md §4.7).
	SchemaDescriptor store.SchemaDescriptor

	BucketRoot               string
	QuoteAsset               string
	LaunchDate               string
	LookbackDays             int
	BulkListingThresholdDays int
	CompletenessMin          int
	CompletenessMax          int
	CrossCheckMinMatchRatio  float64
	RankingsPath             string
}

// Run executes the full state machine for one invocation. now is injected
// so daily-mode's "today" is deterministic in tests.
func (d *Driver) Run(ctx context.Context, in Input, now time.Time) Result {
	runID := uuid.New().String()
	logger := log.With().Str("run_id", runID).Str("mode", string(in.Mode)).Logger()
	logger.Info().Msg("pipeline starting")

	if err := d.checkSchema(ctx); err != nil {
		logger.Error().Err(err).Msg("schema drift detected, aborting before any mutation")
		return Result{FinalState: StateFail, Err: fmt.Errorf("schema check: %w", err)}
	}

	if err := d.preflight(in, now); err != nil {
		logger.Error().Err(err).Msg("pre-flight check failed")
		return Result{FinalState: StateFail, Err: fmt.Errorf("pre-flight: %w", err)}
	}

	// DISCOVER
	discovered, err := d.discover(ctx, logger)
	if err != nil {
		return Result{FinalState: StateFail, Err: fmt.Errorf("discover: %w", err)}
	}

	symbols := discovered
	if len(in.Symbols) > 0 {
		symbols = in.Symbols
	}

	// GAP?
	knownInStore, err := d.Store.SymbolsEverSeen(ctx)
	if err != nil {
		return Result{FinalState: StateFail, Err: fmt.Errorf("loading known symbols: %w", err)}
	}
	newSymbols := gap.Detect(discovered, knownInStore)
	if len(newSymbols) > 0 {
		logger.Info().Int("count", len(newSymbols)).Msg("gap detected, backfilling new symbols")
		if err := d.backfillNew(ctx, logger, newSymbols, now); err != nil {
			return Result{FinalState: StateFail, Err: fmt.Errorf("backfill_new: %w", err)}
		}
	}

	// ROLLING (+ KLINES, fused per date)
	dates, useBulk, err := d.rollingDates(in, now)
	if err != nil {
		return Result{FinalState: StateFail, Err: fmt.Errorf("computing date range: %w", err)}
	}

	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return Result{FinalState: StateFail, Err: fmt.Errorf("cancelled before date %s: %w", date, err)}
		}
		var rowsForDate []store.Row
		var probeErr error
		if useBulk {
			rowsForDate, probeErr = d.bulkRowsForDate(ctx, symbols, date)
		} else {
			rowsForDate, probeErr = d.probedRowsForDate(ctx, logger, symbols, date, runID)
		}

		// Whatever rows were gathered before a hard error still commit as
		// one atomic batch (spec.md §4.5, §7 item 3): a circuit trip or a
		// klines parse error only halts the run, it never discards rows
		// already probed for the date in front of it.
		if len(rowsForDate) > 0 {
			if err := d.Store.UpsertBatch(ctx, rowsForDate); err != nil {
				return Result{FinalState: StateFail, Err: fmt.Errorf("committing date %s: %w", date, err)}
			}
			if d.Metrics != nil {
				d.Metrics.RowsUpserted.Add(float64(len(rowsForDate)))
			}
		}

		if probeErr != nil {
			logger.Error().Err(probeErr).Str("date", date).Msg("hard error for date, stopping run")
			return Result{FinalState: StateFail, Err: fmt.Errorf("date %s: %w", date, probeErr)}
		}
	}

	// VALIDATE
	findings, err := d.validate(ctx, dates)
	if err != nil {
		return Result{FinalState: StateFail, Err: fmt.Errorf("validate: %w", err)}
	}
	if d.Metrics != nil {
		for _, f := range findings {
			d.Metrics.ValidatorFindings.WithLabelValues(string(f.Kind)).Inc()
		}
	}

	// MATERIALIZE
	if d.RankingsPath != "" {
		timer := metrics.StartTimer()
		if err := rankings.Materialize(ctx, d.Store.DB(), d.RankingsPath); err != nil {
			return Result{FinalState: StateFail, Findings: findings, Err: fmt.Errorf("materialize: %w", err)}
		}
		if d.Metrics != nil {
			d.Metrics.MaterializeDuration.Observe(timer.ObserveSeconds())
		}
	}

	logger.Info().Int("findings", len(findings)).Msg("pipeline reached DONE")
	return Result{FinalState: StateDone, Findings: findings}
}

// lookbackDays returns the configured daily-mode window, defaulting to 20
// (spec.md §6) when unset.
func (d *Driver) lookbackDays() int {
	if d.LookbackDays > 0 {
		return d.LookbackDays
	}
	return 20
}

// checkSchema runs C7 before any mutation. A zero-value SchemaDescriptor
// (Table unset) means the caller didn't wire one in and the check is
// skipped rather than comparing against an empty wanted column set.
func (d *Driver) checkSchema(ctx context.Context) error {
	if d.SchemaDescriptor.Table == "" {
		return nil
	}
	return d.Store.CheckSchema(ctx, d.SchemaDescriptor)
}

// preflight rejects malformed invocations before DISCOVER runs, including
// any date before the launch date (spec.md §8: "a date equal to the
// launch date is valid; earlier dates are rejected pre-flight").
func (d *Driver) preflight(in Input, now time.Time) error {
	switch in.Mode {
	case ModeDaily:
		if in.Start != "" || in.End != "" {
			return fmt.Errorf("daily mode does not accept an explicit date range")
		}
		if d.LaunchDate != "" {
			windowStart := now.AddDate(0, 0, -d.lookbackDays()).Format("2006-01-02")
			if windowStart < d.LaunchDate {
				return fmt.Errorf("rolling window start %s is before launch date %s", windowStart, d.LaunchDate)
			}
		}
	case ModeBackfill:
		if in.Start == "" || in.End == "" {
			return fmt.Errorf("backfill mode requires start and end dates")
		}
		if in.Start > in.End {
			return fmt.Errorf("start %s is after end %s", in.Start, in.End)
		}
		if d.LaunchDate != "" && in.Start < d.LaunchDate {
			return fmt.Errorf("backfill start %s is before launch date %s", in.Start, d.LaunchDate)
		}
	default:
		return fmt.Errorf("unknown mode %q", in.Mode)
	}
	return nil
}

func (d *Driver) discover(ctx context.Context, logger zerolog.Logger) ([]string, error) {
	live, err := d.Metadata.LiveSymbols(ctx)
	if err != nil {
		// Metadata discovery failure is not pre-flight fatal: the catalog
		// simply falls back to whatever it already knows from disk.
		logger.Warn().Err(err).Msg("live metadata discovery failed, using existing catalog only")
		return d.Catalog.Symbols(), nil
	}
	added, err := d.Catalog.Merge(live, d.QuoteAsset)
	if err != nil {
		return nil, fmt.Errorf("merging catalog: %w", err)
	}
	if len(added) > 0 {
		logger.Info().Strs("added", added).Msg("catalog grew")
	}
	return d.Catalog.Symbols(), nil
}

// backfillNew bulk-backfills brand-new symbols over their full historical
// range via C2, rather than point-probing day by day.
func (d *Driver) backfillNew(ctx context.Context, logger zerolog.Logger, symbols []string, now time.Time) error {
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
	for _, sym := range symbols {
		entries, err := d.Lister.ListPrefix(ctx, sym)
		if err != nil {
			return fmt.Errorf("listing %s: %w", sym, err)
		}
		rowsByDate := make(map[string][]store.Row)
		for _, e := range entries {
			if e.Date > yesterday {
				continue
			}
			row, err := d.rowFromListing(ctx, sym, e)
			if err != nil {
				return err
			}
			rowsByDate[e.Date] = append(rowsByDate[e.Date], row)
		}
		for date, rows := range rowsByDate {
			if err := d.Store.UpsertBatch(ctx, rows); err != nil {
				return fmt.Errorf("committing backfill %s %s: %w", sym, date, err)
			}
		}
		logger.Info().Str("symbol", sym).Int("archives", len(entries)).Msg("backfilled new symbol")
	}
	return nil
}

// rollingDates computes the date list and whether bulk listing should be
// used in place of per-day point probing (spec.md §4.10, §9 break-even).
func (d *Driver) rollingDates(in Input, now time.Time) (dates []string, useBulk bool, err error) {
	layout := "2006-01-02"
	switch in.Mode {
	case ModeDaily:
		start := now.AddDate(0, 0, -d.lookbackDays())
		end := now.AddDate(0, 0, -1)
		for t := start; !t.After(end); t = t.AddDate(0, 0, 1) {
			dates = append(dates, t.Format(layout))
		}
		return dates, false, nil
	case ModeBackfill:
		start, err := time.Parse(layout, in.Start)
		if err != nil {
			return nil, false, fmt.Errorf("parsing start date: %w", err)
		}
		end, err := time.Parse(layout, in.End)
		if err != nil {
			return nil, false, fmt.Errorf("parsing end date: %w", err)
		}
		for t := start; !t.After(end); t = t.AddDate(0, 0, 1) {
			dates = append(dates, t.Format(layout))
		}
		return dates, len(dates) > d.BulkListingThresholdDays, nil
	default:
		return nil, false, fmt.Errorf("unknown mode %q", in.Mode)
	}
}

// probedRowsForDate runs C5 over the full symbol set for one date, then
// enriches every available result with C3's aggregates (KLINES), and
// returns the combined rows ready for one atomic commit.
func (d *Driver) probedRowsForDate(ctx context.Context, logger zerolog.Logger, symbols []string, date, runID string) ([]store.Row, error) {
	timer := metrics.StartTimer()
	results, err := d.Batch.ProbeBatch(ctx, symbols, date, runID+"-"+date)
	if d.Metrics != nil {
		d.Metrics.BatchDuration.WithLabelValues("rolling").Observe(timer.ObserveSeconds())
	}
	// Partial results are committed even on a circuit trip (spec.md §7);
	// the caller still treats a non-nil err as a hard stop for the run.
	rows, rowErr := d.rowsFromProbeResults(ctx, symbols, results, date)
	if rowErr != nil {
		return rows, rowErr
	}
	if err != nil {
		if d.Metrics != nil {
			d.Metrics.CircuitTrips.Inc()
		}
		return rows, err
	}
	return rows, nil
}

func (d *Driver) rowsFromProbeResults(ctx context.Context, symbols []string, results map[string]probe.Result, date string) ([]store.Row, error) {
	rows := make([]store.Row, 0, len(results))
	for _, sym := range symbols {
		res, ok := results[sym]
		if !ok {
			continue // no result: the open circuit rejected it, or its probe failed (logged by batch)
		}
		if d.Metrics != nil {
			outcome := "not_found"
			if res.Available() {
				outcome = "available"
			}
			d.Metrics.ProbeOutcomes.WithLabelValues(outcome).Inc()
		}

		row := store.Row{
			Date: date, Symbol: sym, StatusCode: res.StatusCode,
			FileSizeBytes: res.SizeBytes, LastModified: res.LastModified,
			URL: res.URL, ProbeTimestamp: res.ProbedAt,
		}

		if res.Available() {
			agg, err := d.Klines.Fetch(ctx, sym, date)
			if err != nil {
				// Parse error is fatal for the run by default (spec.md §7 item 4).
				return rows, fmt.Errorf("klines fetch %s %s: %w", sym, date, err)
			}
			if agg != nil {
				row.QuoteVolumeUSDT = store.F64(agg.QuoteVolumeUSDT)
				row.TradeCount = store.I64(agg.TradeCount)
				row.VolumeBase = store.F64(agg.VolumeBase)
				row.TakerBuyVolumeBase = store.F64(agg.TakerBuyVolumeBase)
				row.TakerBuyQuoteVolumeUSDT = store.F64(agg.TakerBuyQuoteVolumeUSDT)
				row.OpenPrice = store.F64(agg.Open)
				row.HighPrice = store.F64(agg.High)
				row.LowPrice = store.F64(agg.Low)
				row.ClosePrice = store.F64(agg.Close)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// bulkRowsForDate builds rows for one date entirely from C2 listings
// (used for wide backfill ranges), substituting for per-day point probes.
func (d *Driver) bulkRowsForDate(ctx context.Context, symbols []string, date string) ([]store.Row, error) {
	rows := make([]store.Row, 0, len(symbols))
	for _, sym := range symbols {
		entries, err := d.Lister.ListPrefix(ctx, sym)
		if err != nil {
			return rows, fmt.Errorf("listing %s: %w", sym, err)
		}
		var found *lister.Entry
		for i := range entries {
			if entries[i].Date == date {
				found = &entries[i]
				break
			}
		}
		if found == nil {
			rows = append(rows, store.Row{
				Date: date, Symbol: sym, StatusCode: 404,
				URL: venue.KlineURL(d.BucketRoot, sym, venue.Interval1m, date), ProbeTimestamp: time.Now().UTC(),
			})
			continue
		}
		row, err := d.rowFromListing(ctx, sym, *found)
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (d *Driver) rowFromListing(ctx context.Context, symbol string, e lister.Entry) (store.Row, error) {
	row := store.Row{
		Date: e.Date, Symbol: symbol, StatusCode: 200,
		FileSizeBytes: store.U64(e.SizeBytes), LastModified: store.Str(e.LastModified),
		URL: venue.KlineURL(d.BucketRoot, symbol, venue.Interval1m, e.Date), ProbeTimestamp: time.Now().UTC(),
	}
	agg, err := d.Klines.Fetch(ctx, symbol, e.Date)
	if err != nil {
		return row, fmt.Errorf("klines fetch %s %s: %w", symbol, e.Date, err)
	}
	if agg != nil {
		row.QuoteVolumeUSDT = store.F64(agg.QuoteVolumeUSDT)
		row.TradeCount = store.I64(agg.TradeCount)
		row.VolumeBase = store.F64(agg.VolumeBase)
		row.TakerBuyVolumeBase = store.F64(agg.TakerBuyVolumeBase)
		row.TakerBuyQuoteVolumeUSDT = store.F64(agg.TakerBuyQuoteVolumeUSDT)
		row.OpenPrice = store.F64(agg.Open)
		row.HighPrice = store.F64(agg.High)
		row.LowPrice = store.F64(agg.Low)
		row.ClosePrice = store.F64(agg.Close)
	}
	return row, nil
}

// countsAdapter satisfies validate.CountsSource over *store.Store without
// validate importing store directly.
type countsAdapter struct{ s *store.Store }

func (a countsAdapter) Counts(ctx context.Context) ([]validate.DailyCount, error) {
	counts, err := a.s.Counts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]validate.DailyCount, len(counts))
	for i, c := range counts {
		out[i] = validate.DailyCount{Date: c.Date, AvailableCount: c.AvailableCount}
	}
	return out, nil
}

func (d *Driver) validate(ctx context.Context, dates []string) ([]validate.Finding, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	latest := dates[0]
	for _, dt := range dates {
		if dt > latest {
			latest = dt
		}
	}
	storeSymbols, err := d.Store.AvailableSymbolsForDate(ctx, latest)
	if err != nil {
		return nil, fmt.Errorf("loading available symbols for %s: %w", latest, err)
	}

	v := validate.New(countsAdapter{s: d.Store}, d.Metadata, validate.Config{
		CompletenessMin:         d.CompletenessMin,
		CompletenessMax:         d.CompletenessMax,
		CrossCheckMinMatchRatio: d.CrossCheckMinMatchRatio,
	})
	return v.Run(ctx, storeSymbols), nil
}
