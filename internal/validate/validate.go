// Package validate implements C8: continuity, completeness, and
// cross-check findings over the store's daily_symbol_counts. None of
// these checks ever fail the run; they accumulate Finding values that
// ride along in the run's publication metadata (spec.md §4.8).
package validate

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Kind categorizes one validator finding.
type Kind string

const (
	KindContinuityGap  Kind = "continuity_gap"
	KindCompletenessOutOfBand Kind = "completeness_out_of_band"
	KindCrossCheckMismatch Kind = "cross_check_mismatch"
	KindCrossCheckSkipped  Kind = "cross_check_skipped"
)

// Finding is one non-fatal validator observation.
type Finding struct {
	Kind    Kind
	Date    string
	Detail  string
}

func (f Finding) String() string {
	if f.Date != "" {
		return fmt.Sprintf("[%s] %s: %s", f.Kind, f.Date, f.Detail)
	}
	return fmt.Sprintf("[%s] %s", f.Kind, f.Detail)
}

// CountsSource is the subset of the store needed for continuity and
// completeness checks.
type CountsSource interface {
	Counts(ctx context.Context) ([]DailyCount, error)
}

// DailyCount mirrors store.DailyCount without importing the store
// package, keeping validate independently testable against fakes.
type DailyCount struct {
	Date           string
	AvailableCount int64
}

// MetadataSource is the subset of the catalog metadata client needed for
// the cross-check: the live TRADING symbol set for the most recent date.
type MetadataSource interface {
	LiveSymbols(ctx context.Context) ([]string, error)
}

// Config tunes the completeness band and the cross-check match ratio.
type Config struct {
	CompletenessMin int
	CompletenessMax int
	CrossCheckMinMatchRatio float64
}

// Validator runs the three checks from spec.md §4.8.
type Validator struct {
	counts   CountsSource
	metadata MetadataSource
	cfg      Config
}

// New constructs a Validator. metadata may be nil, in which case the
// cross-check is always reported as skipped.
func New(counts CountsSource, metadata MetadataSource, cfg Config) *Validator {
	return &Validator{counts: counts, metadata: metadata, cfg: cfg}
}

// Run executes continuity, completeness, and cross-check against
// availableSymbolsForLatestDate (the store's own view of the latest
// date's available=true symbols, supplied by the caller since it
// requires a store query beyond the aggregate Counts view). It never
// returns an error: all outcomes are Findings.
func (v *Validator) Run(ctx context.Context, availableSymbolsForLatestDate []string) []Finding {
	var findings []Finding

	counts, err := v.counts.Counts(ctx)
	if err != nil {
		findings = append(findings, Finding{
			Kind:   KindCrossCheckSkipped,
			Detail: fmt.Sprintf("could not load daily counts: %v", err),
		})
		return findings
	}

	findings = append(findings, v.continuity(counts)...)
	findings = append(findings, v.completeness(counts)...)
	findings = append(findings, v.crossCheck(ctx, counts, availableSymbolsForLatestDate)...)
	return findings
}

// continuity flags any missing day between the min and max present date.
func (v *Validator) continuity(counts []DailyCount) []Finding {
	if len(counts) < 2 {
		return nil
	}
	dates := make([]string, len(counts))
	for i, c := range counts {
		dates[i] = c.Date
	}
	sort.Strings(dates)

	present := make(map[string]bool, len(dates))
	for _, d := range dates {
		present[d] = true
	}

	layout := "2006-01-02"
	min, err := time.Parse(layout, dates[0])
	if err != nil {
		return nil
	}
	max, err := time.Parse(layout, dates[len(dates)-1])
	if err != nil {
		return nil
	}

	var findings []Finding
	for d := min; !d.After(max); d = d.AddDate(0, 0, 1) {
		iso := d.Format(layout)
		if !present[iso] {
			findings = append(findings, Finding{
				Kind:   KindContinuityGap,
				Date:   iso,
				Detail: "no daily_symbol_counts row for this date",
			})
		}
	}
	return findings
}

// completeness flags any date whose available_count falls outside the
// configured band.
func (v *Validator) completeness(counts []DailyCount) []Finding {
	var findings []Finding
	for _, c := range counts {
		if int(c.AvailableCount) < v.cfg.CompletenessMin || int(c.AvailableCount) > v.cfg.CompletenessMax {
			findings = append(findings, Finding{
				Kind: KindCompletenessOutOfBand,
				Date: c.Date,
				Detail: fmt.Sprintf("available_count=%d outside band [%d, %d]",
					c.AvailableCount, v.cfg.CompletenessMin, v.cfg.CompletenessMax),
			})
		}
	}
	return findings
}

// crossCheck compares the latest date's available=true symbols against
// the live metadata set. A 451 or any metadata failure degrades to a
// Skipped finding rather than propagating an error (spec.md §4.8).
func (v *Validator) crossCheck(ctx context.Context, counts []DailyCount, storeSymbols []string) []Finding {
	if len(counts) == 0 {
		return nil
	}
	latest := counts[0].Date
	for _, c := range counts {
		if c.Date > latest {
			latest = c.Date
		}
	}

	if v.metadata == nil {
		return []Finding{{Kind: KindCrossCheckSkipped, Date: latest, Detail: "no metadata client configured"}}
	}

	live, err := v.metadata.LiveSymbols(ctx)
	if err != nil {
		return []Finding{{Kind: KindCrossCheckSkipped, Date: latest, Detail: fmt.Sprintf("live metadata unreachable: %v", err)}}
	}

	liveSet := make(map[string]bool, len(live))
	for _, s := range live {
		liveSet[s] = true
	}

	matched := 0
	for _, s := range storeSymbols {
		if liveSet[s] {
			matched++
		}
	}

	ratio := 1.0
	if len(storeSymbols) > 0 {
		ratio = float64(matched) / float64(len(storeSymbols))
	}

	if ratio < v.cfg.CrossCheckMinMatchRatio {
		return []Finding{{
			Kind: KindCrossCheckMismatch,
			Date: latest,
			Detail: fmt.Sprintf("match ratio %.4f below threshold %.4f (%d/%d matched)",
				ratio, v.cfg.CrossCheckMinMatchRatio, matched, len(storeSymbols)),
		}}
	}
	return nil
}
