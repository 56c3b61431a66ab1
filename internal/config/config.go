// Package config loads pipeline configuration from the environment, with
// an optional YAML overlay for the knobs that don't belong in env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in spec.md §6.
type Config struct {
	// LookbackDays is L, the rolling daily-mode window (default 20).
	LookbackDays int
	// Workers is W, the batch prober's fixed worker pool size (default 150).
	Workers int
	// StorePath is the DuckDB file the pipeline opens exclusively for writes.
	StorePath string
	// ManifestPath is the symbol catalog manifest path.
	ManifestPath string
	// SchemaPath is the canonical schema descriptor JSON path.
	SchemaPath string
	// RankingsPath is where the rankings parquet artifact is written.
	RankingsPath string
	// BucketRoot is the archive bucket's HTTPS root, e.g. https://data.binance.vision.
	BucketRoot string
	// MetadataURL is the live tradable-contracts JSON endpoint.
	MetadataURL string
	// QuoteAsset is the required trailing token on every symbol, e.g. USDT.
	QuoteAsset string
	// LaunchDate is the earliest valid date (UTC, YYYY-MM-DD), pre-flight lower bound.
	LaunchDate string
	// RedisAddr, if non-empty, enables the optional metadata response cache.
	RedisAddr string

	HeadTimeout    time.Duration
	ArchiveTimeout time.Duration

	// BulkListingThresholdDays is the backfill break-even: ranges wider
	// than this use the bulk lister (C2) instead of per-day probing (C5).
	BulkListingThresholdDays int

	// CompletenessMin/Max bound the expected symbols-per-date band (C8).
	CompletenessMin int
	CompletenessMax int

	// CircuitBreakerMinSample/CircuitBreakerFailRatio implement the 5%-over-20 rule.
	CircuitBreakerMinSample  int
	CircuitBreakerFailRatio  float64
	CrossCheckMinMatchRatio  float64
}

// Defaults mirrors spec.md §6/§4.5/§4.8's stated defaults.
func Defaults() Config {
	return Config{
		LookbackDays:             20,
		Workers:                  150,
		StorePath:                "./klinewatch.duckdb",
		ManifestPath:             "./symbols.manifest",
		SchemaPath:               "./schema.json",
		RankingsPath:             "./rankings.parquet",
		BucketRoot:               "https://data.binance.vision",
		MetadataURL:              "https://fapi.binance.com/fapi/v1/exchangeInfo",
		QuoteAsset:               "USDT",
		LaunchDate:               "2019-09-25",
		HeadTimeout:              10 * time.Second,
		ArchiveTimeout:           60 * time.Second,
		BulkListingThresholdDays: 13,
		CompletenessMin:          100,
		CompletenessMax:          700,
		CircuitBreakerMinSample:  20,
		CircuitBreakerFailRatio:  0.05,
		CrossCheckMinMatchRatio:  0.95,
	}
}

// overlay is the subset of Config recognized in the optional YAML file.
type overlay struct {
	BulkListingThresholdDays *int     `yaml:"bulk_listing_threshold_days"`
	CompletenessMin          *int     `yaml:"completeness_min"`
	CompletenessMax          *int     `yaml:"completeness_max"`
	CircuitBreakerMinSample  *int     `yaml:"circuit_breaker_min_sample"`
	CircuitBreakerFailRatio  *float64 `yaml:"circuit_breaker_fail_ratio"`
	CrossCheckMinMatchRatio  *float64 `yaml:"cross_check_min_match_ratio"`
}

// Load builds a Config from defaults, then environment variables, then an
// optional YAML overlay file if overlayPath is non-empty and exists.
func Load(overlayPath string) (Config, error) {
	c := Defaults()

	if v := os.Getenv("KLINEWATCH_LOOKBACK_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("KLINEWATCH_LOOKBACK_DAYS: %w", err)
		}
		c.LookbackDays = n
	}
	if v := os.Getenv("KLINEWATCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("KLINEWATCH_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("KLINEWATCH_STORE_PATH"); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv("KLINEWATCH_MANIFEST_PATH"); v != "" {
		c.ManifestPath = v
	}
	if v := os.Getenv("KLINEWATCH_SCHEMA_PATH"); v != "" {
		c.SchemaPath = v
	}
	if v := os.Getenv("KLINEWATCH_RANKINGS_PATH"); v != "" {
		c.RankingsPath = v
	}
	if v := os.Getenv("KLINEWATCH_BUCKET_ROOT"); v != "" {
		c.BucketRoot = v
	}
	if v := os.Getenv("KLINEWATCH_METADATA_URL"); v != "" {
		c.MetadataURL = v
	}
	if v := os.Getenv("KLINEWATCH_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}

	if overlayPath == "" {
		return c, nil
	}
	b, err := os.ReadFile(overlayPath)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, fmt.Errorf("reading config overlay: %w", err)
	}
	var o overlay
	if err := yaml.Unmarshal(b, &o); err != nil {
		return c, fmt.Errorf("parsing config overlay: %w", err)
	}
	if o.BulkListingThresholdDays != nil {
		c.BulkListingThresholdDays = *o.BulkListingThresholdDays
	}
	if o.CompletenessMin != nil {
		c.CompletenessMin = *o.CompletenessMin
	}
	if o.CompletenessMax != nil {
		c.CompletenessMax = *o.CompletenessMax
	}
	if o.CircuitBreakerMinSample != nil {
		c.CircuitBreakerMinSample = *o.CircuitBreakerMinSample
	}
	if o.CircuitBreakerFailRatio != nil {
		c.CircuitBreakerFailRatio = *o.CircuitBreakerFailRatio
	}
	if o.CrossCheckMinMatchRatio != nil {
		c.CrossCheckMinMatchRatio = *o.CrossCheckMinMatchRatio
	}
	return c, nil
}
