package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/klinewatch/internal/batch"
	"github.com/sawpanic/klinewatch/internal/cache"
	"github.com/sawpanic/klinewatch/internal/catalog"
	"github.com/sawpanic/klinewatch/internal/config"
	"github.com/sawpanic/klinewatch/internal/httpclient"
	"github.com/sawpanic/klinewatch/internal/klines"
	"github.com/sawpanic/klinewatch/internal/lister"
	"github.com/sawpanic/klinewatch/internal/metrics"
	"github.com/sawpanic/klinewatch/internal/pipeline"
	"github.com/sawpanic/klinewatch/internal/probe"
	"github.com/sawpanic/klinewatch/internal/store"
	"github.com/sawpanic/klinewatch/internal/venue"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	appName = "klinewatch"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var (
		mode        string
		start       string
		end         string
		symbolsFlag string
		configPath  string
	)

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "klinewatch tracks daily futures kline archive availability",
		Version: version,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one pipeline invocation (daily or backfill)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var symbols []string
			if symbolsFlag != "" {
				symbols = strings.Split(symbolsFlag, ",")
			}
			return run(cmd.Context(), mode, start, end, symbols, configPath)
		},
	}

	runCmd.Flags().StringVar(&mode, "mode", "daily", "invocation mode: daily|backfill")
	runCmd.Flags().StringVar(&start, "start", "", "backfill range start date (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&end, "end", "", "backfill range end date (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&symbolsFlag, "symbols", "", "comma-separated symbol subset (default: full catalog)")
	runCmd.Flags().StringVar(&configPath, "config", "", "optional YAML config overlay path")

	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("klinewatch exited with error")
	}
}

func run(ctx context.Context, mode, start, end string, symbols []string, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.New(reg)

	pool := httpclient.New(httpclient.DefaultConfig(), hostFromURL(cfg.BucketRoot))
	httpClient := pool.Client()

	var redisCache cache.Cache
	if cfg.RedisAddr != "" {
		redisCache = cache.NewRedisCache(cfg.RedisAddr, 0)
	}

	s, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	if err := s.CreateIfAbsent(ctx); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	schemaDescriptor, err := store.LoadSchemaDescriptor(cfg.SchemaPath)
	if err != nil {
		return fmt.Errorf("loading schema descriptor: %w", err)
	}

	cat, err := catalog.Load(cfg.ManifestPath)
	if err != nil {
		return fmt.Errorf("loading symbol catalog: %w", err)
	}

	metadataClient := catalog.NewMetadataClient(httpClient, cfg.MetadataURL, redisCache, 5*time.Minute)
	proberClient := probe.New(httpClient, cfg.BucketRoot, venue.Interval1m, cfg.HeadTimeout)
	batchProber := batch.New(proberClient, batch.Config{
		Workers:   cfg.Workers,
		MinSample: cfg.CircuitBreakerMinSample,
		FailRatio: cfg.CircuitBreakerFailRatio,
	})
	klinesReader := klines.New(httpClient, cfg.BucketRoot, cfg.ArchiveTimeout)
	listerClient := lister.New(httpClient, cfg.BucketRoot, venue.Interval1m)

	driver := &pipeline.Driver{
		Catalog:                  cat,
		Metadata:                 metadataClient,
		Batch:                    batchProber,
		Klines:                   klinesReader,
		Lister:                   listerClient,
		Store:                    s,
		Metrics:                  metricsRegistry,
		SchemaDescriptor:         schemaDescriptor,
		BucketRoot:               cfg.BucketRoot,
		QuoteAsset:               cfg.QuoteAsset,
		LaunchDate:               cfg.LaunchDate,
		LookbackDays:             cfg.LookbackDays,
		BulkListingThresholdDays: cfg.BulkListingThresholdDays,
		CompletenessMin:          cfg.CompletenessMin,
		CompletenessMax:          cfg.CompletenessMax,
		CrossCheckMinMatchRatio:  cfg.CrossCheckMinMatchRatio,
		RankingsPath:             cfg.RankingsPath,
	}

	input := pipeline.Input{
		Mode:    pipeline.Mode(mode),
		Start:   start,
		End:     end,
		Symbols: symbols,
	}

	result := driver.Run(ctx, input, time.Now().UTC())

	for _, f := range result.Findings {
		log.Warn().Str("kind", string(f.Kind)).Str("date", f.Date).Msg(f.Detail)
	}

	if result.Err != nil {
		log.Error().Err(result.Err).Str("final_state", string(result.FinalState)).Msg("pipeline run failed")
		return result.Err
	}

	log.Info().Str("final_state", string(result.FinalState)).Int("findings", len(result.Findings)).Msg("pipeline run succeeded")
	return nil
}

func hostFromURL(rawURL string) string {
	s := strings.TrimPrefix(rawURL, "https://")
	s = strings.TrimPrefix(s, "http://")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return s
}
