package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/gautam1sharma/sopcompliance"
	"github.com/gautam1sharma/sopcompliance/analysis"
	"github.com/gautam1sharma/sopcompliance/config"
	"github.com/gautam1sharma/sopcompliance/core"
	"github.com/gautam1sharma/sopcompliance/embedding"
	"github.com/gautam1sharma/sopcompliance/report"
	"github.com/gautam1sharma/sopcompliance/scoring"
	"github.com/gautam1sharma/sopcompliance/segment"
	"github.com/urfave/cli/v2"
)

// extraOptions are appended to every checker the commands open.
var extraOptions []sopcompliance.Option

// loadConfig reads the config file and applies command flag overrides.
func loadConfig(c *cli.Context) (*config.AppConfig, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if path := c.String("catalog"); path != "" {
		cfg.Catalog.Path = path
	}
	if policy := c.String("keyword-policy"); policy != "" {
		cfg.Scoring.KeywordPolicy = policy
	}
	if c.Bool("no-result-cache") {
		disabled := false
		cfg.Cache.CacheResults = &disabled
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// checkerOptions maps the configuration onto checker options.
func checkerOptions(cfg *config.AppConfig, progress io.Writer) ([]sopcompliance.Option, error) {
	policy, err := scoring.ParseKeywordPolicy(cfg.Scoring.KeywordPolicy)
	if err != nil {
		return nil, err
	}

	opts := []sopcompliance.Option{
		sopcompliance.WithAIConfig(cfg.AIConfig()),
		sopcompliance.WithCatalogFile(cfg.Catalog.Path),
		sopcompliance.WithKeywordPolicy(policy),
		sopcompliance.WithResultCache(cfg.ResultsCached()),
		sopcompliance.WithSweepInterval(cfg.SweepInterval()),
		sopcompliance.WithSegmentOptions(
			segment.WithChunkSize(cfg.Segment.ChunkSize),
			segment.WithOverlap(cfg.Segment.Overlap),
			segment.WithMinWords(cfg.Segment.MinWords),
		),
	}

	switch cfg.Cache.Backend {
	case config.BackendBadger:
		opts = append(opts, sopcompliance.WithBadgerCache(cfg.Cache.Path))
	case config.BackendRedis:
		opts = append(opts, sopcompliance.WithRedisCache(cfg.Cache.RedisURL))
	}

	var pipelineOpts []embedding.Option
	if cfg.Pipeline.PoolSize > 0 {
		pipelineOpts = append(pipelineOpts, embedding.WithPoolSize(cfg.Pipeline.PoolSize))
	}
	if cfg.Pipeline.BatchSize > 0 {
		pipelineOpts = append(pipelineOpts, embedding.WithBatchSize(cfg.Pipeline.BatchSize))
	}
	if cfg.Pipeline.MaxRetries > 0 {
		pipelineOpts = append(pipelineOpts, embedding.WithMaxRetries(cfg.Pipeline.MaxRetries))
	}
	if progress != nil {
		pipelineOpts = append(pipelineOpts, embedding.WithProgress(progress))
	}
	if len(pipelineOpts) > 0 {
		opts = append(opts, sopcompliance.WithPipelineOptions(pipelineOpts...))
	}

	return append(opts, extraOptions...), nil
}

func openChecker(ctx context.Context, c *cli.Context, progress io.Writer) (*sopcompliance.Checker, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	opts, err := checkerOptions(cfg, progress)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	checker, err := sopcompliance.Open(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open checker: %w", err)
	}
	return checker, nil
}

func analyzeCommand(c *cli.Context) error {
	ctx := commandContext(c)

	if c.NArg() == 0 {
		return errors.New("at least one document is required")
	}
	format := c.String("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format %q: must be text or json", format)
	}

	docs := make([]analysis.Document, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}
		docs = append(docs, analysis.Document{Name: filepath.Base(path), Text: string(data)})
	}

	checker, err := openChecker(ctx, c, nil)
	if err != nil {
		return err
	}
	defer checker.Close()

	out := c.App.Writer
	var failed int
	for _, outcome := range checker.AnalyzeAll(ctx, docs) {
		if outcome.Err != nil {
			failed++
			color.New(color.FgRed).Fprintf(out, "%s: analysis failed: %v\n", outcome.Name, outcome.Err)
			continue
		}
		if format == "json" {
			if err := report.WriteJSON(out, outcome.Report); err != nil {
				return err
			}
			continue
		}
		printReport(out, outcome.Name, outcome.Report, c.Bool("evidence"))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(docs))
	}
	return nil
}

func precacheCommand(c *cli.Context) error {
	ctx := commandContext(c)

	var progress io.Writer
	if c.Bool("progress") {
		progress = c.App.ErrWriter
	}
	checker, err := openChecker(ctx, c, progress)
	if err != nil {
		return err
	}
	defer checker.Close()

	start := time.Now()
	n, err := checker.Warm(ctx)
	if err != nil {
		return fmt.Errorf("precache failed: %w", err)
	}

	kb := checker.KnowledgeBase()
	color.New(color.FgGreen).Fprintf(c.App.Writer, "Cached %d controls from %s catalog in %s\n",
		n, kb.Name(), time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(c.App.Writer, "Catalog fingerprint: %s\n", kb.Fingerprint())
	return nil
}

func cacheStatsCommand(c *cli.Context) error {
	ctx := commandContext(c)

	checker, err := openChecker(ctx, c, nil)
	if err != nil {
		return err
	}
	defer checker.Close()

	durable, err := checker.DurableStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to inspect cache: %w", err)
	}
	stats := checker.Stats()

	out := c.App.Writer
	color.New(color.Bold).Fprintln(out, "Cache statistics")
	fmt.Fprintf(out, "  Memory entries:   %d\n", stats.FastEntries)
	fmt.Fprintf(out, "  Durable entries:  %d\n", durable.Entries)
	fmt.Fprintf(out, "  Expired entries:  %d\n", durable.Expired)
	fmt.Fprintf(out, "  Corrupt entries:  %d\n", durable.Corrupt)
	fmt.Fprintf(out, "  Durable bytes:    %d\n", durable.Bytes)
	return nil
}

func cacheCleanupCommand(c *cli.Context) error {
	ctx := commandContext(c)

	checker, err := openChecker(ctx, c, nil)
	if err != nil {
		return err
	}
	defer checker.Close()

	out := c.App.Writer
	if c.Bool("all") {
		if err := checker.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		color.New(color.FgGreen).Fprintln(out, "Removed every cache entry")
	} else {
		removed, err := checker.CleanupExpired(ctx)
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		color.New(color.FgGreen).Fprintf(out, "Removed %d expired cache entries\n", removed)
	}

	if c.Bool("gc") {
		err := checker.CollectGarbage()
		switch {
		case errors.Is(err, sopcompliance.ErrGarbageCollectionUnsupported):
			fmt.Fprintln(out, "Durable store does not need compaction")
		case err != nil:
			return fmt.Errorf("garbage collection failed: %w", err)
		default:
			fmt.Fprintln(out, "Compacted durable store")
		}
	}
	return nil
}

// bandColors maps confidence bands to their display color.
var bandColors = map[core.Band]color.Attribute{
	core.BandHigh:   color.FgGreen,
	core.BandMedium: color.FgYellow,
	core.BandLow:    color.FgMagenta,
	core.BandNone:   color.FgRed,
}

func printReport(w io.Writer, name string, rep *core.ComplianceReport, withEvidence bool) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "%s\n", name)

	if err := analysis.CheckAnalyzable(rep); err != nil {
		color.New(color.FgRed).Fprintf(w, "  %v: every control is non-compliant\n", err)
	}

	s := rep.Summary
	fmt.Fprintf(w, "  Compliance score: %.1f%% (%d of %d controls matched, method %s)\n",
		rep.ComplianceScore, s.MatchedControls, s.TotalControls, rep.Method)
	fmt.Fprintf(w, "  High: %d  Medium: %d  Low: %d  Non-compliant: %d\n",
		s.HighConfidence, s.MediumConfidence, s.LowConfidence, s.NonCompliant)

	for _, r := range rep.Results {
		c := color.New(bandColors[r.Band])
		c.Fprintf(w, "  %-6s %-18s %.3f  %s\n", r.ControlID, r.Status, r.Score, r.Name)
		if withEvidence {
			for _, e := range r.Evidence {
				fmt.Fprintf(w, "           > %s\n", e)
			}
		}
	}
}
