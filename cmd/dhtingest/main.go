package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/jaxxstorm/dhtingest/internal/config"
	"github.com/jaxxstorm/dhtingest/internal/integrity"
	"github.com/jaxxstorm/dhtingest/internal/lookup"
	"github.com/jaxxstorm/dhtingest/internal/metrics"
	"github.com/jaxxstorm/dhtingest/internal/output"
	"github.com/jaxxstorm/dhtingest/internal/pipeline"
	"go.uber.org/zap"
)

var Version = "dev"

type CLI struct {
	Ingest  IngestCmd  `cmd:"" default:"withargs" help:"Ingest experiment directories into lookup, snapshot and publish tables (default)."`
	Version VersionCmd `cmd:"version" help:"Print version."`
}

type IngestCmd struct {
	Dirs            []string `arg:"" name:"dir" help:"Experiment directories; the position of each is its experiment id."`
	Config          string   `help:"YAML config file."`
	Out             string   `short:"o" help:"Directory the tables are written to."`
	Compress        string   `help:"Table compression: none, gzip or zstd."`
	Parallelism     int      `help:"Experiment directories ingested concurrently."`
	NodeParallelism int      `help:"Nodes ingested concurrently within an experiment."`
	Unresolved      string   `help:"What to do with lookups of cids no surviving node owns: drop or keep."`
	RequireLog      []string `name:"require-log" help:"Per-node log a node needs to count as alive (repeatable: cids, lookup-times, peers, publish)."`
	MetricsFile     string   `help:"Write ingestion counters to this file in Prometheus text format."`
	DryRun          bool     `help:"Ingest and summarize without writing tables."`
	Output          string   `enum:"pretty,json" default:"pretty" help:"Summary format."`
	Verbose         bool     `help:"Enable verbose logging."`
	Debug           bool     `help:"Enable debug logging."`
}

type VersionCmd struct{}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("dhtingest"),
		kong.Description("Normalize DHT experiment logs into lookup, snapshot and publish tables."),
	)

	if ctx.Selected() != nil && ctx.Selected().Name == "version" {
		fmt.Println(Version)
		return
	}

	logger, err := newLogger(cli.Ingest.Verbose, cli.Ingest.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := resolveConfig(cli.Ingest)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	code := runIngest(cli.Ingest, cfg, logger)
	_ = logger.Sync()
	os.Exit(code)
}

func resolveConfig(cmd IngestCmd) (config.Config, error) {
	cfg := config.Config{}
	if cmd.Config != "" {
		loaded, err := config.Load(cmd.Config)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if cmd.Out != "" {
		cfg.OutDir = cmd.Out
	}
	if cmd.Compress != "" {
		cfg.Compression = cmd.Compress
	}
	if cmd.Parallelism != 0 {
		cfg.Parallelism = cmd.Parallelism
	}
	if cmd.NodeParallelism != 0 {
		cfg.NodeParallelism = cmd.NodeParallelism
	}
	if cmd.Unresolved != "" {
		cfg.UnresolvedCIDs = cmd.Unresolved
	}
	if len(cmd.RequireLog) > 0 {
		cfg.RequiredLogs = cmd.RequireLog
	}
	if cmd.MetricsFile != "" {
		cfg.MetricsFile = cmd.MetricsFile
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runIngest(cmd IngestCmd, cfg config.Config, logger *zap.Logger) int {
	policy, _ := lookup.ParsePolicy(cfg.UnresolvedCIDs)
	compression, _ := output.ParseCompression(cfg.Compression)

	var counters *metrics.Ingest
	if cfg.MetricsFile != "" {
		counters = metrics.New()
	}

	agg := pipeline.New(pipeline.Config{
		Parallelism:     cfg.Parallelism,
		NodeParallelism: cfg.NodeParallelism,
		Unresolved:      policy,
		RequiredLogs:    cfg.RequiredLogs,
		Logger:          logger,
		Metrics:         counters,
	})

	tables, summary, err := agg.Run(context.Background(), cmd.Dirs)
	if err != nil {
		reportFailure(os.Stderr, err)
		writeMetrics(counters, cfg.MetricsFile, logger)
		return 1
	}
	writeMetrics(counters, cfg.MetricsFile, logger)

	if !cmd.DryRun {
		files, err := output.WriteTables(cfg.OutDir, tables, output.WriteOptions{Compression: compression})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		manifest, err := output.WriteManifest(cfg.OutDir, output.NewManifest(summary, files))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		for _, f := range files {
			logger.Info("table written", zap.String("table", f.Table.Name), zap.String("path", f.Path), zap.Int("rows", f.Rows))
		}
		logger.Info("manifest written", zap.String("path", manifest))
	}

	var rendered string
	if cmd.Output == "json" {
		rendered, err = output.RenderJSON(summary)
	} else {
		rendered = output.RenderPretty(summary)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(rendered)
	return 0
}

func reportFailure(w io.Writer, err error) {
	ierr, ok := integrity.As(err)
	if !ok {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "fatal: %v\n", err)
	fmt.Fprintf(w, "  invariant:  %s\n", ierr.Invariant())
	if ierr.Dir != "" {
		fmt.Fprintf(w, "  experiment: %s\n", ierr.Dir)
	}
	if ierr.Record != "" {
		fmt.Fprintf(w, "  record:     %s\n", ierr.Record)
	}
}

func writeMetrics(counters *metrics.Ingest, path string, logger *zap.Logger) {
	if counters == nil {
		return
	}
	if err := counters.WriteTextfile(path); err != nil {
		logger.Warn("failed to write metrics file", zap.String("path", path), zap.Error(err))
	}
}

func newLogger(verbose bool, debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}
