package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/jaxxstorm/dhtingest/internal/integrity"
	"github.com/jaxxstorm/dhtingest/internal/logfs"
	"github.com/jaxxstorm/dhtingest/internal/lookup"
	"github.com/jaxxstorm/dhtingest/internal/metrics"
	"github.com/jaxxstorm/dhtingest/internal/model"
	"github.com/jaxxstorm/dhtingest/internal/publish"
	"github.com/jaxxstorm/dhtingest/internal/registry"
	"github.com/jaxxstorm/dhtingest/internal/snapshot"
	"go.uber.org/zap"
)

type Config struct {
	Parallelism     int
	NodeParallelism int
	Unresolved      lookup.Policy
	RequiredLogs    []string
	Logger          *zap.Logger
	Metrics         *metrics.Ingest
	// Open turns an experiment path into a log source.
	Open func(dir string) (logfs.Source, error)
}

// Aggregator ingests experiment directories into the three output tables.
type Aggregator struct {
	config Config
}

type experimentResult struct {
	tables  model.Tables
	summary model.ExperimentSummary
	err     error
}

type nodeResult struct {
	tables model.Tables
	skips  []model.Skip
	err    error
}

func New(cfg Config) *Aggregator {
	if cfg.Parallelism == 0 {
		cfg.Parallelism = 2
	}
	if cfg.NodeParallelism == 0 {
		cfg.NodeParallelism = 8
	}
	if cfg.Unresolved == "" {
		cfg.Unresolved = lookup.PolicyDrop
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Open == nil {
		cfg.Open = func(dir string) (logfs.Source, error) { return logfs.NewDirSource(dir) }
	}
	return &Aggregator{config: cfg}
}

// Run ingests dirs in parallel. The position of a directory in dirs is its
// experiment id, and the returned tables keep directory order.
func (a *Aggregator) Run(ctx context.Context, dirs []string) (model.Tables, model.RunSummary, error) {
	summary := model.RunSummary{RunID: uuid.NewString()}
	if len(dirs) == 0 {
		return model.Tables{}, summary, fmt.Errorf("no experiment directories given")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]experimentResult, len(dirs))
	wg := sync.WaitGroup{}
	sem := make(chan struct{}, a.config.Parallelism)

	for i, dir := range dirs {
		wg.Add(1)
		sem <- struct{}{}
		go func(id int, path string) {
			defer wg.Done()
			defer func() { <-sem }()

			tables, expSummary, err := a.runDir(ctx, id, path)
			if err != nil {
				cancel()
			}
			results[id] = experimentResult{tables: tables, summary: expSummary, err: err}
		}(i, dir)
	}

	wg.Wait()

	errs := make([]error, len(results))
	for i, res := range results {
		errs[i] = res.err
	}
	if err := firstError(errs); err != nil {
		return model.Tables{}, summary, err
	}

	tables := model.Tables{}
	for _, res := range results {
		tables.Append(res.tables)
		summary.Experiments = append(summary.Experiments, res.summary)
	}
	return tables, summary, nil
}

func (a *Aggregator) runDir(ctx context.Context, id int, dir string) (model.Tables, model.ExperimentSummary, error) {
	if err := ctx.Err(); err != nil {
		return model.Tables{}, model.ExperimentSummary{}, err
	}
	src, err := a.config.Open(dir)
	if err != nil {
		ierr := integrity.Violation(integrity.KindMissingDirectory, "", 0, dir, "%v", err)
		ierr.Dir = dir
		a.config.Metrics.Violation(ierr.Kind)
		return model.Tables{}, model.ExperimentSummary{}, ierr
	}
	return a.Experiment(ctx, src, id)
}

// Experiment ingests a single experiment from src and tags every row with id.
func (a *Aggregator) Experiment(ctx context.Context, src logfs.Source, id int) (model.Tables, model.ExperimentSummary, error) {
	logger := a.config.Logger.With(zap.Int("exp_id", id), zap.String("dir", src.Name()))
	logger.Info("loading experiment")

	tables, summary, err := a.experiment(ctx, src, id, logger)
	if err != nil {
		err = integrity.WithDir(err, src.Name())
		if ierr, ok := integrity.As(err); ok {
			a.config.Metrics.Violation(ierr.Kind)
		}
		return model.Tables{}, model.ExperimentSummary{}, fmt.Errorf("experiment %d: %w", id, err)
	}

	a.config.Metrics.Observe(summary)
	logger.Info("loaded experiment",
		zap.Int("nodes", summary.Nodes),
		zap.Int("failed", len(summary.FailedNodes)),
		zap.Int("cids", summary.CIDs),
		zap.Int("lookups", summary.Lookups),
		zap.Int("snapshots", summary.Snapshots),
		zap.Int("publishes", summary.Publishes),
	)
	return tables, summary, nil
}

func (a *Aggregator) experiment(ctx context.Context, src logfs.Source, id int, logger *zap.Logger) (model.Tables, model.ExperimentSummary, error) {
	reg, err := registry.Load(src, registry.Config{RequiredLogs: a.config.RequiredLogs, Logger: logger})
	if err != nil {
		return model.Tables{}, model.ExperimentSummary{}, err
	}
	owners, err := registry.BuildIndex(src, reg)
	if err != nil {
		return model.Tables{}, model.ExperimentSummary{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ids := reg.IDs()
	results := make([]nodeResult, len(ids))
	wg := sync.WaitGroup{}
	sem := make(chan struct{}, a.config.NodeParallelism)

	for i, peer := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(slot int, node model.Node) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				results[slot] = nodeResult{err: err}
				return
			}
			res := a.ingestNode(src, node, reg, owners, id, logger)
			if res.err != nil {
				cancel()
			}
			results[slot] = res
		}(i, nodeOf(reg, peer))
	}

	wg.Wait()

	summary := model.ExperimentSummary{
		ID:          id,
		Dir:         src.Name(),
		Nodes:       reg.Len(),
		FailedNodes: reg.Failed(),
		CIDs:        owners.Len(),
	}
	errs := make([]error, len(results))
	for i, res := range results {
		if res.err != nil {
			errs[i] = fmt.Errorf("node %s: %w", ids[i], res.err)
		}
	}
	if err := firstError(errs); err != nil {
		return model.Tables{}, model.ExperimentSummary{}, err
	}

	tables := model.Tables{}
	for _, res := range results {
		tables.Append(res.tables)
		summary.AddSkips(res.skips)
	}
	summary.Lookups = len(tables.Lookups)
	summary.Snapshots = len(tables.Snapshots)
	summary.Publishes = len(tables.Publishes)
	return tables, summary, nil
}

func (a *Aggregator) ingestNode(src logfs.Source, node model.Node, reg *registry.Registry, owners *registry.Index, exp int, logger *zap.Logger) nodeResult {
	res := nodeResult{}

	lookupCfg := lookup.Config{Unresolved: a.config.Unresolved, Experiment: exp, Logger: logger}
	res.err = a.withLog(src, node.ID, registry.LogLookups, &res, logger, func(r io.Reader, name string) error {
		rows, skips, err := lookup.Ingest(r, name, node, owners, lookupCfg)
		res.tables.Lookups = rows
		res.skips = append(res.skips, skips...)
		return err
	})
	if res.err != nil {
		return res
	}

	res.err = a.withLog(src, node.ID, registry.LogPeers, &res, logger, func(r io.Reader, name string) error {
		rows, skips, err := snapshot.Ingest(r, name, node, reg, exp)
		res.tables.Snapshots = rows
		res.skips = append(res.skips, skips...)
		return err
	})
	if res.err != nil {
		return res
	}

	res.err = a.withLog(src, node.ID, registry.LogPublish, &res, logger, func(r io.Reader, name string) error {
		rows, err := publish.Ingest(r, name, node, reg, exp)
		res.tables.Publishes = rows
		return err
	})
	return res
}

// withLog opens one of a node's logs and hands it to fn. A missing log is
// recorded as a skip rather than an error.
func (a *Aggregator) withLog(src logfs.Source, id, kind string, res *nodeResult, logger *zap.Logger, fn func(io.Reader, string) error) error {
	name := registry.LogName(id, kind)
	rc, err := registry.OpenLog(src, id, kind)
	if err != nil {
		if registry.IsMissing(err) {
			logger.Warn("node log missing", zap.String("peer", id), zap.String("file", name))
			res.skips = append(res.skips, model.Skip{Reason: model.SkipMissingLog, File: name})
			return nil
		}
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	return fn(rc, name)
}

func nodeOf(reg *registry.Registry, id string) model.Node {
	node, _ := reg.Node(id)
	return node
}

// firstError prefers a real failure over the cancellations it caused.
func firstError(errs []error) error {
	var canceled error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			if canceled == nil {
				canceled = err
			}
			continue
		}
		return err
	}
	return canceled
}
