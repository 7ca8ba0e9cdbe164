package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/binpack/binpack/cancel"
	"github.com/binpack/binpack/config"
	"github.com/binpack/binpack/link"
	"github.com/binpack/binpack/matchspec"
	"github.com/binpack/binpack/metrics"
	"github.com/binpack/binpack/pipeline"
	"github.com/binpack/binpack/problems"
	"github.com/binpack/binpack/solver"
	"github.com/binpack/binpack/transaction"
)

// applyJobs is the shared install/remove/update/reinstall path: resolve,
// plan, download+extract, link. Shared by InstallCmd/RemoveCmd/UpdateCmd
// since they differ only in the solver.Job they submit.
func applyJobs(ctx context.Context, log *slog.Logger, cfg config.Config, cf *ChannelFlags, jobs []solver.Job, flags solver.Flags, dryRun bool, m metrics.Metrics) error {
	cancelFlag := cancel.New()
	stop := cancel.WatchSignals(cancelFlag, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := newFetcher(log, cancelFlag, cfg)

	p, err := loadPool(ctx, log, cfg, fetcher)
	if err != nil {
		return err
	}

	s := solver.New(jobs, flags)
	s.Metrics = m
	result, conflicts, err := s.Solve(ctx, p)
	if err != nil {
		var specs []matchspec.MatchSpec
		for _, j := range jobs {
			specs = append(specs, j.Spec)
		}
		graph := problems.Build(specs, conflicts)
		fmt.Println(graph.Render(problems.DefaultRenderOptions()))
		return err
	}

	tx := transaction.Plan(result, p.Installed)
	if len(tx.Steps) == 0 {
		log.Info("nothing to do")
		return nil
	}

	for _, step := range tx.Steps {
		log.Info("planned step", "kind", step.Kind.String(), "package", step.Package.String())
	}
	if dryRun {
		return nil
	}

	mpc := newMultiCache(cfg)
	attachMirror(ctx, log, mpc, cf)
	closeUsage := attachUsageLog(ctx, log, mpc, cfg)
	defer closeUsage()
	pl := pipeline.New(log, fetcher, mpc, cancelFlag, nil)
	pl.MaxParallelDownloads = cfg.MaxParallelDownloads
	pl.ExtractThreads = cfg.ExtractThreads
	pl.Metrics = m

	var toFetch []matchspec.PackageInfo
	for _, step := range tx.Steps {
		if step.Kind != transaction.Remove {
			toFetch = append(toFetch, step.Package)
		}
	}
	results := pl.Run(ctx, toFetch)
	for _, r := range results {
		if r.Outcome == pipeline.Failed {
			return fmt.Errorf("failed to fetch %s: %w", r.Package.Fn, r.Err)
		}
		if r.Outcome == pipeline.Cancelled {
			return fmt.Errorf("interrupted while fetching %s", r.Package.Fn)
		}
	}

	linker := link.New(log, cfg.LinkMethod)
	ex := link.NewExecutor(log, linker, mpc, cfg.Prefix)
	ex.Metrics = m
	return ex.Execute(ctx, tx)
}
