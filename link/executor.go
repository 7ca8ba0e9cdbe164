// Executor replays a transaction.Transaction against a prefix: one
// completed step is committed (its files and conda-meta record stay);
// a step interrupted mid-link is rolled back via its own undo stack.
// There is no cross-step rollback — per the concurrency model, a
// transaction that finished linking a package before an interrupt
// keeps that package installed even if a later step never runs.
package link

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/binpack/binpack/cache"
	"github.com/binpack/binpack/errs"
	"github.com/binpack/binpack/matchspec"
	"github.com/binpack/binpack/metrics"
	"github.com/binpack/binpack/transaction"
)

// Executor applies transaction steps to one prefix, pulling each
// install step's source directory from the package cache.
type Executor struct {
	log    *slog.Logger
	linker *Linker
	cache  *cache.MultiPackageCache
	prefix string

	// Metrics is a zero-value-safe hook for link-failure counters;
	// leave unset to no-op.
	Metrics metrics.Metrics
}

func NewExecutor(log *slog.Logger, linker *Linker, mpc *cache.MultiPackageCache, prefix string) *Executor {
	return &Executor{log: log, linker: linker, cache: mpc, prefix: prefix}
}

// Execute applies tx's steps in order, holding the prefix lock for
// the whole transaction, and returns the first LinkFailure it hits.
// Steps already applied before a failure stay applied; AppendHistory
// records exactly what was linked/unlinked before the error (if any).
func (e *Executor) Execute(ctx context.Context, tx *transaction.Transaction) error {
	lock := NewPrefixLock(e.prefix)
	if err := lock.Acquire(30 * time.Second); err != nil {
		return err
	}
	defer lock.Release()

	var linked, unlinked []matchspec.PackageInfo
	runErr := e.run(ctx, tx, &linked, &unlinked)
	if histErr := AppendHistory(e.prefix, "binpack transaction", linked, unlinked); histErr != nil {
		e.log.Warn("failed to append conda-meta/history", "err", histErr)
	}
	return runErr
}

func (e *Executor) run(ctx context.Context, tx *transaction.Transaction, linked, unlinked *[]matchspec.PackageInfo) error {
	for _, step := range tx.Steps {
		switch step.Kind {
		case transaction.Remove:
			if err := UnlinkPackage(e.prefix, step.Package); err != nil {
				return err
			}
			*unlinked = append(*unlinked, step.Package)

		case transaction.Change:
			if err := UnlinkPackage(e.prefix, step.Old); err != nil {
				return err
			}
			*unlinked = append(*unlinked, step.Old)
			if err := e.installOne(ctx, step.Package); err != nil {
				return err
			}
			*linked = append(*linked, step.Package)

		case transaction.Install, transaction.Reinstall:
			if err := e.installOne(ctx, step.Package); err != nil {
				return err
			}
			*linked = append(*linked, step.Package)
		}
	}
	return nil
}

// installOne links one package: resolve its extracted directory,
// link its files, run the post-link script (rolling back on
// failure), then write its conda-meta record.
func (e *Executor) installOne(ctx context.Context, pkg matchspec.PackageInfo) error {
	extractedDir, ok := e.cache.ExtractedPath(pkg)
	if !ok {
		e.Metrics.RecordLinkFailure(ctx, pkg.String())
		return errs.New(errs.LinkFailure, pkg.String(), fmt.Errorf("no extracted directory for %s", pkg.Fn))
	}

	res, err := e.linker.LinkPackage(extractedDir, e.prefix)
	if err != nil {
		e.Metrics.RecordLinkFailure(ctx, pkg.String())
		return err
	}

	if err := RunScript(extractedDir, e.prefix, "post-link"); err != nil {
		if rbErr := res.Rollback(); rbErr != nil {
			e.log.Error("rollback after post-link failure also failed", "pkg", pkg.String(), "err", rbErr)
		}
		e.Metrics.RecordLinkFailure(ctx, pkg.String())
		return errs.New(errs.LinkFailure, pkg.String(), err)
	}

	if err := WriteMetaRecord(e.prefix, pkg, res.LinkedPaths); err != nil {
		if rbErr := res.Rollback(); rbErr != nil {
			e.log.Error("rollback after meta-record failure also failed", "pkg", pkg.String(), "err", rbErr)
		}
		e.Metrics.RecordLinkFailure(ctx, pkg.String())
		return errs.New(errs.LinkFailure, pkg.String(), err)
	}

	res.Commit()
	return nil
}
