// Package pipeline drives the concurrent download-then-extract stage
// that turns a transaction's to-install packages into validated
// extracted directories in the package cache. Grounded on the
// teacher's npm/download.Downloader bounded-concurrency-plus-dedup
// shape, generalized into two independently-bounded stages (download,
// extract) so a slow extraction never blocks a fast download slot.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/binpack/binpack/cache"
	"github.com/binpack/binpack/cancel"
	"github.com/binpack/binpack/errs"
	"github.com/binpack/binpack/fetch"
	"github.com/binpack/binpack/matchspec"
	"github.com/binpack/binpack/metrics"
	"github.com/binpack/binpack/progress"
)

// URLResolver maps a package to the URL its archive should be fetched
// from when it isn't already pinned by pkg.URL.
type URLResolver func(pkg matchspec.PackageInfo) string

// Pipeline runs the download+extract stage for a set of packages.
type Pipeline struct {
	log     *slog.Logger
	fetcher *fetch.Fetcher
	cache   *cache.MultiPackageCache
	cancel  *cancel.Flag
	urlFor  URLResolver

	MaxParallelDownloads int
	ExtractThreads       int
	ProgressFor          func(pkg matchspec.PackageInfo) progress.Sink

	// Metrics is a zero-value-safe hook for cache-hit/miss and
	// download/extract counters; leave unset to no-op.
	Metrics metrics.Metrics
}

func New(log *slog.Logger, fetcher *fetch.Fetcher, mpc *cache.MultiPackageCache, cancelFlag *cancel.Flag, urlFor URLResolver) *Pipeline {
	return &Pipeline{
		log: log, fetcher: fetcher, cache: mpc, cancel: cancelFlag, urlFor: urlFor,
		MaxParallelDownloads: 5,
		ExtractThreads:       4,
	}
}

// Outcome is the terminal per-package status of one Run.
type Outcome int

const (
	Extracted Outcome = iota
	AlreadyValid
	Cancelled
	Failed
)

// Result is one package's outcome from Run.
type Result struct {
	Package      matchspec.PackageInfo
	Outcome      Outcome
	ExtractedDir string
	Err          error
}

// Run extracts every to-install package to the cache's first writable
// layer, skipping work already satisfied by has_valid_extracted_dir /
// has_valid_tarball. Downloads and extractions are each bounded by
// their own semaphore; a package that only needs extraction never
// competes with in-flight downloads for a download slot.
func (p *Pipeline) Run(ctx context.Context, pkgs []matchspec.PackageInfo) []Result {
	results := make([]Result, len(pkgs))
	downloadSem := make(chan struct{}, max1(p.MaxParallelDownloads))
	extractSem := make(chan struct{}, max1(p.ExtractThreads))

	var wg sync.WaitGroup
	for i, pkg := range pkgs {
		wg.Add(1)
		go func(i int, pkg matchspec.PackageInfo) {
			defer wg.Done()
			results[i] = p.runOne(ctx, pkg, downloadSem, extractSem)
		}(i, pkg)
	}
	wg.Wait()
	return results
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func (p *Pipeline) runOne(ctx context.Context, pkg matchspec.PackageInfo, downloadSem, extractSem chan struct{}) Result {
	if p.cancelled() {
		return Result{Package: pkg, Outcome: Cancelled}
	}

	if ok, _ := p.cache.HasValidExtractedDir(pkg); ok {
		p.Metrics.RecordCacheHit(ctx, "extracted")
		p.cache.RecordHit(ctx, pkg.Fn)
		return Result{Package: pkg, Outcome: AlreadyValid}
	}
	p.Metrics.RecordCacheMiss(ctx, "extracted")

	tarballPath, ok := p.cache.TarballPath(pkg)
	if !ok {
		return Result{Package: pkg, Outcome: Failed, Err: errs.New(errs.CacheCorrupt, pkg.Fn, fmt.Errorf("no writable cache layer"))}
	}

	haveTarball, _ := p.cache.HasValidTarball(pkg)
	if haveTarball {
		p.Metrics.RecordCacheHit(ctx, "tarball")
		p.cache.RecordHit(ctx, pkg.Fn)
	} else {
		p.Metrics.RecordCacheMiss(ctx, "tarball")
		if res, done := p.download(ctx, pkg, tarballPath, downloadSem); done {
			return res
		}
		p.cache.Invalidate(pkg)
	}

	return p.extract(ctx, pkg, tarballPath, extractSem)
}

// download acquires a download slot and fetches pkg's archive. The
// bool return reports whether the caller should stop (true) with the
// accompanying Result, or continue on to extraction (false).
func (p *Pipeline) download(ctx context.Context, pkg matchspec.PackageInfo, tarballPath string, downloadSem chan struct{}) (Result, bool) {
	select {
	case downloadSem <- struct{}{}:
	case <-ctx.Done():
		return Result{Package: pkg, Outcome: Cancelled}, true
	}
	defer func() { <-downloadSem }()

	if p.cancelled() {
		return Result{Package: pkg, Outcome: Cancelled}, true
	}

	if hit, err := p.cache.TryMirror(ctx, pkg); err != nil {
		p.log.Warn("remote mirror fetch failed, falling back to channel origin", "pkg", pkg.Fn, "err", err)
	} else if hit {
		p.Metrics.RecordDownload(ctx, "mirror", 0)
		return Result{}, false
	}

	url := pkg.URL
	if url == "" && p.urlFor != nil {
		url = p.urlFor(pkg)
	}

	var sink progress.Sink
	if p.ProgressFor != nil {
		sink = p.ProgressFor(pkg)
	}

	target := fetch.Target{
		URL: url, Dest: tarballPath,
		ExpectSize: pkg.Size, ExpectSHA256: pkg.SHA256, ExpectMD5: pkg.MD5,
		Progress: sink,
	}
	res := p.fetcher.Perform(ctx, target)
	switch res.Status {
	case fetch.StatusFetched:
		p.Metrics.RecordDownload(ctx, "fetched", res.Size)
		p.cache.RecordFetched(ctx, pkg.Fn)
		if err := p.cache.PutMirror(ctx, pkg, tarballPath); err != nil {
			p.log.Warn("failed to publish tarball to remote mirror", "pkg", pkg.Fn, "err", err)
		}
		return Result{}, false
	case fetch.StatusCancelled:
		p.Metrics.RecordDownload(ctx, "cancelled", 0)
		return Result{Package: pkg, Outcome: Cancelled}, true
	default:
		p.Metrics.RecordDownload(ctx, "failed", 0)
		return Result{Package: pkg, Outcome: Failed, Err: res.Err}, true
	}
}

// extract acquires an extract slot, unpacks tarballPath into a
// temporary directory alongside the final extracted path, writes
// info/repodata_record.json, and atomically renames into place. If
// cancellation is observed after the (already in-flight) extraction
// completes, the output is deleted instead of published, per the
// pipeline's "let it finish, then delete" cancellation semantics.
func (p *Pipeline) extract(ctx context.Context, pkg matchspec.PackageInfo, tarballPath string, extractSem chan struct{}) Result {
	select {
	case extractSem <- struct{}{}:
	case <-ctx.Done():
		return Result{Package: pkg, Outcome: Cancelled}
	}
	defer func() { <-extractSem }()

	if p.cancelled() {
		return Result{Package: pkg, Outcome: Cancelled}
	}

	finalDir, ok := p.cache.ExtractedPath(pkg)
	if !ok {
		return Result{Package: pkg, Outcome: Failed, Err: fmt.Errorf("pipeline: no writable cache layer for extraction")}
	}

	tmpDir := finalDir + ".tmp-extract"
	os.RemoveAll(tmpDir)
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return Result{Package: pkg, Outcome: Failed, Err: err}
	}

	if err := extractArchive(tarballPath, tmpDir); err != nil {
		os.RemoveAll(tmpDir)
		p.Metrics.RecordExtractFailure(ctx, "unpack")
		return Result{Package: pkg, Outcome: Failed, Err: err}
	}

	if err := writeRepodataRecord(tmpDir, pkg); err != nil {
		os.RemoveAll(tmpDir)
		p.Metrics.RecordExtractFailure(ctx, "repodata_record")
		return Result{Package: pkg, Outcome: Failed, Err: err}
	}

	if p.cancelled() {
		os.RemoveAll(tmpDir)
		return Result{Package: pkg, Outcome: Cancelled}
	}

	os.RemoveAll(finalDir)
	if err := os.Rename(tmpDir, finalDir); err != nil {
		os.RemoveAll(tmpDir)
		return Result{Package: pkg, Outcome: Failed, Err: err}
	}

	p.cache.Invalidate(pkg)
	return Result{Package: pkg, Outcome: Extracted, ExtractedDir: finalDir}
}

func writeRepodataRecord(extractedDir string, pkg matchspec.PackageInfo) error {
	infoDir := filepath.Join(extractedDir, "info")
	if err := os.MkdirAll(infoDir, 0o755); err != nil {
		return err
	}
	rec := cache.RepodataRecord{PackageInfo: pkg}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(infoDir, "repodata_record.json"), data, 0o644)
}

func (p *Pipeline) cancelled() bool {
	return p.cancel != nil && p.cancel.Cancelled()
}
