package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/binpack/binpack/cache"
	"github.com/binpack/binpack/cacheusage"
	"github.com/binpack/binpack/cancel"
	"github.com/binpack/binpack/channel"
	"github.com/binpack/binpack/config"
	"github.com/binpack/binpack/fetch"
	"github.com/binpack/binpack/link"
	"github.com/binpack/binpack/matchspec"
	"github.com/binpack/binpack/pool"
	"github.com/binpack/binpack/repodata"
	"github.com/binpack/binpack/store"
)

// ChannelFlags are the channel/prefix/platform flags shared by every
// subcommand that needs to resolve packages against repository indexes.
type ChannelFlags struct {
	Prefix       string   `help:"Environment prefix to operate on" default:"." type:"path" env:"BINPACK_PREFIX"`
	Channel      []string `help:"Channel name or URL, highest priority first" env:"BINPACK_CHANNELS"`
	ChannelAlias string   `help:"Base URL bare channel names resolve against" default:"https://conda.anaconda.org" env:"BINPACK_CHANNEL_ALIAS"`
	Platform     string   `help:"Target platform subdir" default:"linux-64" env:"BINPACK_PLATFORM"`
	PkgCacheDir  []string `help:"Package cache directory, first writable wins" env:"BINPACK_PKG_CACHE_DIRS"`

	S3MirrorBucket string `help:"S3 bucket to use as a shared pull-through tarball mirror" env:"BINPACK_S3_MIRROR_BUCKET"`
	S3MirrorPrefix string `help:"Key prefix within the mirror bucket" default:"binpack" env:"BINPACK_S3_MIRROR_PREFIX"`
	S3MirrorRegion string `help:"S3 region for the mirror bucket" default:"us-east-1" env:"BINPACK_S3_MIRROR_REGION"`

	UsageDBType string `help:"Cache usage log backend: sqlite, rqlite, or postgres" default:"sqlite" enum:"sqlite,rqlite,postgres" env:"BINPACK_USAGE_DB_TYPE"`
	UsageDBURL  string `help:"Cache usage log DSN; defaults to a sqlite file under the first package cache dir" env:"BINPACK_USAGE_DB_URL"`
}

func (f *ChannelFlags) toConfig() config.Config {
	cfg := config.Default()
	cfg.Prefix = f.Prefix
	cfg.Channels = f.Channel
	cfg.ChannelAlias = f.ChannelAlias
	cfg.Platform = f.Platform
	if len(f.PkgCacheDir) > 0 {
		cfg.PkgCacheDirs = f.PkgCacheDir
	} else {
		cfg.PkgCacheDirs = []string{filepath.Join(f.Prefix, "pkgs")}
	}
	if f.UsageDBType != "" {
		cfg.UsageDBType = f.UsageDBType
	}
	cfg.UsageDBURL = f.UsageDBURL
	return cfg
}

func newLogger(verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// loadPool fetches every configured channel's repodata and builds a
// pool.Pool against the prefix's currently-installed conda-meta set.
func loadPool(ctx context.Context, log *slog.Logger, cfg config.Config, fetcher *fetch.Fetcher) (*pool.Pool, error) {
	var specs []repodata.ChannelSpec
	var names []string
	for rank, ch := range cfg.Channels {
		for _, target := range channel.Resolve(ch, cfg.ChannelAlias, cfg.Platform) {
			specs = append(specs, repodata.ChannelSpec{Name: target.Name, BaseURL: target.URL, Subdir: target.Platform})
			names = append(names, fmt.Sprintf("%s::%d", target.Name, rank))
		}
	}

	cacheRoot := filepath.Join(cfg.PkgCacheDirs[0], "repodata")
	results := repodata.LoadAll(ctx, log, fetcher, cacheRoot, specs, cfg.MaxParallelDownloads)

	ranks := make(map[string]int)
	for rank, ch := range cfg.Channels {
		ranks[ch] = rank
	}

	var channels []pool.Channel
	for i, r := range results {
		if r.Err != nil {
			log.Warn("failed to load channel", "channel", r.Channel, "subdir", r.Subdir, "err", r.Err)
			continue
		}
		channels = append(channels, pool.Channel{Name: r.Channel, Rank: ranks[specs[i].Name], Snapshot: r.Index.Snapshot()})
	}

	installed, err := installedSet(cfg.Prefix)
	if err != nil {
		return nil, err
	}

	return pool.New(channels, installed, false), nil
}

func installedSet(prefix string) (map[string]matchspec.PackageInfo, error) {
	records, err := link.InstalledPackages(prefix)
	if err != nil {
		return nil, fmt.Errorf("reading installed packages: %w", err)
	}
	out := make(map[string]matchspec.PackageInfo, len(records))
	for _, r := range records {
		out[r.Fn] = r.PackageInfo
	}
	return out, nil
}

func newMultiCache(cfg config.Config) *cache.MultiPackageCache {
	return cache.NewMulti(cfg.Verification, cfg.PkgCacheDirs...)
}

// attachMirror constructs an S3Mirror from f's flags and sets it on mpc,
// when a bucket was configured. Left unset (mpc.Mirror stays nil) is the
// normal case: the mirror is an optional accelerator, not a requirement.
func attachMirror(ctx context.Context, log *slog.Logger, mpc *cache.MultiPackageCache, f *ChannelFlags) {
	if f.S3MirrorBucket == "" {
		return
	}
	mirror, err := cache.NewS3Mirror(ctx, cache.S3MirrorConfig{
		Bucket: f.S3MirrorBucket,
		Prefix: f.S3MirrorPrefix,
		Region: f.S3MirrorRegion,
	})
	if err != nil {
		log.Warn("failed to configure S3 mirror, continuing without it", "err", err)
		return
	}
	mpc.Mirror = mirror
}

// attachUsageLog opens the cache usage log named by cfg.UsageDBType
// and sets it on mpc. For "sqlite" with no explicit UsageDBURL, it
// creates (if needed) a file at <first cache dir>/usage.db; "rqlite"
// and "postgres" require cfg.UsageDBURL to point at a running server.
// Returns a closer to release the underlying connection; a failure to
// open it degrades to no usage tracking rather than aborting the
// command, since it's purely an inspection aid.
func attachUsageLog(ctx context.Context, log *slog.Logger, mpc *cache.MultiPackageCache, cfg config.Config) func() {
	dbType := cfg.UsageDBType
	if dbType == "" {
		dbType = "sqlite"
	}

	dsn := cfg.UsageDBURL
	if dsn == "" {
		if dbType != "sqlite" {
			log.Warn("usage database URL required for this backend, continuing without usage tracking", "dbType", dbType)
			return func() {}
		}
		if len(cfg.PkgCacheDirs) == 0 {
			return func() {}
		}
		dbPath := filepath.Join(cfg.PkgCacheDirs[0], "usage.db")
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			log.Warn("failed to create cache usage log directory, continuing without it", "err", err)
			return func() {}
		}
		dsn = fmt.Sprintf("file:%s?cache=shared&mode=rwc&_busy_timeout=5000&_txlock=immediate", dbPath)
	}

	s, closer, err := store.New(ctx, dbType, dsn)
	if err != nil {
		log.Warn("failed to open cache usage log, continuing without it", "dbType", dbType, "err", err)
		return func() {}
	}
	mpc.Usage = cacheusage.New(s)
	return func() {
		if err := closer(); err != nil {
			log.Warn("failed to close cache usage log", "err", err)
		}
	}
}

func newFetcher(log *slog.Logger, cancelFlag *cancel.Flag, cfg config.Config) *fetch.Fetcher {
	f := fetch.New(log, nil, cancelFlag)
	f.MaxRetries = cfg.FetcherMaxRetries
	f.RetryWait = cfg.FetcherRetryWaitBase
	f.RetryBackoff = cfg.FetcherRetryBackoff
	return f
}
