// Package config holds the immutable configuration struct threaded
// through every constructor in binpack, replacing the process-global
// singleton context used elsewhere in package managers of this shape.
package config

import "time"

// VerificationPolicy controls how PackageCache treats packages with
// missing checksums.
type VerificationPolicy string

const (
	VerificationStrict   VerificationPolicy = "strict"
	VerificationWarn     VerificationPolicy = "warn"
	VerificationDisabled VerificationPolicy = "disabled"
)

// LinkMethod selects how the Linker materializes a cached package's
// files into a prefix. Hardlinking is the default: cheap and
// space-free as long as cache and prefix share a filesystem; Copy is
// the fallback when they don't.
type LinkMethod string

const (
	LinkHardlink LinkMethod = "hardlink"
	LinkCopy     LinkMethod = "copy"
	LinkSoftlink LinkMethod = "softlink"
)

// Config is built once (by cmd/binpack) from flags/env and passed by
// value or pointer to every component constructor. It carries no
// behavior, only data, and is never read via a package-level singleton.
type Config struct {
	Prefix   string
	Platform string
	Channels []string

	PkgCacheDirs []string

	MaxParallelDownloads int
	ExtractThreads        int

	Verification VerificationPolicy

	FetcherMaxRetries  int
	FetcherRetryWaitBase time.Duration
	FetcherRetryBackoff float64

	AllowDowngrade bool
	AllowInsecure  bool

	ChannelAlias string

	LinkMethod LinkMethod

	// UsageDBType/UsageDBURL select the cacheusage backend ("sqlite",
	// "rqlite", or "postgres"). UsageDBURL empty means "derive a default
	// sqlite file under the first PkgCacheDirs entry".
	UsageDBType string
	UsageDBURL  string
}

// Default returns sensible defaults, overridden by CLI flags in
// cmd/binpack.
func Default() Config {
	return Config{
		Platform:             "linux-64",
		MaxParallelDownloads: 5,
		ExtractThreads:       4,
		Verification:         VerificationStrict,
		FetcherMaxRetries:    3,
		FetcherRetryWaitBase: 1 * time.Second,
		FetcherRetryBackoff:  2.0,
		ChannelAlias:         "https://conda.anaconda.org",
		LinkMethod:           LinkHardlink,
		UsageDBType:          "sqlite",
	}
}
