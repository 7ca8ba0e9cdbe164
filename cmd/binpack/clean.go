package main

import (
	"context"
	"fmt"

	"github.com/binpack/binpack/cmd/globals"
	"github.com/binpack/binpack/config"
)

type CleanCmd struct {
	Prefix      string   `help:"Environment prefix whose installed set to retain" default:"." type:"path" env:"BINPACK_PREFIX"`
	PkgCacheDir []string `help:"Package cache directory to clean" env:"BINPACK_PKG_CACHE_DIRS"`

	UsageDBType string `help:"Cache usage log backend: sqlite, rqlite, or postgres" default:"sqlite" enum:"sqlite,rqlite,postgres" env:"BINPACK_USAGE_DB_TYPE"`
	UsageDBURL  string `help:"Cache usage log DSN; defaults to a sqlite file under the first package cache dir" env:"BINPACK_USAGE_DB_URL"`
}

func (cmd *CleanCmd) Run(g *globals.Globals) error {
	log := newLogger(g.Verbose)

	cfg := config.Default()
	cfg.Prefix = cmd.Prefix
	if len(cmd.PkgCacheDir) > 0 {
		cfg.PkgCacheDirs = cmd.PkgCacheDir
	} else {
		cfg.PkgCacheDirs = []string{cmd.Prefix + "/pkgs"}
	}
	if cmd.UsageDBType != "" {
		cfg.UsageDBType = cmd.UsageDBType
	}
	cfg.UsageDBURL = cmd.UsageDBURL

	installed, err := installedSet(cmd.Prefix)
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(installed))
	for fn, pkg := range installed {
		keep[fn] = true
		keep[pkg.String()] = true
	}

	ctx := context.Background()
	mpc := newMultiCache(cfg)
	closeUsage := attachUsageLog(ctx, log, mpc, cfg)
	defer closeUsage()

	results, err := mpc.Clean(ctx, keep)
	if err != nil {
		return err
	}

	var freed int64
	var tarballs, dirs int
	for _, r := range results {
		tarballs += len(r.RemovedTarballs)
		dirs += len(r.RemovedExtractedDirs)
		freed += r.FreedBytes
	}
	log.Info("cache cleaned", "removedTarballs", tarballs, "removedExtractedDirs", dirs, "freedBytes", freed)
	fmt.Printf("removed %d tarball(s) and %d extracted directory(ies), freed %d bytes\n", tarballs, dirs, freed)
	return nil
}
