package repodata

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/binpack/binpack/fetch"
)

// LoadResult pairs a subdir's outcome with its identity, for callers that
// load many (channel, subdir) pairs at once.
type LoadResult struct {
	Channel string
	Subdir  string
	Index   *SubdirIndex
	Err     error
}

// LoadAll loads every (channel, baseURL, subdir) triple concurrently,
// bounded by maxParallel. A fatal failure on one subdir is recorded in
// its LoadResult.Err and does not abort the others, matching the "must
// not poison other subdirs in a run" failure semantics of a single
// channel fetch.
func LoadAll(ctx context.Context, log *slog.Logger, fetcher *fetch.Fetcher, cacheRoot string, channels []ChannelSpec, maxParallel int) []LoadResult {
	if maxParallel < 1 {
		maxParallel = 1
	}
	results := make([]LoadResult, len(channels))
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for i, c := range channels {
		wg.Add(1)
		go func(i int, c ChannelSpec) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			cacheDir := filepath.Join(cacheRoot, sanitizeChannelDir(c.Name))
			idx := New(log, fetcher, c.Name, c.Subdir, c.BaseURL, cacheDir)
			err := idx.Load(ctx)
			results[i] = LoadResult{Channel: c.Name, Subdir: c.Subdir, Index: idx, Err: err}
		}(i, c)
	}
	wg.Wait()
	return results
}

// ChannelSpec names one (channel, subdir) pair to load, already resolved
// from a channel.Target by the caller.
type ChannelSpec struct {
	Name    string
	BaseURL string
	Subdir  string
}

func sanitizeChannelDir(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
