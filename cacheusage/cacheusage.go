// Package cacheusage tracks how often each cached package filename is
// hit, fetched, or evicted, so a long-lived cache directory (shared
// across many prefixes, or behind cmd/binpack's S3 mirror) can answer
// "what's actually being used" without reading through every conda-meta
// directory on the machine.
package cacheusage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/a-h/kv"
)

func New(store kv.Store) *UsageLog {
	return &UsageLog{
		store: store,
		now:   time.Now,
	}
}

// UsageLog counts cache hits, fetches, and evictions per package
// filename, bucketed by day, in a kv.Store backing either a local
// sqlite file or a shared rqlite/postgres instance.
type UsageLog struct {
	store kv.Store
	now   func() time.Time
}

// Hit records that fn was already present in the cache and served
// without a network fetch.
func (m *UsageLog) Hit(ctx context.Context, fn string) error {
	return m.bump(ctx, fn, "h")
}

// Fetched records that fn was downloaded (or pulled from the remote
// mirror) and written into the cache.
func (m *UsageLog) Fetched(ctx context.Context, fn string) error {
	return m.bump(ctx, fn, "f")
}

// Evicted records that fn was removed from the cache by Clean.
func (m *UsageLog) Evicted(ctx context.Context, fn string) error {
	return m.bump(ctx, fn, "e")
}

func (m *UsageLog) bump(ctx context.Context, fn, action string) error {
	day := m.now().UTC().Truncate(24 * time.Hour).Format("2006-01-02")
	key := path.Join("/cacheusage", url.PathEscape(fn), day, action)
	// Every time we upsert a key with Put, the version number is incremented.
	return m.store.Put(ctx, key, -1, "")
}

func (m *UsageLog) Get(ctx context.Context, fn string) (stats Stats, ok bool, err error) {
	stats.Fn = fn
	prefix := path.Join("/cacheusage", url.PathEscape(fn)) + "/"

	rows, err := m.store.GetPrefix(ctx, prefix, 0, -1)
	if err != nil {
		return stats, false, err
	}

	for _, row := range rows {
		parts := strings.Split(strings.TrimPrefix(row.Key, "/"), "/")
		if len(parts) != 4 {
			return stats, false, fmt.Errorf("invalid key format: %s", row.Key)
		}
		var count Count
		count.Date, err = time.Parse("2006-01-02", parts[2])
		if err != nil {
			return stats, false, fmt.Errorf("failed to parse date in key %q: %w", row.Key, err)
		}
		count.Count = row.Version

		switch parts[3] {
		case "h":
			stats.Hits = append(stats.Hits, count)
		case "f":
			stats.Fetches = append(stats.Fetches, count)
		case "e":
			stats.Evictions = append(stats.Evictions, count)
		default:
			return stats, false, fmt.Errorf("invalid action in key: %s", row.Key)
		}

		ok = true
	}

	return stats, ok, nil
}

type Stats struct {
	Fn        string
	Hits      []Count
	Fetches   []Count
	Evictions []Count
}

func (s Stats) TotalHits() (total int) {
	for _, c := range s.Hits {
		total += c.Count
	}
	return total
}

func (s Stats) TotalFetches() (total int) {
	for _, c := range s.Fetches {
		total += c.Count
	}
	return total
}

func (s Stats) LastHit() time.Time {
	if len(s.Hits) == 0 {
		return time.Time{}
	}
	return s.Hits[len(s.Hits)-1].Date
}

type Count struct {
	Date  time.Time
	Count int
}
