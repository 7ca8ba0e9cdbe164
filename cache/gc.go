package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// GCResult reports what Clean removed from one layer.
type GCResult struct {
	RemovedTarballs      []string
	RemovedExtractedDirs []string
	FreedBytes           int64
}

// Clean removes every tarball and extracted directory in l that isn't
// named in keep (typically the filenames of every installed package,
// plus anything still referenced by a pending transaction). Entries
// Clean can't recognize as either a tarball or an extracted package
// directory (a directory holding info/repodata_record.json, or a
// ".conda"/".tar.bz2" archive file) are left alone.
func (l *Layer) Clean(keep map[string]bool) (GCResult, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return GCResult{}, nil
		}
		return GCResult{}, err
	}

	var res GCResult
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".state.json") {
			continue
		}

		if e.IsDir() {
			if keep[name] {
				continue
			}
			full := filepath.Join(l.Root, name)
			if _, err := os.Stat(filepath.Join(full, "info", "repodata_record.json")); err != nil {
				continue // not a package extraction directory, leave it
			}
			if err := os.RemoveAll(full); err != nil {
				return res, err
			}
			res.RemovedExtractedDirs = append(res.RemovedExtractedDirs, name)
			continue
		}

		if keep[name] || !isArchiveName(name) {
			continue
		}
		full := filepath.Join(l.Root, name)
		if info, err := e.Info(); err == nil {
			res.FreedBytes += info.Size()
		}
		if err := os.Remove(full); err != nil {
			return res, err
		}
		res.RemovedTarballs = append(res.RemovedTarballs, name)
	}

	l.mu.Lock()
	l.tarballMemo = make(map[string]bool)
	l.extractMemo = make(map[string]bool)
	l.mu.Unlock()

	return res, nil
}

func isArchiveName(name string) bool {
	return strings.HasSuffix(name, ".conda") || strings.HasSuffix(name, ".tar.bz2")
}

// Clean runs Clean on every layer, aggregating the results in layer
// order and recording each removal against m.Usage.
func (m *MultiPackageCache) Clean(ctx context.Context, keep map[string]bool) ([]GCResult, error) {
	results := make([]GCResult, 0, len(m.Layers))
	for _, l := range m.Layers {
		r, err := l.Clean(keep)
		if err != nil {
			return results, err
		}
		for _, fn := range r.RemovedTarballs {
			m.RecordEvicted(ctx, fn)
		}
		for _, dir := range r.RemovedExtractedDirs {
			m.RecordEvicted(ctx, dir)
		}
		results = append(results, r)
	}
	return results, nil
}
