package cache

import (
	"context"
	"path/filepath"

	"github.com/binpack/binpack/cacheusage"
	"github.com/binpack/binpack/config"
	"github.com/binpack/binpack/matchspec"
)

// MultiPackageCache composes an ordered list of layers, first-hit across
// layers.
type MultiPackageCache struct {
	Layers []*Layer
	Policy config.VerificationPolicy

	// Mirror, when set, is consulted after a local cache miss and
	// before falling back to a channel's own origin fetch.
	Mirror RemoteMirror

	// Usage, when set, records per-filename hit/fetch/eviction counts
	// for later inspection (e.g. deciding what a shared cache actually
	// needs to keep warm).
	Usage *cacheusage.UsageLog
}

// RecordHit notes that fn was already present in the cache and served
// without a network fetch. A no-op when no Usage log is attached.
func (m *MultiPackageCache) RecordHit(ctx context.Context, fn string) {
	if m.Usage == nil {
		return
	}
	_ = m.Usage.Hit(ctx, fn)
}

// RecordFetched notes that fn was downloaded or pulled from the mirror
// and written into the cache. A no-op when no Usage log is attached.
func (m *MultiPackageCache) RecordFetched(ctx context.Context, fn string) {
	if m.Usage == nil {
		return
	}
	_ = m.Usage.Fetched(ctx, fn)
}

// RecordEvicted notes that fn was removed from the cache by Clean. A
// no-op when no Usage log is attached.
func (m *MultiPackageCache) RecordEvicted(ctx context.Context, fn string) {
	if m.Usage == nil {
		return
	}
	_ = m.Usage.Evicted(ctx, fn)
}

// TryMirror attempts to satisfy a tarball cache miss from m.Mirror,
// downloading it straight into the first writable layer. It reports
// (false, nil) when no mirror is configured or the mirror doesn't have
// pkg, distinguishing that from a transport error worth logging.
func (m *MultiPackageCache) TryMirror(ctx context.Context, pkg matchspec.PackageInfo) (bool, error) {
	if m.Mirror == nil {
		return false, nil
	}
	dest, ok := m.TarballPath(pkg)
	if !ok {
		return false, nil
	}
	_, exists, err := m.Mirror.Stat(ctx, pkg.Fn)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if err := m.Mirror.Get(ctx, pkg.Fn, dest); err != nil {
		return false, err
	}
	m.Invalidate(pkg)
	m.RecordFetched(ctx, pkg.Fn)
	return true, nil
}

// PutMirror uploads a freshly verified tarball to m.Mirror for reuse by
// other installs; a no-op when no mirror is configured.
func (m *MultiPackageCache) PutMirror(ctx context.Context, pkg matchspec.PackageInfo, srcPath string) error {
	if m.Mirror == nil {
		return nil
	}
	return m.Mirror.Put(ctx, pkg.Fn, srcPath)
}

func NewMulti(policy config.VerificationPolicy, dirs ...string) *MultiPackageCache {
	m := &MultiPackageCache{Policy: policy}
	for _, d := range dirs {
		m.Layers = append(m.Layers, NewLayer(d))
	}
	return m
}

// HasValidTarball reports whether any layer has a valid tarball for pkg.
func (m *MultiPackageCache) HasValidTarball(pkg matchspec.PackageInfo) (bool, *Layer) {
	for _, l := range m.Layers {
		if l.HasValidTarball(pkg, m.Policy) {
			return true, l
		}
	}
	return false, nil
}

// HasValidExtractedDir reports whether any layer has a valid extracted
// directory for pkg.
func (m *MultiPackageCache) HasValidExtractedDir(pkg matchspec.PackageInfo) (bool, *Layer) {
	for _, l := range m.Layers {
		if l.HasValidExtractedDir(pkg, m.Policy) {
			return true, l
		}
	}
	return false, nil
}

// FirstWritable returns the first layer that is (or can become) writable,
// creating a missing layer's directory if possible.
func (m *MultiPackageCache) FirstWritable() *Layer {
	for _, l := range m.Layers {
		if w := l.Writable(); w == Writable {
			return l
		}
	}
	return nil
}

// TarballPath returns the path fetched artifacts for pkg should target:
// the first writable layer's root joined with pkg.Fn.
func (m *MultiPackageCache) TarballPath(pkg matchspec.PackageInfo) (string, bool) {
	l := m.FirstWritable()
	if l == nil {
		return "", false
	}
	return filepath.Join(l.Root, pkg.Fn), true
}

// ExtractedPath returns the extracted-directory destination on the first
// writable layer.
func (m *MultiPackageCache) ExtractedPath(pkg matchspec.PackageInfo) (string, bool) {
	l := m.FirstWritable()
	if l == nil {
		return "", false
	}
	return filepath.Join(l.Root, ExtractedDirName(pkg)), true
}

// Invalidate clears memoized validity for pkg across every layer.
func (m *MultiPackageCache) Invalidate(pkg matchspec.PackageInfo) {
	for _, l := range m.Layers {
		l.Invalidate(pkg)
	}
}
