package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/binpack/binpack/config"
	"github.com/binpack/binpack/matchspec"
)

func TestLayerCleanRemovesUnreferenced(t *testing.T) {
	dir := t.TempDir()
	l := NewLayer(dir)

	keepPkg := matchspec.PackageInfo{Name: "numpy", Version: "1.26.0", BuildString: "py312h0", Fn: "numpy-1.26.0-py312h0.conda"}
	dropPkg := matchspec.PackageInfo{Name: "scipy", Version: "1.11.0", BuildString: "py312h0", Fn: "scipy-1.11.0-py312h0.conda"}

	for _, pkg := range []matchspec.PackageInfo{keepPkg, dropPkg} {
		if err := os.WriteFile(filepath.Join(dir, pkg.Fn), []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
		extractedDir := filepath.Join(dir, ExtractedDirName(pkg))
		infoDir := filepath.Join(extractedDir, "info")
		if err := os.MkdirAll(infoDir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(infoDir, "repodata_record.json"), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	// A directory that looks nothing like a package extraction (no
	// info/repodata_record.json) must survive untouched.
	unrelatedDir := filepath.Join(dir, "not-a-package")
	if err := os.MkdirAll(unrelatedDir, 0o755); err != nil {
		t.Fatal(err)
	}

	keep := map[string]bool{keepPkg.Fn: true, ExtractedDirName(keepPkg): true}
	res, err := l.Clean(keep)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}

	if len(res.RemovedTarballs) != 1 || res.RemovedTarballs[0] != dropPkg.Fn {
		t.Errorf("expected only %s removed, got %v", dropPkg.Fn, res.RemovedTarballs)
	}
	if len(res.RemovedExtractedDirs) != 1 || res.RemovedExtractedDirs[0] != ExtractedDirName(dropPkg) {
		t.Errorf("expected only %s removed, got %v", ExtractedDirName(dropPkg), res.RemovedExtractedDirs)
	}

	if _, err := os.Stat(filepath.Join(dir, keepPkg.Fn)); err != nil {
		t.Errorf("kept tarball should still exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, dropPkg.Fn)); !os.IsNotExist(err) {
		t.Errorf("dropped tarball should be gone, got err=%v", err)
	}
	if _, err := os.Stat(unrelatedDir); err != nil {
		t.Errorf("unrelated directory should be left alone: %v", err)
	}
}

func TestMultiPackageCacheCleanAggregatesAndRecordsUsage(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	m := NewMulti(config.VerificationPolicy(""), dirA, dirB)

	dropPkg := matchspec.PackageInfo{Name: "scipy", Version: "1.11.0", BuildString: "py312h0", Fn: "scipy-1.11.0-py312h0.conda"}
	if err := os.WriteFile(filepath.Join(dirA, dropPkg.Fn), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	results, err := m.Clean(context.Background(), map[string]bool{})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected one result per layer, got %d", len(results))
	}
	if len(results[0].RemovedTarballs) != 1 {
		t.Errorf("expected dirA's tarball removed, got %v", results[0])
	}
}
