package link

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/binpack/binpack/cache"
	"github.com/binpack/binpack/config"
	"github.com/binpack/binpack/matchspec"
	"github.com/binpack/binpack/transaction"
)

func seedExtractedPackage(t *testing.T, cacheDir string, pkg matchspec.PackageInfo, files map[string]string) {
	t.Helper()
	dir := filepath.Join(cacheDir, cache.ExtractedDirName(pkg))
	for rel, content := range files {
		mustWrite(t, filepath.Join(dir, rel), content)
	}
	var entries []PathEntry
	for rel := range files {
		entries = append(entries, PathEntry{Path: rel, PathType: "hardlink"})
	}
	writeManifest(t, dir, entries)
}

func TestExecutorInstallsAndRemoves(t *testing.T) {
	cacheDir := t.TempDir()
	prefix := t.TempDir()
	mpc := cache.NewMulti(config.VerificationDisabled, cacheDir)

	pkgA := matchspec.PackageInfo{Name: "a", Version: "1.0", BuildString: "0", Fn: "a-1.0-0.conda"}
	seedExtractedPackage(t, cacheDir, pkgA, map[string]string{"bin/a": "A"})

	linker := New(discardLog(), config.LinkCopy)
	ex := NewExecutor(discardLog(), linker, mpc, prefix)

	tx := &transaction.Transaction{Steps: []transaction.Step{
		{Kind: transaction.Install, Package: pkgA},
	}}
	if err := ex.Execute(context.Background(), tx); err != nil {
		t.Fatalf("Execute install failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(prefix, "bin", "a")); err != nil {
		t.Fatalf("expected linked file: %v", err)
	}
	if _, err := ReadMetaRecord(prefix, pkgA); err != nil {
		t.Fatalf("expected conda-meta record: %v", err)
	}

	tx = &transaction.Transaction{Steps: []transaction.Step{
		{Kind: transaction.Remove, Package: pkgA},
	}}
	if err := ex.Execute(context.Background(), tx); err != nil {
		t.Fatalf("Execute remove failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(prefix, "bin", "a")); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err = %v", err)
	}

	history, err := os.ReadFile(filepath.Join(prefix, "conda-meta", "history"))
	if err != nil {
		t.Fatalf("expected conda-meta/history to exist: %v", err)
	}
	if len(history) == 0 {
		t.Fatal("expected non-empty history log")
	}
}

func TestExecutorFailsWithoutExtractedDir(t *testing.T) {
	cacheDir := t.TempDir()
	prefix := t.TempDir()
	mpc := cache.NewMulti(config.VerificationDisabled, cacheDir)
	linker := New(discardLog(), config.LinkCopy)
	ex := NewExecutor(discardLog(), linker, mpc, prefix)

	pkg := matchspec.PackageInfo{Name: "missing", Version: "1.0", BuildString: "0"}
	tx := &transaction.Transaction{Steps: []transaction.Step{
		{Kind: transaction.Install, Package: pkg},
	}}
	if err := ex.Execute(context.Background(), tx); err == nil {
		t.Fatal("expected error for a package with no extracted directory")
	}
}
