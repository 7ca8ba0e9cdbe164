package link

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/binpack/binpack/config"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeManifest(t *testing.T, source string, entries []PathEntry) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(source, "info"), 0o755); err != nil {
		t.Fatal(err)
	}
	m := PathsManifest{PathsVersion: 1, Paths: entries}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(source, "info", "paths.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLinkPackageHardlinksFile(t *testing.T) {
	source := t.TempDir()
	prefix := t.TempDir()

	mustWrite(t, filepath.Join(source, "bin", "foo"), "#!/bin/sh\n")
	writeManifest(t, source, []PathEntry{{Path: "bin/foo", PathType: "hardlink"}})

	l := New(discardLog(), config.LinkHardlink)
	res, err := l.LinkPackage(source, prefix)
	if err != nil {
		t.Fatalf("LinkPackage failed: %v", err)
	}
	res.Commit()

	got, err := os.ReadFile(filepath.Join(prefix, "bin", "foo"))
	if err != nil {
		t.Fatalf("expected linked file: %v", err)
	}
	if string(got) != "#!/bin/sh\n" {
		t.Fatalf("content mismatch: %q", got)
	}
	if len(res.LinkedPaths) != 1 || res.LinkedPaths[0] != "bin/foo" {
		t.Fatalf("unexpected LinkedPaths: %v", res.LinkedPaths)
	}
}

func TestLinkPackageRewritesTextPlaceholder(t *testing.T) {
	source := t.TempDir()
	prefix := t.TempDir()
	placeholder := "/opt/anaconda1anaconda2anaconda3"

	mustWrite(t, filepath.Join(source, "bin", "activate"), "#!/bin/sh\nexport PREFIX="+placeholder+"\n")
	writeManifest(t, source, []PathEntry{{
		Path: "bin/activate", PathType: "hardlink",
		PrefixPlaceholder: placeholder, FileMode: "text",
	}})

	l := New(discardLog(), config.LinkHardlink)
	res, err := l.LinkPackage(source, prefix)
	if err != nil {
		t.Fatalf("LinkPackage failed: %v", err)
	}
	res.Commit()

	got, err := os.ReadFile(filepath.Join(prefix, "bin", "activate"))
	if err != nil {
		t.Fatal(err)
	}
	want := "#!/bin/sh\nexport PREFIX=" + prefix + "\n"
	if string(got) != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestLinkPackageRewritesBinaryPlaceholderNullPadded(t *testing.T) {
	source := t.TempDir()
	// prefix shorter than placeholder, leaving room for NUL padding: a
	// t.TempDir() path is longer than the classic 32-byte placeholder, so
	// the placeholder is padded out the way long binary placeholders are.
	prefix := t.TempDir()
	placeholder := "/opt/anaconda1anaconda2anaconda3" +
		"_placehold_placehold_placehold_placehold_placehold_placehold_placehold_placehold" +
		"_placehold_placehold_placehold_placehold_placehold_placehold_placehold_placehold"

	payload := "HEAD" + placeholder + "TAIL"
	mustWrite(t, filepath.Join(source, "bin", "tool"), payload)
	writeManifest(t, source, []PathEntry{{
		Path: "bin/tool", PathType: "hardlink",
		PrefixPlaceholder: placeholder, FileMode: "binary",
	}})

	l := New(discardLog(), config.LinkHardlink)
	res, err := l.LinkPackage(source, prefix)
	if err != nil {
		t.Fatalf("LinkPackage failed: %v", err)
	}
	res.Commit()

	got, err := os.ReadFile(filepath.Join(prefix, "bin", "tool"))
	if err != nil {
		t.Fatal(err)
	}
	wantLen := len(payload)
	if len(got) != wantLen {
		t.Fatalf("binary rewrite changed length: got %d want %d (offsets must be preserved)", len(got), wantLen)
	}
	paddedPrefix := prefix + string(make([]byte, len(placeholder)-len(prefix)))
	want := "HEAD" + paddedPrefix + "TAIL"
	if string(got) != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestLinkPackageRollsBackOnFailure(t *testing.T) {
	source := t.TempDir()
	prefix := t.TempDir()
	mustWrite(t, filepath.Join(source, "bin", "ok"), "fine")
	writeManifest(t, source, []PathEntry{
		{Path: "bin/ok", PathType: "hardlink"},
		{Path: "bin/bad", PathType: "unsupported-type"},
	})

	l := New(discardLog(), config.LinkHardlink)
	_, err := l.LinkPackage(source, prefix)
	if err == nil {
		t.Fatal("expected error from unsupported path type")
	}
	if _, statErr := os.Stat(filepath.Join(prefix, "bin", "ok")); !os.IsNotExist(statErr) {
		t.Fatalf("expected rollback to remove bin/ok, stat err = %v", statErr)
	}
}

func TestLinkPackageMovesAsideExistingFile(t *testing.T) {
	source := t.TempDir()
	prefix := t.TempDir()
	mustWrite(t, filepath.Join(source, "bin", "foo"), "new")
	mustWrite(t, filepath.Join(prefix, "bin", "foo"), "old")
	writeManifest(t, source, []PathEntry{{Path: "bin/foo", PathType: "hardlink"}})

	l := New(discardLog(), config.LinkCopy)
	res, err := l.LinkPackage(source, prefix)
	if err != nil {
		t.Fatalf("LinkPackage failed: %v", err)
	}

	got, _ := os.ReadFile(filepath.Join(prefix, "bin", "foo"))
	if string(got) != "new" {
		t.Fatalf("expected new content before commit, got %q", got)
	}

	if err := res.Rollback(); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	got, err = os.ReadFile(filepath.Join(prefix, "bin", "foo"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "old" {
		t.Fatalf("expected rollback to restore old content, got %q", got)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
