package repodata

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/binpack/binpack/cancel"
	"github.com/binpack/binpack/fetch"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sampleRepodata = `{
  "info": {"subdir": "linux-64"},
  "packages": {
    "foo-1.0.0-0.tar.bz2": {
      "name": "foo", "version": "1.0.0", "build": "0", "build_number": 0,
      "depends": [], "md5": "d41d8cd98f00b204e9800998ecf8427e", "size": 100, "timestamp": 0
    }
  },
  "packages.conda": {}
}`

func TestLoadFreshFetch(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Write([]byte(sampleRepodata))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := fetch.New(discardLog(), srv.Client(), cancel.New())
	idx := New(discardLog(), f, "main", "linux-64", srv.URL, dir)

	if err := idx.Load(t.Context()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if idx.Status() != Loaded {
		t.Fatalf("expected Loaded, got %v", idx.Status())
	}
	snap := idx.Snapshot()
	if len(snap.Packages) != 1 {
		t.Fatalf("expected 1 package, got %d", len(snap.Packages))
	}
	if pkg, ok := snap.Packages["foo-1.0.0-0.tar.bz2"]; !ok || pkg.Name != "foo" {
		t.Fatalf("expected foo package present, got %+v", snap.Packages)
	}

	// A second load within max-age must not re-fetch.
	idx2 := New(discardLog(), f, "main", "linux-64", srv.URL, dir)
	if err := idx2.Load(t.Context()); err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if idx2.Status() != Loaded {
		t.Fatalf("expected Loaded (via CacheFresh) on second load, got %v", idx2.Status())
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 HTTP call across both loads, got %d", calls)
	}
}

func TestLoadEmptyRepodataYieldsEmptySnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"info":{"subdir":"linux-64"},"packages":{},"packages.conda":{}}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := fetch.New(discardLog(), srv.Client(), cancel.New())
	idx := New(discardLog(), f, "main", "linux-64", srv.URL, dir)

	if err := idx.Load(t.Context()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(idx.Snapshot().Packages) != 0 {
		t.Fatalf("expected empty snapshot, got %d packages", len(idx.Snapshot().Packages))
	}
}

func TestLoad304ReusesCachedSnapshot(t *testing.T) {
	serveFull := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !serveFull && r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(sampleRepodata))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := fetch.New(discardLog(), srv.Client(), cancel.New())

	idx := New(discardLog(), f, "main", "linux-64", srv.URL, dir)
	if err := idx.Load(t.Context()); err != nil {
		t.Fatalf("first Load failed: %v", err)
	}

	serveFull = false
	idx2 := New(discardLog(), f, "main", "linux-64", srv.URL, dir)
	if err := idx2.Load(t.Context()); err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if idx2.Status() != Loaded {
		t.Fatalf("expected Loaded after 304, got %v", idx2.Status())
	}
	if len(idx2.Snapshot().Packages) != 1 {
		t.Fatalf("expected cached package to survive a 304, got %d", len(idx2.Snapshot().Packages))
	}
}

func TestLoadFatalErrorDoesNotPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := fetch.New(discardLog(), srv.Client(), cancel.New())
	idx := New(discardLog(), f, "main", "linux-64", srv.URL, dir)

	err := idx.Load(t.Context())
	if err == nil {
		t.Fatal("expected an error for a 404 subdir")
	}
	if idx.Status() != Error {
		t.Fatalf("expected Error status, got %v", idx.Status())
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	snap, err := ParseSnapshot("main", "linux-64", []byte(sampleRepodata))
	if err != nil {
		t.Fatalf("ParseSnapshot failed: %v", err)
	}
	out, err := snap.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	reparsed, err := ParseSnapshot("main", "linux-64", out)
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	if len(reparsed.Packages) != len(snap.Packages) {
		t.Fatalf("round trip lost packages: got %d want %d", len(reparsed.Packages), len(snap.Packages))
	}
}

func TestLoaderCachePath(t *testing.T) {
	dir := t.TempDir()
	idx := New(discardLog(), nil, "my-channel", "linux-64", "http://example.invalid", filepath.Join(dir, "x"))
	if idx.CacheDir == "" {
		t.Fatal("expected non-empty cache dir")
	}
}
