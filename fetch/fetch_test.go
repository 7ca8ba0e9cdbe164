package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/binpack/binpack/cancel"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPerformFetchesAndVerifiesChecksum(t *testing.T) {
	body := []byte("hello world repodata")
	sum := sha256.Sum256(body)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc"`)
		w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(discardLog(), srv.Client(), cancel.New())
	res := f.Perform(t.Context(), Target{
		URL:          srv.URL,
		Dest:         filepath.Join(dir, "out.bin"),
		ExpectSHA256: hex.EncodeToString(sum[:]),
		ExpectSize:   int64(len(body)),
	})
	if res.Status != StatusFetched {
		t.Fatalf("expected StatusFetched, got %v (err=%v)", res.Status, res.Err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "out.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(body) {
		t.Fatalf("unexpected contents: %q", got)
	}
	if res.ETag != `"abc"` {
		t.Fatalf("expected ETag to be captured, got %q", res.ETag)
	}
}

func TestPerformChecksumMismatchNeverRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("not what you expected"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(discardLog(), srv.Client(), cancel.New())
	f.MaxRetries = 2
	res := f.Perform(t.Context(), Target{
		URL:          srv.URL,
		Dest:         filepath.Join(dir, "out.bin"),
		ExpectSHA256: "deadbeef",
	})
	if res.Status != StatusFailed {
		t.Fatalf("expected StatusFailed, got %v", res.Status)
	}
	if calls != 1 {
		t.Fatalf("checksum mismatch must not be retried, got %d calls", calls)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.bin")); !os.IsNotExist(err) {
		t.Fatalf("destination file must not exist after checksum failure")
	}
}

func TestPerform304LeavesNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"abc"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		t.Fatalf("expected conditional request with If-None-Match")
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(discardLog(), srv.Client(), cancel.New())
	res := f.Perform(t.Context(), Target{
		URL:       srv.URL,
		Dest:      filepath.Join(dir, "out.bin"),
		PriorETag: `"abc"`,
	})
	if res.Status != StatusNotModified {
		t.Fatalf("expected StatusNotModified, got %v", res.Status)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.bin")); !os.IsNotExist(err) {
		t.Fatalf("304 must not write a file")
	}
}

func TestPerformRetriesTransientFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(discardLog(), srv.Client(), cancel.New())
	f.RetryWait = 0
	res := f.Perform(t.Context(), Target{URL: srv.URL, Dest: filepath.Join(dir, "out.bin")})
	if res.Status != StatusFetched {
		t.Fatalf("expected eventual success, got %v (err=%v)", res.Status, res.Err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestMultiFetcherFailFastAbortsRemaining(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(discardLog(), srv.Client(), cancel.New())
	mf := NewMulti(f, 1)
	mf.FailFast = true

	targets := []Target{
		{URL: srv.URL + "/bad", Dest: filepath.Join(dir, "a.bin")},
		{URL: srv.URL + "/ok", Dest: filepath.Join(dir, "b.bin")},
	}
	results := mf.PerformAll(t.Context(), targets)
	if results[0].Status != StatusFailed {
		t.Fatalf("expected first target to fail, got %v", results[0].Status)
	}
}
