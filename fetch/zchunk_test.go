package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func fileModTime() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func newReadSeeker(data []byte) io.ReadSeeker {
	return bytes.NewReader(data)
}

func chunkOf(data []byte, offset, size int64) Chunk {
	sum := sha256.Sum256(data[offset : offset+size])
	return Chunk{Offset: offset, Size: size, SHA256: hex.EncodeToString(sum[:])}
}

func TestRangeFetcherDownloadsAllChunksWithoutSource(t *testing.T) {
	data := []byte("hello-world-this-is-a-test-payload-of-some-length")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "artifact", fileModTime(), newReadSeeker(data))
	}))
	defer srv.Close()

	half := int64(len(data)) / 2
	chunks := []Chunk{
		chunkOf(data, 0, half),
		chunkOf(data, half, int64(len(data))-half),
	}

	dest := t.TempDir() + "/out.bin"
	rf := NewRangeFetcher(nil)
	res, err := rf.Perform(context.Background(), RangeTarget{
		URL: srv.URL, Dest: dest, Chunks: chunks, TotalSize: int64(len(data)),
	})
	if err != nil {
		t.Fatalf("Perform failed: %v", err)
	}
	if res.Status != StatusFetched {
		t.Fatalf("expected StatusFetched, got %v", res.Status)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading dest: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("assembled content mismatch: got %q want %q", got, data)
	}
}

func TestRangeFetcherReusesMatchingSourceChunks(t *testing.T) {
	data := []byte("hello-world-this-is-a-test-payload-of-some-length")
	changed := []byte("HELLO-world-this-is-a-test-payload-of-some-length")

	var rangeRequests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeRequests++
		http.ServeContent(w, r, "artifact", fileModTime(), newReadSeeker(changed))
	}))
	defer srv.Close()

	half := int64(len(data)) / 2
	chunks := []Chunk{
		chunkOf(changed, 0, half),
		chunkOf(changed, half, int64(len(changed))-half),
	}

	sourcePath := t.TempDir() + "/source.bin"
	if err := os.WriteFile(sourcePath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir() + "/out.bin"
	rf := NewRangeFetcher(nil)
	_, err := rf.Perform(context.Background(), RangeTarget{
		URL: srv.URL, Dest: dest, Chunks: chunks, TotalSize: int64(len(changed)), SourceCopy: sourcePath,
	})
	if err != nil {
		t.Fatalf("Perform failed: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(changed) {
		t.Fatalf("assembled content mismatch: got %q want %q", got, changed)
	}
	if rangeRequests != 1 {
		t.Fatalf("expected only the first (changed) chunk to be downloaded, got %d requests", rangeRequests)
	}
}
