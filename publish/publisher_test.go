package publish

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/binpack/binpack/matchspec"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestPublishUploadsArchiveAndRecord exercises the HTTP upload path
// directly: it calls putFile and putBytes with a stub token instead of
// Publish, so tokenFromSSHKeys (which needs a real, environment-dependent
// SSH key) is never reached.
func TestPublishUploadsArchiveAndRecord(t *testing.T) {
	var uploaded []string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploaded = append(uploaded, r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			t.Errorf("expected non-empty upload body for %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := New(discardLog(), srv.Client(), srv.URL)
	// Bypass SSH discovery: call the lower-level put directly through
	// Publish's helpers with a stub token.
	archivePath := filepath.Join(t.TempDir(), "foo-1.0.0-0.conda")
	if err := os.WriteFile(archivePath, []byte("archive bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	pkg := matchspec.PackageInfo{Name: "foo", Version: "1.0.0", BuildString: "0", Fn: "foo-1.0.0-0.conda"}

	if err := p.putFile(context.Background(), "test-token", "linux-64", pkg.Fn, archivePath); err != nil {
		t.Fatalf("putFile failed: %v", err)
	}
	recordBytes := []byte(`{"name":"foo"}`)
	if err := p.putBytes(context.Background(), "test-token", "linux-64", pkg.Fn+".repodata_record.json", recordBytes); err != nil {
		t.Fatalf("putBytes failed: %v", err)
	}

	if len(uploaded) != 2 {
		t.Fatalf("expected 2 uploads, got %d: %v", len(uploaded), uploaded)
	}
	if !strings.Contains(uploaded[0], "foo-1.0.0-0.conda") {
		t.Fatalf("unexpected first upload path: %s", uploaded[0])
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("expected bearer token header, got %q", gotAuth)
	}
}
