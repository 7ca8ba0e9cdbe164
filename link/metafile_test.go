package link

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/binpack/binpack/matchspec"
)

func TestWriteAndReadMetaRecord(t *testing.T) {
	prefix := t.TempDir()
	pkg := matchspec.PackageInfo{Name: "foo", Version: "1.0.0", BuildString: "0"}

	if err := WriteMetaRecord(prefix, pkg, []string{"bin/foo", "lib/libfoo.so"}); err != nil {
		t.Fatalf("WriteMetaRecord failed: %v", err)
	}

	rec, err := ReadMetaRecord(prefix, pkg)
	if err != nil {
		t.Fatalf("ReadMetaRecord failed: %v", err)
	}
	if rec.Name != "foo" || len(rec.Files) != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if _, err := os.Stat(filepath.Join(prefix, "conda-meta", "foo-1.0.0-0.json")); err != nil {
		t.Fatalf("expected conda-meta record on disk: %v", err)
	}
}

func TestInstalledPackagesListsRecords(t *testing.T) {
	prefix := t.TempDir()
	a := matchspec.PackageInfo{Name: "a", Version: "1.0", BuildString: "0", Noarch: "python"}
	b := matchspec.PackageInfo{Name: "b", Version: "2.0", BuildString: "0"}
	if err := WriteMetaRecord(prefix, a, nil); err != nil {
		t.Fatal(err)
	}
	if err := WriteMetaRecord(prefix, b, nil); err != nil {
		t.Fatal(err)
	}

	recs, err := InstalledPackages(prefix)
	if err != nil {
		t.Fatalf("InstalledPackages failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
}

func TestRemoveMetaRecordIsIdempotent(t *testing.T) {
	prefix := t.TempDir()
	pkg := matchspec.PackageInfo{Name: "foo", Version: "1.0.0", BuildString: "0"}
	if err := RemoveMetaRecord(prefix, pkg); err != nil {
		t.Fatalf("removing absent record should be a no-op, got %v", err)
	}
}
