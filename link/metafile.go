package link

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/binpack/binpack/matchspec"
)

// MetaRecord is the conda-meta/<name>-<version>-<build>.json contents:
// the installed package's full metadata plus the list of files this
// transaction linked for it. Its presence under <prefix>/conda-meta/
// is itself the "is this package installed" signal.
type MetaRecord struct {
	matchspec.PackageInfo
	Files []string `json:"files"`
}

// MetaFileName is the conda-meta record name for pkg.
func MetaFileName(pkg matchspec.PackageInfo) string {
	return pkg.String() + ".json"
}

// WriteMetaRecord writes the pre-link metadata record for pkg into
// <prefix>/conda-meta/. Called after LinkPackage succeeds, so
// Files reflects exactly what was materialized.
func WriteMetaRecord(prefix string, pkg matchspec.PackageInfo, files []string) error {
	dir := filepath.Join(prefix, "conda-meta")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	rec := MetaRecord{PackageInfo: pkg, Files: files}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, MetaFileName(pkg)), data, 0o644)
}

// ReadMetaRecord loads a package's conda-meta record, or reports
// os.IsNotExist if the package isn't installed.
func ReadMetaRecord(prefix string, pkg matchspec.PackageInfo) (MetaRecord, error) {
	data, err := os.ReadFile(filepath.Join(prefix, "conda-meta", MetaFileName(pkg)))
	if err != nil {
		return MetaRecord{}, err
	}
	var rec MetaRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return MetaRecord{}, fmt.Errorf("link: corrupt conda-meta record for %s: %w", pkg.String(), err)
	}
	return rec, nil
}

// RemoveMetaRecord deletes pkg's conda-meta record, the final step of
// an unlink.
func RemoveMetaRecord(prefix string, pkg matchspec.PackageInfo) error {
	err := os.Remove(filepath.Join(prefix, "conda-meta", MetaFileName(pkg)))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// InstalledPackages lists every package with a conda-meta record in
// prefix, used by TransactionPlanner's noarch-python relink pass.
func InstalledPackages(prefix string) ([]MetaRecord, error) {
	dir := filepath.Join(prefix, "conda-meta")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []MetaRecord
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" || e.Name() == "history" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var rec MetaRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
