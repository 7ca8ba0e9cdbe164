package link

import (
	"os"
	"path/filepath"

	"github.com/binpack/binpack/errs"
	"github.com/binpack/binpack/matchspec"
)

// UnlinkPackage removes every file a prior LinkPackage materialized
// for pkg (read back from its conda-meta record) and then the record
// itself. Missing files are tolerated: an environment that was
// partially hand-edited shouldn't make removal impossible.
func UnlinkPackage(prefix string, pkg matchspec.PackageInfo) error {
	rec, err := ReadMetaRecord(prefix, pkg)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.New(errs.LinkFailure, pkg.String(), err)
	}

	for _, rel := range rec.Files {
		full := filepath.Join(prefix, rel)
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return errs.New(errs.LinkFailure, rel, err)
		}
		removeEmptyParents(prefix, filepath.Dir(full))
	}
	return RemoveMetaRecord(prefix, pkg)
}

// removeEmptyParents removes dir and its ancestors (stopping at
// prefix) as long as each is empty, matching conda's behavior of not
// leaving behind empty site-packages/bin-style directories.
func removeEmptyParents(prefix, dir string) {
	for {
		if dir == prefix || dir == "." || dir == string(filepath.Separator) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
