package link

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/binpack/binpack/matchspec"
)

// AppendHistory appends one entry to conda-meta/history, the
// append-only record of user requests and link/unlink operations.
// Entries follow conda's "# comment line, then +spec/-spec lines"
// shape: a timestamped header line for the request, one "+name-
// version-build" line per package linked and one "-name-version-
// build" line per package unlinked.
func AppendHistory(prefix, action string, linked, unlinked []matchspec.PackageInfo) error {
	path := filepath.Join(prefix, "conda-meta", "history")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "==> %s <==\n", time.Now().UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "# cmd: %s\n", action)
	for _, p := range linked {
		fmt.Fprintf(&b, "+%s\n", p.String())
	}
	for _, p := range unlinked {
		fmt.Fprintf(&b, "-%s\n", p.String())
	}
	_, err = f.WriteString(b.String())
	return err
}
