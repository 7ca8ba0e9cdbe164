package link

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/binpack/binpack/errs"
)

// PrefixLock serializes transactions mutating the same prefix via an
// exclusive-create lock file under conda-meta/. No ecosystem file-lock
// library appears anywhere in the retrieved pack, so this follows the
// same stdlib-direct precedent as the rest of the cache/fetch layers:
// O_EXCL is atomic on every platform Go targets, which is all a single
// advisory lock file needs.
type PrefixLock struct {
	path string
	held bool
}

func NewPrefixLock(prefix string) *PrefixLock {
	return &PrefixLock{path: filepath.Join(prefix, "conda-meta", ".lock")}
}

// Acquire retries until timeout elapses, then returns a LockFileBusy
// error.
func (l *PrefixLock) Acquire(timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			l.held = true
			return nil
		}
		if !os.IsExist(err) {
			return err
		}
		if time.Now().After(deadline) {
			return errs.New(errs.LockFileBusy, l.path, fmt.Errorf("timed out after %s", timeout))
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Release removes the lock file. A no-op if not held.
func (l *PrefixLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	return os.Remove(l.path)
}
