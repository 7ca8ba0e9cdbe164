package cache

import (
	"io"
	"os"
	"path/filepath"
)

// atomicWriteFile streams r into a temp file beside dest and renames it
// into place, so a RemoteMirror.Get that is interrupted never leaves a
// half-written tarball for HasValidTarball to trip over.
func atomicWriteFile(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".mirror-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, dest)
}

func openFile(path string) (io.ReadCloser, error) {
	return os.Open(path)
}
