package repodata

import (
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// decompressTo detects srcPath's codec by extension (.zst, .bz2, .json/
// uncompressed) and streams the decompressed bytes into a sibling temp
// file, atomically renaming it to dstPath on success. No ecosystem
// decompress-only library for bzip2 appears anywhere in the retrieved
// corpus, so compress/bzip2 (read-only, which is all a client needs) is
// used directly; zstd uses the pack's klauspost/compress, which already
// appears transitively for the server side.
func decompressTo(srcPath, dstPath string) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	var r io.Reader
	switch {
	case strings.HasSuffix(srcPath, ".zst"):
		zr, err := zstd.NewReader(in)
		if err != nil {
			return fmt.Errorf("repodata: open zstd stream: %w", err)
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(srcPath, ".bz2"):
		r = bzip2.NewReader(in)
	default:
		r = in
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dstPath), ".repodata-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("repodata: decompress %s: %w", srcPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, dstPath)
}
