package pipeline

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// extractArchive extracts a package archive (.tar.bz2 or .conda) into
// destDir, which must already exist. Grounded on the bsdtar-style
// entry-by-entry copy loop of extract_archive in package_handling.cpp,
// adapted to Go's archive/tar and rewritten to reject path traversal
// (the ARCHIVE_EXTRACT_SECURE_* flags there) explicitly rather than
// relying on a C library's extraction flags.
func extractArchive(srcPath, destDir string) error {
	switch {
	case strings.HasSuffix(srcPath, ".tar.bz2"):
		return extractTarBz2(srcPath, destDir)
	case strings.HasSuffix(srcPath, ".conda"):
		return extractCondaV2(srcPath, destDir)
	default:
		return fmt.Errorf("pipeline: don't know how to extract %q", srcPath)
	}
}

func extractTarBz2(srcPath, destDir string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return extractTar(bzip2.NewReader(f), destDir)
}

// extractCondaV2 extracts a .conda archive: an outer zip containing
// metadata.json (optional) plus "info-*.tar.zst" and "pkg-*.tar.zst"
// members, each itself a zstd-compressed tar. Both members are
// extracted into the same destination directory, mirroring
// extract_conda's loop over {info, pkg} parts.
func extractCondaV2(srcPath, destDir string) error {
	zr, err := zip.OpenReader(srcPath)
	if err != nil {
		return err
	}
	defer zr.Close()

	var innerTarZsts []*zip.File
	for _, f := range zr.File {
		base := filepath.Base(f.Name)
		if strings.HasPrefix(base, "info-") && strings.HasSuffix(base, ".tar.zst") {
			innerTarZsts = append(innerTarZsts, f)
		}
	}
	for _, f := range zr.File {
		base := filepath.Base(f.Name)
		if strings.HasPrefix(base, "pkg-") && strings.HasSuffix(base, ".tar.zst") {
			innerTarZsts = append(innerTarZsts, f)
		}
	}
	if len(innerTarZsts) == 0 {
		return fmt.Errorf("pipeline: %q has no info-*.tar.zst or pkg-*.tar.zst members", srcPath)
	}

	for _, inner := range innerTarZsts {
		if err := extractInnerTarZst(inner, destDir); err != nil {
			return fmt.Errorf("pipeline: extracting %s: %w", inner.Name, err)
		}
	}
	return nil
}

func extractInnerTarZst(f *zip.File, destDir string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	zr, err := zstd.NewReader(rc)
	if err != nil {
		return err
	}
	defer zr.Close()

	return extractTar(zr, destDir)
}

// extractTar walks r as a tar stream, writing each entry under destDir
// after validating that neither a direct path nor a symlink target can
// escape destDir.
func extractTar(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		case tar.TypeSymlink:
			if _, err := safeJoin(destDir, filepath.Join(filepath.Dir(hdr.Name), hdr.Linkname)); err != nil {
				return fmt.Errorf("pipeline: symlink %q -> %q escapes destination: %w", hdr.Name, hdr.Linkname, err)
			}
			os.Remove(target)
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			// Ignore device nodes, fifos, etc: package payloads never
			// legitimately contain them.
		}
	}
}

// safeJoin joins destDir and name, rejecting absolute paths and any
// ".." component that would place the result outside destDir.
func safeJoin(destDir, name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("pipeline: illegal archive entry path %q", name)
	}
	return filepath.Join(destDir, clean), nil
}
