// Package link materializes an extracted package's files into an
// environment prefix (hardlink, copy, or symlink per file, with
// placeholder-prefix rewriting for relocatable text/binary payloads),
// tracks every created path so an interrupted link can be undone, and
// writes the conda-meta record that marks a package installed.
//
// Grounded on original_source/include/link.hpp's LinkPackage::link():
// kept the same per-file dispatch (hardlink / softlink / placeholder
// rewrite) and the same prefix_placeholder replace-and-pad semantics,
// rewritten from an exception-throwing C++ method into an explicit
// undo-stack-returning Go API, and with the link method exposed as a
// real config.LinkMethod choice instead of reproducing the source's
// dead "if (true || text_mode)" branch.
package link

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/binpack/binpack/config"
	"github.com/binpack/binpack/errs"
)

// Linker materializes packages into one prefix.
type Linker struct {
	log    *slog.Logger
	method config.LinkMethod
}

func New(log *slog.Logger, method config.LinkMethod) *Linker {
	if method == "" {
		method = config.LinkHardlink
	}
	return &Linker{log: log, method: method}
}

// Undo is one reversible effect of a link operation: a path created
// from scratch, or a pre-existing path moved aside to make room for
// the new one.
type Undo struct {
	Created    string // path to remove on rollback, "" if unused
	MovedAside string // original path
	BackupPath string // where its previous contents now live
}

// Result is the accumulated undo stack for one LinkPackage call, plus
// the destination paths it touched (for the conda-meta record).
type Result struct {
	Prefix      string
	LinkedPaths []string
	undo        []Undo
}

// Rollback reverses every effect in Result in last-to-first order:
// delete files this call created, restore files it moved aside.
func (r *Result) Rollback() error {
	for i := len(r.undo) - 1; i >= 0; i-- {
		u := r.undo[i]
		if u.Created != "" {
			if err := os.Remove(u.Created); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		if u.MovedAside != "" {
			if err := os.Rename(u.BackupPath, u.MovedAside); err != nil {
				return err
			}
		}
	}
	return nil
}

// Commit discards the moved-aside backups a successful link no longer
// needs; created-path entries need no cleanup on commit.
func (r *Result) Commit() {
	for _, u := range r.undo {
		if u.MovedAside != "" {
			os.Remove(u.BackupPath)
		}
	}
}

// LinkPackage links every path in source's info/paths.json into
// prefix. On any per-file error it rolls back everything linked so
// far and returns a *errs.Error of kind LinkFailure.
//
// On success the returned Result still holds its moved-aside backups
// uncommitted: the caller runs post-link steps (which can still fail
// and need to roll back the link) and calls Result.Commit only once
// the whole package is considered installed.
func (l *Linker) LinkPackage(source, prefix string) (*Result, error) {
	manifest, err := ReadPathsManifest(source)
	if err != nil {
		return nil, errs.New(errs.LinkFailure, source, fmt.Errorf("reading paths.json: %w", err))
	}

	res := &Result{Prefix: prefix}
	for _, entry := range manifest.Paths {
		if err := l.linkOne(source, prefix, entry, res); err != nil {
			if rbErr := res.Rollback(); rbErr != nil {
				l.log.Error("rollback failed after link error", "path", entry.Path, "link_err", err, "rollback_err", rbErr)
			}
			return nil, errs.New(errs.LinkFailure, entry.Path, err)
		}
		res.LinkedPaths = append(res.LinkedPaths, entry.Path)
	}
	return res, nil
}

func (l *Linker) linkOne(source, prefix string, entry PathEntry, res *Result) error {
	dst := filepath.Join(prefix, entry.Path)
	src := filepath.Join(source, entry.Path)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	if _, err := os.Lstat(dst); err == nil {
		backup, err := moveAside(dst)
		if err != nil {
			return err
		}
		res.undo = append(res.undo, Undo{MovedAside: dst, BackupPath: backup})
	}

	if entry.PrefixPlaceholder != "" {
		return l.rewritePlaceholder(src, dst, entry, prefix, res)
	}

	switch entry.PathType {
	case "hardlink":
		if err := l.placeHardlink(src, dst); err != nil {
			return err
		}
	case "softlink":
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		if err := os.Symlink(target, dst); err != nil {
			return err
		}
	default:
		return fmt.Errorf("link: path type not implemented: %q", entry.PathType)
	}
	res.undo = append(res.undo, Undo{Created: dst})
	return nil
}

// placeHardlink materializes src at dst per l.method: a real hard
// link when configured and when cache/prefix share a filesystem, a
// byte copy otherwise (copy is also the explicit fallback when
// os.Link fails with a cross-device error).
func (l *Linker) placeHardlink(src, dst string) error {
	switch l.method {
	case config.LinkSoftlink:
		return os.Symlink(src, dst)
	case config.LinkCopy:
		return copyFile(src, dst)
	default:
		if err := os.Link(src, dst); err != nil {
			return copyFile(src, dst)
		}
		return nil
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// rewritePlaceholder replaces every occurrence of
// entry.PrefixPlaceholder with prefix and writes the result to dst,
// preserving src's permissions. Binary-mode files replace with a
// NUL-padded prefix of the placeholder's exact byte length so that
// fixed offsets elsewhere in the binary (e.g. a length-prefixed
// string table) are not shifted.
func (l *Linker) rewritePlaceholder(src, dst string, entry PathEntry, prefix string, res *Result) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	replacement := prefix
	if entry.FileMode == "binary" {
		if len(prefix) > len(entry.PrefixPlaceholder) {
			return fmt.Errorf("link: prefix %q longer than placeholder in binary file %s", prefix, entry.Path)
		}
		replacement = prefix + strings.Repeat("\x00", len(entry.PrefixPlaceholder)-len(prefix))
	}

	rewritten := bytes.ReplaceAll(data, []byte(entry.PrefixPlaceholder), []byte(replacement))
	if err := os.WriteFile(dst, rewritten, info.Mode().Perm()); err != nil {
		return err
	}
	res.undo = append(res.undo, Undo{Created: dst})
	return nil
}

func moveAside(path string) (string, error) {
	backup := path + ".binpack-orig"
	if err := os.Rename(path, backup); err != nil {
		return "", err
	}
	return backup, nil
}
