// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package archive unpacks source archives.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for entries that would land outside the
// destination directory.
var ErrUnsafePath = errors.New("unsafe path in archive")

// Format is an archive format.
type Format int

const (
	Unknown Format = iota
	Tar
	TarGz
	TarZst
	Zip
)

func (f Format) String() string {
	switch f {
	case Tar:
		return "tar"
	case TarGz:
		return "tar.gz"
	case TarZst:
		return "tar.zst"
	case Zip:
		return "zip"
	}
	return "unknown"
}

// FormatOf detects the format of an archive from its file name.
func FormatOf(name string) Format {
	name = strings.ToLower(name)
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return TarGz
	case strings.HasSuffix(name, ".tar.zst"), strings.HasSuffix(name, ".tzst"):
		return TarZst
	case strings.HasSuffix(name, ".tar"):
		return Tar
	case strings.HasSuffix(name, ".zip"):
		return Zip
	}
	return Unknown
}

// Info describes an extracted archive.
type Info struct {
	// Root is the single top-level directory that was stripped, if any.
	Root string
	// Comment is the archive comment. GitHub records the commit hash of
	// archive/<ref> tarballs there.
	Comment string
	// Files is the number of regular files written.
	Files int
}

// Extract unpacks the archive src into dest, which must not exist yet.
// When every entry lives under one top-level directory, that directory is
// stripped. On error dest is not created.
func Extract(src, dest string) (Info, error) {
	format := FormatOf(src)
	if format == Unknown {
		return Info{}, fmt.Errorf("extract %s: unsupported archive format", src)
	}
	if _, err := os.Lstat(dest); err == nil {
		return Info{}, fmt.Errorf("extract %s: %s already exists", src, dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return Info{}, err
	}
	tmp, err := os.MkdirTemp(filepath.Dir(dest), ".extract-*")
	if err != nil {
		return Info{}, err
	}
	defer os.RemoveAll(tmp)

	w := &writer{root: tmp}
	switch format {
	case Zip:
		err = w.unzip(src)
	default:
		err = w.untar(src, format)
	}
	if err == nil {
		err = w.checkLinks()
	}
	if err != nil {
		return Info{}, fmt.Errorf("extract %s: %w", src, err)
	}

	info := Info{Comment: w.comment, Files: w.files}
	top := tmp
	if root, ok := singleDir(tmp); ok {
		info.Root = root
		top = filepath.Join(tmp, root)
	}
	if err := os.Rename(top, dest); err != nil {
		return Info{}, fmt.Errorf("extract %s: %w", src, err)
	}
	return info, nil
}

// singleDir reports whether dir holds exactly one entry that is a directory.
func singleDir(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 || !entries[0].IsDir() {
		return "", false
	}
	return entries[0].Name(), true
}

// writer materializes archive entries below root.
type writer struct {
	root    string
	comment string
	files   int
}

// target maps an entry name to a path below root.
func (w *writer) target(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	clean := path.Clean("/" + name)
	if path.IsAbs(name) || hasDotDot(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	if clean == "/" {
		return w.root, nil
	}
	p := filepath.Join(w.root, filepath.FromSlash(clean[1:]))
	if err := w.checkParents(p); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnsafePath, name, err)
	}
	return p, nil
}

// checkParents fails if a directory between root and p is a symlink:
// an entry below it would be written wherever the link points.
func (w *writer) checkParents(p string) error {
	rel, err := filepath.Rel(w.root, filepath.Dir(p))
	if err != nil || rel == "." {
		return err
	}
	dir := w.root
	for _, elem := range strings.Split(rel, string(filepath.Separator)) {
		dir = filepath.Join(dir, elem)
		fi, err := os.Lstat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("parent %s is a symlink", filepath.ToSlash(rel))
		}
	}
	return nil
}

// checkLinks resolves every symlink below root against the filesystem
// and fails if one leads outside it. Links may point through links
// created later, so this runs once all entries are written.
func (w *writer) checkLinks() error {
	root, err := filepath.EvalSymlinks(w.root)
	if err != nil {
		return err
	}
	return filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.Type()&fs.ModeSymlink == 0 {
			return err
		}
		resolved, err := filepath.EvalSymlinks(p)
		if err != nil {
			// dangling, so it leads nowhere
			return nil
		}
		if !within(root, resolved) {
			rel, _ := filepath.Rel(w.root, p)
			return fmt.Errorf("%w: %s resolves outside the archive", ErrUnsafePath, filepath.ToSlash(rel))
		}
		return nil
	})
}

func hasDotDot(name string) bool {
	for _, elem := range strings.Split(name, "/") {
		if elem == ".." {
			return true
		}
	}
	return false
}

func (w *writer) mkdir(name string) error {
	dir, err := w.target(name)
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

func (w *writer) writeFile(name string, mode os.FileMode, r io.Reader) error {
	p, err := w.target(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	// never write through a link left by an earlier entry
	if fi, err := os.Lstat(p); err == nil && fi.Mode()&fs.ModeSymlink != 0 {
		if err := os.Remove(p); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0600)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		w.files++
	}
	return err
}

// symlink creates name pointing at linkname, which must resolve below root.
func (w *writer) symlink(name, linkname string) error {
	p, err := w.target(name)
	if err != nil {
		return err
	}
	if filepath.IsAbs(linkname) || path.IsAbs(linkname) {
		return fmt.Errorf("%w: %s -> %s", ErrUnsafePath, name, linkname)
	}
	resolved := filepath.Join(filepath.Dir(p), filepath.FromSlash(linkname))
	if !within(w.root, resolved) {
		return fmt.Errorf("%w: %s -> %s", ErrUnsafePath, name, linkname)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	return os.Symlink(linkname, p)
}

func (w *writer) link(name, linkname string) error {
	p, err := w.target(name)
	if err != nil {
		return err
	}
	old, err := w.target(linkname)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	return os.Link(old, p)
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
