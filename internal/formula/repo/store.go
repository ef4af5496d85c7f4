// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goplus/gotap/internal/formula"
	"github.com/goplus/gotap/internal/lockedfile"
	"github.com/goplus/gotap/internal/vcs"
)

// Tap layout:
//
//	dir/
//	  Formula/
//	    <name>/
//	      <Class>_tap.gox    # classfile recipe
//	      <name>.yaml        # declarative recipe
const formulaDir = "Formula"

// ErrNotFound is returned when a tap has no recipe for a formula.
var ErrNotFound = errors.New("formula not found")

// Store manages a tap: a directory of recipes that may be a checkout of a
// remote git repository.
type Store struct {
	dir    string
	remote string
	vcs    vcs.VCS
}

// New creates a Store for the tap rooted at dir. If remote is not empty,
// Sync keeps dir at the remote's HEAD through v.
func New(dir, remote string, v vcs.VCS) *Store {
	return &Store{
		dir:    dir,
		remote: remote,
		vcs:    v,
	}
}

// Dir returns the local directory of the tap.
func (s *Store) Dir() string {
	return s.dir
}

// Sync fetches the latest commit of a remote tap into its directory.
// Local taps are left untouched.
func (s *Store) Sync(ctx context.Context) error {
	if s.remote == "" || s.vcs == nil {
		return nil
	}
	latest, err := s.vcs.Latest(ctx, s.remote)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}

	unlock, err := lockedfile.MutexAt(filepath.Join(s.dir, ".lock")).Lock()
	if err != nil {
		return err
	}
	defer unlock()

	return s.vcs.Sync(ctx, s.remote, latest, s.dir)
}

// FS returns the tap as a filesystem.
func (s *Store) FS() fs.ReadFileFS {
	return os.DirFS(s.dir).(fs.ReadFileFS)
}

// Names returns the names of all formulas in the tap, sorted.
func (s *Store) Names() ([]string, error) {
	entries, err := fs.ReadDir(s.FS(), formulaDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Candidates returns the recipe files of a formula, relative to the tap root.
func (s *Store) Candidates(name string) ([]string, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	dir := path.Join(formulaDir, name)
	entries, err := fs.ReadDir(s.FS(), dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && formula.IsRecipeFile(e.Name()) {
			files = append(files, path.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return files, nil
}

// Select picks the recipe file to use for a formula.
//
// With a version, the recipe declaring exactly that version wins, highest
// revision first. Without one, the recipe with the highest revision
// supersedes the others. Two recipes sharing the highest revision are
// ambiguous.
func (s *Store) Select(name, version string) (string, formula.Header, error) {
	files, err := s.Candidates(name)
	if err != nil {
		return "", formula.Header{}, err
	}

	var (
		best     string
		bestHdr  formula.Header
		conflict string
	)
	for _, file := range files {
		hdr, err := formula.HeaderOf(s.FS(), file)
		if err != nil {
			return "", formula.Header{}, fmt.Errorf("%s: %w", file, err)
		}
		if version != "" && hdr.Version != version {
			continue
		}
		switch {
		case best == "" || hdr.Revision > bestHdr.Revision:
			best, bestHdr, conflict = file, hdr, ""
		case hdr.Revision == bestHdr.Revision:
			conflict = file
		}
	}
	if best == "" {
		return "", formula.Header{}, fmt.Errorf("%w: %s@%s", ErrNotFound, name, version)
	}
	if conflict != "" {
		return "", formula.Header{}, fmt.Errorf("ambiguous recipes for %s: %s and %s both declare revision %d",
			name, best, conflict, bestHdr.Revision)
	}
	return best, bestHdr, nil
}

// Load selects and loads the recipe of a formula. An empty version selects
// the latest revision.
func (s *Store) Load(name, version string) (*formula.Formula, error) {
	file, _, err := s.Select(name, version)
	if err != nil {
		return nil, err
	}
	f, err := formula.Load(s.FS(), file)
	if err != nil {
		return nil, err
	}
	f.Name = name
	return f, nil
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid formula name: %q", name)
	}
	return nil
}
