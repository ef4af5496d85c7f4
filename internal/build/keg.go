package build

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotInstalled is returned by Uninstall for unknown formulas.
var ErrNotInstalled = errors.New("not installed")

// linkTarget returns the absolute target of the symlink at p, or "" if p
// is not a symlink.
func linkTarget(p string) (string, error) {
	fi, err := os.Lstat(p)
	if err != nil {
		return "", err
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		return "", nil
	}
	dest, err := os.Readlink(p)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(filepath.Dir(p), dest)
	}
	return filepath.Clean(dest), nil
}

func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// checkLinks fails if a binary of name would overwrite a file that gotap
// does not own for that formula.
func (b *Builder) checkLinks(name string, bins []string) error {
	owned := filepath.Join(b.cellar(), name)
	for _, bin := range bins {
		p := filepath.Join(b.binDir(), bin)
		dest, err := linkTarget(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		if dest == "" || !within(owned, dest) {
			return fmt.Errorf("%s already exists and is not linked from %s", p, name)
		}
	}
	return nil
}

// link symlinks the binaries of keg into the prefix bin dir, replacing
// links to other versions of the same formula.
func (b *Builder) link(keg string, bins []string) error {
	if err := os.MkdirAll(b.binDir(), 0o755); err != nil {
		return err
	}
	for _, bin := range bins {
		p := filepath.Join(b.binDir(), bin)
		target, err := filepath.Rel(b.binDir(), filepath.Join(keg, "bin", bin))
		if err != nil {
			return err
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := os.Symlink(target, p); err != nil {
			return err
		}
	}
	return nil
}

// unlink removes the links in the prefix bin dir that point into dir.
func (b *Builder) unlink(dir string) []string {
	entries, err := os.ReadDir(b.binDir())
	if err != nil {
		return nil
	}
	var removed []string
	for _, e := range entries {
		p := filepath.Join(b.binDir(), e.Name())
		dest, err := linkTarget(p)
		if err != nil || dest == "" || !within(dir, dest) {
			continue
		}
		if os.Remove(p) == nil {
			removed = append(removed, e.Name())
		}
	}
	return removed
}

// Uninstall unlinks and removes every installed version of name.
func (b *Builder) Uninstall(name string) ([]*Receipt, error) {
	unlock, err := b.lock(name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	receipts, err := b.receiptsOf(name)
	if err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNotInstalled)
	}
	dir := filepath.Join(b.cellar(), name)
	removed := b.unlink(dir)
	b.log.Info("unlinked", "formula", name, "binaries", removed)
	if err := os.RemoveAll(dir); err != nil {
		return nil, err
	}
	return receipts, nil
}
