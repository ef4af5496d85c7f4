// Package build runs the install pipeline of a recipe:
// lock, cache, fetch, verify, extract, build, verify-version, test, commit.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/goplus/gotap/formula"
	"github.com/goplus/gotap/internal/archive"
	"github.com/goplus/gotap/internal/fetch"
	"github.com/goplus/gotap/internal/lockedfile"
	"github.com/goplus/gotap/internal/vcs"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/sumdb/dirhash"
)

// Options configures a Builder.
type Options struct {
	// Prefix is the install root holding Cellar/ and bin/.
	Prefix string
	// Fetcher downloads source archives.
	Fetcher *fetch.Fetcher
	// GoCmd is the go command used by recipes. Defaults to "go".
	GoCmd string

	// Stdout and Stderr receive the output of build and test commands.
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// Force reinstalls a keg that is already present.
	Force bool
	// KeepStaging leaves the staging directory of a failed install in place.
	KeepStaging bool
}

// Builder installs recipes into a prefix.
type Builder struct {
	opts Options
	log  *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	if opts.GoCmd == "" {
		opts.GoCmd = "go"
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Fetcher == nil {
		opts.Fetcher = fetch.New(filepath.Join(opts.Prefix, "var", "gotap", "cache"))
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{opts: opts, log: log}
}

// Prefix returns the install root.
func (b *Builder) Prefix() string {
	return b.opts.Prefix
}

func (b *Builder) cellar() string {
	return filepath.Join(b.opts.Prefix, "Cellar")
}

func (b *Builder) binDir() string {
	return filepath.Join(b.opts.Prefix, "bin")
}

func (b *Builder) varDir(elem ...string) string {
	return filepath.Join(append([]string{b.opts.Prefix, "var", "gotap"}, elem...)...)
}

// KegOf returns the keg directory of a formula version.
func (b *Builder) KegOf(name, version string) string {
	return filepath.Join(b.cellar(), name, version)
}

// lock serializes gotap processes working on the same formula.
func (b *Builder) lock(name string) (unlock func(), err error) {
	dir := b.varDir("locks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return lockedfile.MutexAt(filepath.Join(dir, name+".lock")).Lock()
}

// install is the state of one run of the pipeline.
type install struct {
	recipe  *formula.Recipe
	staging string
	src     string
	keg     string
	receipt *Receipt
}

// Install runs the full pipeline for r. Any failure is returned as *Error
// and leaves neither a keg nor links behind.
func (b *Builder) Install(ctx context.Context, r *formula.Recipe) (*Receipt, error) {
	if err := validate(r); err != nil {
		return nil, &Error{Recipe: r.ID(), Step: StepRecipe, Err: err}
	}
	fail := func(step Step, err error) (*Receipt, error) {
		b.log.Debug("install failed", "formula", r.ID(), "step", step, "error", err)
		return nil, &Error{Recipe: r.ID(), Step: step, Err: err}
	}

	unlock, err := b.lock(r.Name)
	if err != nil {
		return fail(StepLock, err)
	}
	defer unlock()

	keg := b.KegOf(r.Name, r.Version)
	if !b.opts.Force {
		if rc, err := loadReceipt(keg); err == nil {
			if err := samePin(rc, r); err != nil {
				return fail(StepVerify, err)
			}
			b.log.Info("already installed", "formula", r.ID(), "keg", keg)
			rc.Cached = true
			return rc, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fail(StepCache, err)
		}
	}

	b.log.Info("fetch", "formula", r.ID(), "url", r.URL)
	archivePath, err := b.opts.Fetcher.Fetch(ctx, r.URL, r.SHA256)
	if err != nil {
		if errors.Is(err, fetch.ErrChecksumMismatch) {
			return fail(StepVerify, err)
		}
		return fail(StepFetch, err)
	}
	b.log.Debug("verified", "formula", r.ID(), "sha256", r.SHA256, "archive", archivePath)

	if err := os.MkdirAll(b.varDir("staging"), 0o755); err != nil {
		return fail(StepExtract, err)
	}
	staging, err := os.MkdirTemp(b.varDir("staging"), r.Name+"-"+r.Version+"-*")
	if err != nil {
		return fail(StepExtract, err)
	}
	st := &install{
		recipe:  r,
		staging: staging,
		src:     filepath.Join(staging, "src"),
		keg:     filepath.Join(staging, "keg"),
		receipt: &Receipt{
			Name:        r.Name,
			Version:     r.Version,
			Revision:    r.Revision,
			URL:         r.URL,
			SHA256:      strings.ToLower(r.SHA256),
			Recipe:      r.Source,
			RuntimeDeps: names(r.RuntimeDeps()),
		},
	}
	succeeded := false
	defer func() {
		if !succeeded && b.opts.KeepStaging {
			b.log.Warn("keeping staging directory", "dir", staging)
			return
		}
		os.RemoveAll(staging)
	}()

	for _, s := range []struct {
		step Step
		fn   func(context.Context, *install) error
	}{
		{StepExtract, func(_ context.Context, st *install) error { return b.extract(archivePath, st) }},
		{StepBuild, b.build},
		{StepVerifyVersion, func(_ context.Context, st *install) error { return b.verifyVersion(st) }},
		{StepTest, b.test},
	} {
		b.log.Info(string(s.step), "formula", r.ID())
		if err := s.fn(ctx, st); err != nil {
			return fail(s.step, err)
		}
	}

	if err := b.commit(st, keg); err != nil {
		return fail(StepCommit, err)
	}
	succeeded = true
	b.log.Info("installed", "formula", r.ID(), "keg", keg, "binaries", st.receipt.Binaries)
	return st.receipt, nil
}

// samePin reports an installed keg whose source differs from the one r
// pins for the same version.
func samePin(rc *Receipt, r *formula.Recipe) error {
	if rc.URL == r.URL && strings.EqualFold(rc.SHA256, r.SHA256) {
		return nil
	}
	return fmt.Errorf("%w: installed from %s (sha256 %s), recipe pins %s (sha256 %s); reinstall with --force",
		ErrPinChanged, rc.URL, rc.SHA256, r.URL, r.SHA256)
}

func validate(r *formula.Recipe) error {
	switch {
	case r.Name == "":
		return errors.New("recipe has no name")
	case r.Version == "":
		return errors.New("recipe has no version")
	case r.URL == "":
		return errors.New("recipe has no url")
	case r.SHA256 == "":
		return errors.New("recipe has no sha256")
	case r.Install == nil:
		return errors.New("recipe has no install body")
	}
	return nil
}

// extract unpacks the archive and records what the source tree is.
func (b *Builder) extract(archivePath string, st *install) error {
	info, err := archive.Extract(archivePath, st.src)
	if err != nil {
		return err
	}
	r := st.recipe
	if a, ok := vcs.ParseArchive(r.URL); ok && !a.Tag && info.Comment != "" {
		// GitHub stores the full commit hash of archive/<commit> tarballs.
		if !strings.HasPrefix(info.Comment, r.Version) {
			return fmt.Errorf("archive is commit %s, recipe declares version %s", info.Comment, r.Version)
		}
		st.receipt.Commit = info.Comment
	}

	if data, err := os.ReadFile(filepath.Join(st.src, "go.mod")); err == nil {
		st.receipt.Module = modfile.ModulePath(data)
	} else {
		b.log.Warn("source has no go.mod", "formula", r.ID())
	}
	prefix := st.receipt.Module
	if prefix == "" {
		prefix = r.Name
	}
	hash, err := dirhash.HashDir(st.src, prefix+"@"+r.Version, dirhash.DefaultHash)
	if err != nil {
		return fmt.Errorf("hash source tree: %w", err)
	}
	st.receipt.SourceHash = hash
	b.log.Debug("extracted", "formula", r.ID(), "files", info.Files, "module", st.receipt.Module, "hash", hash)
	return nil
}

// newContext returns a recipe context installing into keg.
func (b *Builder) newContext(ctx context.Context, r *formula.Recipe, dir, keg string) *formula.Context {
	c := formula.NewContext(ctx, r.Name, r.Version)
	c.SourceDir = dir
	c.Prefix = keg
	c.BinDir = filepath.Join(keg, "bin")
	c.GoCmd = b.opts.GoCmd
	c.Stdout = b.opts.Stdout
	c.Stderr = b.opts.Stderr
	return c
}

// build checks the build dependencies and runs the install body against
// the staged keg.
func (b *Builder) build(ctx context.Context, st *install) error {
	r := st.recipe
	for _, dep := range r.BuildDeps() {
		name := dep.Name
		if name == "go" {
			name = b.opts.GoCmd
		}
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("build dependency %s: %w", dep.Name, err)
		}
	}

	c := b.newContext(ctx, r, st.src, st.keg)
	if err := os.MkdirAll(c.BinDir, 0o755); err != nil {
		return err
	}
	r.Install(c)
	if err := c.Err(); err != nil {
		return err
	}

	bins, err := executables(c.BinDir)
	if err != nil {
		return err
	}
	if len(bins) == 0 {
		return errors.New("install produced no executable in bin")
	}
	st.receipt.Binaries = bins
	st.receipt.Injections = c.Injections()
	st.receipt.Stripped = c.Stripped()
	return nil
}

// test runs the smoke test against the staged keg.
func (b *Builder) test(ctx context.Context, st *install) error {
	if st.recipe.Test == nil {
		b.log.Warn("recipe has no test", "formula", st.recipe.ID())
		return nil
	}
	return b.runTest(ctx, st.recipe, st.keg)
}

func (b *Builder) runTest(ctx context.Context, r *formula.Recipe, keg string) error {
	dir, err := os.MkdirTemp("", "gotap-test-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	c := b.newContext(ctx, r, dir, keg)
	r.Test(c)
	return c.Err()
}

// commit moves the staged keg into the Cellar, writes its receipt and links
// its binaries. A failure undoes the move.
func (b *Builder) commit(st *install, keg string) error {
	if err := b.checkLinks(st.recipe.Name, st.receipt.Binaries); err != nil {
		return err
	}
	// a forced reinstall parks the old keg until the new one is linked
	old := ""
	if _, err := os.Stat(keg); err == nil {
		b.unlink(keg)
		old = filepath.Join(st.staging, "old")
		if err := os.Rename(keg, old); err != nil {
			return err
		}
	}
	rollback := func() {
		b.unlink(keg)
		os.RemoveAll(keg)
		if old != "" && os.Rename(old, keg) == nil {
			if rc, err := loadReceipt(keg); err == nil {
				b.link(keg, rc.Binaries)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(keg), 0o755); err != nil {
		rollback()
		return err
	}
	if err := os.Rename(st.keg, keg); err != nil {
		rollback()
		return err
	}
	st.receipt.Keg = keg
	st.receipt.InstallTime = time.Now().UTC()
	if err := saveReceipt(keg, st.receipt); err != nil {
		rollback()
		return err
	}
	if err := b.link(keg, st.receipt.Binaries); err != nil {
		rollback()
		return err
	}
	return nil
}

// Test re-runs the smoke test of an installed recipe.
func (b *Builder) Test(ctx context.Context, r *formula.Recipe) error {
	keg := b.KegOf(r.Name, r.Version)
	if _, err := loadReceipt(keg); err != nil {
		return &Error{Recipe: r.ID(), Step: StepTest, Err: fmt.Errorf("not installed: %w", err)}
	}
	if r.Test == nil {
		return &Error{Recipe: r.ID(), Step: StepTest, Err: errors.New("recipe has no test")}
	}
	b.log.Info("test", "formula", r.ID(), "keg", keg)
	if err := b.runTest(ctx, r, keg); err != nil {
		return &Error{Recipe: r.ID(), Step: StepTest, Err: err}
	}
	return nil
}

// executables lists the regular executable files in dir.
func executables(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var bins []string
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		if info.Mode().IsRegular() && isExecutable(e.Name(), info.Mode()) {
			bins = append(bins, e.Name())
		}
	}
	return bins, nil
}

func isExecutable(name string, mode os.FileMode) bool {
	return mode&0o111 != 0 || strings.EqualFold(filepath.Ext(name), ".exe")
}

func names(deps []formula.Dependency) []string {
	var ret []string
	for _, d := range deps {
		ret = append(ret, d.Name)
	}
	return ret
}
