// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package formula

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

// Context is passed to the install and test bodies of a recipe.
//
// Commands run through a Context record their failures instead of
// returning them, so that recipe bodies read as a plain list of steps.
// Once an error is recorded, later commands are skipped.
type Context struct {
	Name      string // formula name
	Version   string // version being built
	SourceDir string // root of the extracted source archive
	Prefix    string // keg directory the recipe installs into
	BinDir    string // Prefix/bin

	// GoCmd is the go command used by GoBuild. Defaults to "go".
	GoCmd string
	// Env holds extra KEY=VALUE pairs for every command.
	Env []string
	// DryRun records commands without running them.
	DryRun bool

	Stdout io.Writer
	Stderr io.Writer

	ctx        context.Context
	errs       []error
	commands   [][]string
	injections map[string]string
	stripped   bool
}

// NewContext creates a Context bound to ctx. Commands are canceled when
// ctx is done.
func NewContext(ctx context.Context, name, version string) *Context {
	return &Context{
		Name:    name,
		Version: version,
		GoCmd:   "go",
		Stdout:  io.Discard,
		Stderr:  io.Discard,
		ctx:     ctx,
	}
}

// Bin returns the path of the named binary in the keg's bin directory.
func (c *Context) Bin(name string) string {
	return filepath.Join(c.BinDir, name)
}

// StdGoArgs assembles the standard go build flags: a trimmed build, the
// output path and the given linker flags. The output defaults to the
// formula name inside the bin directory.
func (c *Context) StdGoArgs(ldflags string, output ...string) []string {
	out := c.Bin(c.Name)
	if len(output) > 0 && output[0] != "" {
		out = output[0]
	}
	args := []string{"-trimpath", "-o=" + out}
	if ldflags != "" {
		args = append(args, "-ldflags="+ldflags)
	}
	return args
}

// GoBuild runs "go build flags... pkgs..." in the source directory.
// Every -X injection passed through -ldflags is recorded.
func (c *Context) GoBuild(flags []string, pkgs ...string) {
	if c.Err() != nil {
		return
	}
	ldflags, err := ldflagsOf(flags)
	if err != nil {
		c.AddErr(err)
		return
	}
	inj, stripped, err := ParseLdflags(ldflags)
	if err != nil {
		c.AddErr(err)
		return
	}
	if c.injections == nil {
		c.injections = make(map[string]string)
	}
	maps.Copy(c.injections, inj)
	c.stripped = c.stripped || stripped

	args := append([]string{"build"}, flags...)
	args = append(args, pkgs...)
	env := c.Env
	if !hasEnv(env, "CGO_ENABLED") {
		env = append([]string{"CGO_ENABLED=0"}, env...)
	}
	goCmd := c.GoCmd
	if goCmd == "" {
		goCmd = "go"
	}
	c.run(c.command(env, goCmd, args...))
}

// System runs the named command in the source directory. A non-zero exit
// status is recorded as an error.
func (c *Context) System(name string, args ...string) {
	if c.Err() != nil {
		return
	}
	c.run(c.command(c.Env, name, args...))
}

// Output runs the named command and returns its trimmed standard output.
func (c *Context) Output(name string, args ...string) string {
	if c.Err() != nil {
		return ""
	}
	var stdout bytes.Buffer
	cmd := c.command(c.Env, name, args...)
	cmd.Stdout = io.MultiWriter(&stdout, c.stdout())
	c.run(cmd)
	return strings.TrimSpace(stdout.String())
}

// AssertMatch records an error if s does not contain substr.
// Nothing is asserted in a dry run.
func (c *Context) AssertMatch(substr, s string) {
	if c.Err() != nil || c.DryRun {
		return
	}
	if !strings.Contains(s, substr) {
		c.AddErr(fmt.Errorf("assert match: %q not found in %q", substr, s))
	}
}

// AddErr records an error.
func (c *Context) AddErr(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

// Errs returns all errors recorded so far.
func (c *Context) Errs() []error {
	return c.errs
}

// Err returns the recorded errors joined, or nil.
func (c *Context) Err() error {
	return errors.Join(c.errs...)
}

// Injections returns the -X symbol=value pairs passed to GoBuild.
func (c *Context) Injections() map[string]string {
	return maps.Clone(c.injections)
}

// Commands returns the argv of every command run so far.
func (c *Context) Commands() [][]string {
	return slices.Clone(c.commands)
}

// Stripped reports whether GoBuild was asked to strip debug symbols.
func (c *Context) Stripped() bool {
	return c.stripped
}

func (c *Context) command(env []string, name string, args ...string) *exec.Cmd {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = c.SourceDir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = c.stdout()
	cmd.Stderr = c.stderr()
	return cmd
}

func (c *Context) run(cmd *exec.Cmd) {
	c.commands = append(c.commands, cmd.Args)
	if c.DryRun {
		return
	}
	if err := cmd.Run(); err != nil {
		c.AddErr(fmt.Errorf("%s: %w", strings.Join(cmd.Args, " "), err))
	}
}

func (c *Context) stdout() io.Writer {
	if c.Stdout == nil {
		return io.Discard
	}
	return c.Stdout
}

func (c *Context) stderr() io.Writer {
	if c.Stderr == nil {
		return io.Discard
	}
	return c.Stderr
}

func hasEnv(env []string, key string) bool {
	for _, e := range env {
		if k, _, ok := strings.Cut(e, "="); ok && k == key {
			return true
		}
	}
	return false
}
