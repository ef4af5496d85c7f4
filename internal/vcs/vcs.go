// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vcs talks to the git repositories that hold taps and upstream
// sources.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// VCS defines the interface for version control operations.
type VCS interface {
	// Sync makes dir a shallow checkout of remote at ref. ref can be a
	// branch, tag or commit hash. dir is initialized when it is not a
	// repository yet.
	Sync(ctx context.Context, remote, ref, dir string) error

	// Tags returns all tags of the remote repository.
	Tags(ctx context.Context, remote string) ([]string, error)

	// Latest returns the commit hash of the remote HEAD.
	Latest(ctx context.Context, remote string) (string, error)
}

// ErrNoHead is returned by Latest when the remote has no commits.
var ErrNoHead = errors.New("remote has no HEAD")

type gitVCS struct {
	git string
}

// GitOption configures the git VCS.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.git = path
	}
}

// NewGitVCS returns a VCS that shells out to git.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{git: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) Sync(ctx context.Context, remote, ref, dir string) error {
	if _, err := os.Stat(filepath.Join(dir, ".git")); os.IsNotExist(err) {
		if err := g.run(ctx, dir, "init", "--quiet"); err != nil {
			return fmt.Errorf("init %s: %w", dir, err)
		}
	}
	if err := g.run(ctx, dir, "fetch", "--quiet", "--depth", "1", remote, ref); err != nil {
		return fmt.Errorf("fetch %s %s: %w", remote, ref, err)
	}
	if err := g.run(ctx, dir, "checkout", "--quiet", "--force", "FETCH_HEAD"); err != nil {
		return fmt.Errorf("checkout %s: %w", ref, err)
	}
	return nil
}

func (g *gitVCS) Tags(ctx context.Context, remote string) ([]string, error) {
	refs, err := g.lsRemote(ctx, "--tags", "--refs", remote)
	if err != nil {
		return nil, fmt.Errorf("list tags of %s: %w", remote, err)
	}
	var tags []string
	for _, r := range refs {
		if tag, ok := strings.CutPrefix(r.name, "refs/tags/"); ok {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

func (g *gitVCS) Latest(ctx context.Context, remote string) (string, error) {
	refs, err := g.lsRemote(ctx, remote, "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD of %s: %w", remote, err)
	}
	for _, r := range refs {
		if r.name == "HEAD" {
			return r.hash, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoHead, remote)
}

type remoteRef struct {
	hash string
	name string
}

// lsRemote runs git ls-remote and parses its "<hash>\t<ref>" lines.
func (g *gitVCS) lsRemote(ctx context.Context, args ...string) ([]remoteRef, error) {
	out, err := g.output(ctx, "", append([]string{"ls-remote"}, args...)...)
	if err != nil {
		return nil, err
	}
	var refs []remoteRef
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		hash, name, ok := strings.Cut(line, "\t")
		if ok {
			refs = append(refs, remoteRef{hash: hash, name: name})
		}
	}
	return refs, nil
}

func (g *gitVCS) run(ctx context.Context, dir string, args ...string) error {
	_, err := g.output(ctx, dir, args...)
	return err
}

func (g *gitVCS) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.git, args...)
	cmd.Dir = dir
	// never prompt for credentials
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return stdout.String(), nil
}
