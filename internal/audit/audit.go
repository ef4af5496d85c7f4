// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package audit checks recipes against the rules every published recipe
// must follow.
package audit

import (
	"context"
	"fmt"
	"go/token"
	"net/url"
	"slices"
	"strings"

	"github.com/goplus/gotap/formula"
	"github.com/goplus/gotap/internal/vcs"
	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"
)

// Problem is a rule a recipe breaks.
type Problem struct {
	Field string
	Msg   string
}

func (p Problem) String() string {
	return p.Field + ": " + p.Msg
}

type auditor struct {
	r        *formula.Recipe
	problems []Problem
}

func (a *auditor) errorf(field, format string, args ...any) {
	a.problems = append(a.problems, Problem{Field: field, Msg: fmt.Sprintf(format, args...)})
}

// Audit returns the problems of r, or nil if there are none.
//
// The install and test bodies are run in dry-run mode to inspect the
// go build flags and the smoke test without executing anything.
func Audit(ctx context.Context, r *formula.Recipe) []Problem {
	a := &auditor{r: r}
	a.source()
	a.deps()
	a.install(ctx)
	a.test(ctx)
	return a.problems
}

func (a *auditor) source() {
	r := a.r
	if r.Version == "" {
		a.errorf("version", "missing")
	}
	if r.SHA256 == "" {
		a.errorf("sha256", "missing")
	} else if !isSHA256(r.SHA256) {
		a.errorf("sha256", "%q is not 64 lowercase hex digits", r.SHA256)
	}

	u, err := url.Parse(r.URL)
	switch {
	case r.URL == "":
		a.errorf("url", "missing")
		return
	case err != nil:
		a.errorf("url", "%v", err)
		return
	case u.Scheme != "https":
		a.errorf("url", "%s must use https", r.URL)
	}

	arch, ok := vcs.ParseArchive(r.URL)
	if !ok || r.Version == "" {
		return
	}
	if arch.Tag {
		v := strings.TrimPrefix(arch.Ref, "v")
		if r.Version != v {
			a.errorf("version", "%s does not match tag %s", r.Version, arch.Ref)
		}
		if !semver.IsValid("v" + v) {
			a.errorf("version", "tag %s is not a semantic version", arch.Ref)
		}
		return
	}
	// archive/<commit>: the version is the commit or a prefix of it
	if !isHex(arch.Ref) {
		a.errorf("url", "archive ref %s is neither a commit nor a tag", arch.Ref)
	} else if !strings.HasPrefix(arch.Ref, r.Version) {
		a.errorf("version", "%s is not a prefix of commit %s", r.Version, arch.Ref)
	}
}

func (a *auditor) deps() {
	if dep, ok := a.r.DependsOn("go"); !ok {
		a.errorf("depends_on", "go must be declared as a build dependency")
	} else if !dep.Build {
		a.errorf("depends_on", "go is only needed at build time")
	}
	seen := make(map[string]bool)
	for _, d := range a.r.Deps {
		if seen[d.Name] {
			a.errorf("depends_on", "%s declared twice", d.Name)
		}
		seen[d.Name] = true
	}
}

func (a *auditor) dryRun(ctx context.Context, body func(*formula.Context)) *formula.Context {
	c := formula.NewContext(ctx, a.r.Name, a.r.Version)
	c.DryRun = true
	c.Prefix = "/prefix"
	c.BinDir = "/prefix/bin"
	c.SourceDir = "/src"
	body(c)
	return c
}

func (a *auditor) install(ctx context.Context) {
	r := a.r
	if r.Install == nil {
		a.errorf("install", "missing")
		return
	}
	c := a.dryRun(ctx, r.Install)
	if err := c.Err(); err != nil {
		a.errorf("install", "%v", err)
		return
	}
	if !slices.ContainsFunc(c.Commands(), isGoBuild) {
		a.errorf("install", "does not run go build")
		return
	}
	if !c.Stripped() {
		a.errorf("install", "-ldflags should strip symbols with -s -w")
	}

	injected := false
	for sym, val := range c.Injections() {
		if err := CheckSymbol(sym); err != nil {
			a.errorf("install", "%v", err)
			continue
		}
		if val != r.Version {
			continue
		}
		injected = true
		if arch, ok := vcs.ParseArchive(r.URL); ok {
			mod := "github.com/" + arch.Owner + "/" + arch.Repo
			if !strings.HasPrefix(strings.ToLower(sym), strings.ToLower(mod)+"/") &&
				!strings.HasPrefix(strings.ToLower(sym), strings.ToLower(mod)+".") {
				a.errorf("install", "-X %s is outside %s", sym, mod)
			}
		}
	}
	if !injected {
		a.errorf("install", "no -X injection sets the version")
	}
}

func (a *auditor) test(ctx context.Context) {
	if a.r.Test == nil {
		a.errorf("test", "missing")
		return
	}
	c := a.dryRun(ctx, a.r.Test)
	if err := c.Err(); err != nil {
		a.errorf("test", "%v", err)
		return
	}
	ranVersion := slices.ContainsFunc(c.Commands(), func(argv []string) bool {
		return strings.HasPrefix(argv[0], c.BinDir) && slices.Contains(argv[1:], "--version")
	})
	if !ranVersion {
		a.errorf("test", "should run an installed binary with --version")
	}
}

func isGoBuild(argv []string) bool {
	return len(argv) > 1 && argv[1] == "build"
}

// CheckSymbol validates the target of a -X linker flag: an import path
// followed by a package-level identifier, e.g.
// github.com/ossianhempel/things3-cli/internal/cli.Version.
func CheckSymbol(sym string) error {
	i := strings.LastIndex(sym, ".")
	if i <= 0 || i == len(sym)-1 {
		return fmt.Errorf("-X %s: want importpath.name", sym)
	}
	pkg, name := sym[:i], sym[i+1:]
	if !token.IsIdentifier(name) {
		return fmt.Errorf("-X %s: %q is not an identifier", sym, name)
	}
	if pkg == "main" {
		return nil
	}
	if err := module.CheckImportPath(pkg); err != nil {
		return fmt.Errorf("-X %s: %w", sym, err)
	}
	return nil
}

func isSHA256(s string) bool {
	return len(s) == 64 && isHex(s) && strings.ToLower(s) == s
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}
