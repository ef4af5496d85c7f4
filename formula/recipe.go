// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package formula

import (
	"fmt"
	"slices"
)

// Dependency is a formula required by a recipe.
// Build dependencies are needed to compile the recipe only and are never
// recorded as runtime dependencies of the installed keg.
type Dependency struct {
	Name  string
	Build bool
}

func (d Dependency) String() string {
	if d.Build {
		return d.Name + " (build)"
	}
	return d.Name
}

// Recipe is a verified-source build recipe.
//
// A Recipe is immutable once published under a given version. A newer
// upstream commit is packaged by a new Recipe with a higher Revision rather
// than by editing an existing one.
type Recipe struct {
	Name     string
	Desc     string
	Homepage string
	URL      string
	SHA256   string
	Version  string
	Revision int
	Deps     []Dependency

	// Install compiles the fetched source into ctx.Prefix.
	Install func(ctx *Context)
	// Test runs a smoke test against the installed binaries.
	Test func(ctx *Context)

	// Source is the file the recipe was loaded from, if any.
	Source string
}

// ID returns "name@version".
func (r *Recipe) ID() string {
	return fmt.Sprintf("%s@%s", r.Name, r.Version)
}

// BuildDeps returns the build-only dependencies.
func (r *Recipe) BuildDeps() []Dependency {
	var deps []Dependency
	for _, d := range r.Deps {
		if d.Build {
			deps = append(deps, d)
		}
	}
	return deps
}

// RuntimeDeps returns the dependencies that the installed keg needs at run time.
func (r *Recipe) RuntimeDeps() []Dependency {
	var deps []Dependency
	for _, d := range r.Deps {
		if !d.Build {
			deps = append(deps, d)
		}
	}
	return deps
}

// DependsOn reports whether the recipe declares a dependency on name.
func (r *Recipe) DependsOn(name string) (Dependency, bool) {
	i := slices.IndexFunc(r.Deps, func(d Dependency) bool { return d.Name == name })
	if i < 0 {
		return Dependency{}, false
	}
	return r.Deps[i], true
}
