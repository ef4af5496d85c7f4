// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package formula

import (
	"slices"

	"github.com/qiniu/x/gsh"
)

const GopPackage = true

// -----------------------------------------------------------------------------

// RecipeF represents a recipe written as a classfile (*_tap.gox).
type RecipeF struct {
	gsh.App

	fOnInstall func(ctx *Context)
	fOnTest    func(ctx *Context)

	desc     string
	homepage string
	url      string
	sha256   string
	version  string
	revision int
	deps     []Dependency
}

func (p *RecipeF) app() *gsh.App {
	return &p.App
}

// Desc sets the one-line description of the packaged tool.
func (p *RecipeF) Desc(desc string) {
	p.desc = desc
}

// Homepage sets the upstream homepage URL.
func (p *RecipeF) Homepage(url string) {
	p.homepage = url
}

// Url sets the source archive URL.
func (p *RecipeF) Url(url string) {
	p.url = url
}

// Sha256 sets the expected SHA-256 of the source archive, hex encoded.
func (p *RecipeF) Sha256(sum string) {
	p.sha256 = sum
}

// Version sets the version identifier injected into the built binary.
// It must be traceable to the fetched source, e.g. a short commit hash.
func (p *RecipeF) Version(ver string) {
	p.version = ver
}

// Revision sets the recipe revision. A higher revision supersedes recipes
// of the same formula with a lower one.
func (p *RecipeF) Revision(rev int) {
	p.revision = rev
}

// DependsOn declares a runtime dependency.
func (p *RecipeF) DependsOn(name string) {
	p.deps = append(p.deps, Dependency{Name: name})
}

// BuildDependsOn declares a dependency needed only to build the recipe.
func (p *RecipeF) BuildDependsOn(name string) {
	p.deps = append(p.deps, Dependency{Name: name, Build: true})
}

// OnInstall event is used to compile the fetched source and place the
// results under ctx.Prefix.
func (p *RecipeF) OnInstall(f func(ctx *Context)) {
	p.fOnInstall = f
}

// OnTest event is used to smoke test the installed binaries.
func (p *RecipeF) OnTest(f func(ctx *Context)) {
	p.fOnTest = f
}

// Recipe returns the recipe collected by the classfile.
func (p *RecipeF) Recipe() *Recipe {
	return &Recipe{
		Desc:     p.desc,
		Homepage: p.homepage,
		URL:      p.url,
		SHA256:   p.sha256,
		Version:  p.version,
		Revision: p.revision,
		Deps:     slices.Clone(p.deps),
		Install:  p.fOnInstall,
		Test:     p.fOnTest,
	}
}

// -----------------------------------------------------------------------------

// Gopt_RecipeF_Main is main entry of this classfile.
func Gopt_RecipeF_Main(this interface {
	app() *gsh.App
	MainEntry()
}) {
	this.MainEntry()
	gsh.InitApp(this.app())
}
