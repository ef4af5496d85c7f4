// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package formula

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/goplus/gotap/formula"
	"gopkg.in/yaml.v3"
)

// yamlRecipe is the declarative form of a recipe.
//
//	name: things3-cli
//	desc: CLI for Things 3
//	url: https://github.com/ossianhempel/things3-cli/archive/<commit>.tar.gz
//	sha256: <hex>
//	version: 0bc1a5f
//	depends_on:
//	  - {name: go, build: true}
//	install:
//	  go_build:
//	    package: ./cmd/things
//	    output: things
//	    trimpath: true
//	    strip: true
//	    version_symbol: github.com/ossianhempel/things3-cli/internal/cli.Version
//	test:
//	  - run: ["{{bin}}/things", "--version"]
type yamlRecipe struct {
	Name      string      `yaml:"name"`
	Desc      string      `yaml:"desc"`
	Homepage  string      `yaml:"homepage"`
	URL       string      `yaml:"url"`
	SHA256    string      `yaml:"sha256"`
	Version   yamlString  `yaml:"version"`
	Revision  int         `yaml:"revision"`
	DependsOn []yamlDep   `yaml:"depends_on"`
	Install   yamlInstall `yaml:"install"`
	Test      []yamlTest  `yaml:"test"`
}

type yamlInstall struct {
	GoBuild *yamlGoBuild `yaml:"go_build"`
}

type yamlGoBuild struct {
	Package       string   `yaml:"package"`
	Output        string   `yaml:"output"`
	StdArgs       bool     `yaml:"std_args"`
	Trimpath      bool     `yaml:"trimpath"`
	Strip         bool     `yaml:"strip"`
	VersionSymbol string   `yaml:"version_symbol"`
	Flags         []string `yaml:"flags"`
}

type yamlTest struct {
	Run   []string `yaml:"run"`
	Match string   `yaml:"match"`
}

// yamlString accepts scalars that YAML would otherwise decode as numbers,
// e.g. a short commit hash like 1234567.
type yamlString string

func (s *yamlString) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: version must be a scalar", node.Line)
	}
	*s = yamlString(node.Value)
	return nil
}

// yamlDep is either a plain name ("go") or a mapping ({name: go, build: true}).
type yamlDep struct {
	Name  string `yaml:"name"`
	Build bool   `yaml:"build"`
}

func (d *yamlDep) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		d.Name = node.Value
		return nil
	}
	type plain yamlDep
	return node.Decode((*plain)(d))
}

// LoadYAML loads a declarative recipe. The formula name defaults to the
// recipe's directory in the tap.
func LoadYAML(fsys fs.ReadFileFS, file string) (*Formula, error) {
	data, err := fsys.ReadFile(file)
	if err != nil {
		return nil, err
	}
	recipe, err := parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load formula %s: %w", file, err)
	}
	if recipe.Name == "" {
		base := strings.TrimSuffix(strings.TrimSuffix(path.Base(file), ".yaml"), ".yml")
		recipe.Name = nameOf(file, base)
	}
	recipe.Source = file
	return &Formula{Recipe: recipe}, nil
}

func parseYAML(data []byte) (*formula.Recipe, error) {
	var y yamlRecipe
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, err
	}
	if y.Install.GoBuild == nil {
		return nil, fmt.Errorf("install.go_build is required")
	}
	recipe := &formula.Recipe{
		Name:     y.Name,
		Desc:     y.Desc,
		Homepage: y.Homepage,
		URL:      y.URL,
		SHA256:   y.SHA256,
		Version:  string(y.Version),
		Revision: y.Revision,
		Install:  y.Install.GoBuild.install,
	}
	for _, d := range y.DependsOn {
		if d.Name == "" {
			return nil, fmt.Errorf("depends_on: empty dependency name")
		}
		recipe.Deps = append(recipe.Deps, formula.Dependency{Name: d.Name, Build: d.Build})
	}
	if len(y.Test) > 0 {
		for i, t := range y.Test {
			if len(t.Run) == 0 {
				return nil, fmt.Errorf("test[%d]: run is empty", i)
			}
		}
		tests := y.Test
		recipe.Test = func(ctx *formula.Context) {
			for _, t := range tests {
				runTest(ctx, t)
			}
		}
	}
	return recipe, nil
}

// install runs go build the way the declarative recipe describes it.
// With std_args the flags are assembled by Context.StdGoArgs, otherwise
// each flag is passed explicitly.
func (g *yamlGoBuild) install(ctx *formula.Context) {
	var ldflags []string
	if g.Strip {
		ldflags = append(ldflags, "-s", "-w")
	}
	if g.VersionSymbol != "" {
		ldflags = append(ldflags, "-X", g.VersionSymbol+"="+ctx.Version)
	}
	output := ctx.Bin(ctx.Name)
	if g.Output != "" {
		output = ctx.Bin(g.Output)
	}

	var flags []string
	if g.StdArgs {
		flags = ctx.StdGoArgs(strings.Join(ldflags, " "), output)
	} else {
		if g.Trimpath {
			flags = append(flags, "-trimpath")
		}
		if len(ldflags) > 0 {
			flags = append(flags, "-ldflags", strings.Join(ldflags, " "))
		}
		flags = append(flags, "-o", output)
	}
	for _, f := range g.Flags {
		flags = append(flags, expand(ctx, f))
	}

	pkg := g.Package
	if pkg == "" {
		pkg = "."
	}
	ctx.GoBuild(flags, pkg)
}

func runTest(ctx *formula.Context, t yamlTest) {
	argv := make([]string, len(t.Run))
	for i, a := range t.Run {
		argv[i] = expand(ctx, a)
	}
	if t.Match == "" {
		ctx.System(argv[0], argv[1:]...)
		return
	}
	out := ctx.Output(argv[0], argv[1:]...)
	ctx.AssertMatch(expand(ctx, t.Match), out)
}

// expand replaces {{bin}}, {{prefix}}, {{version}} and {{name}}.
func expand(ctx *formula.Context, s string) string {
	return strings.NewReplacer(
		"{{bin}}", ctx.BinDir,
		"{{prefix}}", ctx.Prefix,
		"{{version}}", ctx.Version,
		"{{name}}", ctx.Name,
	).Replace(s)
}
