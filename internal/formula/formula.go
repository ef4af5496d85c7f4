// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package formula

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/goplus/gotap/formula"
	classfile "github.com/goplus/gotap/internal/ixgo"
	"github.com/goplus/ixgo"
	"github.com/goplus/ixgo/xgobuild"
)

// loadMu serializes ixgo interpreter loading.
// The ixgo interpreter has internal race conditions during concurrent loading.
var loadMu sync.Mutex

// Formula is a loaded recipe together with the interpreted classfile
// instance it came from, if any.
type Formula struct {
	*formula.Recipe

	structElem reflect.Value
}

// Load loads a recipe from fsys, dispatching on the file suffix:
// "*_tap.gox" classfiles and "*.yaml"/"*.yml" declarative recipes.
func Load(fsys fs.ReadFileFS, file string) (*Formula, error) {
	switch {
	case strings.HasSuffix(file, classfile.RecipeExt):
		return LoadFS(fsys, file)
	case strings.HasSuffix(file, ".yaml"), strings.HasSuffix(file, ".yml"):
		return LoadYAML(fsys, file)
	}
	return nil, fmt.Errorf("failed to load formula: unknown recipe format: %s", file)
}

// IsRecipeFile reports whether name looks like a recipe file.
func IsRecipeFile(name string) bool {
	return strings.HasSuffix(name, classfile.RecipeExt) ||
		strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// LoadFS builds and interprets a recipe classfile, then reads the recipe
// collected by its embedded formula.RecipeF.
//
// The class name is the file name up to the first "_", e.g.
// "Things3Cli_tap.gox" declares class Things3Cli.
func LoadFS(fsys fs.ReadFileFS, file string) (*Formula, error) {
	content, err := fsys.ReadFile(file)
	if err != nil {
		return nil, err
	}
	structName, _, ok := strings.Cut(path.Base(file), "_")
	if !ok {
		return nil, fmt.Errorf("failed to load formula: file name is not valid: %s", file)
	}

	loadMu.Lock()
	defer loadMu.Unlock()

	ctx := ixgo.NewContext(0)
	source, err := xgobuild.BuildFile(ctx, file, content)
	if err != nil {
		return nil, err
	}
	pkgs, err := ctx.LoadFile("main.go", source)
	if err != nil {
		return nil, err
	}
	interp, err := ctx.NewInterp(pkgs)
	if err != nil {
		return nil, err
	}
	if err = interp.RunInit(); err != nil {
		return nil, err
	}
	typ, ok := interp.GetType(structName)
	if !ok {
		return nil, fmt.Errorf("failed to load formula: struct name not found: %s", structName)
	}
	val := reflect.New(typ)
	class := val.Elem()

	val.Interface().(interface{ Main() }).Main()

	field := class.FieldByName("RecipeF")
	if !field.IsValid() {
		return nil, fmt.Errorf("failed to load formula: %s does not embed formula.RecipeF", structName)
	}
	recipeF, ok := field.Addr().Interface().(*formula.RecipeF)
	if !ok {
		return nil, fmt.Errorf("failed to load formula: %s does not embed formula.RecipeF", structName)
	}
	recipe := recipeF.Recipe()
	recipe.Name = nameOf(file, strings.ToLower(structName))
	recipe.Source = file

	return &Formula{Recipe: recipe, structElem: class}, nil
}

// SetStdout sets the stdout writer for the classfile's gsh.App.
// It is a no-op for recipes that are not classfiles.
func (f *Formula) SetStdout(w io.Writer) {
	if f.structElem.IsValid() {
		setValue(f.structElem, "fout", w)
	}
}

// SetStderr sets the stderr writer for the classfile's gsh.App.
func (f *Formula) SetStderr(w io.Writer) {
	if f.structElem.IsValid() {
		setValue(f.structElem, "ferr", w)
	}
}

// nameOf returns the formula name for a recipe file: the name of its
// directory in a tap ("Formula/<name>/<file>"), or def at the fs root.
func nameOf(file, def string) string {
	dir := path.Base(path.Dir(file))
	if dir == "." || dir == "/" || dir == "Formula" {
		return def
	}
	return dir
}
