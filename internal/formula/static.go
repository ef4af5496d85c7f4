// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package formula

import (
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/goplus/ixgo/xgobuild"
	"github.com/goplus/xgo/ast"
	"github.com/goplus/xgo/parser"
	"github.com/goplus/xgo/token"
	"gopkg.in/yaml.v3"
)

// Header is the part of a recipe that can be read without executing it.
type Header struct {
	Version  string
	Revision int
}

// HeaderOf reads the version and revision of a recipe file without
// interpreting it. Classfiles are parsed, YAML recipes are decoded.
func HeaderOf(fsys fs.ReadFileFS, file string) (Header, error) {
	content, err := fsys.ReadFile(file)
	if err != nil {
		return Header{}, err
	}
	if strings.HasSuffix(file, ".yaml") || strings.HasSuffix(file, ".yml") {
		var h struct {
			Version  yamlString `yaml:"version"`
			Revision int        `yaml:"revision"`
		}
		if err := yaml.Unmarshal(content, &h); err != nil {
			return Header{}, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		return Header{Version: string(h.Version), Revision: h.Revision}, nil
	}

	fset := token.NewFileSet()
	astFile, err := parser.ParseEntry(fset, file, content, parser.Config{
		ClassKind: xgobuild.ClassKind,
	})
	if err != nil {
		return Header{}, err
	}
	return headerFrom(astFile)
}

// headerFrom extracts the version and revision calls from a recipe AST.
// The version call is required, revision defaults to 0.
func headerFrom(f *ast.File) (h Header, err error) {
	ast.Inspect(f, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		c, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		fn, ok := c.Fun.(*ast.Ident)
		if !ok {
			return true
		}
		switch fn.Name {
		case "version":
			h.Version, err = parseCallArg(c, fn.Name, token.STRING)
			return false
		case "revision":
			var rev string
			if rev, err = parseCallArg(c, fn.Name, token.INT); err == nil {
				h.Revision, err = strconv.Atoi(rev)
			}
			return false
		}
		return true
	})
	if err != nil {
		return Header{}, err
	}
	if h.Version == "" {
		return Header{}, fmt.Errorf("failed to parse version from AST: cannot match any version expr")
	}
	return h, nil
}

// parseCallArg extracts the first literal argument of a call expression.
func parseCallArg(c *ast.CallExpr, fnName string, kind token.Token) (string, error) {
	if len(c.Args) == 0 {
		return "", fmt.Errorf("failed to parse %s from AST: no argument", fnName)
	}
	arg, ok := c.Args[0].(*ast.BasicLit)
	if !ok || arg.Kind != kind {
		return "", fmt.Errorf("failed to parse %s from AST: argument is not a %s literal", fnName, kind)
	}
	if kind != token.STRING {
		return arg.Value, nil
	}
	v, err := strconv.Unquote(arg.Value)
	if err != nil || v == "" {
		return "", fmt.Errorf("failed to parse %s from AST: empty argument", fnName)
	}
	return v, nil
}
