// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ixgo registers the recipe classfile with the XGo interpreter.
package ixgo

import (
	"github.com/goplus/ixgo/xgobuild"
	"github.com/goplus/mod/modfile"

	_ "github.com/goplus/gotap/internal/ixgo/pkg/github.com/goplus/gotap/formula"
	_ "github.com/goplus/gotap/internal/ixgo/pkg/github.com/qiniu/x/gsh"
)

// RecipeExt is the file suffix of recipe classfiles.
const RecipeExt = "_tap.gox"

func init() {
	xgobuild.RegisterProject(&modfile.Project{
		Ext:   RecipeExt,
		Class: "RecipeF",
		PkgPaths: []string{
			"github.com/goplus/gotap/formula",
		},
	})
}
