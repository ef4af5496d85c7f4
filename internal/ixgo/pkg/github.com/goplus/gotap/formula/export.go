// export by github.com/goplus/ixgo/cmd/qexp

package formula

import (
	q "github.com/goplus/gotap/formula"

	"go/constant"
	"reflect"

	"github.com/goplus/ixgo"
)

func init() {
	ixgo.RegisterPackage(&ixgo.Package{
		Name: "formula",
		Path: "github.com/goplus/gotap/formula",
		Deps: map[string]string{
			"bytes":                  "bytes",
			"context":                "context",
			"errors":                 "errors",
			"fmt":                    "fmt",
			"github.com/qiniu/x/gsh": "gsh",
			"io":                     "io",
			"maps":                   "maps",
			"os":                     "os",
			"os/exec":                "exec",
			"path/filepath":          "filepath",
			"slices":                 "slices",
			"strings":                "strings",
		},
		Interfaces: map[string]reflect.Type{},
		NamedTypes: map[string]reflect.Type{
			"Context":    reflect.TypeOf((*q.Context)(nil)).Elem(),
			"Dependency": reflect.TypeOf((*q.Dependency)(nil)).Elem(),
			"Recipe":     reflect.TypeOf((*q.Recipe)(nil)).Elem(),
			"RecipeF":    reflect.TypeOf((*q.RecipeF)(nil)).Elem(),
		},
		AliasTypes: map[string]reflect.Type{},
		Vars:       map[string]reflect.Value{},
		Funcs: map[string]reflect.Value{
			"Gopt_RecipeF_Main": reflect.ValueOf(q.Gopt_RecipeF_Main),
			"NewContext":        reflect.ValueOf(q.NewContext),
			"ParseLdflags":      reflect.ValueOf(q.ParseLdflags),
		},
		TypedConsts: map[string]ixgo.TypedConst{},
		UntypedConsts: map[string]ixgo.UntypedConst{
			"GopPackage": {Typ: "untyped bool", Value: constant.MakeBool(bool(q.GopPackage))},
		},
	})
}
