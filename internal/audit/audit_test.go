package audit

import (
	"context"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/goplus/gotap/formula"
	loader "github.com/goplus/gotap/internal/formula"
)

const (
	things3URL    = "https://github.com/ossianhempel/things3-cli/archive/0bc1a5fdaf935636ae7b68f5e35c45615010dc35.tar.gz"
	things3SHA256 = "c3c18210d4fe6bcc9e4db446b90382452fd7d211a01a8b6b94fcd9b5b4e32d34"
	things3Symbol = "github.com/ossianhempel/things3-cli/internal/cli.Version"
)

func goodRecipe() *formula.Recipe {
	return &formula.Recipe{
		Name:    "things3-cli",
		URL:     things3URL,
		SHA256:  things3SHA256,
		Version: "0bc1a5f",
		Deps:    []formula.Dependency{{Name: "go", Build: true}},
		Install: func(c *formula.Context) {
			c.GoBuild(c.StdGoArgs("-s -w -X "+things3Symbol+"="+c.Version, c.Bin("things")), "./cmd/things")
		},
		Test: func(c *formula.Context) {
			c.System(c.Bin("things"), "--version")
		},
	}
}

func hasProblem(problems []Problem, field, substr string) bool {
	for _, p := range problems {
		if p.Field == field && strings.Contains(p.Msg, substr) {
			return true
		}
	}
	return false
}

func TestAudit_Good(t *testing.T) {
	if problems := Audit(context.Background(), goodRecipe()); len(problems) != 0 {
		t.Errorf("Audit() = %v, want none", problems)
	}
}

func TestAudit_Problems(t *testing.T) {
	tests := []struct {
		name   string
		modify func(r *formula.Recipe)
		field  string
		substr string
	}{
		{"http url", func(r *formula.Recipe) { r.URL = strings.Replace(r.URL, "https", "http", 1) }, "url", "https"},
		{"missing url", func(r *formula.Recipe) { r.URL = "" }, "url", "missing"},
		{"missing sha256", func(r *formula.Recipe) { r.SHA256 = "" }, "sha256", "missing"},
		{"short sha256", func(r *formula.Recipe) { r.SHA256 = "abc" }, "sha256", "64 lowercase hex"},
		{"upper sha256", func(r *formula.Recipe) { r.SHA256 = strings.ToUpper(things3SHA256) }, "sha256", "64 lowercase hex"},
		{"missing version", func(r *formula.Recipe) { r.Version = "" }, "version", "missing"},
		{"version not commit prefix", func(r *formula.Recipe) { r.Version = "9d8e7f6" }, "version", "not a prefix of commit"},
		{"tag mismatch", func(r *formula.Recipe) {
			r.URL = "https://github.com/ossianhempel/things3-cli/archive/refs/tags/v1.2.0.tar.gz"
			r.Version = "1.3.0"
		}, "version", "does not match tag"},
		{"tag not semver", func(r *formula.Recipe) {
			r.URL = "https://github.com/ossianhempel/things3-cli/archive/refs/tags/latest.tar.gz"
			r.Version = "latest"
		}, "version", "not a semantic version"},
		{"no go dep", func(r *formula.Recipe) { r.Deps = nil }, "depends_on", "build dependency"},
		{"go runtime dep", func(r *formula.Recipe) { r.Deps = []formula.Dependency{{Name: "go"}} }, "depends_on", "build time"},
		{"duplicate dep", func(r *formula.Recipe) {
			r.Deps = append(r.Deps, formula.Dependency{Name: "go", Build: true})
		}, "depends_on", "declared twice"},
		{"no install", func(r *formula.Recipe) { r.Install = nil }, "install", "missing"},
		{"no go build", func(r *formula.Recipe) {
			r.Install = func(c *formula.Context) { c.System("make") }
		}, "install", "does not run go build"},
		{"not stripped", func(r *formula.Recipe) {
			r.Install = func(c *formula.Context) {
				c.GoBuild(c.StdGoArgs("-X "+things3Symbol+"="+c.Version, c.Bin("things")), "./cmd/things")
			}
		}, "install", "-s -w"},
		{"no injection", func(r *formula.Recipe) {
			r.Install = func(c *formula.Context) { c.GoBuild(c.StdGoArgs("-s -w", c.Bin("things")), "./cmd/things") }
		}, "install", "no -X injection"},
		{"foreign symbol", func(r *formula.Recipe) {
			r.Install = func(c *formula.Context) {
				c.GoBuild(c.StdGoArgs("-s -w -X example.com/other/cli.Version="+c.Version), "./cmd/things")
			}
		}, "install", "outside github.com/ossianhempel/things3-cli"},
		{"bad ldflags", func(r *formula.Recipe) {
			r.Install = func(c *formula.Context) { c.GoBuild([]string{"-ldflags"}, ".") }
		}, "install", "flag needs an argument"},
		{"no test", func(r *formula.Recipe) { r.Test = nil }, "test", "missing"},
		{"test without --version", func(r *formula.Recipe) {
			r.Test = func(c *formula.Context) { c.System(c.Bin("things"), "help") }
		}, "test", "--version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := goodRecipe()
			tt.modify(r)
			problems := Audit(context.Background(), r)
			if !hasProblem(problems, tt.field, tt.substr) {
				t.Errorf("Audit() = %v, want %s problem with %q", problems, tt.field, tt.substr)
			}
		})
	}
}

func TestAudit_Tag(t *testing.T) {
	r := goodRecipe()
	r.URL = "https://github.com/ossianhempel/things3-cli/archive/refs/tags/v1.2.0.tar.gz"
	r.Version = "1.2.0"
	if problems := Audit(context.Background(), r); len(problems) != 0 {
		t.Errorf("Audit() = %v, want none", problems)
	}
}

func TestAudit_TapRecipes(t *testing.T) {
	fsys := os.DirFS("../..").(fs.ReadFileFS)
	for _, file := range []string{
		"Formula/things3-cli/Things3Cli_tap.gox",
		"Formula/things3-cli/Things3CliTrimpath_tap.gox",
	} {
		t.Run(file, func(t *testing.T) {
			f, err := loader.Load(fsys, file)
			if err != nil {
				t.Fatal(err)
			}
			if problems := Audit(context.Background(), f.Recipe); len(problems) != 0 {
				t.Errorf("Audit() = %v, want none", problems)
			}
		})
	}
}

func TestCheckSymbol(t *testing.T) {
	tests := []struct {
		sym     string
		wantErr bool
	}{
		{things3Symbol, false},
		{"main.version", false},
		{"gopkg.in/yaml.v3.Version", false},
		{"Version", true},
		{"example.com/cli.", true},
		{"example.com/cli.1abc", true},
		{"example.com/cli.Version-x", true},
		{"-example.com/cli.Version", true},
		{"example.com//cli.Version", true},
	}
	for _, tt := range tests {
		if err := CheckSymbol(tt.sym); (err != nil) != tt.wantErr {
			t.Errorf("CheckSymbol(%q) error = %v, wantErr %v", tt.sym, err, tt.wantErr)
		}
	}
}
