package build

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/goplus/gotap/formula"
	"github.com/goplus/gotap/internal/fetch"
	loader "github.com/goplus/gotap/internal/formula"
)

// ---------------------------------------------------------------------------
// E2E tests: fetch a real source archive over HTTP and build it with go
// ---------------------------------------------------------------------------

const helloSymbol = helloModule + "/internal/cli.Version"

func helloLdflags(version string) string {
	return "-s -w -X " + helloSymbol + "=" + version
}

// helperStyle builds with the flag-assembling helper and checks the
// reported version.
func helperStyle(url, sum, version string) *formula.Recipe {
	return &formula.Recipe{
		Name:    "hello",
		URL:     url,
		SHA256:  sum,
		Version: version,
		Deps:    []formula.Dependency{{Name: "go", Build: true}},
		Install: func(c *formula.Context) {
			c.GoBuild(c.StdGoArgs(helloLdflags(c.Version), c.Bin("hello")), "./cmd/hello")
		},
		Test: func(c *formula.Context) {
			out := c.Output(c.Bin("hello"), "--version")
			c.AssertMatch(c.Version, out)
		},
	}
}

// explicitStyle passes -trimpath and -o as discrete flags and only checks
// that --version exits 0.
func explicitStyle(url, sum, version string) *formula.Recipe {
	return &formula.Recipe{
		Name:     "hello",
		URL:      url,
		SHA256:   sum,
		Version:  version,
		Revision: 1,
		Deps:     []formula.Dependency{{Name: "go", Build: true}},
		Install: func(c *formula.Context) {
			c.GoBuild([]string{"-trimpath", "-ldflags", helloLdflags(c.Version), "-o", c.Bin("hello")}, "./cmd/hello")
		},
		Test: func(c *formula.Context) {
			c.System(c.Bin("hello"), "--version")
		},
	}
}

func runVersion(t *testing.T, bin string) string {
	t.Helper()
	out, err := exec.Command(bin, "--version").Output()
	if err != nil {
		t.Fatalf("%s --version: %v", bin, err)
	}
	return strings.TrimSpace(string(out))
}

func TestE2E_Install(t *testing.T) {
	requireGo(t)
	srv := newArchiveServer(t)
	url, sum := srv.add("/hello-1.0.0.tar.gz", tarball(t, "hello-1.0.0", helloSource("one")))

	for name, newRecipe := range map[string]func(string, string, string) *formula.Recipe{
		"helper":   helperStyle,
		"explicit": explicitStyle,
	} {
		t.Run(name, func(t *testing.T) {
			b := newTestBuilder(t, false)
			rc, err := b.Install(context.Background(), newRecipe(url, sum, "1.0.0"))
			if err != nil {
				t.Fatalf("Install() error = %v", err)
			}
			if rc.Cached {
				t.Error("fresh install reported as cached")
			}
			if rc.Module != helloModule {
				t.Errorf("Module = %q, want %q", rc.Module, helloModule)
			}
			if !strings.HasPrefix(rc.SourceHash, "h1:") {
				t.Errorf("SourceHash = %q", rc.SourceHash)
			}
			if rc.Injections[helloSymbol] != "1.0.0" || !rc.Stripped {
				t.Errorf("Injections = %v, Stripped = %v", rc.Injections, rc.Stripped)
			}
			if len(rc.Binaries) != 1 || rc.Binaries[0] != "hello" {
				t.Errorf("Binaries = %v", rc.Binaries)
			}
			assertLink(t, b, "hello", b.KegOf("hello", "1.0.0"))

			if got := runVersion(t, filepath.Join(b.Prefix(), "bin", "hello")); got != "hello version 1.0.0" {
				t.Errorf("--version = %q", got)
			}

			// the receipt makes the next install a no-op
			rc, err = b.Install(context.Background(), newRecipe(url, sum, "1.0.0"))
			if err != nil || !rc.Cached {
				t.Errorf("second Install() = %+v, %v", rc, err)
			}
			if n := srv.hitsOf("/hello-1.0.0.tar.gz"); n > 2 {
				t.Errorf("archive downloaded %d times", n)
			}

			if err := b.Test(context.Background(), newRecipe(url, sum, "1.0.0")); err != nil {
				t.Errorf("Test() error = %v", err)
			}
		})
	}
}

func TestE2E_FlagStylesEquivalent(t *testing.T) {
	requireGo(t)
	srv := newArchiveServer(t)
	url, sum := srv.add("/hello-0bc1a5f.tar.gz", tarball(t, "hello-0bc1a5f", helloSource("one")))

	var outputs []string
	for _, r := range []*formula.Recipe{helperStyle(url, sum, "0bc1a5f"), explicitStyle(url, sum, "0bc1a5f")} {
		b := newTestBuilder(t, false)
		rc, err := b.Install(context.Background(), r)
		if err != nil {
			t.Fatalf("Install() error = %v", err)
		}
		outputs = append(outputs, runVersion(t, filepath.Join(rc.Keg, "bin", "hello")))
	}
	if outputs[0] != outputs[1] || outputs[0] != "hello version 0bc1a5f" {
		t.Errorf("flag styles disagree: %q vs %q", outputs[0], outputs[1])
	}
}

func TestE2E_TwoVersions(t *testing.T) {
	requireGo(t)
	srv := newArchiveServer(t)
	url1, sum1 := srv.add("/0bc1a5f.tar.gz", tarball(t, "hello-0bc1a5f", helloSource("one")))
	url2, sum2 := srv.add("/9d8e7f6.tar.gz", tarball(t, "hello-9d8e7f6", helloSource("two")))
	if sum1 == sum2 {
		t.Fatal("archives of different commits share a checksum")
	}

	b := newTestBuilder(t, false)
	rc1, err := b.Install(context.Background(), helperStyle(url1, sum1, "0bc1a5f"))
	if err != nil {
		t.Fatal(err)
	}
	rc2, err := b.Install(context.Background(), explicitStyle(url2, sum2, "9d8e7f6"))
	if err != nil {
		t.Fatal(err)
	}

	v1 := runVersion(t, filepath.Join(rc1.Keg, "bin", "hello"))
	v2 := runVersion(t, filepath.Join(rc2.Keg, "bin", "hello"))
	if v1 != "hello version 0bc1a5f" || v2 != "hello version 9d8e7f6" {
		t.Errorf("versions = %q, %q", v1, v2)
	}
	// the latest install owns the link
	assertLink(t, b, "hello", rc2.Keg)

	rs, err := b.Installed()
	if err != nil || len(rs) != 2 {
		t.Errorf("Installed() = %v, %v", rs, err)
	}
}

func TestE2E_ChangedChecksum(t *testing.T) {
	requireGo(t)
	srv := newArchiveServer(t)
	url, sum := srv.add("/hello.tar.gz", tarball(t, "hello", helloSource("one")))
	b := newTestBuilder(t, false)

	// same URL, checksum of other bytes
	r := helperStyle(url, sha256Hex([]byte(sum)), "1.0.0")
	install := r.Install
	built := false
	r.Install = func(c *formula.Context) { built = true; install(c) }

	_, err := b.Install(context.Background(), r)
	var be *Error
	if !errors.As(err, &be) || be.Step != StepVerify {
		t.Fatalf("Install() error = %v, want verify step", err)
	}
	if built {
		t.Error("build ran after a checksum mismatch")
	}
	assertNotInstalled(t, b, "hello", "1.0.0")
}

func TestE2E_TestFailure(t *testing.T) {
	requireGo(t)
	srv := newArchiveServer(t)
	url, sum := srv.add("/hello.tar.gz", tarball(t, "hello", helloSource("one")))

	tests := map[string]func(c *formula.Context){
		"assert":  func(c *formula.Context) { c.AssertMatch("2.0.0", c.Output(c.Bin("hello"), "--version")) },
		"missing": func(c *formula.Context) { c.System(c.Bin("things"), "--version") },
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			b := newTestBuilder(t, false)
			r := helperStyle(url, sum, "1.0.0")
			r.Test = test
			_, err := b.Install(context.Background(), r)
			var be *Error
			if !errors.As(err, &be) || be.Step != StepTest {
				t.Fatalf("Install() error = %v, want test step", err)
			}
			assertNotInstalled(t, b, "hello", "1.0.0")
		})
	}
}

func TestE2E_CompileError(t *testing.T) {
	requireGo(t)
	src := helloSource("one")
	src["cmd/hello/main.go"] = "package main\n\nfunc main() { undefined() }\n"
	srv := newArchiveServer(t)
	url, sum := srv.add("/broken.tar.gz", tarball(t, "hello", src))

	b := newTestBuilder(t, false)
	_, err := b.Install(context.Background(), helperStyle(url, sum, "1.0.0"))
	var be *Error
	if !errors.As(err, &be) || be.Step != StepBuild {
		t.Fatalf("Install() error = %v, want build step", err)
	}
	assertNotInstalled(t, b, "hello", "1.0.0")
}

func TestE2E_VerifyVersion(t *testing.T) {
	requireGo(t)
	srv := newArchiveServer(t)
	url, sum := srv.add("/hello.tar.gz", tarball(t, "hello", helloSource("one")))

	tests := map[string]string{
		"no injection":   "-s -w",
		"wrong value":    "-s -w -X " + helloSymbol + "=dev",
		"foreign symbol": "-s -w -X example.com/other/cli.Version=1.0.0",
	}
	for name, ldflags := range tests {
		t.Run(name, func(t *testing.T) {
			b := newTestBuilder(t, false)
			r := helperStyle(url, sum, "1.0.0")
			r.Install = func(c *formula.Context) {
				c.GoBuild(c.StdGoArgs(ldflags, c.Bin("hello")), "./cmd/hello")
			}
			_, err := b.Install(context.Background(), r)
			var be *Error
			if !errors.As(err, &be) || be.Step != StepVerifyVersion {
				t.Fatalf("Install() error = %v, want verify-version step", err)
			}
			assertNotInstalled(t, b, "hello", "1.0.0")
		})
	}
}

func TestE2E_ForceReinstall(t *testing.T) {
	requireGo(t)
	srv := newArchiveServer(t)
	url, sum := srv.add("/hello.tar.gz", tarball(t, "hello", helloSource("one")))

	b := newTestBuilder(t, false)
	if _, err := b.Install(context.Background(), helperStyle(url, sum, "1.0.0")); err != nil {
		t.Fatal(err)
	}
	forced := NewBuilder(Options{Prefix: b.Prefix(), Fetcher: b.opts.Fetcher, Force: true})
	rc, err := forced.Install(context.Background(), explicitStyle(url, sum, "1.0.0"))
	if err != nil {
		t.Fatalf("forced Install() error = %v", err)
	}
	if rc.Cached || rc.Revision != 1 {
		t.Errorf("forced Install() = %+v", rc)
	}
	assertLink(t, b, "hello", rc.Keg)

	// a failing forced reinstall keeps the previous keg
	r := explicitStyle(url, sum, "1.0.0")
	r.Test = func(c *formula.Context) { c.AddErr(errors.New("smoke test failed")) }
	if _, err := forced.Install(context.Background(), r); err == nil {
		t.Fatal("forced Install() with a failing test succeeded")
	}
	if got := runVersion(t, filepath.Join(b.Prefix(), "bin", "hello")); got != "hello version 1.0.0" {
		t.Errorf("--version after failed reinstall = %q", got)
	}
}

func TestE2E_DeclarativeRecipe(t *testing.T) {
	requireGo(t)
	srv := newArchiveServer(t)
	url, sum := srv.add("/4f2a9c1.tar.gz", tarball(t, "hello-4f2a9c1", helloSource("one")))

	for _, stdArgs := range []string{"true", "false"} {
		t.Run("std_args="+stdArgs, func(t *testing.T) {
			fsys := fstest.MapFS{
				"Formula/hello/hello.yaml": {Data: []byte(`version: 4f2a9c1
url: ` + url + `
sha256: ` + sum + `
depends_on:
  - {name: go, build: true}
install:
  go_build:
    package: ./cmd/hello
    std_args: ` + stdArgs + `
    trimpath: true
    strip: true
    version_symbol: ` + helloSymbol + `
test:
  - run: ["{{bin}}/hello", "--version"]
    match: "hello version {{version}}"
`)},
			}
			f, err := loader.Load(fsys, "Formula/hello/hello.yaml")
			if err != nil {
				t.Fatal(err)
			}
			b := newTestBuilder(t, false)
			rc, err := b.Install(context.Background(), f.Recipe)
			if err != nil {
				t.Fatalf("Install() error = %v", err)
			}
			if got := runVersion(t, filepath.Join(rc.Keg, "bin", "hello")); got != "hello version 4f2a9c1" {
				t.Errorf("--version = %q", got)
			}
		})
	}
}

func TestE2E_Classfile(t *testing.T) {
	requireGo(t)
	srv := newArchiveServer(t)
	url, sum := srv.add("/0bc1a5f.tar.gz", tarball(t, "hello-0bc1a5f", helloSource("one")))

	fsys := fstest.MapFS{
		"Formula/hello/Hello_tap.gox": {Data: []byte(`desc "Prints its version"
url "` + url + `"
sha256 "` + sum + `"
version "0bc1a5f"

buildDependsOn "go"

onInstall ctx => {
	ldflags := "-s -w -X ` + helloSymbol + `=" + ctx.Version
	ctx.GoBuild(ctx.StdGoArgs(ldflags, ctx.Bin("hello")), "./cmd/hello")
}

onTest ctx => {
	ctx.System(ctx.Bin("hello"), "--version")
}
`)},
	}
	f, err := loader.Load(fsys, "Formula/hello/Hello_tap.gox")
	if err != nil {
		t.Fatal(err)
	}
	if f.Name != "hello" {
		t.Errorf("Name = %q", f.Name)
	}
	b := NewBuilder(Options{Prefix: t.TempDir(), Fetcher: fetch.New(t.TempDir())})
	rc, err := b.Install(context.Background(), f.Recipe)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if got := runVersion(t, filepath.Join(rc.Keg, "bin", "hello")); got != "hello version 0bc1a5f" {
		t.Errorf("--version = %q", got)
	}
	if _, err := os.Stat(filepath.Join(rc.Keg, receiptFile)); err != nil {
		t.Errorf("receipt missing: %v", err)
	}
}
