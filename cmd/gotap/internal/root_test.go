package internal

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goplus/gotap/internal/build"
	"github.com/spf13/pflag"
)

// repoTap is the repository itself, which carries the things3-cli recipes.
var repoTap = filepath.Join("..", "..", "..")

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	for _, k := range []string{"GOTAP_CONFIG", "GOTAP_PREFIX", "GOTAP_CACHE", "GOTAP_TAP"} {
		t.Setenv(k, "")
	}
	return dir
}

// run executes gotap with args and returns its combined output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(reset)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseFormulaArg(t *testing.T) {
	tests := []struct {
		arg         string
		wantName    string
		wantVersion string
	}{
		{"things3-cli@0bc1a5f", "things3-cli", "0bc1a5f"},
		{"hello@1.0.0", "hello", "1.0.0"},
		{"things3-cli", "things3-cli", ""},
		{"hello@", "hello", ""},
		{"multiple@at@signs", "multiple@at", "signs"},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			name, version := parseFormulaArg(tt.arg)
			if name != tt.wantName || version != tt.wantVersion {
				t.Errorf("parseFormulaArg(%q) = %q, %q, want %q, %q", tt.arg, name, version, tt.wantName, tt.wantVersion)
			}
		})
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table(&buf, [][]string{
		{"things3-cli", "0bc1a5f", "things"},
		{"hello", "1.0.0"},
	})
	want := "things3-cli  0bc1a5f  things\nhello        1.0.0\n"
	if buf.String() != want {
		t.Errorf("table() =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestSetup_Precedence(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config.yaml"), "prefix: /from/file\ntap: /tap/file\njobs: 2\n")
	t.Setenv("GOTAP_CONFIG", filepath.Join(dir, "config.yaml"))
	t.Setenv("GOTAP_TAP", "/tap/env")

	if _, err := run(t, "--prefix", filepath.Join(dir, "prefix"), "list"); err != nil {
		t.Fatal(err)
	}
	if cfg.Prefix != filepath.Join(dir, "prefix") || cfg.Tap != "/tap/env" || cfg.Jobs != 2 {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := run(t, "--config", filepath.Join(dir, "missing.yaml"), "list"); err == nil {
		t.Error("a missing --config file should fail")
	}
}

func TestAuditCommand(t *testing.T) {
	dir := isolate(t)
	out, err := run(t, "--tap", repoTap, "--prefix", filepath.Join(dir, "prefix"), "audit", "things3-cli")
	if err != nil {
		t.Fatalf("audit failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok") || !strings.Contains(out, "things3-cli@0bc1a5f") {
		t.Errorf("audit output:\n%s", out)
	}

	tap := filepath.Join(dir, "tap")
	writeFile(t, filepath.Join(tap, "Formula", "bad", "bad.yaml"), `url: http://example.com/bad.tar.gz
sha256: nope
version: 1.0.0
install:
  go_build:
    package: .
`)
	out, err = run(t, "--tap", tap, "--prefix", filepath.Join(dir, "prefix"), "audit")
	if err == nil {
		t.Fatalf("audit of a bad recipe should fail:\n%s", out)
	}
	for _, want := range []string{"problems", "url:", "sha256:", "depends_on:"} {
		if !strings.Contains(out, want) {
			t.Errorf("audit output lacks %q:\n%s", want, out)
		}
	}
}

func TestInfoAndList(t *testing.T) {
	dir := isolate(t)
	prefix := filepath.Join(dir, "prefix")

	out, err := run(t, "--tap", repoTap, "--prefix", prefix, "info", "things3-cli")
	if err != nil {
		t.Fatalf("info failed: %v\n%s", err, out)
	}
	for _, want := range []string{
		"things3-cli", "0bc1a5f", "revision 1", "CLI for Things 3",
		"* Formula/things3-cli/Things3CliTrimpath_tap.gox",
		"Formula/things3-cli/Things3Cli_tap.gox",
		"go (build)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("info output lacks %q:\n%s", want, out)
		}
	}

	out, err = run(t, "--tap", repoTap, "--prefix", prefix, "list", "--available")
	if err != nil {
		t.Fatalf("list --available failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "things3-cli") || !strings.Contains(out, "r1") {
		t.Errorf("list --available output:\n%s", out)
	}

	out, err = run(t, "--tap", repoTap, "--prefix", prefix, "list")
	if err != nil || out != "" {
		t.Errorf("list on an empty prefix = %q, %v", out, err)
	}

	if _, err := run(t, "--tap", repoTap, "--prefix", prefix, "info", "missing"); err == nil {
		t.Error("info of a missing formula should fail")
	}
}

func TestUninstallCommand(t *testing.T) {
	dir := isolate(t)
	_, err := run(t, "--tap", repoTap, "--prefix", filepath.Join(dir, "prefix"), "uninstall", "things3-cli")
	if !errors.Is(err, build.ErrNotInstalled) {
		t.Errorf("uninstall error = %v, want ErrNotInstalled", err)
	}
}

func TestFetchCommand(t *testing.T) {
	dir := isolate(t)
	t.Setenv("GOTAP_CACHE", filepath.Join(dir, "cache"))

	payload := []byte("not really a tarball")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	sum := sha256.Sum256(payload)
	recipe := func(sha string) string {
		return "url: " + srv.URL + "/hello-1.0.0.tar.gz\nsha256: " + sha + "\nversion: 1.0.0\ninstall:\n  go_build:\n    package: .\n"
	}
	tap := filepath.Join(dir, "tap")
	writeFile(t, filepath.Join(tap, "Formula", "hello", "hello.yaml"), recipe(hex.EncodeToString(sum[:])))

	out, err := run(t, "--tap", tap, "--prefix", filepath.Join(dir, "prefix"), "fetch")
	if err != nil {
		t.Fatalf("fetch failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "fetched") || !strings.Contains(out, "hello@1.0.0") {
		t.Errorf("fetch output:\n%s", out)
	}
	if !strings.Contains(out, filepath.Join(dir, "cache")) {
		t.Errorf("archive not cached under GOTAP_CACHE:\n%s", out)
	}

	writeFile(t, filepath.Join(tap, "Formula", "bad", "bad.yaml"), recipe(strings.Repeat("0", 64)))
	out, err = run(t, "--tap", tap, "--prefix", filepath.Join(dir, "prefix"), "fetch", "hello", "bad")
	if err == nil {
		t.Fatalf("fetch with a wrong checksum should fail:\n%s", out)
	}
	if !strings.Contains(out, "failed") || !strings.Contains(out, "checksum mismatch") {
		t.Errorf("fetch output:\n%s", out)
	}
}
