package build

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"sort"
	"sync"
	"testing"

	"github.com/goplus/gotap/internal/fetch"
	"github.com/klauspost/compress/gzip"
)

const helloModule = "example.com/hello"

// helloSource returns the files of a tiny Go CLI whose --version prints
// the value injected into internal/cli.Version.
func helloSource(note string) map[string]string {
	return map[string]string{
		"go.mod": "module " + helloModule + "\n\ngo 1.21\n",
		"internal/cli/cli.go": `package cli

// Version is set at link time.
var Version = "dev"

// ` + note + `
`,
		"cmd/hello/main.go": `package main

import (
	"fmt"
	"os"

	"example.com/hello/internal/cli"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println("hello version " + cli.Version)
		return
	}
	fmt.Println("hello")
}
`,
	}
}

// tarball builds a GitHub-style source archive with a single top-level dir.
func tarball(t *testing.T, top string, files map[string]string) []byte {
	t.Helper()
	return tarballWithComment(t, "", top, files)
}

// tarballWithComment is tarball with the commit comment GitHub writes into
// the pax global header.
func tarballWithComment(t *testing.T, commit, top string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	if commit != "" {
		hdr := &tar.Header{
			Typeflag:   tar.TypeXGlobalHeader,
			Name:       "pax_global_header",
			PAXRecords: map[string]string{"comment": commit},
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := tw.WriteHeader(&tar.Header{Name: top + "/", Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		body := files[name]
		hdr := &tar.Header{Name: top + "/" + name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sha256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// archiveServer serves archives by path and counts requests.
type archiveServer struct {
	*httptest.Server
	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]int
}

func newArchiveServer(t *testing.T) *archiveServer {
	t.Helper()
	s := &archiveServer{files: make(map[string][]byte), hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.hits[r.URL.Path]++
		data, ok := s.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(s.Close)
	return s
}

// add serves data at path and returns its URL and checksum.
func (s *archiveServer) add(path string, data []byte) (url, sum string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = data
	return s.URL + path, sha256Hex(data)
}

func (s *archiveServer) hitsOf(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func newTestBuilder(t *testing.T, force bool) *Builder {
	t.Helper()
	prefix := t.TempDir()
	return NewBuilder(Options{
		Prefix:  prefix,
		Fetcher: fetch.New(t.TempDir()),
		Force:   force,
	})
}

func requireGo(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping go build in short mode")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go not installed")
	}
}
