package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.URL.Path)
	}))
	defer server.Close()

	var jobs []Job
	for i := 0; i < 5; i++ {
		p := fmt.Sprintf("/pkg%d.tar.gz", i)
		jobs = append(jobs, Job{Name: fmt.Sprintf("pkg%d", i), URL: server.URL + p, SHA256: sum([]byte(p))})
	}
	jobs = append(jobs, Job{Name: "bad", URL: server.URL + "/bad.tar.gz", SHA256: strings.Repeat("0", 64)})

	results := New(t.TempDir()).FetchAll(context.Background(), jobs, 3)
	if len(results) != len(jobs) {
		t.Fatalf("got %d results, want %d", len(results), len(jobs))
	}
	for i, r := range results {
		if r.Job != jobs[i] {
			t.Errorf("result %d is for %s, want %s", i, r.Job.Name, jobs[i].Name)
		}
		if r.Job.Name == "bad" {
			if !errors.Is(r.Error, ErrChecksumMismatch) {
				t.Errorf("bad job error = %v", r.Error)
			}
			continue
		}
		if r.Error != nil || r.Path == "" {
			t.Errorf("job %s: path %q, error %v", r.Job.Name, r.Path, r.Error)
		}
	}
}

func TestFetchAll_Empty(t *testing.T) {
	if results := New(t.TempDir()).FetchAll(context.Background(), nil, 0); len(results) != 0 {
		t.Errorf("FetchAll(nil) = %v", results)
	}
}
