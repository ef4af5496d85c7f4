// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fetch

import (
	"context"
	"sync"
)

// Job is one archive to fetch.
type Job struct {
	Name   string
	URL    string
	SHA256 string
}

// Result is the outcome of a Job.
type Result struct {
	Job   Job
	Path  string
	Error error
}

// FetchAll fetches jobs with at most workers concurrent downloads. Results
// are returned in job order.
func (f *Fetcher) FetchAll(ctx context.Context, jobs []Job, workers int) []Result {
	if workers < 1 {
		workers = 1
	}
	results := make([]Result, len(jobs))
	idx := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				job := jobs[i]
				path, err := f.Fetch(ctx, job.URL, job.SHA256)
				results[i] = Result{Job: job, Path: path, Error: err}
			}
		}()
	}
	for i := range jobs {
		idx <- i
	}
	close(idx)
	wg.Wait()
	return results
}
