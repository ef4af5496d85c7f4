// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fetch downloads source archives into a content-addressed cache
// and verifies them against their pinned SHA-256.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrChecksumMismatch is the sentinel wrapped by every ChecksumError.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ChecksumError reports bytes whose SHA-256 differs from the pinned one.
type ChecksumError struct {
	URL  string
	Want string
	Got  string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%s: checksum mismatch: want sha256 %s, got %s", e.URL, e.Want, e.Got)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}

// Fetcher downloads archives into <dir>/downloads.
type Fetcher struct {
	dir    string
	client *http.Client
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client used for downloads.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithTimeout bounds each download. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.client = &http.Client{Timeout: d}
	}
}

// New returns a Fetcher caching under cacheDir.
func New(cacheDir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		dir:    filepath.Join(cacheDir, "downloads"),
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Dir returns the download cache directory.
func (f *Fetcher) Dir() string {
	return f.dir
}

// CachePath returns where the archive of rawURL pinned to sum is cached.
func (f *Fetcher) CachePath(rawURL, sum string) string {
	return filepath.Join(f.dir, sum+"--"+basename(rawURL))
}

// Fetch returns the local path of the archive at rawURL after verifying its
// SHA-256 against want. A cached copy is re-verified before it is trusted.
// On mismatch nothing is left in the cache and the error is a
// *ChecksumError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, want string) (string, error) {
	want = strings.ToLower(want)
	dest := f.CachePath(rawURL, want)
	if got, err := hashFile(dest); err == nil {
		if got == want {
			return dest, nil
		}
		os.Remove(dest)
	}

	tmp, got, err := f.download(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if got != want {
		os.Remove(tmp)
		return "", &ChecksumError{URL: rawURL, Want: want, Got: got}
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("caching %s: %w", rawURL, err)
	}
	return dest, nil
}

// Download fetches rawURL without a pinned checksum and returns the cached
// path with its SHA-256. It is used to pin new versions.
func (f *Fetcher) Download(ctx context.Context, rawURL string) (string, string, error) {
	tmp, sum, err := f.download(ctx, rawURL)
	if err != nil {
		return "", "", err
	}
	dest := f.CachePath(rawURL, sum)
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", "", fmt.Errorf("caching %s: %w", rawURL, err)
	}
	return dest, sum, nil
}

// download streams rawURL into a temp file in the cache dir, hashing while
// writing.
func (f *Fetcher) download(ctx context.Context, rawURL string) (tmpPath, sum string, err error) {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return "", "", fmt.Errorf("creating directory: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("downloading %s: HTTP %d", rawURL, resp.StatusCode)
	}

	out, err := os.CreateTemp(f.dir, ".fetch-*")
	if err != nil {
		return "", "", fmt.Errorf("creating file: %w", err)
	}
	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(out, h), resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out.Name())
		return "", "", fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	return out.Name(), hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks the SHA-256 of a local file.
func Verify(file, want string) error {
	got, err := hashFile(file)
	if err != nil {
		return err
	}
	if got != strings.ToLower(want) {
		return &ChecksumError{URL: file, Want: want, Got: got}
	}
	return nil
}

func hashFile(name string) (string, error) {
	fp, err := os.Open(name)
	if err != nil {
		return "", err
	}
	defer fp.Close()
	h := sha256.New()
	if _, err := io.Copy(h, fp); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// basename returns the last path element of a URL, e.g. "0bc1a5f.tar.gz".
func basename(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	base := path.Base(p)
	if base == "/" || base == "." || base == "" {
		return "download"
	}
	return base
}
