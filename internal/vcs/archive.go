// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"fmt"
	"net/url"
	"strings"
)

// Archive describes a GitHub source archive URL.
type Archive struct {
	Owner string
	Repo  string
	Ref   string // commit hash or tag
	Tag   bool   // Ref came from refs/tags/
	Ext   string // ".tar.gz" or ".zip"
}

// ParseArchive recognizes the two GitHub archive URL shapes:
//
//	https://github.com/<owner>/<repo>/archive/<commit><ext>
//	https://github.com/<owner>/<repo>/archive/refs/tags/<tag><ext>
func ParseArchive(rawURL string) (Archive, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host != "github.com" {
		return Archive{}, false
	}
	parts := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	if len(parts) < 4 || parts[2] != "archive" {
		return Archive{}, false
	}
	a := Archive{Owner: parts[0], Repo: parts[1]}
	rest := parts[3:]
	if len(rest) == 3 && rest[0] == "refs" && rest[1] == "tags" {
		a.Tag = true
		rest = rest[2:]
	}
	if len(rest) != 1 {
		return Archive{}, false
	}
	for _, ext := range []string{".tar.gz", ".zip"} {
		if ref, ok := strings.CutSuffix(rest[0], ext); ok && ref != "" {
			a.Ref, a.Ext = ref, ext
			return a, true
		}
	}
	return Archive{}, false
}

// Remote returns the git remote of the archive's repository.
func (a Archive) Remote() string {
	return fmt.Sprintf("https://github.com/%s/%s", a.Owner, a.Repo)
}

// At returns the archive URL of the same repository at another commit.
func (a Archive) At(commit string) string {
	ext := a.Ext
	if ext == "" {
		ext = ".tar.gz"
	}
	return fmt.Sprintf("%s/archive/%s%s", a.Remote(), commit, ext)
}

// AtTag returns the archive URL of the same repository at a tag.
func (a Archive) AtTag(tag string) string {
	ext := a.Ext
	if ext == "" {
		ext = ".tar.gz"
	}
	return fmt.Sprintf("%s/archive/refs/tags/%s%s", a.Remote(), tag, ext)
}
