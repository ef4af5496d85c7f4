// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/goplus/gotap/formula"
	"github.com/goplus/gotap/internal/vcs"
	"golang.org/x/mod/semver"
)

// ErrUpToDate is returned by Next when upstream has nothing newer.
var ErrUpToDate = errors.New("already up to date")

// Update is the next release of a recipe. SHA256 is left to the caller,
// which has to download the archive to compute it.
type Update struct {
	Version  string
	Revision int
	URL      string
	SHA256   string
}

// Next resolves the upstream release that supersedes r. Commit pinned
// recipes follow the remote HEAD, tag pinned ones the highest release tag.
func Next(ctx context.Context, v vcs.VCS, r *formula.Recipe) (Update, error) {
	arch, ok := vcs.ParseArchive(r.URL)
	if !ok {
		return Update{}, fmt.Errorf("%s is not a GitHub archive URL", r.URL)
	}
	u := Update{Revision: r.Revision + 1}
	if arch.Tag {
		tag, err := latestTag(ctx, v, arch.Remote())
		if err != nil {
			return Update{}, err
		}
		u.Version = strings.TrimPrefix(tag, "v")
		u.URL = arch.AtTag(tag)
	} else {
		commit, err := v.Latest(ctx, arch.Remote())
		if err != nil {
			return Update{}, err
		}
		u.Version = commit[:min(len(commit), max(len(r.Version), 7))]
		u.URL = arch.At(commit)
	}
	if u.Version == r.Version {
		return Update{}, fmt.Errorf("%s: %w", r.ID(), ErrUpToDate)
	}
	return u, nil
}

func latestTag(ctx context.Context, v vcs.VCS, remote string) (string, error) {
	tags, err := v.Tags(ctx, remote)
	if err != nil {
		return "", err
	}
	var best, bestV string
	for _, tag := range tags {
		sv := tag
		if !strings.HasPrefix(sv, "v") {
			sv = "v" + sv
		}
		if !semver.IsValid(sv) || semver.Prerelease(sv) != "" {
			continue
		}
		if best == "" || semver.Compare(sv, bestV) > 0 {
			best, bestV = tag, sv
		}
	}
	if best == "" {
		return "", fmt.Errorf("%s has no release tags", remote)
	}
	return best, nil
}

var (
	goxField  = regexp.MustCompile(`(?m)^(url|sha256|version)[ \t]+"[^"\n]*"[ \t]*$`)
	goxRev    = regexp.MustCompile(`(?m)^revision[ \t]+\d+[ \t]*$`)
	yamlField = regexp.MustCompile(`(?m)^(url|sha256|version):.*$`)
	yamlRev   = regexp.MustCompile(`(?m)^revision:.*$`)
	revSuffix = regexp.MustCompile(`(R\d+|-r\d+)$`)
)

// Rewrite returns the recipe content of file with its source fields
// replaced by u. Everything else, install and test bodies included, is
// kept byte for byte.
func Rewrite(file string, content []byte, u Update) ([]byte, error) {
	field, rev := goxField, goxRev
	format := func(key, val string) string { return fmt.Sprintf("%s %q", key, val) }
	revLine := fmt.Sprintf("revision %d", u.Revision)
	if isYAML(file) {
		field, rev = yamlField, yamlRev
		format = func(key, val string) string { return fmt.Sprintf("%s: %q", key, val) }
		revLine = fmt.Sprintf("revision: %d", u.Revision)
	}

	values := map[string]string{"url": u.URL, "sha256": u.SHA256, "version": u.Version}
	seen := make(map[string]bool)
	out := field.ReplaceAllFunc(content, func(line []byte) []byte {
		key := string(field.FindSubmatch(line)[1])
		seen[key] = true
		return []byte(format(key, values[key]))
	})
	for _, key := range []string{"url", "sha256", "version"} {
		if !seen[key] {
			return nil, fmt.Errorf("%s: no top-level %s field to update", file, key)
		}
	}

	if rev.Match(out) {
		return rev.ReplaceAll(out, []byte(revLine)), nil
	}
	// no revision yet: add one below the version
	loc := field.FindAllIndex(out, -1)
	for _, l := range loc {
		if bytes.HasPrefix(out[l[0]:], []byte("version")) {
			var buf bytes.Buffer
			buf.Write(out[:l[1]])
			buf.WriteString("\n" + revLine)
			buf.Write(out[l[1]:])
			return buf.Bytes(), nil
		}
	}
	return nil, fmt.Errorf("%s: no version field", file)
}

// BumpedName returns the file name of the recipe superseding file at
// revision rev, in the same directory. Classfiles get a new class name
// since the class is named after the file.
//
//	Formula/x/Things3Cli_tap.gox, 2 => Formula/x/Things3CliR2_tap.gox
//	Formula/x/x-r1.yaml, 2          => Formula/x/x-r2.yaml
func BumpedName(file string, rev int) string {
	dir, base := path.Split(file)
	if isYAML(base) {
		ext := path.Ext(base)
		stem := revSuffix.ReplaceAllString(strings.TrimSuffix(base, ext), "")
		return dir + stem + "-r" + strconv.Itoa(rev) + ext
	}
	class, rest, _ := strings.Cut(base, "_")
	class = revSuffix.ReplaceAllString(class, "")
	return dir + class + "R" + strconv.Itoa(rev) + "_" + rest
}

func isYAML(file string) bool {
	return strings.HasSuffix(file, ".yaml") || strings.HasSuffix(file, ".yml")
}
