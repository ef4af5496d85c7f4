// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package formula

import (
	"fmt"
	"strings"
)

// ldflagsOf returns the value of the last -ldflags flag in a go build
// argument list. Like the go command, a later -ldflags replaces an earlier one.
func ldflagsOf(flags []string) (string, error) {
	var ldflags string
	for i := 0; i < len(flags); i++ {
		f := flags[i]
		if !strings.HasPrefix(f, "-") {
			continue
		}
		name, val, hasVal := strings.Cut(strings.TrimPrefix(strings.TrimPrefix(f, "-"), "-"), "=")
		if name != "ldflags" {
			continue
		}
		if !hasVal {
			if i+1 >= len(flags) {
				return "", fmt.Errorf("go build: flag needs an argument: -ldflags")
			}
			i++
			val = flags[i]
		}
		ldflags = val
	}
	return ldflags, nil
}

// ParseLdflags extracts the -X injections of a linker flag string and
// whether symbol stripping (-s or -w) was requested.
func ParseLdflags(ldflags string) (injections map[string]string, stripped bool, err error) {
	fields, err := splitQuoted(ldflags)
	if err != nil {
		return nil, false, err
	}
	injections = make(map[string]string)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case f == "-s" || f == "-w":
			stripped = true
		case f == "-X":
			if i+1 >= len(fields) {
				return nil, false, fmt.Errorf("ldflags: -X needs symbol=value")
			}
			i++
			if err := addInjection(injections, fields[i]); err != nil {
				return nil, false, err
			}
		case strings.HasPrefix(f, "-X="):
			if err := addInjection(injections, strings.TrimPrefix(f, "-X=")); err != nil {
				return nil, false, err
			}
		}
	}
	return injections, stripped, nil
}

func addInjection(injections map[string]string, def string) error {
	sym, val, ok := strings.Cut(def, "=")
	if !ok || sym == "" {
		return fmt.Errorf("ldflags: -X %q: want symbol=value", def)
	}
	injections[sym] = val
	return nil
}

// splitQuoted splits s into fields like the linker flag parser of the go
// command: fields are separated by spaces and may be quoted with ' or ".
func splitQuoted(s string) ([]string, error) {
	var fields []string
	var quote byte
	var cur strings.Builder
	inField := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
				continue
			}
			cur.WriteByte(ch)
		case ch == '\'' || ch == '"':
			quote = ch
			inField = true
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			if inField {
				fields = append(fields, cur.String())
				cur.Reset()
				inField = false
			}
		default:
			cur.WriteByte(ch)
			inField = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("ldflags: unterminated %c string", quote)
	}
	if inField {
		fields = append(fields, cur.String())
	}
	return fields, nil
}
