// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lockedfile provides an inter-process mutex backed by a file lock.
package lockedfile

import (
	"fmt"
	"os"
)

// A Mutex provides mutual exclusion within and across processes by locking
// a well-known file. The file is created if needed and never removed.
type Mutex struct {
	path string
}

// MutexAt returns a new Mutex with file as the underlying file.
func MutexAt(path string) *Mutex {
	if path == "" {
		panic("lockedfile.MutexAt: path must be non-empty")
	}
	return &Mutex{path: path}
}

func (mu *Mutex) String() string {
	return fmt.Sprintf("lockedfile.Mutex(%s)", mu.path)
}

// Lock blocks until it holds the lock, then returns a function that
// releases it.
func (mu *Mutex) Lock() (unlock func(), err error) {
	f, err := os.OpenFile(mu.path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, &os.PathError{Op: "lock", Path: mu.path, Err: err}
	}
	return func() {
		unlockFile(f)
		f.Close()
	}, nil
}
