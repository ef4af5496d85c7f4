// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package archive

import (
	"io"
	"os"

	"github.com/klauspost/compress/zip"
)

func (w *writer) unzip(src string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer zr.Close()

	w.comment = zr.Comment
	for _, f := range zr.File {
		if err := w.zipEntry(f); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) zipEntry(f *zip.File) error {
	mode := f.Mode()
	if mode.IsDir() {
		return w.mkdir(f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	if mode&os.ModeSymlink != 0 {
		target, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		return w.symlink(f.Name, string(target))
	}
	if !mode.IsRegular() {
		return nil
	}
	return w.writeFile(f.Name, mode, rc)
}
