// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package storage defines the removable storage interface program images are
// read from.
package storage

import (
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/pkg/errors"
)

// MaxPathLength is the longest accepted image path.
const MaxPathLength = 256

var ErrPath = errors.New("invalid path")

// File is an open file supporting random seeks and chunked reads.
type File interface {
	io.Reader
	io.Seeker
	io.Closer
}

// FS is the file system of the removable storage.
type FS interface {
	Open(name string) (File, error)
	Stat(name string) (fs.FileInfo, error)
	WriteFile(name string, data []byte) error
}

// CheckPath validates a path without copying it.
func CheckPath(name string) error {
	if len(name) == 0 {
		return errors.Wrap(ErrPath, "empty path")
	}

	if len(name) > MaxPathLength {
		return errors.Wrapf(ErrPath, "path length %d exceeds %d", len(name), MaxPathLength)
	}

	if strings.IndexByte(name, 0) >= 0 {
		return errors.Wrap(ErrPath, "path contains NUL")
	}

	return nil
}

// Split returns the elements of a slash separated path.
func Split(name string) (elems []string) {
	for _, e := range strings.Split(name, "/") {
		if e != "" {
			elems = append(elems, e)
		}
	}

	return
}

// Dir returns all but the last element of a path.
func Dir(name string) string {
	return path.Dir(name)
}

// Base returns the last element of a path.
func Base(name string) string {
	return path.Base(name)
}

// Join joins path elements with slashes.
func Join(elem ...string) string {
	return path.Join(elem...)
}
