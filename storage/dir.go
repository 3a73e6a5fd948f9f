// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// DirFS serves files from a host directory, it stands in for the microSD
// card when running under simulation.
type DirFS string

func (d DirFS) resolve(name string) (string, error) {
	if err := CheckPath(name); err != nil {
		return "", err
	}

	return filepath.Join(string(d), filepath.FromSlash(Join("/", name))), nil
}

// Open opens the named file for reading.
func (d DirFS) Open(name string) (File, error) {
	p, err := d.resolve(name)

	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)

	if err != nil {
		return nil, err
	}

	return f, nil
}

// Stat returns the named file information.
func (d DirFS) Stat(name string) (fs.FileInfo, error) {
	p, err := d.resolve(name)

	if err != nil {
		return nil, err
	}

	return os.Stat(p)
}

// WriteFile creates or truncates the named file.
func (d DirFS) WriteFile(name string, data []byte) error {
	p, err := d.resolve(name)

	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}

	return os.WriteFile(p, data, 0644)
}
