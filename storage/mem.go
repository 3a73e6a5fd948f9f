// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package storage

import (
	"bytes"
	"io/fs"
	"sync"
	"time"
)

// MemFS is an in-memory file system.
type MemFS struct {
	sync.Mutex

	files map[string][]byte

	// ReadAll, when set, fetches files missing from memory.
	ReadAll func(name string) ([]byte, error)
}

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error {
	return nil
}

type memInfo struct {
	name string
	size int64
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) Mode() fs.FileMode  { return 0444 }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return false }
func (i memInfo) Sys() any           { return nil }

func (m *MemFS) get(name string) (buf []byte, err error) {
	if err = CheckPath(name); err != nil {
		return
	}

	name = Join("/", name)

	m.Lock()
	buf, ok := m.files[name]
	m.Unlock()

	if ok {
		return
	}

	if m.ReadAll == nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	return m.ReadAll(name)
}

// Open opens the named file for reading.
func (m *MemFS) Open(name string) (File, error) {
	buf, err := m.get(name)

	if err != nil {
		return nil, err
	}

	return memFile{bytes.NewReader(buf)}, nil
}

// Stat returns the named file information.
func (m *MemFS) Stat(name string) (fs.FileInfo, error) {
	buf, err := m.get(name)

	if err != nil {
		return nil, err
	}

	return memInfo{name: Base(name), size: int64(len(buf))}, nil
}

// WriteFile stores a copy of data under name.
func (m *MemFS) WriteFile(name string, data []byte) error {
	if err := CheckPath(name); err != nil {
		return err
	}

	m.Lock()
	defer m.Unlock()

	if m.files == nil {
		m.files = make(map[string][]byte)
	}

	m.files[Join("/", name)] = append([]byte{}, data...)

	return nil
}
