// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package storage_test

import (
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/piconsole/piconsole/storage"
)

func TestCheckPath(t *testing.T) {
	require.NoError(t, storage.CheckPath("/games/snake.elf"))
	require.NoError(t, storage.CheckPath(strings.Repeat("a", storage.MaxPathLength)))

	require.ErrorIs(t, storage.CheckPath(""), storage.ErrPath)
	require.ErrorIs(t, storage.CheckPath(strings.Repeat("a", storage.MaxPathLength+1)), storage.ErrPath)
	require.ErrorIs(t, storage.CheckPath("/games/\x00snake.elf"), storage.ErrPath)
}

func TestPathHelpers(t *testing.T) {
	require.Equal(t, []string{"games", "snake.elf"}, storage.Split("/games//snake.elf"))
	require.Equal(t, "/games", storage.Dir("/games/snake.elf"))
	require.Equal(t, "snake.elf", storage.Base("/games/snake.elf"))
	require.Equal(t, "/games/snake.elf", storage.Join("/games", "snake.elf"))
}

func testFS(t *testing.T, fsys storage.FS) {
	require.NoError(t, fsys.WriteFile("/games/snake.elf", []byte("0123456789")))

	info, err := fsys.Stat("games/snake.elf")
	require.NoError(t, err)
	require.Equal(t, int64(10), info.Size())
	require.Equal(t, "snake.elf", info.Name())

	f, err := fsys.Open("/games/snake.elf")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Seek(4, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = io.ReadFull(f, buf)
	require.NoError(t, err)
	require.Equal(t, "456", string(buf))

	_, err = fsys.Open("/missing.elf")
	require.ErrorIs(t, err, fs.ErrNotExist)

	_, err = fsys.Open(strings.Repeat("a", storage.MaxPathLength+1))
	require.ErrorIs(t, err, storage.ErrPath)
}

func TestDirFS(t *testing.T) {
	testFS(t, storage.DirFS(t.TempDir()))
}

func TestMemFS(t *testing.T) {
	testFS(t, &storage.MemFS{})
}

func TestMemFSReadAll(t *testing.T) {
	fsys := &storage.MemFS{
		ReadAll: func(name string) ([]byte, error) {
			return []byte(name), nil
		},
	}

	info, err := fsys.Stat("boot/program.elf")
	require.NoError(t, err)
	require.Equal(t, int64(len("/boot/program.elf")), info.Size())
}
