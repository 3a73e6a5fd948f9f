// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package loader_test

import (
	"bytes"
	"debug/elf"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/piconsole/piconsole/exec"
	"github.com/piconsole/piconsole/loader"
	"github.com/piconsole/piconsole/mem"
	"github.com/piconsole/piconsole/platform/sim"
	"github.com/piconsole/piconsole/storage"
)

const imagePath = "/games/test.elf"

type fixture struct {
	board  *sim.Board
	fs     *storage.MemFS
	loader *loader.Loader
	lease  *mem.Lease
}

func newFixture(t *testing.T, dma bool) *fixture {
	t.Helper()

	f := &fixture{
		board: sim.NewBoard(),
		fs:    &storage.MemFS{},
	}

	f.loader = &loader.Loader{
		Layout:     mem.Default,
		FS:         f.fs,
		Flash:      f.board,
		Memory:     f.board,
		Interrupts: f.board,
	}

	if dma {
		f.loader.DMA = f.board
	}

	f.lease = mem.NewLease(f.loader.Layout.RAM)

	return f
}

func (f *fixture) write(t *testing.T, img *exec.Image) {
	t.Helper()
	require.NoError(t, f.fs.WriteFile(imagePath, img.Bytes()))
}

func (f *fixture) read(t *testing.T, addr uint32, size int) []byte {
	t.Helper()

	buf := make([]byte, size)
	require.NoError(t, f.board.Read(addr, buf))

	return buf
}

func pattern(size int, seed byte) []byte {
	buf := make([]byte, size)

	for i := range buf {
		buf[i] = seed + byte(i)
	}

	return buf
}

func load(addr uint32, size uint32) exec.Segment {
	return exec.Segment{
		Type:            elf.PT_LOAD,
		VirtualAddress:  addr,
		PhysicalAddress: addr,
		MemorySize:      size,
		Flags:           elf.PF_R,
		Align:           4,
	}
}

func relocated(phys uint32, virt uint32, size uint32) exec.Segment {
	s := load(phys, size)
	s.VirtualAddress = virt

	return s
}

func TestLoadFlashSegment(t *testing.T) {
	f := newFixture(t, false)
	data := pattern(256, 1)

	img := &exec.Image{Entry: mem.ProgramEntry}
	img.AddSegment(load(mem.ProgramFlashStart, 0), data)
	f.write(t, img)

	entry, err := f.loader.Load(imagePath, f.lease)
	require.NoError(t, err)
	require.Equal(t, uint32(mem.ProgramEntry), entry)

	require.Equal(t, data, f.read(t, mem.ProgramFlashStart, len(data)))
	require.Equal(t, bytes.Repeat([]byte{0xff}, 16), f.read(t, mem.ProgramFlashStart+256, 16))
	require.Equal(t, 1, f.board.Erased)
	require.Equal(t, 1, f.board.Programmed)
	require.False(t, f.board.Masked())
}

func TestLoadPreservesNeighbours(t *testing.T) {
	f := newFixture(t, false)
	start := uint32(mem.ProgramFlashStart)

	img := &exec.Image{Entry: mem.ProgramEntry}
	// listed above the second segment so that it is programmed first
	img.AddSegment(load(start+0x40, 0), bytes.Repeat([]byte{0x11}, 16))
	img.AddSegment(load(start+0x10, 0), bytes.Repeat([]byte{0x22}, 16))
	f.write(t, img)

	_, err := f.loader.Load(imagePath, f.lease)
	require.NoError(t, err)

	page := f.read(t, start, mem.PageSize)
	require.Equal(t, bytes.Repeat([]byte{mem.PadByte}, 0x10), page[0x00:0x10])
	require.Equal(t, bytes.Repeat([]byte{0x22}, 0x10), page[0x10:0x20])
	require.Equal(t, bytes.Repeat([]byte{0xff}, 0x20), page[0x20:0x40])
	require.Equal(t, bytes.Repeat([]byte{0x11}, 0x10), page[0x40:0x50])
	require.Equal(t, bytes.Repeat([]byte{0xff}, 0xb0), page[0x50:])

	require.Equal(t, 2, f.board.Erased)
	require.Equal(t, 2, f.board.Programmed)
}

func TestLoadPadsLeadingBytes(t *testing.T) {
	f := newFixture(t, false)
	addr := uint32(mem.ProgramFlashStart + 0x2080)
	data := pattern(0x100, 7)

	img := &exec.Image{Entry: mem.ProgramEntry}
	img.AddSegment(load(addr, 0), data)
	f.write(t, img)

	_, err := f.loader.Load(imagePath, f.lease)
	require.NoError(t, err)

	require.Equal(t, bytes.Repeat([]byte{mem.PadByte}, 0x80), f.read(t, addr-0x80, 0x80))
	require.Equal(t, data, f.read(t, addr, len(data)))
	require.Equal(t, bytes.Repeat([]byte{0xff}, 0x80), f.read(t, addr+0x100, 0x80))
	require.Equal(t, 2, f.board.Programmed)
}

func TestLoadExecuteInPlaceZeroTail(t *testing.T) {
	f := newFixture(t, false)
	data := pattern(40, 3)

	img := &exec.Image{Entry: mem.ProgramEntry}
	img.AddSegment(load(mem.ProgramFlashStart, 100), data)
	f.write(t, img)

	_, err := f.loader.Load(imagePath, f.lease)
	require.NoError(t, err)

	require.Equal(t, data, f.read(t, mem.ProgramFlashStart, 40))
	require.Equal(t, make([]byte, 60), f.read(t, mem.ProgramFlashStart+40, 60))
	require.Equal(t, []byte{0xff}, f.read(t, mem.ProgramFlashStart+100, 1))
}

func TestLoadRAMSegment(t *testing.T) {
	f := newFixture(t, false)
	addr := uint32(mem.ProgramRAMStart + 0x8000)
	data := pattern(64, 9)

	img := &exec.Image{Entry: mem.ProgramEntry}
	img.AddSegment(load(addr, 128), data)
	img.AddSegment(load(addr+0x1000, 32), nil)
	f.write(t, img)

	p, err := f.loader.Open(imagePath)
	require.NoError(t, err)
	defer p.Close()

	require.Len(t, p.Copies, 2)
	require.Equal(t, loader.SourceImage, p.Copies[0].Source)
	require.Equal(t, loader.SourceZero, p.Copies[1].Source)

	_, err = p.Place(f.lease)
	require.NoError(t, err)

	require.Equal(t, data, f.read(t, addr, 64))
	require.Equal(t, make([]byte, 64), f.read(t, addr+64, 64))
	require.Equal(t, []byte{0xcd}, f.read(t, addr-1, 1))
	require.Equal(t, []byte{0xcd}, f.read(t, addr+128, 1))

	require.Equal(t, make([]byte, 32), f.read(t, addr+0x1000, 32))
	require.Equal(t, []byte{0xcd}, f.read(t, addr+0x1000+32, 1))

	require.Zero(t, f.board.Erased)
	require.Equal(t, 64, p.BytesCopied)
}

func TestLoadRelocated(t *testing.T) {
	for _, dma := range []bool{false, true} {
		f := newFixture(t, dma)
		phys := uint32(mem.ProgramFlashStart + 0x1000)
		virt := uint32(mem.ProgramRAMStart + 0x8000)
		data := pattern(102, 5)

		img := &exec.Image{Entry: mem.ProgramEntry}
		img.AddSegment(load(mem.ProgramFlashStart, 0), pattern(16, 0x40))
		img.AddSegment(relocated(phys, virt, 160), data)
		f.write(t, img)

		p, err := f.loader.Open(imagePath)
		require.NoError(t, err)

		require.Len(t, p.Copies, 1)
		require.Equal(t, loader.SourceFlash, p.Copies[0].Source)
		require.Equal(t, phys, p.Copies[0].Offset)

		_, err = p.Place(f.lease)
		require.NoError(t, err)
		require.NoError(t, p.Close())

		// stored in flash without its zero tail
		require.Equal(t, data, f.read(t, phys, len(data)))
		require.Equal(t, []byte{0xff, 0xff}, f.read(t, phys+102, 2))

		require.Equal(t, f.read(t, phys, len(data)), f.read(t, virt, len(data)), "dma:%v", dma)
		require.Equal(t, make([]byte, 58), f.read(t, virt+102, 58), "dma:%v", dma)
		require.Equal(t, []byte{0xcd}, f.read(t, virt-1, 1), "dma:%v", dma)
		require.Equal(t, []byte{0xcd}, f.read(t, virt+160, 1), "dma:%v", dma)
	}
}

func TestLoadEndToEnd(t *testing.T) {
	f := newFixture(t, true)
	code := pattern(256, 0x80)
	data := pattern(64, 0x10)
	addr := uint32(mem.ProgramRAMStart + 0x1000)

	img := &exec.Image{Entry: mem.ProgramEntry}
	img.AddSegment(load(mem.ProgramFlashStart, 0), code)
	img.AddSegment(load(addr, 128), data)
	f.write(t, img)

	entry, err := f.loader.Load(imagePath, f.lease)
	require.NoError(t, err)
	require.Equal(t, uint32(0x10080001), entry)

	require.Equal(t, code, f.read(t, mem.ProgramFlashStart, 256))
	require.Equal(t, data, f.read(t, addr, 64))
	require.Equal(t, make([]byte, 64), f.read(t, addr+64, 64))
}

func TestLoadSkipsSegments(t *testing.T) {
	f := newFixture(t, false)

	note := load(0x30000000, 0)
	note.Type = elf.PT_NOTE

	img := &exec.Image{Entry: mem.ProgramEntry}
	img.AddSegment(note, []byte("note"))
	img.AddSegment(load(0x40000000, 0), nil)
	img.AddSegment(load(mem.ProgramFlashStart, 0), pattern(8, 0))
	f.write(t, img)

	_, err := f.loader.Load(imagePath, f.lease)
	require.NoError(t, err)
	require.Equal(t, 1, f.board.Programmed)
}

func TestLoadLargeSegmentWindows(t *testing.T) {
	f := newFixture(t, false)
	// four page scratch area
	f.loader.Layout.RAM = mem.Region{Start: mem.ProgramRAMStart, End: mem.ProgramRAMStart + 4*mem.PageSize}
	f.lease = mem.NewLease(f.loader.Layout.RAM)

	addr := uint32(mem.ProgramFlashStart + 0x30)
	data := pattern(0x1010, 0x33)

	img := &exec.Image{Entry: mem.ProgramEntry}
	img.AddSegment(load(addr, 0), data)
	f.write(t, img)

	_, err := f.loader.Load(imagePath, f.lease)
	require.NoError(t, err)

	require.Equal(t, data, f.read(t, addr, len(data)))
	require.Equal(t, bytes.Repeat([]byte{mem.PadByte}, 0x30), f.read(t, mem.ProgramFlashStart, 0x30))
	require.Equal(t, 0x11, f.board.Programmed)
	require.Equal(t, 2, f.board.Erased)
}

func TestLoadFormatErrors(t *testing.T) {
	flash := uint32(mem.ProgramFlashStart)
	ram := uint32(mem.ProgramRAMStart)

	for _, tt := range []struct {
		name  string
		seg   exec.Segment
		entry uint32
	}{
		{"outside windows", load(0x30000000, 0), mem.ProgramEntry},
		{"supervisor flash", load(mem.FlashBase, 0), mem.ProgramEntry},
		{"flash overrun", load(mem.ProgramFlashEnd-4, 0), mem.ProgramEntry},
		{"ram overrun", load(mem.ProgramRAMEnd-4, 64), mem.ProgramEntry},
		{"relocated outside ram", relocated(flash, 0x30000000, 0), mem.ProgramEntry},
		{"relocated from ram", relocated(ram, ram+0x100, 0), mem.ProgramEntry},
		{"entry outside windows", load(flash, 0), 0x08000001},
	} {
		f := newFixture(t, false)

		img := &exec.Image{Entry: tt.entry}
		img.AddSegment(tt.seg, pattern(16, 0))
		f.write(t, img)

		_, err := f.loader.Load(imagePath, f.lease)
		require.ErrorIs(t, err, exec.ErrFormat, tt.name)

		require.Zero(t, f.board.Erased, tt.name)
		require.Zero(t, f.board.Programmed, tt.name)
		require.Equal(t, bytes.Repeat([]byte{0xcd}, mem.PageSize), f.read(t, ram, mem.PageSize), tt.name)
	}
}

func TestLoadTruncatedImage(t *testing.T) {
	f := newFixture(t, false)

	img := &exec.Image{Entry: mem.ProgramEntry}
	img.AddSegment(load(mem.ProgramFlashStart, 0), pattern(64, 0))
	buf := img.Bytes()
	require.NoError(t, f.fs.WriteFile(imagePath, buf[:len(buf)-8]))

	_, err := f.loader.Open(imagePath)
	require.ErrorIs(t, err, exec.ErrFormat)

	_, err = f.loader.Load(imagePath, f.lease)
	require.ErrorIs(t, err, exec.ErrFormat)

	require.Zero(t, f.board.Erased)
	require.Zero(t, f.board.Programmed)
}

func TestLoadBadHeader(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.fs.WriteFile(imagePath, []byte("not an image")))

	_, err := f.loader.Load(imagePath, f.lease)
	require.ErrorIs(t, err, exec.ErrFormat)
}

func TestLoadPathErrors(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.loader.Load("", f.lease)
	require.ErrorIs(t, err, storage.ErrPath)

	_, err = f.loader.Load("/"+strings.Repeat("a", storage.MaxPathLength), f.lease)
	require.ErrorIs(t, err, storage.ErrPath)

	_, err = f.loader.Load("/missing.elf", f.lease)
	require.ErrorIs(t, err, loader.ErrIO)

	require.Zero(t, f.board.Erased)
}

func TestLoadRevokedLease(t *testing.T) {
	f := newFixture(t, false)

	img := &exec.Image{Entry: mem.ProgramEntry}
	img.AddSegment(load(mem.ProgramFlashStart, 0), pattern(16, 0))
	f.write(t, img)

	f.lease.Revoke()

	_, err := f.loader.Load(imagePath, f.lease)
	require.ErrorIs(t, err, mem.ErrRevoked)

	_, err = f.loader.Load(imagePath, nil)
	require.ErrorIs(t, err, mem.ErrRevoked)

	require.Zero(t, f.board.Erased)
}

func TestPlanTable(t *testing.T) {
	f := newFixture(t, false)

	img := &exec.Image{Entry: mem.ProgramEntry}
	img.AddSegment(load(mem.ProgramFlashStart, 0), pattern(16, 0))
	f.write(t, img)

	p, err := f.loader.Open(imagePath)
	require.NoError(t, err)
	defer p.Close()

	require.Equal(t, uint32(mem.ProgramEntry), p.Entry())
	require.Contains(t, p.Table(), "LOAD")
	require.Equal(t, 2, strings.Count(p.Table(), "\n"))
}
