// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package loader places program images into flash and program RAM.
//
// Loading happens in two phases. Open parses the image and validates every
// segment against the memory map without touching memory, so that a bad
// image never disturbs a running program. Place then erases and programs
// flash, staging pages in leased program RAM, and finally runs the deferred
// RAM copies in order.
package loader

import (
	"io"
	"log"

	"github.com/pkg/errors"

	"github.com/piconsole/piconsole/exec"
	"github.com/piconsole/piconsole/mem"
	"github.com/piconsole/piconsole/platform"
	"github.com/piconsole/piconsole/storage"
)

// ChunkSize is the default streaming buffer size.
const ChunkSize = 512

// ErrIO is returned when the image cannot be read.
var ErrIO = errors.New("image i/o error")

// Loader holds the collaborators used to place images.
type Loader struct {
	Layout     mem.Layout
	FS         storage.FS
	Flash      platform.Flash
	Memory     platform.Memory
	Interrupts platform.Interrupts

	// DMA, when set, accelerates flash to RAM copies.
	DMA platform.BulkReader

	// Buffer is the streaming buffer, a ChunkSize buffer is allocated when
	// empty.
	Buffer []byte
}

func ioError(err error, format string, args ...interface{}) error {
	if errors.Is(err, exec.ErrFormat) || errors.Is(err, storage.ErrPath) || errors.Is(err, mem.ErrRevoked) {
		return errors.Wrapf(err, format, args...)
	}

	return errors.Wrapf(ErrIO, format+", %v", append(args, err)...)
}

// Open parses and validates the image at path.
func (l *Loader) Open(path string) (p *Plan, err error) {
	if err = storage.CheckPath(path); err != nil {
		return
	}

	f, err := l.FS.Open(path)

	if err != nil {
		return nil, ioError(err, "could not open %s", path)
	}

	defer func() {
		if err != nil {
			f.Close()
		}
	}()

	h, err := exec.ReadHeader(f)

	if err != nil {
		return nil, ioError(err, "could not read header")
	}

	log.Printf("OS opened %s class:%v machine:%v entry:%#.8x phoff:%#x phnum:%d", path, h.Class, h.Machine, h.Entry, h.SegmentOffset, h.SegmentCount)

	segs, err := exec.ReadSegments(f, h)

	if err != nil {
		return nil, ioError(err, "could not read segment table")
	}

	size, err := f.Seek(0, io.SeekEnd)

	if err != nil {
		return nil, ioError(err, "could not size image")
	}

	p = &Plan{
		Path:     path,
		Header:   h,
		Segments: segs,
		Size:     size,
		loader:   l,
		file:     f,
	}

	log.Printf("OS segment table:\n%s", p.Table())

	if err = p.classify(); err != nil {
		return nil, err
	}

	return
}

// Load opens and places the image at path, returning its entry point.
func (l *Loader) Load(path string, lease *mem.Lease) (entry uint32, err error) {
	p, err := l.Open(path)

	if err != nil {
		return
	}

	defer p.Close()

	return p.Place(lease)
}

func (l *Loader) buffer() []byte {
	if len(l.Buffer) == 0 {
		l.Buffer = make([]byte, ChunkSize)
	}

	return l.Buffer
}

// Place writes the image to flash and RAM. The lease must cover the program
// RAM window being written, it is checked before every write.
func (p *Plan) Place(lease *mem.Lease) (entry uint32, err error) {
	l := p.loader

	if p.file == nil {
		return 0, errors.New("plan is closed")
	}

	if err = lease.Check(); err != nil {
		return
	}

	if scratch := lease.Region(); scratch != l.Layout.RAM {
		return 0, errors.Errorf("lease %s does not cover program RAM %s", scratch, l.Layout.RAM)
	}

	for _, f := range p.flash {
		if err = p.erase(f); err != nil {
			return 0, errors.Wrapf(err, "segment %d", f.index)
		}
	}

	for _, f := range p.flash {
		if err = p.program(f, lease); err != nil {
			return 0, errors.Wrapf(err, "segment %d", f.index)
		}
	}

	log.Printf("OS flash placement done erased:%d programmed:%d deferred:%d", p.SectorsErased, p.PagesProgrammed, len(p.Copies))

	for _, c := range p.Copies {
		log.Printf("OS copy %s", c)

		if err = p.copy(c, lease); err != nil {
			return
		}
	}

	return p.Header.Entry, nil
}

// erase clears the sectors covering a flash placement, rounding the start
// down and the end up. Sectors shared with another segment are erased again,
// which is harmless before any programming.
func (p *Plan) erase(f placement) error {
	l := p.loader

	start := mem.AlignDown(f.segment.PhysicalAddress, l.Layout.SectorSize)
	end := mem.AlignUp(f.segment.PhysicalAddress+f.size, l.Layout.SectorSize)
	size := end - start

	log.Printf("OS erasing sectors:%d addr:%#.8x", size/l.Layout.SectorSize, start)

	err := platform.Critical(l.Interrupts, func() error {
		return l.Flash.Erase(l.Layout.FlashOffset(start), size)
	})

	if err != nil {
		return errors.Wrapf(err, "erase %#.8x+%#x", start, size)
	}

	p.SectorsErased += int(size / l.Layout.SectorSize)

	return nil
}

// program stages a flash placement page-aligned in scratch RAM and programs
// it, in windows no larger than the scratch region.
func (p *Plan) program(f placement, lease *mem.Lease) (err error) {
	l := p.loader
	page := l.Layout.PageSize
	scratch := lease.Region()
	window := mem.AlignDown(scratch.Size(), page)

	seg := f.segment
	start := mem.AlignDown(seg.PhysicalAddress, page)
	end := seg.PhysicalAddress + f.size
	pageEnd := mem.AlignUp(end, page)
	preserve := p.shared(f.index, start, seg.PhysicalAddress)

	if window == 0 {
		return errors.Errorf("scratch region %s smaller than a page", scratch)
	}

	log.Printf("OS programming addr:%#.8x size:%#x pages:%d", seg.PhysicalAddress, f.size, (pageEnd-start)/page)

	for chunk := start; chunk < pageEnd; chunk += window {
		n := pageEnd - chunk

		if n > window {
			n = window
		}

		if err = p.stage(scratch.Start, chunk, chunk+n, seg, end, preserve, lease); err != nil {
			return
		}

		err = platform.Critical(l.Interrupts, func() error {
			return l.Flash.Program(l.Layout.FlashOffset(chunk), scratch.Start, n)
		})

		if err != nil {
			return errors.Wrapf(err, "program %#.8x+%#x", chunk, n)
		}

		p.PagesProgrammed += int(n / page)
	}

	return
}

// shared reports whether [start, end) overlaps the flash placement of a
// segment other than index.
func (p *Plan) shared(index int, start uint32, end uint32) bool {
	r := mem.Region{Start: start, End: end}

	for _, f := range p.flash {
		if f.index == index {
			continue
		}

		if r.Overlaps(mem.Region{Start: f.segment.PhysicalAddress, End: f.segment.PhysicalAddress + f.size}) {
			return true
		}
	}

	return false
}

// stage fills scratch RAM with the flash image of [from, to). Bytes ahead of
// the segment are preserved from flash when another segment of the image
// shares them and padded otherwise, bytes past it are preserved from flash.
func (p *Plan) stage(dst uint32, from uint32, to uint32, seg exec.Segment, end uint32, preserve bool, lease *mem.Lease) (err error) {
	l := p.loader
	addr := seg.PhysicalAddress
	fileEnd := addr + seg.FileSize

	span := func(a, b uint32) (uint32, uint32) {
		if a < from {
			a = from
		}

		if b > to {
			b = to
		}

		return a, b
	}

	// leading bytes
	if a, b := span(from, addr); a < b {
		if preserve {
			err = p.move(dst+a-from, a, b-a, lease, l.Memory.Read)
		} else {
			err = p.fill(dst+a-from, b-a, mem.PadByte, lease)
		}

		if err != nil {
			return
		}
	}

	// file bytes
	if a, b := span(addr, fileEnd); a < b {
		if _, err = p.file.Seek(int64(seg.Offset+a-addr), io.SeekStart); err != nil {
			return ioError(err, "seek")
		}

		if err = p.move(dst+a-from, 0, b-a, lease, p.readFile); err != nil {
			return
		}
	}

	// zero filled tail of a segment executing in place
	if a, b := span(fileEnd, end); a < b {
		if err = p.fill(dst+a-from, b-a, 0, lease); err != nil {
			return
		}
	}

	// trailing bytes
	if a, b := span(end, to); a < b {
		err = p.move(dst+a-from, a, b-a, lease, l.Memory.Read)
	}

	return
}

func (p *Plan) readFile(_ uint32, buf []byte) error {
	if _, err := io.ReadFull(p.file, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return errors.Wrap(exec.ErrFormat, "segment content past end of image")
		}

		return ioError(err, "read")
	}

	return nil
}

// move copies size bytes obtained from read, starting at src, to RAM at dst
// one buffer at a time.
func (p *Plan) move(dst uint32, src uint32, size uint32, lease *mem.Lease, read func(addr uint32, buf []byte) error) (err error) {
	l := p.loader
	buf := l.buffer()

	for size > 0 {
		n := uint32(len(buf))

		if n > size {
			n = size
		}

		if err = read(src, buf[:n]); err != nil {
			return
		}

		if err = lease.Check(); err != nil {
			return
		}

		if err = l.Memory.Write(dst, buf[:n]); err != nil {
			return
		}

		dst += n
		src += n
		size -= n
	}

	return
}

// fill writes size copies of v to RAM at dst.
func (p *Plan) fill(dst uint32, size uint32, v byte, lease *mem.Lease) (err error) {
	l := p.loader
	buf := l.buffer()

	for i := range buf {
		buf[i] = v
	}

	for size > 0 {
		n := uint32(len(buf))

		if n > size {
			n = size
		}

		if err = lease.Check(); err != nil {
			return
		}

		if err = l.Memory.Write(dst, buf[:n]); err != nil {
			return
		}

		dst += n
		size -= n
	}

	return
}

// copy executes one deferred copy.
func (p *Plan) copy(c Copy, lease *mem.Lease) (err error) {
	l := p.loader
	tail := c.MemorySize - c.FileSize

	if !l.Layout.RAM.ContainsRange(c.VirtualAddress, c.MemorySize) {
		return errors.Wrapf(exec.ErrFormat, "deferred copy to %#.8x outside program RAM", c.VirtualAddress)
	}

	switch c.Source {
	case SourceZero:
		tail = c.MemorySize
	case SourceImage:
		if _, err = p.file.Seek(int64(c.Offset), io.SeekStart); err != nil {
			return ioError(err, "seek")
		}

		err = p.move(c.VirtualAddress, 0, c.FileSize, lease, p.readFile)
	case SourceFlash:
		err = p.copyFlash(c, lease)
	}

	if err != nil {
		return errors.Wrapf(err, "%s copy to %#.8x", c.Source, c.VirtualAddress)
	}

	p.BytesCopied += int(c.MemorySize - tail)

	return p.fill(c.VirtualAddress+c.MemorySize-tail, tail, 0, lease)
}

// copyFlash moves relocated data from flash to RAM, whole words through DMA
// when available.
func (p *Plan) copyFlash(c Copy, lease *mem.Lease) (err error) {
	l := p.loader
	done := uint32(0)

	if l.DMA != nil && c.VirtualAddress%4 == 0 && c.Offset%4 == 0 && c.FileSize >= 4 {
		words := c.FileSize / 4

		if err = lease.Check(); err != nil {
			return
		}

		log.Printf("OS dma words:%d", words)

		err = platform.Critical(l.Interrupts, func() error {
			return l.DMA.BulkRead(c.VirtualAddress, l.Layout.FlashOffset(c.Offset), int(words))
		})

		if err != nil {
			return
		}

		done = words * 4
	}

	return p.move(c.VirtualAddress+done, c.Offset+done, c.FileSize-done, lease, l.Memory.Read)
}
