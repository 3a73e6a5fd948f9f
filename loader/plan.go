// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package loader

import (
	"debug/elf"
	"fmt"
	"log"

	"github.com/pkg/errors"

	"github.com/piconsole/piconsole/exec"
	"github.com/piconsole/piconsole/storage"
)

// Source identifies where a deferred copy takes its bytes from.
type Source int

const (
	// SourceZero clears the destination.
	SourceZero Source = iota
	// SourceImage streams bytes from the image file.
	SourceImage
	// SourceFlash copies bytes already placed in flash.
	SourceFlash
)

func (s Source) String() string {
	switch s {
	case SourceZero:
		return "zero"
	case SourceImage:
		return "image"
	case SourceFlash:
		return "flash"
	default:
		return "?"
	}
}

// Copy is a RAM placement deferred until every flash write is done.
type Copy struct {
	VirtualAddress uint32
	FileSize       uint32
	MemorySize     uint32
	Source         Source
	// Offset is the image offset for SourceImage and the flash address
	// for SourceFlash.
	Offset uint32
}

func (c Copy) String() string {
	return fmt.Sprintf("%-5s src:%#.8x dst:%#.8x size:%#x mem:%#x", c.Source, c.Offset, c.VirtualAddress, c.FileSize, c.MemorySize)
}

// placement is a flash-resident segment.
type placement struct {
	index   int
	segment exec.Segment
	// size is the number of bytes stored in flash, the BSS tail of a
	// segment executing in place is stored as zeros.
	size uint32
}

// Plan is an opened image whose segments have been validated against the
// memory map, nothing has been written yet.
type Plan struct {
	Path     string
	Header   *exec.Header
	Segments []exec.Segment
	Copies   []Copy
	// Size is the image file length.
	Size int64

	// SectorsErased, PagesProgrammed and BytesCopied account for the
	// placement work.
	SectorsErased   int
	PagesProgrammed int
	BytesCopied     int

	loader *Loader
	file   storage.File
	flash  []placement
}

// Entry returns the image entry point.
func (p *Plan) Entry() uint32 {
	return p.Header.Entry
}

// Close releases the image file.
func (p *Plan) Close() (err error) {
	if p.file != nil {
		err = p.file.Close()
		p.file = nil
	}

	return
}

// classify validates every loadable segment and sorts it into flash writes
// and deferred RAM copies.
func (p *Plan) classify() (err error) {
	l := &p.loader.Layout

	for i, s := range p.Segments {
		if s.Type != elf.PT_LOAD || s.MemorySize == 0 {
			log.Printf("OS skipping segment %d type:%#x mem:%#x", i, uint32(s.Type), s.MemorySize)
			continue
		}

		if s.FileSize > 0 && int64(s.Offset)+int64(s.FileSize) > p.Size {
			return errors.Wrapf(exec.ErrFormat, "segment %d content %#x+%#x past end of image (%d bytes)", i, s.Offset, s.FileSize, p.Size)
		}

		switch {
		case l.Flash.Contains(s.PhysicalAddress):
			size := s.MemorySize

			if s.Relocated() {
				if !l.RAM.ContainsRange(s.VirtualAddress, s.MemorySize) {
					return errors.Wrapf(exec.ErrFormat, "segment %d relocated to %#.8x outside program RAM", i, s.VirtualAddress)
				}

				size = s.FileSize
			}

			if !l.Flash.ContainsRange(s.PhysicalAddress, size) {
				return errors.Wrapf(exec.ErrFormat, "segment %d %#.8x+%#x overruns program flash", i, s.PhysicalAddress, size)
			}

			if size > 0 {
				p.flash = append(p.flash, placement{index: i, segment: s, size: size})
			}

			if s.Relocated() {
				p.Copies = append(p.Copies, Copy{
					VirtualAddress: s.VirtualAddress,
					FileSize:       s.FileSize,
					MemorySize:     s.MemorySize,
					Source:         SourceFlash,
					Offset:         s.PhysicalAddress,
				})
			}
		case l.RAM.Contains(s.PhysicalAddress):
			if s.Relocated() {
				return errors.Wrapf(exec.ErrFormat, "segment %d stored at %#.8x outside program flash", i, s.PhysicalAddress)
			}

			if !l.RAM.ContainsRange(s.PhysicalAddress, s.MemorySize) {
				return errors.Wrapf(exec.ErrFormat, "segment %d %#.8x+%#x overruns program RAM", i, s.PhysicalAddress, s.MemorySize)
			}

			c := Copy{
				VirtualAddress: s.VirtualAddress,
				FileSize:       s.FileSize,
				MemorySize:     s.MemorySize,
				Source:         SourceImage,
				Offset:         s.Offset,
			}

			if s.FileSize == 0 {
				c.Source = SourceZero
			}

			p.Copies = append(p.Copies, c)
		default:
			return errors.Wrapf(exec.ErrFormat, "segment %d at %#.8x outside program flash and RAM", i, s.PhysicalAddress)
		}
	}

	entry := p.Header.Entry &^ 1

	if !l.Flash.Contains(entry) && !l.RAM.Contains(entry) {
		return errors.Wrapf(exec.ErrFormat, "entry point %#.8x outside program flash and RAM", p.Header.Entry)
	}

	if p.Header.Entry != l.Entry {
		log.Printf("OS warning entry:%#.8x expected:%#.8x", p.Header.Entry, l.Entry)
	}

	return
}

// Table returns the segment table in readelf notation.
func (p *Plan) Table() (s string) {
	s = "idx " + exec.SegmentTable + "\n"

	for i := range p.Segments {
		s += fmt.Sprintf("%3d %s\n", i, p.Segments[i].String())
	}

	return
}
