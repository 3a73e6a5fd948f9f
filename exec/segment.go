// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package exec

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/usbarmory/tamago/bits"
)

// Segment represents an ELF32 program header.
type Segment struct {
	Type elf.ProgType
	// Offset is the segment content offset within the image
	Offset uint32
	// VirtualAddress is the run-time address
	VirtualAddress uint32
	// PhysicalAddress is the storage address
	PhysicalAddress uint32
	FileSize        uint32
	MemorySize      uint32
	Flags           elf.ProgFlag
	Align           uint32
}

// ParseSegment decodes and validates a program header.
func ParseSegment(buf []byte) (s Segment, err error) {
	d := &decoder{buf: buf}

	s.Type = elf.ProgType(d.u32())
	s.Offset = d.u32()
	s.VirtualAddress = d.u32()
	s.PhysicalAddress = d.u32()
	s.FileSize = d.u32()
	s.MemorySize = d.u32()
	s.Flags = elf.ProgFlag(d.u32())
	s.Align = d.u32()

	if d.err != nil {
		return s, d.err
	}

	if s.MemorySize < s.FileSize {
		return s, errors.Wrapf(ErrFormat, "segment memory size %#x below file size %#x", s.MemorySize, s.FileSize)
	}

	if uint64(s.Offset)+uint64(s.FileSize) > 1<<32 {
		return s, errors.Wrapf(ErrFormat, "segment content %#x+%#x overflows", s.Offset, s.FileSize)
	}

	return
}

// ReadSegments reads the segment table described by h.
func ReadSegments(r io.ReadSeeker, h *Header) (segs []Segment, err error) {
	if _, err = r.Seek(int64(h.SegmentOffset), io.SeekStart); err != nil {
		return
	}

	buf := make([]byte, int(h.SegmentCount)*int(h.SegmentEntrySize))

	if _, err = io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(ErrFormat, "short segment table")
		}

		return
	}

	for i := 0; i < int(h.SegmentCount); i++ {
		off := i * int(h.SegmentEntrySize)

		s, err := ParseSegment(buf[off : off+int(h.SegmentEntrySize)])

		if err != nil {
			return nil, errors.Wrapf(err, "segment %d", i)
		}

		segs = append(segs, s)
	}

	return
}

// flag bit positions, matching elf.PF_X, elf.PF_W and elf.PF_R
const (
	flagX = 0
	flagW = 1
	flagR = 2
)

func (s *Segment) flag(pos int) bool {
	flags := uint32(s.Flags)
	return bits.Get(&flags, pos, 1) == 1
}

// Readable reports the R flag.
func (s *Segment) Readable() bool { return s.flag(flagR) }

// Writable reports the W flag.
func (s *Segment) Writable() bool { return s.flag(flagW) }

// Executable reports the X flag.
func (s *Segment) Executable() bool { return s.flag(flagX) }

// Relocated reports whether the segment is stored away from its run-time
// address.
func (s *Segment) Relocated() bool {
	return s.VirtualAddress != s.PhysicalAddress
}

// Perm returns the segment flags in readelf notation.
func (s *Segment) Perm() string {
	perm := []byte("   ")

	if s.Readable() {
		perm[0] = 'R'
	}

	if s.Writable() {
		perm[1] = 'W'
	}

	if s.Executable() {
		perm[2] = 'E'
	}

	return string(perm)
}

func (s *Segment) String() string {
	return fmt.Sprintf("%-8s %#.6x %#.8x %#.8x %#.5x %#.5x %s %#x",
		typeName(s.Type), s.Offset, s.VirtualAddress, s.PhysicalAddress,
		s.FileSize, s.MemorySize, s.Perm(), s.Align)
}

// SegmentTable is the column header matching Segment.String.
const SegmentTable = "Type     Offset   VirtAddr   PhysAddr   FileSiz MemSiz  Flg Align"

func typeName(t elf.ProgType) string {
	switch t {
	case elf.PT_NULL:
		return "NULL"
	case elf.PT_LOAD:
		return "LOAD"
	case elf.PT_DYNAMIC:
		return "DYNAMIC"
	case elf.PT_INTERP:
		return "INTERP"
	case elf.PT_NOTE:
		return "NOTE"
	case elf.PT_PHDR:
		return "PHDR"
	case elf.PT_TLS:
		return "TLS"
	case elf.PT_GNU_STACK:
		return "STACK"
	default:
		return fmt.Sprintf("%#x", uint32(t))
	}
}
