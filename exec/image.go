// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package exec

import (
	"debug/elf"
	"encoding/binary"
)

// Image builds program images, it is used by host tooling and tests.
type Image struct {
	Entry   uint32
	Machine elf.Machine

	segments []Segment
	content  [][]byte
}

// AddSegment appends a segment, its Offset and FileSize are derived from
// data when the image is encoded. A MemorySize below len(data) is raised to
// it.
func (img *Image) AddSegment(s Segment, data []byte) {
	s.FileSize = uint32(len(data))

	if s.MemorySize < s.FileSize {
		s.MemorySize = s.FileSize
	}

	img.segments = append(img.segments, s)
	img.content = append(img.content, data)
}

// Segments returns the segment table as it will be encoded.
func (img *Image) Segments() []Segment {
	segs := make([]Segment, len(img.segments))
	off := uint32(HeaderSize + SegmentSize*len(img.segments))

	for i, s := range img.segments {
		off = (off + 3) &^ 3

		if s.FileSize > 0 {
			s.Offset = off
		}

		off += s.FileSize
		segs[i] = s
	}

	return segs
}

// Bytes encodes the image.
func (img *Image) Bytes() []byte {
	segs := img.Segments()
	size := uint32(HeaderSize + SegmentSize*len(segs))

	for _, s := range segs {
		if end := s.Offset + s.FileSize; end > size {
			size = end
		}
	}

	buf := make([]byte, size)

	copy(buf, elf.ELFMAG)
	buf[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	buf[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	buf[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	buf[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)

	machine := img.Machine

	if machine == elf.EM_NONE {
		machine = elf.EM_ARM
	}

	le := binary.LittleEndian
	h := buf[elf.EI_NIDENT:]

	le.PutUint16(h[0:], uint16(elf.ET_EXEC))
	le.PutUint16(h[2:], uint16(machine))
	le.PutUint32(h[4:], uint32(elf.EV_CURRENT))
	le.PutUint32(h[8:], img.Entry)
	le.PutUint32(h[12:], HeaderSize)
	le.PutUint32(h[16:], 0)
	le.PutUint32(h[20:], 0)
	le.PutUint16(h[24:], HeaderSize)
	le.PutUint16(h[26:], SegmentSize)
	le.PutUint16(h[28:], uint16(len(segs)))
	le.PutUint16(h[30:], 0)
	le.PutUint16(h[32:], 0)
	le.PutUint16(h[34:], 0)

	for i, s := range segs {
		p := buf[HeaderSize+i*SegmentSize:]

		le.PutUint32(p[0:], uint32(s.Type))
		le.PutUint32(p[4:], s.Offset)
		le.PutUint32(p[8:], s.VirtualAddress)
		le.PutUint32(p[12:], s.PhysicalAddress)
		le.PutUint32(p[16:], s.FileSize)
		le.PutUint32(p[20:], s.MemorySize)
		le.PutUint32(p[24:], uint32(s.Flags))
		le.PutUint32(p[28:], s.Align)

		copy(buf[s.Offset:], img.content[i])
	}

	return buf
}
