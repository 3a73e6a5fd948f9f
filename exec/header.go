// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package exec decodes and encodes the 32-bit little-endian ELF program
// images loaded by the supervisor.
//
// Untrusted image bytes are never cast onto Go types, every field is read
// individually with bounds checks.
package exec

import (
	"debug/elf"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// HeaderSize is the size of an ELF32 file header.
	HeaderSize = 52
	// SegmentSize is the size of an ELF32 program header.
	SegmentSize = 32
	// MaxSegments bounds the segment table of a loadable image.
	MaxSegments = 64
)

// ErrFormat is returned for any malformed or unsupported image.
var ErrFormat = errors.New("invalid image format")

// Header represents an ELF32 file header.
type Header struct {
	Class      elf.Class
	Data       elf.Data
	Version    elf.Version
	OSABI      elf.OSABI
	ABIVersion uint8

	Type    elf.Type
	Machine elf.Machine
	// ObjectVersion is the e_version field
	ObjectVersion uint32

	Entry         uint32
	SegmentOffset uint32
	SectionOffset uint32
	Flags         uint32

	HeaderSize       uint16
	SegmentEntrySize uint16
	SegmentCount     uint16
	SectionEntrySize uint16
	SectionCount     uint16
	SectionNameIndex uint16
}

// decoder reads little-endian fields from a fixed buffer, the first out of
// bounds access latches an error.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) next(n int) []byte {
	if d.err != nil {
		return nil
	}

	if d.off+n > len(d.buf) {
		d.err = errors.Wrapf(ErrFormat, "truncated at offset %d", d.off)
		return nil
	}

	b := d.buf[d.off : d.off+n]
	d.off += n

	return b
}

func (d *decoder) u8() uint8 {
	if b := d.next(1); b != nil {
		return b[0]
	}

	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.next(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}

	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.next(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}

	return 0
}

// ParseHeader decodes and validates an ELF32 file header.
func ParseHeader(buf []byte) (h *Header, err error) {
	if len(buf) < elf.EI_NIDENT {
		return nil, errors.Wrapf(ErrFormat, "short header (%d bytes)", len(buf))
	}

	if string(buf[:4]) != elf.ELFMAG {
		return nil, errors.Wrapf(ErrFormat, "magic number mismatch (% x)", buf[:4])
	}

	h = &Header{
		Class:      elf.Class(buf[elf.EI_CLASS]),
		Data:       elf.Data(buf[elf.EI_DATA]),
		Version:    elf.Version(buf[elf.EI_VERSION]),
		OSABI:      elf.OSABI(buf[elf.EI_OSABI]),
		ABIVersion: buf[elf.EI_ABIVERSION],
	}

	switch {
	case h.Class != elf.ELFCLASS32:
		return nil, errors.Wrapf(ErrFormat, "unsupported bit width (%v)", h.Class)
	case h.Data != elf.ELFDATA2LSB:
		return nil, errors.Wrapf(ErrFormat, "unsupported byte order (%v)", h.Data)
	case h.Version != elf.EV_CURRENT:
		return nil, errors.Wrapf(ErrFormat, "unsupported version (%v)", h.Version)
	}

	d := &decoder{buf: buf, off: elf.EI_NIDENT}

	h.Type = elf.Type(d.u16())
	h.Machine = elf.Machine(d.u16())
	h.ObjectVersion = d.u32()
	h.Entry = d.u32()
	h.SegmentOffset = d.u32()
	h.SectionOffset = d.u32()
	h.Flags = d.u32()
	h.HeaderSize = d.u16()
	h.SegmentEntrySize = d.u16()
	h.SegmentCount = d.u16()
	h.SectionEntrySize = d.u16()
	h.SectionCount = d.u16()
	h.SectionNameIndex = d.u16()

	if d.err != nil {
		return nil, d.err
	}

	switch {
	case h.SegmentEntrySize != SegmentSize:
		return nil, errors.Wrapf(ErrFormat, "segment entry size %d", h.SegmentEntrySize)
	case h.SegmentCount == 0:
		return nil, errors.Wrap(ErrFormat, "no segments")
	case h.SegmentCount > MaxSegments:
		return nil, errors.Wrapf(ErrFormat, "too many segments (%d)", h.SegmentCount)
	case h.SegmentOffset < HeaderSize:
		return nil, errors.Wrapf(ErrFormat, "segment table offset %#x overlaps header", h.SegmentOffset)
	}

	return
}

// ReadHeader reads and validates an ELF32 file header from r.
func ReadHeader(r io.Reader) (h *Header, err error) {
	buf := make([]byte, HeaderSize)

	if _, err = io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(ErrFormat, "short header")
		}

		return
	}

	return ParseHeader(buf)
}
