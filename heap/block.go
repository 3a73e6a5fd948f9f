// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package heap

import (
	"encoding/binary"

	"github.com/usbarmory/tamago/bits"
)

// HeaderSize is the number of arena bytes taken by each block header.
const HeaderSize = 12

const (
	noPrevious = 0xffffffff

	ownerMask = 0x7f
	freeBit   = 7
)

// Owner tags the user of an allocated block.
type Owner uint8

const (
	OwnerNone Owner = iota
	OwnerOS
	OwnerProgram
	OwnerUnknown

	ownerCount
)

func (o Owner) String() string {
	switch o {
	case OwnerNone:
		return "None"
	case OwnerOS:
		return "OS"
	case OwnerProgram:
		return "Program"
	default:
		return "Unknown"
	}
}

// header is the decoded form of a block header, it is always read from and
// written back to the arena field by field.
type header struct {
	size     uint32
	previous uint32
	flags    uint32
}

func (h *header) free() bool {
	return bits.Get(&h.flags, freeBit, 1) == 1
}

func (h *header) setFree(free bool) {
	if free {
		bits.Set(&h.flags, freeBit)
	} else {
		bits.Clear(&h.flags, freeBit)
	}
}

func (h *header) owner() Owner {
	return Owner(h.flags & ownerMask)
}

func (h *header) setOwner(o Owner) {
	bits.SetN(&h.flags, 0, ownerMask, uint32(o))
}

func (a *Arena) readHeader(off uint32) (h header) {
	b := a.buf[off : off+HeaderSize]

	h.size = binary.LittleEndian.Uint32(b[0:4])
	h.previous = binary.LittleEndian.Uint32(b[4:8])
	h.flags = binary.LittleEndian.Uint32(b[8:12])

	return
}

func (a *Arena) writeHeader(off uint32, h header) {
	b := a.buf[off : off+HeaderSize]

	binary.LittleEndian.PutUint32(b[0:4], h.size)
	binary.LittleEndian.PutUint32(b[4:8], h.previous)
	binary.LittleEndian.PutUint32(b[8:12], h.flags)
}

// next returns the offset of the block following the one at off, which
// equals the arena length for the last block.
func next(off uint32, h header) uint32 {
	return off + HeaderSize + h.size
}

// relink points the block following the one at off back to it.
func (a *Arena) relink(off uint32, h header) {
	n := next(off, h)

	if n >= uint32(len(a.buf)) {
		return
	}

	nh := a.readHeader(n)
	nh.previous = off
	a.writeHeader(n, nh)
}

// Block describes one block of the chain.
type Block struct {
	// Addr is the payload address
	Addr  uint32
	Size  uint32
	Owner Owner
	Free  bool
}
