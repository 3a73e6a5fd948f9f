// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mem

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Region is the half-open address window [Start, End).
type Region struct {
	Start uint32
	End   uint32
}

// Size returns the region length in bytes.
func (r Region) Size() uint32 {
	return r.End - r.Start
}

// Contains reports whether addr falls inside the region.
func (r Region) Contains(addr uint32) bool {
	return addr >= r.Start && addr < r.End
}

// ContainsRange reports whether [addr, addr+size) falls entirely inside the
// region.
func (r Region) ContainsRange(addr uint32, size uint32) bool {
	if !r.Contains(addr) {
		return size == 0 && addr == r.End
	}

	return size <= r.End-addr
}

// Overlaps reports whether the two regions share at least one byte.
func (r Region) Overlaps(o Region) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r Region) String() string {
	return fmt.Sprintf("%#.8x-%#.8x", r.Start, r.End)
}

// Layout describes the memory map a program image is built against.
type Layout struct {
	// FlashBase is the address flash offsets are relative to
	FlashBase uint32
	// Flash is the program storage window
	Flash Region
	// RAM is the program execution window
	RAM Region
	// Arena is the supervisor heap
	Arena Region

	SectorSize uint32
	PageSize   uint32

	// Entry is the well-known program entry point
	Entry uint32
}

// Default is the console memory map.
var Default = Layout{
	FlashBase:  FlashBase,
	Flash:      Region{ProgramFlashStart, ProgramFlashEnd},
	RAM:        Region{ProgramRAMStart, ProgramRAMEnd},
	Arena:      Region{ArenaStart, ArenaEnd},
	SectorSize: SectorSize,
	PageSize:   PageSize,
	Entry:      ProgramEntry,
}

// FlashOffset converts a flash window address to a device offset.
func (l *Layout) FlashOffset(addr uint32) uint32 {
	return addr - l.FlashBase
}

// Validate checks that the layout geometry is usable.
func (l *Layout) Validate() (err error) {
	if err = CheckPow2(uint(l.SectorSize), "sector size"); err != nil {
		return
	}

	if err = CheckPow2(uint(l.PageSize), "page size"); err != nil {
		return
	}

	if l.SectorSize%l.PageSize != 0 {
		return errors.Newf("sector size %#x is not a multiple of page size %#x", l.SectorSize, l.PageSize)
	}

	if l.Flash.Start < l.FlashBase || l.Flash.Start%l.SectorSize != 0 || l.Flash.End%l.SectorSize != 0 {
		return errors.Newf("flash window %s is not sector aligned", l.Flash)
	}

	for _, r := range []Region{l.Flash, l.RAM, l.Arena} {
		if r.End <= r.Start {
			return errors.Newf("empty window %s", r)
		}
	}

	if l.RAM.Overlaps(l.Flash) || l.RAM.Overlaps(l.Arena) || l.Arena.Overlaps(l.Flash) {
		return errors.New("program flash, program RAM and arena windows must be disjoint")
	}

	return
}
