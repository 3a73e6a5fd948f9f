// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package sim emulates the console hardware on the host.
//
// The board models NOR flash semantics (erase sets bits, program clears
// them), refuses flash operations with interrupts enabled and fills SRAM
// with a poison pattern so that missing initialization is visible.
package sim

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/piconsole/piconsole/mem"
)

const (
	erased = 0xff
	poison = 0xcd
)

var (
	ErrBusFault  = errors.New("bus fault")
	ErrFlash     = errors.New("flash operation error")
	ErrInterrupt = errors.New("interrupts enabled during flash operation")
)

// Board emulates flash, SRAM and the interrupt mask.
type Board struct {
	sync.Mutex

	flashBase uint32
	flash     []byte

	sramBase uint32
	sram     []byte

	sectorSize uint32
	pageSize   uint32

	masked int

	// Erased and Programmed count flash operations.
	Erased     int
	Programmed int

	// LED is the status LED state.
	LED bool
}

// NewBoard returns a board with erased flash and poisoned SRAM.
func NewBoard() *Board {
	b := &Board{
		flashBase:  mem.FlashBase,
		flash:      make([]byte, mem.FlashSize),
		sramBase:   mem.SRAMBase,
		sram:       make([]byte, mem.SRAMSize),
		sectorSize: mem.SectorSize,
		pageSize:   mem.PageSize,
	}

	fill(b.flash, erased)
	fill(b.sram, poison)

	return b
}

func fill(buf []byte, v byte) {
	for i := range buf {
		buf[i] = v
	}
}

// slice returns the backing bytes for [addr, addr+size).
func (b *Board) slice(addr uint32, size int) ([]byte, bool, error) {
	end := uint64(addr) + uint64(size)

	switch {
	case addr >= b.flashBase && end <= uint64(b.flashBase)+uint64(len(b.flash)):
		off := addr - b.flashBase
		return b.flash[off : off+uint32(size)], true, nil
	case addr >= b.sramBase && end <= uint64(b.sramBase)+uint64(len(b.sram)):
		off := addr - b.sramBase
		return b.sram[off : off+uint32(size)], false, nil
	default:
		return nil, false, errors.Wrapf(ErrBusFault, "%#.8x+%d", addr, size)
	}
}

// Read copies memory at addr into buf, flash is readable in place.
func (b *Board) Read(addr uint32, buf []byte) error {
	b.Lock()
	defer b.Unlock()

	src, _, err := b.slice(addr, len(buf))

	if err != nil {
		return err
	}

	copy(buf, src)

	return nil
}

// Write copies buf to SRAM at addr, flash is read-only on the bus.
func (b *Board) Write(addr uint32, buf []byte) error {
	b.Lock()
	defer b.Unlock()

	dst, flash, err := b.slice(addr, len(buf))

	if err != nil {
		return err
	}

	if flash {
		return errors.Wrapf(ErrBusFault, "write to flash at %#.8x", addr)
	}

	copy(dst, buf)

	return nil
}

// View returns the SRAM bytes backing r.
func (b *Board) View(r mem.Region) ([]byte, error) {
	b.Lock()
	defer b.Unlock()

	buf, flash, err := b.slice(r.Start, int(r.Size()))

	if err == nil && flash {
		err = errors.Wrapf(ErrBusFault, "%s is not in SRAM", r)
	}

	return buf, err
}

// Disable masks interrupts, calls nest.
func (b *Board) Disable() uint32 {
	b.Lock()
	defer b.Unlock()

	b.masked++

	return uint32(b.masked - 1)
}

// Restore returns to the mask state preceding the matching Disable.
func (b *Board) Restore(state uint32) {
	b.Lock()
	defer b.Unlock()

	b.masked = int(state)
}

// Masked reports whether interrupts are disabled.
func (b *Board) Masked() bool {
	b.Lock()
	defer b.Unlock()

	return b.masked > 0
}

func (b *Board) flashRange(offset uint32, size int, align uint32) ([]byte, error) {
	if b.masked == 0 {
		return nil, ErrInterrupt
	}

	if offset%align != 0 || uint32(size)%align != 0 {
		return nil, errors.Wrapf(ErrFlash, "%#x+%#x is not %#x aligned", offset, size, align)
	}

	if uint64(offset)+uint64(size) > uint64(len(b.flash)) {
		return nil, errors.Wrapf(ErrFlash, "%#x+%#x out of range", offset, size)
	}

	return b.flash[offset : offset+uint32(size)], nil
}

// Erase sets whole sectors to 0xff.
func (b *Board) Erase(offset uint32, size uint32) error {
	b.Lock()
	defer b.Unlock()

	buf, err := b.flashRange(offset, int(size), b.sectorSize)

	if err != nil {
		return err
	}

	fill(buf, erased)
	b.Erased += int(size / b.sectorSize)

	return nil
}

// Program writes whole pages from SRAM at src, bits can only be cleared.
func (b *Board) Program(offset uint32, src uint32, size uint32) error {
	b.Lock()
	defer b.Unlock()

	buf, err := b.flashRange(offset, int(size), b.pageSize)

	if err != nil {
		return err
	}

	data, flash, err := b.slice(src, int(size))

	if err != nil {
		return err
	}

	if flash {
		return errors.Wrapf(ErrFlash, "program source %#.8x is in flash", src)
	}

	for i := range buf {
		buf[i] &= data[i]
	}

	b.Programmed += int(size / b.pageSize)

	return nil
}

// BulkRead copies words from flash at offset to SRAM at dst.
func (b *Board) BulkRead(dst uint32, offset uint32, words int) error {
	b.Lock()
	defer b.Unlock()

	size := words * 4

	if uint64(offset)+uint64(size) > uint64(len(b.flash)) {
		return errors.Wrapf(ErrFlash, "bulk read %#x+%#x out of range", offset, size)
	}

	buf, flash, err := b.slice(dst, size)

	if err != nil {
		return err
	}

	if flash {
		return errors.Wrapf(ErrBusFault, "bulk read into flash at %#.8x", dst)
	}

	copy(buf, b.flash[offset:offset+uint32(size)])

	return nil
}

// Set drives the status LED.
func (b *Board) Set(on bool) error {
	b.Lock()
	defer b.Unlock()

	b.LED = on

	return nil
}
