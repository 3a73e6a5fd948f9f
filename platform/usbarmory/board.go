// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm

// Package usbarmory implements the console platform on the USB armory Mk II,
// flash is emulated in DDR and programs run as GoTEE user mode applets.
package usbarmory

import (
	"fmt"
	"sync"

	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/piconsole/piconsole/mem"
)

const erased = 0xff

// Board gives access to the emulated flash and to program RAM.
type Board struct {
	sync.Mutex

	// IRQ enables interrupt masking, it must only be set once the
	// runtime services interrupts.
	IRQ bool

	masked int
}

func (b *Board) slice(addr uint32, size int) ([]byte, error) {
	end := uint64(addr) + uint64(size)

	switch {
	case addr >= mem.BoardFlashBase && end <= mem.BoardFlashBase+mem.BoardFlashSize:
		off := addr - mem.BoardFlashBase
		return mem.Flash[off : off+uint32(size)], nil
	case addr >= mem.BoardRAMStart && end <= mem.BoardRAMStart+mem.BoardRAMSize:
		off := addr - mem.BoardRAMStart
		return mem.ProgramRAM[off : off+uint32(size)], nil
	}

	return nil, fmt.Errorf("invalid access addr:%#.8x size:%d", addr, size)
}

// Read copies memory at addr into buf.
func (b *Board) Read(addr uint32, buf []byte) error {
	b.Lock()
	defer b.Unlock()

	src, err := b.slice(addr, len(buf))

	if err != nil {
		return err
	}

	copy(buf, src)

	return nil
}

// Write copies buf to memory at addr.
func (b *Board) Write(addr uint32, buf []byte) error {
	b.Lock()
	defer b.Unlock()

	dst, err := b.slice(addr, len(buf))

	if err != nil {
		return err
	}

	copy(dst, buf)

	return nil
}

// Disable masks interrupts and returns the previous nesting depth.
func (b *Board) Disable() uint32 {
	b.Lock()
	defer b.Unlock()

	if b.masked == 0 && b.IRQ {
		imx6ul.ARM.DisableInterrupts()
	}

	b.masked++

	return uint32(b.masked - 1)
}

// Restore returns to the nesting depth returned by Disable.
func (b *Board) Restore(state uint32) {
	b.Lock()
	defer b.Unlock()

	b.masked = int(state)

	if b.masked == 0 && b.IRQ {
		imx6ul.ARM.EnableInterrupts(false)
	}
}

func (b *Board) flashRange(offset uint32, size uint32, align uint32) ([]byte, error) {
	if offset%align != 0 || size%align != 0 {
		return nil, fmt.Errorf("unaligned flash operation off:%#x size:%#x", offset, size)
	}

	if uint64(offset)+uint64(size) > mem.BoardFlashSize {
		return nil, fmt.Errorf("flash operation out of range off:%#x size:%#x", offset, size)
	}

	return mem.Flash[offset : offset+size], nil
}

// Erase sets whole sectors to the erased state.
func (b *Board) Erase(offset uint32, size uint32) error {
	b.Lock()
	defer b.Unlock()

	buf, err := b.flashRange(offset, size, mem.SectorSize)

	if err != nil {
		return err
	}

	for i := range buf {
		buf[i] = erased
	}

	return nil
}

// Program writes whole pages from program RAM, bits can only be cleared.
func (b *Board) Program(offset uint32, src uint32, size uint32) error {
	b.Lock()
	defer b.Unlock()

	dst, err := b.flashRange(offset, size, mem.PageSize)

	if err != nil {
		return err
	}

	if src < mem.BoardRAMStart || uint64(src)+uint64(size) > mem.BoardRAMStart+mem.BoardRAMSize {
		return fmt.Errorf("invalid program source %#.8x", src)
	}

	buf := mem.ProgramRAM[src-mem.BoardRAMStart:]

	for i := range dst {
		dst[i] &= buf[i]
	}

	return nil
}

// LED is a board LED.
type LED string

// Set switches the LED.
func (l LED) Set(on bool) error {
	return usbarmory.LED(string(l), on)
}
