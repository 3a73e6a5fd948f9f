// Copyright (c) The GoTEE authors. All Rights Reserved.
// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm

package mem

import (
	"github.com/usbarmory/tamago/dma"
)

// USB armory Mk II memory map, flash is emulated in DDR.
const (
	// Supervisor
	SecureStart = 0x90000000
	SecureSize  = 0x03f00000 // 63MB

	// Supervisor DMA
	SecureDMAStart = 0x93f00000
	SecureDMASize  = 0x00100000 // 1MB

	// Emulated flash device
	BoardFlashBase = 0x94000000
	BoardFlashSize = 0x00200000 // 2MB

	// Program RAM
	BoardRAMStart = 0x94400000
	BoardRAMSize  = 0x00100000 // 1MB

	// Supervisor arena
	BoardArenaStart = 0x94500000
	BoardArenaSize  = 0x0001ca00
)

// Board is the memory map programs are built against on the USB armory.
var Board = Layout{
	FlashBase:  BoardFlashBase,
	Flash:      Region{BoardFlashBase + 0x00080000, BoardFlashBase + BoardFlashSize},
	RAM:        Region{BoardRAMStart, BoardRAMStart + BoardRAMSize},
	Arena:      Region{BoardArenaStart, BoardArenaStart + BoardArenaSize},
	SectorSize: SectorSize,
	PageSize:   PageSize,
	Entry:      BoardFlashBase + 0x00080000,
}

var (
	// ProgramRegion spans emulated flash and program RAM, it is the
	// memory of the program execution context.
	ProgramRegion *dma.Region
	ArenaRegion   *dma.Region

	// Flash, ProgramRAM and Arena are the reserved backing buffers of the
	// board windows.
	Flash      []byte
	ProgramRAM []byte
	Arena      []byte
)

// Init reserves the board memory windows.
func Init() {
	size := BoardRAMStart + BoardRAMSize - BoardFlashBase

	ProgramRegion, _ = dma.NewRegion(BoardFlashBase, size, false)
	_, buf := ProgramRegion.Reserve(size, 0)

	Flash = buf[:BoardFlashSize]
	ProgramRAM = buf[BoardRAMStart-BoardFlashBase:]

	ArenaRegion, _ = dma.NewRegion(BoardArenaStart, BoardArenaSize, false)
	_, Arena = ArenaRegion.Reserve(BoardArenaSize, 0)
}
