// Copyright (c) F-Secure Corporation
// https://foundry.f-secure.com
// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mem

// Console memory map, programs are linked against these windows.
const (
	// Execute-in-place flash
	FlashBase = 0x10000000
	FlashSize = 0x00200000 // 2MB

	// Program storage in flash, the supervisor image lives below it
	ProgramFlashStart = FlashBase + 0x00080000
	ProgramFlashEnd   = FlashBase + FlashSize

	// On-chip SRAM
	SRAMBase = 0x20000000
	SRAMSize = 0x00042000 // 264KB

	// Program RAM, only written by the supervisor before launch
	ProgramRAMStart = SRAMBase + 0x00018000
	ProgramRAMEnd   = SRAMBase + 0x0003E000

	// Supervisor dynamic memory
	ArenaStart = 0x200035fc
	ArenaEnd   = ProgramRAMStart - 8

	// Flash geometry
	SectorSize = 0x1000
	PageSize   = 0x100

	// PadByte fills the part of a page preceding a segment
	PadByte = 0xa5

	// ProgramEntry is the thumb entry point of every program image.
	ProgramEntry = ProgramFlashStart | 1
)
