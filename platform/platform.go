// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package platform defines the hardware collaborators of the supervisor.
package platform

import (
	"image/color"
)

// Flash is the erase/program interface of the program storage device,
// offsets are relative to the device base. Both operations must run within
// Critical.
type Flash interface {
	// Erase clears whole sectors.
	Erase(offset uint32, size uint32) error
	// Program writes whole pages from RAM at src.
	Program(offset uint32, src uint32, size uint32) error
}

// Memory gives byte access to the address space.
type Memory interface {
	Read(addr uint32, buf []byte) error
	Write(addr uint32, buf []byte) error
}

// BulkReader copies 32-bit words from flash to RAM using DMA.
type BulkReader interface {
	BulkRead(dst uint32, offset uint32, words int) error
}

// Interrupts masks interrupts globally.
type Interrupts interface {
	Disable() (state uint32)
	Restore(state uint32)
}

// Critical runs fn with interrupts disabled.
func Critical(irq Interrupts, fn func() error) error {
	state := irq.Disable()
	defer irq.Restore(state)

	return fn()
}

// Core is the second execution context.
type Core interface {
	// Launch starts execution at entry, any previous execution is reset.
	Launch(entry uint32) error
	// Reset halts execution immediately.
	Reset()
}

// Display is the console screen.
type Display interface {
	Size() (width int, height int)
	Fill(c color.Color)
	Rect(x, y, width, height int, c color.Color, filled bool)
	// Text draws a single line with its top left corner at x, y.
	Text(x, y int, s string, c color.Color)
	Pixel(x, y int, c color.Color)
	Show() error
}

// Button identifies a console button.
type Button int

const (
	ButtonA Button = iota
	ButtonB
	ButtonDown
	ButtonX
	ButtonY
	ButtonUp
	ButtonStart
	ButtonRight
	ButtonLeft
)

var buttonNames = []string{"A", "B", "Down", "X", "Y", "Up", "Start", "Right", "Left"}

func (b Button) String() string {
	if b < 0 || int(b) >= len(buttonNames) {
		return "?"
	}

	return buttonNames[b]
}

// ParseButton returns the button with the given name.
func ParseButton(name string) (Button, bool) {
	for i, n := range buttonNames {
		if n == name {
			return Button(i), true
		}
	}

	return 0, false
}

// Input is the button state.
type Input interface {
	// Update samples the buttons.
	Update() error
	Pressed(b Button) bool
}

// LED is the status indicator.
type LED interface {
	Set(on bool) error
}

// Peripheral is implemented by collaborators with an explicit lifecycle.
type Peripheral interface {
	Init() error
	Uninit() error
}
