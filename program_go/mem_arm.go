// Copyright (c) The GoTEE authors. All Rights Reserved.
// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm

package main

import (
	_ "unsafe"

	"github.com/piconsole/piconsole/mem"
)

//go:linkname ramStart runtime/goos.RamStart
var ramStart uint32 = mem.BoardRAMStart

//go:linkname ramSize runtime/goos.RamSize
var ramSize uint32 = mem.BoardRAMSize

//go:linkname ramStackOffset runtime/goos.RamStackOffset
var ramStackOffset uint32 = 0x100
