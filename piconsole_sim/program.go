// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

import (
	"context"
	"debug/elf"
	"encoding/binary"
	"log"
	"time"

	"github.com/piconsole/piconsole/exec"
	"github.com/piconsole/piconsole/mailbox"
	"github.com/piconsole/piconsole/mem"
	"github.com/piconsole/piconsole/platform"
	"github.com/piconsole/piconsole/util"
)

const (
	demoPath = "/programs/demo.elf"

	// demoCounter is the RAM word counting heartbeats
	demoCounter = mem.ProgramRAMStart
	// demoData is the relocated data segment storage address
	demoData = mem.ProgramFlashStart + mem.SectorSize
)

var demoLog = log.New(&util.Output{Program: true}, "", log.Ltime)

// demoImage returns an image with a text segment executing in place, a data
// segment copied from flash to RAM and a zeroed tail.
func demoImage() []byte {
	img := &exec.Image{Entry: mem.ProgramEntry}

	// thumb: nop; b .
	img.AddSegment(exec.Segment{
		Type:            elf.PT_LOAD,
		VirtualAddress:  mem.ProgramFlashStart,
		PhysicalAddress: mem.ProgramFlashStart,
		Flags:           elf.PF_R | elf.PF_X,
		Align:           4,
	}, []byte{0x00, 0xbf, 0xfe, 0xe7})

	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[4:], 0xc0ffee)

	img.AddSegment(exec.Segment{
		Type:            elf.PT_LOAD,
		VirtualAddress:  demoCounter,
		PhysicalAddress: demoData,
		MemorySize:      64,
		Flags:           elf.PF_R | elf.PF_W,
		Align:           4,
	}, data)

	return img.Bytes()
}

// demo is the body of the demo program, it answers heartbeats and counts
// them in RAM. A generic error is reported after errorAfter heartbeats and a
// crash after crashAfter, zero disables either.
func demo(errorAfter int, crashAfter int) func(context.Context, *mailbox.Endpoint, platform.Memory) {
	return func(ctx context.Context, fifo *mailbox.Endpoint, m platform.Memory) {
		if err := fifo.Push(mailbox.LaunchSuccess, time.Second); err != nil {
			demoLog.Printf("demo could not signal launch, %v", err)
			return
		}

		demoLog.Printf("demo started")

		buf := make([]byte, 4)

		for ctx.Err() == nil {
			code, err := fifo.Pop(10 * time.Millisecond)

			if err != nil || code != mailbox.Heartbeat {
				continue
			}

			if err = m.Read(demoCounter, buf); err != nil {
				panic(err)
			}

			beats := binary.LittleEndian.Uint32(buf) + 1
			binary.LittleEndian.PutUint32(buf, beats)

			if err = m.Write(demoCounter, buf); err != nil {
				panic(err)
			}

			switch {
			case crashAfter > 0 && int(beats) == crashAfter:
				panic("demo crash")
			case errorAfter > 0 && int(beats) == errorAfter:
				demoLog.Printf("demo says %d heartbeats", beats)
				_ = fifo.Push(mailbox.GenericError, time.Second)
			}
		}
	}
}
