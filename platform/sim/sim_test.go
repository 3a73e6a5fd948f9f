// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sim_test

import (
	"bytes"
	"context"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/piconsole/piconsole/mailbox"
	"github.com/piconsole/piconsole/mem"
	"github.com/piconsole/piconsole/platform"
	"github.com/piconsole/piconsole/platform/sim"
)

func TestFlashRequiresCriticalSection(t *testing.T) {
	b := sim.NewBoard()

	require.ErrorIs(t, b.Erase(0x80000, mem.SectorSize), sim.ErrInterrupt)
	require.ErrorIs(t, b.Program(0x80000, mem.ProgramRAMStart, mem.PageSize), sim.ErrInterrupt)

	err := platform.Critical(b, func() error {
		require.True(t, b.Masked())
		return b.Erase(0x80000, mem.SectorSize)
	})

	require.NoError(t, err)
	require.False(t, b.Masked())
	require.Equal(t, 1, b.Erased)
}

func TestFlashSemantics(t *testing.T) {
	b := sim.NewBoard()
	addr := uint32(mem.ProgramFlashStart)
	off := addr - mem.FlashBase

	src := uint32(mem.ProgramRAMStart)

	require.NoError(t, b.Write(src, bytes.Repeat([]byte{0x0f}, mem.PageSize)))
	require.NoError(t, b.Write(src+mem.PageSize, bytes.Repeat([]byte{0xf0}, mem.PageSize)))

	require.NoError(t, platform.Critical(b, func() error {
		if err := b.Program(off, src, mem.PageSize); err != nil {
			return err
		}

		// programming cannot set bits
		return b.Program(off, src+mem.PageSize, mem.PageSize)
	}))

	buf := make([]byte, mem.PageSize)
	require.NoError(t, b.Read(addr, buf))
	require.Equal(t, make([]byte, mem.PageSize), buf)

	require.NoError(t, platform.Critical(b, func() error {
		return b.Erase(off, mem.SectorSize)
	}))

	require.NoError(t, b.Read(addr, buf))
	require.Equal(t, bytes.Repeat([]byte{0xff}, mem.PageSize), buf)

	require.NoError(t, platform.Critical(b, func() error {
		require.ErrorIs(t, b.Program(off+1, src, mem.PageSize), sim.ErrFlash)
		require.ErrorIs(t, b.Program(off, src, 10), sim.ErrFlash)
		require.ErrorIs(t, b.Program(off, addr, mem.PageSize), sim.ErrFlash)
		require.ErrorIs(t, b.Erase(off+mem.PageSize, mem.SectorSize), sim.ErrFlash)
		require.ErrorIs(t, b.Erase(mem.FlashSize, mem.SectorSize), sim.ErrFlash)
		return nil
	}))
}

func TestMemoryMap(t *testing.T) {
	b := sim.NewBoard()

	require.ErrorIs(t, b.Write(mem.ProgramFlashStart, []byte{0}), sim.ErrBusFault)
	require.ErrorIs(t, b.Read(0x30000000, make([]byte, 4)), sim.ErrBusFault)
	require.ErrorIs(t, b.Write(mem.SRAMBase+mem.SRAMSize-2, make([]byte, 4)), sim.ErrBusFault)

	buf := make([]byte, 4)
	require.NoError(t, b.Read(mem.ProgramRAMStart, buf))
	require.Equal(t, []byte{0xcd, 0xcd, 0xcd, 0xcd}, buf)

	require.NoError(t, b.Write(mem.ProgramRAMStart, []byte{1, 2, 3, 4}))
	require.NoError(t, b.Read(mem.ProgramRAMStart, buf))
	require.Equal(t, []byte{1, 2, 3, 4}, buf)

	view, err := b.View(mem.Default.Arena)
	require.NoError(t, err)
	require.Len(t, view, int(mem.Default.Arena.Size()))

	_, err = b.View(mem.Default.Flash)
	require.ErrorIs(t, err, sim.ErrBusFault)
}

func TestBulkRead(t *testing.T) {
	b := sim.NewBoard()

	require.NoError(t, b.BulkRead(mem.ProgramRAMStart, 0x80000, 2))

	buf := make([]byte, 12)
	require.NoError(t, b.Read(mem.ProgramRAMStart, buf))
	require.Equal(t, append(bytes.Repeat([]byte{0xff}, 8), 0xcd, 0xcd, 0xcd, 0xcd), buf)

	require.ErrorIs(t, b.BulkRead(mem.ProgramFlashStart, 0, 1), sim.ErrBusFault)
}

func TestCoreLaunch(t *testing.T) {
	mb := mailbox.New()
	b := sim.NewBoard()
	core := sim.NewCore(mb, b)

	core.Register(mem.ProgramEntry, func(ctx context.Context, fifo *mailbox.Endpoint, m platform.Memory) {
		_ = fifo.Push(mailbox.LaunchSuccess, time.Second)
		<-ctx.Done()
	})

	require.NoError(t, core.Launch(mem.ProgramEntry))

	code, err := mb.Supervisor().Pop(time.Second)
	require.NoError(t, err)
	require.Equal(t, mailbox.LaunchSuccess, code)
	require.True(t, core.Running())

	core.Reset()
	require.False(t, core.Running())
	require.Equal(t, 1, core.Launches)
}

func TestCorePanicIsCrash(t *testing.T) {
	mb := mailbox.New()
	core := sim.NewCore(mb, sim.NewBoard())

	core.Register(mem.ProgramEntry, func(ctx context.Context, fifo *mailbox.Endpoint, m platform.Memory) {
		var p *int
		*p = 1
	})

	require.NoError(t, core.Launch(mem.ProgramEntry))

	code, err := mb.Supervisor().Pop(time.Second)
	require.NoError(t, err)
	require.Equal(t, mailbox.Crash, code)

	core.Reset()
}

func TestCoreWithoutProgramSpins(t *testing.T) {
	mb := mailbox.New()
	core := sim.NewCore(mb, sim.NewBoard())

	require.NoError(t, core.Launch(0x10090001))

	_, err := mb.Supervisor().Pop(10 * time.Millisecond)
	require.ErrorIs(t, err, mailbox.ErrTimeout)
	require.True(t, core.Running())

	core.Reset()
	require.False(t, core.Running())
}

func TestDisplay(t *testing.T) {
	d := sim.NewDisplay()
	red := color.RGBA{R: 0xff, A: 0xff}

	d.Fill(color.Black)
	d.Rect(4, 4, 10, 10, red, true)
	d.Text(0, 20, "! PROG ERROR !", red)
	require.NoError(t, d.Show())

	img := d.Snapshot()
	require.Equal(t, red, img.RGBAAt(5, 5))
	require.Equal(t, []string{"! PROG ERROR !"}, d.Lines())
	require.Equal(t, 1, d.Frames)
	require.Equal(t, 14*7, sim.TextWidth("! PROG ERROR !"))

	d.Fill(color.Black)
	require.NoError(t, d.Show())
	require.Empty(t, d.Lines())
}

func TestInput(t *testing.T) {
	in := &sim.Input{}
	in.Tap(platform.ButtonStart)

	require.False(t, in.Pressed(platform.ButtonStart))
	require.NoError(t, in.Update())
	require.True(t, in.Pressed(platform.ButtonStart))
	require.False(t, in.Pressed(platform.ButtonA))
	require.NoError(t, in.Update())
	require.False(t, in.Pressed(platform.ButtonStart))
}
