// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel_test

import (
	"context"
	"debug/elf"
	"image/color"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/piconsole/piconsole/exec"
	"github.com/piconsole/piconsole/heap"
	"github.com/piconsole/piconsole/kernel"
	"github.com/piconsole/piconsole/mailbox"
	"github.com/piconsole/piconsole/mem"
	"github.com/piconsole/piconsole/platform"
	"github.com/piconsole/piconsole/platform/sim"
	"github.com/piconsole/piconsole/storage"
	"github.com/piconsole/piconsole/supervisor"
)

const (
	gamePath = "/games/snake.elf"
	badPath  = "/games/bad.elf"
)

type peripheral struct {
	name string
	log  *[]string
	err  error
}

func (p *peripheral) Init() error {
	*p.log = append(*p.log, "init "+p.name)
	return p.err
}

func (p *peripheral) Uninit() error {
	*p.log = append(*p.log, "uninit "+p.name)
	return nil
}

type fixture struct {
	board   *sim.Board
	core    *sim.Core
	fs      *storage.MemFS
	display *sim.Display
	input   *sim.Input
	os      *kernel.OS
	log     []string
}

func newFixture(t *testing.T, program sim.Program) *fixture {
	t.Helper()

	mb := mailbox.New()

	f := &fixture{
		board:   sim.NewBoard(),
		fs:      &storage.MemFS{},
		display: sim.NewDisplay(),
		input:   &sim.Input{},
	}

	f.core = sim.NewCore(mb, f.board)

	if program != nil {
		f.core.Register(mem.ProgramEntry, program)
	}

	var err error

	f.os, err = kernel.New(kernel.Config{
		Layout:     mem.Default,
		FS:         f.fs,
		Flash:      f.board,
		Memory:     f.board,
		Interrupts: f.board,
		DMA:        f.board,
		Core:       f.core,
		Mailbox:    mb,
		Display:    f.display,
		Input:      f.input,
		LED:        f.board,
		Peripherals: []platform.Peripheral{
			&peripheral{name: "display", log: &f.log},
			&peripheral{name: "storage", log: &f.log},
			&peripheral{name: "input", log: &f.log},
		},
	})
	require.NoError(t, err)

	t.Cleanup(func() { f.os.StopProgram() })

	writeImages(t, f.fs)

	return f
}

func writeImages(t *testing.T, fs storage.FS) {
	img := &exec.Image{Entry: mem.ProgramEntry}
	img.AddSegment(exec.Segment{
		Type:            elf.PT_LOAD,
		VirtualAddress:  mem.ProgramFlashStart,
		PhysicalAddress: mem.ProgramFlashStart,
		Flags:           elf.PF_R | elf.PF_X,
	}, []byte{0x00, 0xbf, 0xfe, 0xe7})
	require.NoError(t, fs.WriteFile(gamePath, img.Bytes()))

	bad := &exec.Image{Entry: mem.ProgramEntry}
	bad.AddSegment(exec.Segment{
		Type:            elf.PT_LOAD,
		VirtualAddress:  0x30000000,
		PhysicalAddress: 0x30000000,
	}, []byte{1, 2, 3, 4})
	require.NoError(t, fs.WriteFile(badPath, bad.Bytes()))
}

// game acknowledges launch, pushes after when set and then consumes
// heartbeats.
func game(after mailbox.Code) sim.Program {
	return func(ctx context.Context, fifo *mailbox.Endpoint, _ platform.Memory) {
		if fifo.Push(mailbox.LaunchSuccess, time.Second) != nil {
			return
		}

		if after != 0 {
			_ = fifo.Push(after, time.Second)
		}

		for ctx.Err() == nil {
			_, _ = fifo.Pop(time.Millisecond)
		}
	}
}

// clearNotice presses and releases Start.
func (f *fixture) clearNotice(t *testing.T) {
	f.input.Queue(0, 1<<platform.ButtonStart, 0)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.os.Update())
	}

	require.Nil(t, f.os.Notice())
}

func TestInitUninit(t *testing.T) {
	f := newFixture(t, nil)

	require.ErrorIs(t, f.os.Update(), kernel.ErrNotInitialized)
	require.ErrorIs(t, f.os.LoadProgram(gamePath), kernel.ErrNotInitialized)

	require.NoError(t, f.os.Init())
	require.ErrorIs(t, f.os.Init(), kernel.ErrInitialized)
	require.Equal(t, []string{"init display", "init storage", "init input"}, f.log)

	// color test
	require.Equal(t, 1, f.display.Frames)
	require.Equal(t, color.RGBA{0, 0, 0xff, 0xff}, f.display.Snapshot().RGBAAt(0, 0))

	require.NoError(t, f.os.Uninit(true))
	require.Equal(t, "uninit input", f.log[len(f.log)-1])
	require.False(t, f.board.LED)
	require.ErrorIs(t, f.os.Uninit(true), kernel.ErrNotInitialized)

	require.NoError(t, f.os.Init())
	require.NoError(t, f.os.Uninit(false))
	require.Len(t, f.log, 9)
}

func TestInitFailure(t *testing.T) {
	f := newFixture(t, nil)

	os, err := kernel.New(kernel.Config{
		Layout:      mem.Default,
		Display:     f.display,
		Peripherals: []platform.Peripheral{&peripheral{name: "storage", log: &f.log, err: errors.New("no card")}},
	})
	require.NoError(t, err)

	require.Error(t, os.Init())
	require.Equal(t, "! OS CRASH !", f.display.Lines()[0])
	require.Nil(t, os.Notice())
}

func TestLoadProgram(t *testing.T) {
	f := newFixture(t, game(0))
	require.NoError(t, f.os.Init())

	require.NoError(t, f.os.LoadProgram(gamePath))

	s := f.os.Session()
	require.True(t, s.Running)
	require.Equal(t, gamePath, s.Path)
	require.Equal(t, "/games", s.Directory())

	buf := make([]byte, 4)
	require.NoError(t, f.board.Read(mem.ProgramFlashStart, buf))
	require.Equal(t, []byte{0x00, 0xbf, 0xfe, 0xe7}, buf)

	require.NotNil(t, f.os.Report())
	require.Equal(t, 1, f.os.Report().PagesProgrammed)

	led := f.board.LED

	for i := 0; i < 4; i++ {
		require.NoError(t, f.os.Update())
		require.NotEqual(t, led, f.board.LED)
		led = f.board.LED
	}

	require.Equal(t, 4, f.os.Ticks)
	require.Nil(t, f.os.Notice())

	// path buffer and loader buffer
	require.Equal(t, storage.MaxPathLength+512, f.os.Heap().BytesOwnedBy(heap.OwnerOS))
	require.NoError(t, f.os.Heap().Validate())

	require.True(t, f.os.StopProgram())
	require.False(t, f.os.StopProgram())
	require.False(t, f.os.Session().Running)
}

func TestLoadBadImageKeepsProgram(t *testing.T) {
	f := newFixture(t, game(0))
	require.NoError(t, f.os.Init())
	require.NoError(t, f.os.LoadProgram(gamePath))

	err := f.os.LoadProgram(badPath)
	require.ErrorIs(t, err, exec.ErrFormat)

	require.True(t, f.os.Session().Running)
	require.Equal(t, gamePath, f.os.Session().Path)

	n := f.os.Notice()
	require.NotNil(t, n)
	require.Equal(t, "! OS ERROR !", n.Header)
	require.Equal(t, "Press [START] to clear", n.Footer)
	require.Equal(t, "! OS ERROR !", f.display.Lines()[0])

	// the program is not ticked while the notice is up
	beats := f.os.Supervisor().Heartbeats
	require.NoError(t, f.os.Update())
	require.Equal(t, beats, f.os.Supervisor().Heartbeats)

	f.clearNotice(t)

	require.NoError(t, f.os.Update())
	require.Equal(t, beats+1, f.os.Supervisor().Heartbeats)
}

func TestLoadMissingImage(t *testing.T) {
	f := newFixture(t, game(0))
	require.NoError(t, f.os.Init())

	require.Error(t, f.os.LoadProgram("/games/missing.elf"))
	require.ErrorIs(t, f.os.LoadProgram(""), storage.ErrPath)
	require.Zero(t, f.board.Erased)
	require.False(t, f.os.Session().Running)
}

func TestLaunchFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.os.Supervisor().LaunchTimeout = 10 * time.Millisecond
	require.NoError(t, f.os.Init())

	require.ErrorIs(t, f.os.LoadProgram(gamePath), supervisor.ErrLaunchTimeout)
	require.False(t, f.os.Session().Running)
	require.Empty(t, f.os.Session().Path)
}

func TestProgramCrash(t *testing.T) {
	f := newFixture(t, game(mailbox.Crash))
	require.NoError(t, f.os.Init())
	require.NoError(t, f.os.LoadProgram(gamePath))

	require.Eventually(t, func() bool {
		_ = f.os.Update()
		return f.os.Notice() != nil
	}, time.Second, time.Millisecond)

	n := f.os.Notice()
	require.Equal(t, "! PROG CRASH !", n.Header)
	require.Equal(t, "Press [START] to restart OS", n.Footer)
	require.False(t, f.os.Session().Running)
	require.Equal(t, supervisor.Idle, f.os.Supervisor().State())

	frames := f.display.Frames
	f.clearNotice(t)
	require.Equal(t, frames+1, f.display.Frames)
}

func TestProgramError(t *testing.T) {
	f := newFixture(t, game(mailbox.GenericError))
	require.NoError(t, f.os.Init())
	require.NoError(t, f.os.LoadProgram(gamePath))

	require.Eventually(t, func() bool {
		_ = f.os.Update()
		return f.os.Notice() != nil
	}, time.Second, time.Millisecond)

	require.Equal(t, "! PROG ERROR !", f.os.Notice().Header)
	require.True(t, f.os.Session().Running)

	f.clearNotice(t)
	require.True(t, f.os.Session().Running)
}

func TestShowNotices(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.os.Init())

	f.os.ShowOSError("a message long enough to need wrapping across more than one line of the display")
	require.Equal(t, "! OS ERROR !", f.display.Lines()[0])
	require.Greater(t, len(f.display.Lines()), 3)
	f.clearNotice(t)

	f.os.ShowProgramError("oops")
	require.Equal(t, []string{"! PROG ERROR !", "oops", "Press [START] to clear"}, f.display.Lines())
	f.clearNotice(t)

	f.os.ShowFatalProgramError("boom")
	require.Equal(t, "! PROG CRASH !", f.os.Notice().Header)
}

func TestRun(t *testing.T) {
	f := newFixture(t, game(0))
	require.NoError(t, f.os.Init())
	require.NoError(t, f.os.LoadProgram(gamePath))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, f.os.Run(ctx))
	require.Greater(t, f.os.Ticks, 0)
	require.Greater(t, f.os.Supervisor().Heartbeats, 0)
}

func TestLoadTruncatedImageKeepsProgram(t *testing.T) {
	const truncatedPath = "/games/truncated.elf"

	f := newFixture(t, game(0))
	require.NoError(t, f.os.Init())
	require.NoError(t, f.os.LoadProgram(gamePath))

	img := &exec.Image{Entry: mem.ProgramEntry}
	img.AddSegment(exec.Segment{
		Type:            elf.PT_LOAD,
		VirtualAddress:  mem.ProgramFlashStart,
		PhysicalAddress: mem.ProgramFlashStart,
		Flags:           elf.PF_R | elf.PF_X,
	}, make([]byte, 64))
	buf := img.Bytes()
	require.NoError(t, f.fs.WriteFile(truncatedPath, buf[:len(buf)-8]))

	erased := f.board.Erased

	err := f.os.LoadProgram(truncatedPath)
	require.ErrorIs(t, err, exec.ErrFormat)

	require.Equal(t, erased, f.board.Erased)
	require.True(t, f.os.Session().Running)
	require.Equal(t, gamePath, f.os.Session().Path)
	require.Equal(t, "! OS ERROR !", f.os.Notice().Header)
}

func TestSessionPathCleared(t *testing.T) {
	f := newFixture(t, game(0))
	require.NoError(t, f.os.Init())
	require.NoError(t, f.os.LoadProgram(gamePath))
	require.Equal(t, gamePath, f.os.Session().Path)

	require.True(t, f.os.StopProgram())
	require.Empty(t, f.os.Session().Path)

	require.NoError(t, f.os.LoadProgram(gamePath))
	require.NoError(t, f.os.Uninit(true))

	s := f.os.Session()
	require.False(t, s.Running)
	require.Empty(t, s.Path)
	require.Empty(t, s.Directory())
}
