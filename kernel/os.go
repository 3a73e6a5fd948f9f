// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package kernel composes the allocator, the image loader and the execution
// supervisor into the console operating system.
package kernel

import (
	"log"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"

	"github.com/piconsole/piconsole/heap"
	"github.com/piconsole/piconsole/loader"
	"github.com/piconsole/piconsole/mailbox"
	"github.com/piconsole/piconsole/mem"
	"github.com/piconsole/piconsole/platform"
	"github.com/piconsole/piconsole/storage"
	"github.com/piconsole/piconsole/supervisor"
)

// DefaultTickRate is the number of updates per second performed by Run.
const DefaultTickRate = 60

var (
	ErrInitialized    = errors.New("OS already initialized")
	ErrNotInitialized = errors.New("OS not initialized")
)

// Config lists the collaborators of the OS, Display, Input and LED are
// optional.
type Config struct {
	Layout mem.Layout

	FS         storage.FS
	Flash      platform.Flash
	Memory     platform.Memory
	Interrupts platform.Interrupts
	DMA        platform.BulkReader
	Core       platform.Core
	Mailbox    *mailbox.Mailbox

	Display platform.Display
	Input   platform.Input
	LED     platform.LED

	// Peripherals are initialized in order by Init and uninitialized in
	// order by a clean Uninit.
	Peripherals []platform.Peripheral

	// Arena backs the supervisor heap, it is allocated when nil.
	Arena []byte
	// Logger traces heap activity when set.
	Logger *slog.Logger

	TickRate rate.Limit
}

// Session describes the current program.
type Session struct {
	Path    string
	Running bool
}

// Directory returns the directory holding the program image.
func (s Session) Directory() string {
	if s.Path == "" {
		return ""
	}

	return storage.Dir(s.Path)
}

// OS is the console operating system.
type OS struct {
	sync.Mutex

	conf Config

	heap       *heap.Arena
	loader     *loader.Loader
	supervisor *supervisor.Supervisor

	// path is the arena buffer holding the current program path, it is
	// empty while no program has been launched
	path uint32
	plan *loader.Plan

	notice *Notice
	led    bool

	initialized bool

	// Ticks counts updates.
	Ticks int
}

// New builds an uninitialized OS.
func New(conf Config) (o *OS, err error) {
	if err = conf.Layout.Validate(); err != nil {
		return
	}

	if conf.Mailbox == nil {
		conf.Mailbox = mailbox.New()
	}

	if conf.TickRate == 0 {
		conf.TickRate = DefaultTickRate
	}

	if conf.Arena == nil {
		conf.Arena = make([]byte, conf.Layout.Arena.Size())
	}

	o = &OS{conf: conf}

	if o.heap, err = heap.New(conf.Layout.Arena.Start, conf.Arena); err != nil {
		return nil, errors.Wrap(err, "could not create heap")
	}

	o.heap.Logger = conf.Logger

	if o.path, err = o.heap.Allocate(storage.MaxPathLength, heap.OwnerOS); err != nil {
		return nil, errors.Wrap(err, "could not allocate path buffer")
	}

	chunk, err := o.heap.Allocate(loader.ChunkSize, heap.OwnerOS)

	if err != nil {
		return nil, errors.Wrap(err, "could not allocate loader buffer")
	}

	buf, err := o.heap.Bytes(chunk)

	if err != nil {
		return
	}

	o.loader = &loader.Loader{
		Layout:     conf.Layout,
		FS:         conf.FS,
		Flash:      conf.Flash,
		Memory:     conf.Memory,
		Interrupts: conf.Interrupts,
		DMA:        conf.DMA,
		Buffer:     buf,
	}

	o.supervisor = supervisor.New(conf.Core, conf.Mailbox, conf.Layout.RAM)
	o.supervisor.OnTransition = func(from supervisor.State, to supervisor.State) {
		log.Printf("OS program %v -> %v", from, to)
	}

	log.Printf("OS created %s", o.heap)

	return
}

// Heap returns the supervisor allocator.
func (o *OS) Heap() *heap.Arena {
	return o.heap
}

// Supervisor returns the execution supervisor.
func (o *OS) Supervisor() *supervisor.Supervisor {
	return o.supervisor
}

// Report returns the plan of the last successful load.
func (o *OS) Report() *loader.Plan {
	o.Lock()
	defer o.Unlock()

	return o.plan
}

// Session returns the current program session.
func (o *OS) Session() Session {
	o.Lock()
	defer o.Unlock()

	return Session{
		Path:    o.currentPath(),
		Running: o.supervisor.State() == supervisor.Running,
	}
}

// Init brings up the peripherals and shows the color test.
func (o *OS) Init() (err error) {
	o.Lock()
	defer o.Unlock()

	if o.initialized {
		return ErrInitialized
	}

	log.Printf("OS initializing layout flash:%s ram:%s arena:%s", o.conf.Layout.Flash, o.conf.Layout.RAM, o.conf.Layout.Arena)

	for _, p := range o.conf.Peripherals {
		if err = p.Init(); err != nil {
			o.show(Notice{
				Header:  "! OS CRASH !",
				Message: "Failed to initialize peripheral: " + err.Error(),
			})

			return errors.Wrap(err, "peripheral init")
		}
	}

	if o.conf.Display != nil {
		log.Printf("OS displaying color test")
		o.colorTest()
	}

	if o.conf.LED != nil {
		o.led = false
		_ = o.conf.LED.Set(o.led)
	}

	o.initialized = true
	log.Printf("OS initialized")

	return
}

// Uninit stops the program and, when cleanly is set, releases the
// peripherals.
func (o *OS) Uninit(cleanly bool) (err error) {
	o.Lock()
	defer o.Unlock()

	if !o.initialized {
		return ErrNotInitialized
	}

	o.supervisor.Stop()
	o.setPath("")

	if cleanly {
		for _, p := range o.conf.Peripherals {
			if e := p.Uninit(); e != nil && err == nil {
				err = errors.Wrap(e, "peripheral uninit")
			}
		}

		if o.conf.LED != nil {
			_ = o.conf.LED.Set(false)
		}
	}

	o.notice = nil
	o.initialized = false
	log.Printf("OS uninitialized")

	return
}
