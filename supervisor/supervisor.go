// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package supervisor launches programs on the second core and watches over
// them through the mailbox.
package supervisor

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/piconsole/piconsole/mailbox"
	"github.com/piconsole/piconsole/mem"
	"github.com/piconsole/piconsole/platform"
)

// Default timeouts.
const (
	LaunchTimeout    = 500 * time.Millisecond
	PollTimeout      = 100 * time.Microsecond
	HeartbeatTimeout = 8 * time.Millisecond
)

var (
	ErrLaunchTimeout = errors.New("program launch timeout")
	ErrBusy          = errors.New("program is running")
)

// State is the program execution state.
type State int

const (
	Idle State = iota
	Launching
	Running
	Halted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Launching:
		return "launching"
	case Running:
		return "running"
	case Halted:
		return "halted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is a fault reported by the program during a tick.
type Event int

const (
	EventNone Event = iota
	EventGenericError
	EventCrash
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventGenericError:
		return "generic error"
	case EventCrash:
		return "crash"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Supervisor drives the program context state machine.
type Supervisor struct {
	sync.Mutex

	core    platform.Core
	mailbox *mailbox.Mailbox
	fifo    *mailbox.Endpoint
	ram     mem.Region

	state  State
	entry  uint32
	leases []*mem.Lease

	// OnTransition, when set, is called on every state change with the
	// supervisor locked.
	OnTransition func(from State, to State)

	LaunchTimeout    time.Duration
	PollTimeout      time.Duration
	HeartbeatTimeout time.Duration

	// Heartbeats and Dropped count heartbeat pushes.
	Heartbeats int
	Dropped    int
}

// New returns an idle supervisor for programs executing in ram.
func New(core platform.Core, mb *mailbox.Mailbox, ram mem.Region) *Supervisor {
	return &Supervisor{
		core:             core,
		mailbox:          mb,
		fifo:             mb.Supervisor(),
		ram:              ram,
		LaunchTimeout:    LaunchTimeout,
		PollTimeout:      PollTimeout,
		HeartbeatTimeout: HeartbeatTimeout,
	}
}

func (s *Supervisor) transition(to State) {
	from := s.state
	s.state = to

	if s.OnTransition != nil && from != to {
		s.OnTransition(from, to)
	}
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.Lock()
	defer s.Unlock()

	return s.state
}

// Entry returns the entry point of the last launch.
func (s *Supervisor) Entry() uint32 {
	s.Lock()
	defer s.Unlock()

	return s.entry
}

// Lease grants the loader write access to program RAM until the next
// launch.
func (s *Supervisor) Lease() (*mem.Lease, error) {
	s.Lock()
	defer s.Unlock()

	if s.state != Idle {
		return nil, errors.Wrapf(ErrBusy, "cannot lease %s", s.ram)
	}

	l := mem.NewLease(s.ram)
	s.leases = append(s.leases, l)

	return l, nil
}

func (s *Supervisor) revoke() {
	for _, l := range s.leases {
		l.Revoke()
	}

	s.leases = nil
}

// halt resets the program context and discards pending codes.
func (s *Supervisor) halt() {
	s.core.Reset()
	s.mailbox.Reset()
}

// Launch starts the program at entry and waits for its launch handshake.
func (s *Supervisor) Launch(entry uint32) (err error) {
	s.Lock()
	defer s.Unlock()

	if s.state != Idle {
		return ErrBusy
	}

	s.entry = entry
	s.transition(Launching)
	s.revoke()
	s.mailbox.Reset()

	log.Printf("OS launching program pc:%#.8x", entry)

	if err = s.core.Launch(entry); err != nil {
		s.halt()
		s.transition(Idle)
		return errors.Wrapf(err, "launch %#.8x", entry)
	}

	code, err := s.fifo.Pop(s.LaunchTimeout)

	switch {
	case err != nil:
		err = errors.Wrapf(ErrLaunchTimeout, "no response within %v", s.LaunchTimeout)
	case code != mailbox.LaunchSuccess:
		err = errors.Wrapf(ErrLaunchTimeout, "unexpected response %v", code)
	}

	if err != nil {
		s.halt()
		s.transition(Idle)
		return
	}

	s.transition(Running)

	return
}

// Tick polls the program for faults and sends it a heartbeat, it does
// nothing unless a program is running.
func (s *Supervisor) Tick() (ev Event) {
	s.Lock()
	defer s.Unlock()

	if s.state != Running {
		return
	}

	code, err := s.fifo.Pop(s.PollTimeout)

	if err == nil {
		switch code {
		case mailbox.GenericError:
			log.Printf("OS program error pc:%#.8x", s.entry)
			ev = EventGenericError
		case mailbox.Crash:
			log.Printf("OS program crash pc:%#.8x", s.entry)
			s.transition(Halted)
			s.halt()
			s.transition(Idle)
			return EventCrash
		default:
			log.Printf("OS ignoring program code:%v", code)
		}
	}

	if err = s.fifo.Push(mailbox.Heartbeat, s.HeartbeatTimeout); err != nil {
		s.Dropped++
	} else {
		s.Heartbeats++
	}

	return
}

// Stop halts the program context unconditionally, it reports whether a
// program was running.
func (s *Supervisor) Stop() bool {
	s.Lock()
	defer s.Unlock()

	running := s.state != Idle

	s.halt()
	s.transition(Idle)

	if running {
		log.Printf("OS stopped program pc:%#.8x", s.entry)
	}

	return running
}

func (s *Supervisor) String() string {
	s.Lock()
	defer s.Unlock()

	return fmt.Sprintf("state:%v pc:%#.8x heartbeats:%d dropped:%d", s.state, s.entry, s.Heartbeats, s.Dropped)
}
