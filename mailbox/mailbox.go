// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package mailbox implements the single slot, bidirectional code exchange
// between the supervisor and the program context.
package mailbox

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Code is a mailbox word.
type Code uint32

const (
	// LaunchSuccess is pushed by a program once it is up.
	LaunchSuccess Code = 1
	// Heartbeat is pushed by the supervisor on every tick.
	Heartbeat Code = 2
	// GenericError reports a recoverable program fault.
	GenericError Code = 100
	// Crash reports a fatal program fault.
	Crash Code = 101
)

func (c Code) String() string {
	switch c {
	case LaunchSuccess:
		return "launch-success"
	case Heartbeat:
		return "heartbeat"
	case GenericError:
		return "generic-error"
	case Crash:
		return "crash"
	default:
		return fmt.Sprintf("code(%d)", uint32(c))
	}
}

var (
	ErrTimeout = errors.New("mailbox timeout")
	ErrHalted  = errors.New("mailbox endpoint halted")
)

// Mailbox holds one code in each direction.
type Mailbox struct {
	sync.Mutex

	gen          uint64
	toProgram    chan Code
	toSupervisor chan Code
	halted       chan struct{}
}

// New returns an empty mailbox.
func New() *Mailbox {
	m := &Mailbox{}
	m.init()

	return m
}

func (m *Mailbox) init() {
	m.toProgram = make(chan Code, 1)
	m.toSupervisor = make(chan Code, 1)
	m.halted = make(chan struct{})
}

// Reset drains both slots and disconnects every program endpoint handed out
// so far.
func (m *Mailbox) Reset() {
	m.Lock()
	defer m.Unlock()

	close(m.halted)
	m.gen++
	m.init()
}

// Endpoint is one side of the mailbox.
type Endpoint struct {
	m       *Mailbox
	gen     uint64
	program bool
}

// Supervisor returns the supervisor side, it survives resets.
func (m *Mailbox) Supervisor() *Endpoint {
	return &Endpoint{m: m}
}

// Program returns the program side for the current generation, it is
// halted by the next Reset.
func (m *Mailbox) Program() *Endpoint {
	m.Lock()
	defer m.Unlock()

	return &Endpoint{m: m, gen: m.gen, program: true}
}

func (e *Endpoint) channels() (in chan Code, out chan Code, halted chan struct{}, err error) {
	e.m.Lock()
	defer e.m.Unlock()

	if !e.program {
		return e.m.toSupervisor, e.m.toProgram, nil, nil
	}

	if e.gen != e.m.gen {
		return nil, nil, nil, ErrHalted
	}

	return e.m.toProgram, e.m.toSupervisor, e.m.halted, nil
}

// Push waits up to timeout for the outgoing slot to free up and fills it, a
// zero timeout does not wait.
func (e *Endpoint) Push(code Code, timeout time.Duration) (err error) {
	_, out, halted, err := e.channels()

	if err != nil {
		return
	}

	if timeout <= 0 {
		select {
		case out <- code:
			return
		case <-halted:
			return ErrHalted
		default:
			return errors.Wrapf(ErrTimeout, "push %v", code)
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case out <- code:
		return
	case <-halted:
		return ErrHalted
	case <-t.C:
		return errors.Wrapf(ErrTimeout, "push %v", code)
	}
}

// Pop waits up to timeout for an incoming code, a zero timeout does not
// wait.
func (e *Endpoint) Pop(timeout time.Duration) (code Code, err error) {
	in, _, halted, err := e.channels()

	if err != nil {
		return
	}

	if timeout <= 0 {
		select {
		case code = <-in:
			return
		case <-halted:
			return 0, ErrHalted
		default:
			return 0, errors.Wrap(ErrTimeout, "pop")
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case code = <-in:
		return
	case <-halted:
		return 0, ErrHalted
	case <-t.C:
		return 0, errors.Wrap(ErrTimeout, "pop")
	}
}
