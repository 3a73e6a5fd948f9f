// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sim

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/piconsole/piconsole/mailbox"
	"github.com/piconsole/piconsole/platform"
)

// stopTimeout bounds the wait for a reset program to return.
const stopTimeout = 2 * time.Second

// Program is the body of a simulated program, it stands in for the machine
// code found at its entry point. It should return once ctx is done.
type Program func(ctx context.Context, fifo *mailbox.Endpoint, m platform.Memory)

// Core runs programs on a goroutine in place of the second processor core.
type Core struct {
	sync.Mutex

	mailbox  *mailbox.Mailbox
	memory   platform.Memory
	programs map[uint32]Program

	cancel context.CancelFunc
	done   chan struct{}

	// Launches counts calls to Launch.
	Launches int
}

// NewCore returns a core exchanging codes through mb.
func NewCore(mb *mailbox.Mailbox, m platform.Memory) *Core {
	return &Core{
		mailbox:  mb,
		memory:   m,
		programs: make(map[uint32]Program),
	}
}

// Register binds a program body to an entry point.
func (c *Core) Register(entry uint32, p Program) {
	c.Lock()
	defer c.Unlock()

	c.programs[entry] = p
}

// Launch starts the program registered at entry. Without one the core spins
// in place, as it would on garbage.
func (c *Core) Launch(entry uint32) error {
	c.Reset()

	c.Lock()
	defer c.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.cancel = cancel
	c.done = done
	c.Launches++

	p := c.programs[entry]
	fifo := c.mailbox.Program()

	go func() {
		defer close(done)

		if p == nil {
			<-ctx.Done()
			return
		}

		defer func() {
			if err := recover(); err != nil {
				log.Printf("core1 crashed pc:%#.8x err:%v", entry, err)
				_ = fifo.Push(mailbox.Crash, stopTimeout)
			}
		}()

		p(ctx, fifo, c.memory)
	}()

	return nil
}

// Reset cancels the running program and waits for it to return.
func (c *Core) Reset() {
	c.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.Unlock()

	if cancel == nil {
		return
	}

	cancel()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		log.Printf("core1 did not stop within %v", stopTimeout)
	}
}

// Running reports whether a program goroutine is active.
func (c *Core) Running() bool {
	c.Lock()
	done := c.done
	c.Unlock()

	if done == nil {
		return false
	}

	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (c *Core) String() string {
	c.Lock()
	programs, launches := len(c.programs), c.Launches
	c.Unlock()

	return fmt.Sprintf("core1 programs:%d launches:%d running:%v", programs, launches, c.Running())
}
