// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm

package usbarmory

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/usbarmory/tamago/arm"
	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
	"github.com/usbarmory/tamago/dma"

	"github.com/usbarmory/GoTEE/monitor"
	"github.com/usbarmory/GoTEE/syscall"

	"github.com/piconsole/piconsole/mailbox"
	"github.com/piconsole/piconsole/util"
)

// crashTimeout bounds the crash report of a failed program.
const crashTimeout = 100 * time.Millisecond

// Core runs programs as Secure World user mode applets.
type Core struct {
	sync.Mutex

	// Region is the applet memory.
	Region *dma.Region
	// Console, when set, receives program output.
	Console *util.Console

	mailbox *mailbox.Mailbox
	ctx     *monitor.ExecCtx
	done    chan struct{}
}

// NewCore returns an applet core exchanging codes through mb.
func NewCore(mb *mailbox.Mailbox, region *dma.Region) *Core {
	return &Core{
		Region:  region,
		mailbox: mb,
	}
}

func (c *Core) handler(ctx *monitor.ExecCtx) (err error) {
	if ctx.ExceptionVector != arm.SUPERVISOR {
		return fmt.Errorf("exception %x", ctx.ExceptionVector)
	}

	switch ctx.A0() {
	case syscall.SYS_WRITE:
		if c.Console != nil && c.Console.Term != nil {
			util.BufferedTermLog(byte(ctx.A1()), true, c.Console.Term)
		} else {
			util.BufferedStdoutLog(byte(ctx.A1()), true)
		}
	case syscall.SYS_EXIT:
		ctx.Stop()
	default:
		return monitor.SecureHandler(ctx)
	}

	return
}

// Launch loads an execution context at entry and runs it.
func (c *Core) Launch(entry uint32) (err error) {
	c.Reset()

	c.Lock()
	defer c.Unlock()

	ctx, err := monitor.Load(uint(entry), c.Region, true)

	if err != nil {
		return fmt.Errorf("could not load program, %v", err)
	}

	fifo := c.mailbox.Program()

	ctx.Server.Register(&RPC{FIFO: fifo})
	ctx.R13 = uint32(ctx.Memory.End())
	ctx.Handler = c.handler

	done := make(chan struct{})

	c.ctx = ctx
	c.done = done

	go c.run(ctx, fifo, done)

	return
}

func (c *Core) run(ctx *monitor.ExecCtx, fifo *mailbox.Endpoint, done chan struct{}) {
	defer close(done)

	mode := arm.ModeName(int(ctx.SPSR) & 0x1f)
	log.Printf("core1 starting mode:%s sp:%#.8x pc:%#.8x", mode, ctx.R13, ctx.R15)

	err := ctx.Run()

	log.Printf("core1 stopped mode:%s sp:%#.8x lr:%#.8x pc:%#.8x err:%v", mode, ctx.R13, ctx.R14, ctx.R15, err)

	if err == nil {
		return
	}

	if err := fifo.Push(mailbox.Crash, crashTimeout); err != nil && !errors.Is(err, mailbox.ErrHalted) {
		log.Printf("core1 could not report crash, %v", err)
	}
}

// Reset stops the running program and waits for its context to return.
func (c *Core) Reset() {
	c.Lock()
	ctx, done := c.ctx, c.done
	c.ctx, c.done = nil, nil
	c.Unlock()

	if ctx == nil {
		return
	}

	ctx.Stop()
	<-done

	_ = usbarmory.LED("blue", false)
}

// RPC is the receiver of program calls.
type RPC struct {
	FIFO *mailbox.Endpoint
}

// Push writes a code to the supervisor.
func (r *RPC) Push(req util.FIFORequest, _ *bool) error {
	return r.FIFO.Push(mailbox.Code(req.Code), time.Duration(req.Timeout)*time.Microsecond)
}

// Pop reads a code from the supervisor.
func (r *RPC) Pop(timeout int64, code *uint32) (err error) {
	c, err := r.FIFO.Pop(time.Duration(timeout) * time.Microsecond)

	if err != nil {
		return
	}

	*code = uint32(c)

	return
}

// LED receives a LED state request, the white LED is reserved to the
// supervisor.
func (r *RPC) LED(led util.LEDStatus, _ *bool) error {
	switch led.Name {
	case "white", "White", "WHITE":
		return errors.New("LED is supervisor only")
	case "blue", "Blue", "BLUE":
		return usbarmory.LED("blue", led.On)
	default:
		return errors.New("invalid LED")
	}
}
