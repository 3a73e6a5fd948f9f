// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import (
	"bytes"
	"context"
	"log"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/piconsole/piconsole/platform"
	"github.com/piconsole/piconsole/storage"
	"github.com/piconsole/piconsole/supervisor"
)

// setPath stores path in its arena buffer, an empty path clears it.
func (o *OS) setPath(path string) {
	buf, err := o.heap.Bytes(o.path)

	if err != nil {
		log.Printf("OS invalid path buffer addr:%#x, %v", o.path, err)
		return
	}

	for i := range buf {
		buf[i] = 0
	}

	copy(buf, path)
}

// currentPath reads the program path back from its arena buffer.
func (o *OS) currentPath() string {
	buf, err := o.heap.Bytes(o.path)

	if err != nil {
		return ""
	}

	if n := bytes.IndexByte(buf, 0); n >= 0 {
		buf = buf[:n]
	}

	return string(buf)
}

// LoadProgram replaces the current program with the image at path.
//
// The image is validated before the current program is stopped, a bad
// image leaves it running. Failures past that point leave no program
// running.
func (o *OS) LoadProgram(path string) (err error) {
	o.Lock()
	defer o.Unlock()

	if !o.initialized {
		return ErrNotInitialized
	}

	if err = storage.CheckPath(path); err != nil {
		o.osError("Can't load program from path: " + err.Error())
		return
	}

	p, err := o.loader.Open(path)

	if err != nil {
		o.osError("Could not load " + path + ": " + err.Error())
		return
	}

	defer p.Close()

	o.supervisor.Stop()
	o.setPath("")

	lease, err := o.supervisor.Lease()

	if err != nil {
		return
	}

	entry, err := p.Place(lease)

	if err != nil {
		o.osError("Could not place " + path + ": " + err.Error())
		return
	}

	o.plan = p

	if err = o.supervisor.Launch(entry); err != nil {
		log.Printf("OS failed to launch %s, %v", path, err)
		return
	}

	o.setPath(path)
	log.Printf("OS program %s started", path)

	return
}

// StopProgram halts the current program, it reports whether one was
// running.
func (o *OS) StopProgram() bool {
	o.Lock()
	defer o.Unlock()

	o.setPath("")

	return o.supervisor.Stop()
}

// Update performs one supervisor tick. While a notice is shown only the
// Start button is polled.
func (o *OS) Update() (err error) {
	o.Lock()
	defer o.Unlock()

	if !o.initialized {
		return ErrNotInitialized
	}

	o.Ticks++

	if in := o.conf.Input; in != nil {
		if err = in.Update(); err != nil {
			return errors.Wrap(err, "input")
		}
	}

	if o.notice != nil {
		o.pollNotice()
		return
	}

	switch o.supervisor.Tick() {
	case supervisor.EventGenericError:
		o.programError("Program has pushed a generic error signal during the last update.")
	case supervisor.EventCrash:
		o.fatalProgramError("Program has pushed a generic crash signal during the last update.")
	}

	if o.conf.LED != nil {
		o.led = !o.led
		_ = o.conf.LED.Set(o.led)
	}

	return
}

// pollNotice clears the notice once Start has been released, pressed and
// released again.
func (o *OS) pollNotice() {
	n := o.notice
	start := o.conf.Input.Pressed(platform.ButtonStart)

	switch {
	case !n.armed:
		n.armed = !start
	case !n.pressed:
		n.pressed = start
	case !start:
		o.clearNotice()
	}
}

// Run updates the OS at the configured tick rate until ctx is done.
func (o *OS) Run(ctx context.Context) error {
	limiter := rate.NewLimiter(o.conf.TickRate, 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}

		if err := o.Update(); err != nil {
			return err
		}
	}
}
