// Copyright (c) The GoTEE authors. All Rights Reserved.
// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm

// Command program_go is a console program, it answers heartbeats while
// blinking the blue LED and reports a generic error after a few seconds.
package main

import (
	"log"
	"os"
	"runtime"
	"runtime/goos"
	"time"

	"github.com/usbarmory/GoTEE/applet"
	"github.com/usbarmory/GoTEE/syscall"

	"github.com/piconsole/piconsole/mailbox"
	"github.com/piconsole/piconsole/util"
)

// pollTimeout is the heartbeat wait in microseconds.
const pollTimeout = 20000

func init() {
	log.SetFlags(log.Ltime)
	log.SetOutput(os.Stdout)

	// a runtime panic is reported to the supervisor as a crash
	goos.Exit = applet.Crash
}

func push(code mailbox.Code) error {
	req := util.FIFORequest{
		Code:    uint32(code),
		Timeout: pollTimeout,
	}

	return syscall.Call("RPC.Push", req, nil)
}

func pop() (code mailbox.Code, err error) {
	var res uint32

	err = syscall.Call("RPC.Pop", int64(pollTimeout), &res)

	return mailbox.Code(res), err
}

func main() {
	log.Printf("%s/%s (%s) • PICOnsole program", runtime.GOOS, runtime.GOARCH, runtime.Version())

	if err := push(mailbox.LaunchSuccess); err != nil {
		log.Printf("program could not signal launch, %v", err)
		applet.Exit()
	}

	led := util.LEDStatus{
		Name: "blue",
	}

	start := time.Now()
	reported := false
	beats := 0

	for {
		code, err := pop()

		if err != nil {
			continue
		}

		if code != mailbox.Heartbeat {
			log.Printf("program received unexpected code %v", code)
			continue
		}

		if beats++; beats%30 == 0 {
			led.On = !led.On
			_ = syscall.Call("RPC.LED", led, nil)
		}

		if !reported && time.Since(start) > 5*time.Second {
			log.Printf("program says %d heartbeats", beats)

			if err = push(mailbox.GenericError); err != nil {
				log.Printf("program could not signal error, %v", err)
			}

			reported = true
		}
	}
}
