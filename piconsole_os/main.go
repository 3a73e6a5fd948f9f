// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"time"
	_ "unsafe"

	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
	"github.com/usbarmory/tamago/dma"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/usbarmory/imx-usbnet"

	"golang.org/x/exp/slog"

	"github.com/piconsole/piconsole/cmd"
	"github.com/piconsole/piconsole/kernel"
	"github.com/piconsole/piconsole/mailbox"
	"github.com/piconsole/piconsole/mem"
	"github.com/piconsole/piconsole/platform"
	board "github.com/piconsole/piconsole/platform/usbarmory"
	"github.com/piconsole/piconsole/util"
)

const (
	sshPort = 22
	IP      = "10.0.0.1"
	MAC     = "1a:55:89:a2:69:41"
	hostMAC = "1a:55:89:a2:69:42"
)

// bootProgram is loaded at startup when present on the card.
const bootProgram = "/programs/boot.elf"

//go:linkname ramStart runtime.ramStart
var ramStart uint32 = mem.SecureStart

//go:linkname ramSize runtime.ramSize
var ramSize uint32 = mem.SecureSize

var banner = fmt.Sprintf("%s/%s (%s) • PICOnsole OS", runtime.GOOS, runtime.GOARCH, runtime.Version())

func init() {
	log.SetFlags(log.Ltime)
	log.SetOutput(os.Stdout)

	// keep DMA buffers within the supervisor memory
	dma.Init(mem.SecureDMAStart, mem.SecureDMASize)

	if imx6ul.Native {
		imx6ul.SetARMFreq(900)

		debugConsole, _ := usbarmory.DetectDebugAccessory(250 * time.Millisecond)
		<-debugConsole
	}

	log.Print(banner)
}

func main() {
	defer log.Printf("OS says goodbye")

	mem.Init()

	b := &board.Board{}
	mb := mailbox.New()
	core := board.NewCore(mb, mem.ProgramRegion)
	card := &board.Card{}

	o, err := kernel.New(kernel.Config{
		Layout:      mem.Board,
		FS:          card,
		Flash:       b,
		Memory:      b,
		Interrupts:  b,
		Core:        core,
		Mailbox:     mb,
		LED:         board.LED("white"),
		Peripherals: []platform.Peripheral{card},
		Arena:       mem.Arena,
		Logger:      slog.New(slog.NewTextHandler(os.Stdout)),
	})

	if err != nil {
		log.Fatalf("OS could not be created, %v", err)
	}

	if err = o.Init(); err != nil {
		log.Printf("OS could not be initialized, %v", err)
	}

	cmd.OS = o
	cmd.Memory = b
	cmd.FS = card

	if _, err := card.Stat(bootProgram); err == nil {
		if err = o.LoadProgram(bootProgram); err != nil {
			log.Printf("OS could not load %s, %v", bootProgram, err)
		}
	}

	go func() {
		if err := o.Run(context.Background()); err != nil {
			log.Printf("OS stopped, %v", err)
		}
	}()

	if !imx6ul.Native {
		select {}
	}

	iface, err := usbnet.Init(IP, MAC, hostMAC, 1)

	if err != nil {
		log.Fatalf("OS could not initialize USB networking, %v", err)
	}

	iface.EnableICMP()

	listener, err := iface.ListenerTCP4(sshPort)

	if err != nil {
		log.Fatalf("OS could not initialize SSH listener, %v", err)
	}

	console := &util.Console{
		Banner:  banner,
		Help:    cmd.Help,
		Handler: cmd.Handle,
	}

	core.Console = console

	if err = console.Start(listener); err != nil {
		log.Fatalf("OS could not initialize SSH server, %v", err)
	}

	usbarmory.USB1.Init()
	usbarmory.USB1.DeviceMode()
	usbarmory.USB1.Reset()

	// never returns
	usbarmory.USB1.Start(iface.NIC.Device)
}
