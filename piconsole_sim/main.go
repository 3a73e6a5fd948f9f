// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Command piconsole_sim runs the console OS on the host, programs are Go
// functions registered at their entry point and the remote console is served
// over SSH.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"runtime"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/piconsole/piconsole/cmd"
	"github.com/piconsole/piconsole/kernel"
	"github.com/piconsole/piconsole/mailbox"
	"github.com/piconsole/piconsole/mem"
	"github.com/piconsole/piconsole/platform/sim"
	"github.com/piconsole/piconsole/storage"
	"github.com/piconsole/piconsole/util"
)

var (
	root    = flag.String("root", "", "program image directory, images are kept in memory when empty")
	listen  = flag.String("listen", "127.0.0.1:2222", "SSH console address")
	program = flag.String("program", demoPath, "program loaded at startup")
	tick    = flag.Float64("tick", kernel.DefaultTickRate, "updates per second")
	dma     = flag.Bool("dma", true, "relocate data segments with DMA")
	verbose = flag.Bool("v", false, "trace heap activity")

	errorAfter = flag.Int("error", 300, "demo heartbeats before a generic error, 0 disables")
	crashAfter = flag.Int("crash", 0, "demo heartbeats before a crash, 0 disables")
)

func init() {
	log.SetFlags(log.Ltime)
	log.SetOutput(os.Stdout)
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() (err error) {
	banner := fmt.Sprintf("%s/%s (%s) • PICOnsole OS simulator", runtime.GOOS, runtime.GOARCH, runtime.Version())
	log.Print(banner)

	var fs storage.FS

	if *root != "" {
		fs = storage.DirFS(*root)
	} else {
		fs = &storage.MemFS{}
	}

	if _, err := fs.Stat(demoPath); err != nil {
		if err = fs.WriteFile(demoPath, demoImage()); err != nil {
			return fmt.Errorf("could not write demo image, %v", err)
		}
	}

	board := sim.NewBoard()
	mb := mailbox.New()
	core := sim.NewCore(mb, board)
	display := sim.NewDisplay()
	input := &sim.Input{}

	core.Register(mem.ProgramEntry, demo(*errorAfter, *crashAfter))

	conf := kernel.Config{
		Layout:     mem.Default,
		FS:         fs,
		Flash:      board,
		Memory:     board,
		Interrupts: board,
		Core:       core,
		Mailbox:    mb,
		Display:    display,
		Input:      input,
		LED:        board,
		TickRate:   rate.Limit(*tick),
	}

	if *dma {
		conf.DMA = board
	}

	if *verbose {
		conf.Logger = slog.New(slog.NewTextHandler(os.Stdout))
	}

	o, err := kernel.New(conf)

	if err != nil {
		return
	}

	if err = o.Init(); err != nil {
		return
	}

	defer o.Uninit(true)

	cmd.OS = o
	cmd.Memory = board
	cmd.FS = fs
	cmd.Buttons = input

	if *program != "" {
		if err := o.LoadProgram(*program); err != nil {
			log.Printf("OS could not load %s, %v", *program, err)
		}
	}

	listener, err := net.Listen("tcp", *listen)

	if err != nil {
		return fmt.Errorf("could not initialize SSH listener, %v", err)
	}

	console := &util.Console{
		Banner:  banner,
		Help:    cmd.Help,
		Handler: cmd.Handle,
	}

	if err = console.Start(listener); err != nil {
		return fmt.Errorf("could not initialize SSH server, %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return o.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		return listener.Close()
	})

	return g.Wait()
}
