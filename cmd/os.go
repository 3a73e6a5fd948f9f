// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/piconsole/piconsole/kernel"
	"github.com/piconsole/piconsole/platform"
	"github.com/piconsole/piconsole/storage"
)

// Console collaborators, set by the main package.
var (
	OS     *kernel.OS
	Memory platform.Memory
	FS     storage.FS

	// Buttons, when set, injects button presses.
	Buttons interface {
		Tap(b platform.Button)
	}
)

var errNoOS = errors.New("no OS instance")

func init() {
	Add(Cmd{
		Name:    "load",
		Args:    1,
		Pattern: regexp.MustCompile(`^load (\S+)$`),
		Syntax:  "<path>",
		Help:    "load and launch program image",
		Fn:      loadCmd,
	})

	Add(Cmd{
		Name: "stop",
		Help: "stop program",
		Fn:   stopCmd,
	})

	Add(Cmd{
		Name: "status",
		Help: "show program and supervisor state",
		Fn:   statusCmd,
	})

	Add(Cmd{
		Name: "segments",
		Help: "show last loaded image placement",
		Fn:   segmentsCmd,
	})

	Add(Cmd{
		Name:    "press",
		Args:    1,
		Pattern: regexp.MustCompile(`^press (A|B|X|Y|Up|Down|Left|Right|Start)$`),
		Syntax:  "<button>",
		Help:    "press and release a button",
		Fn:      pressCmd,
	})
}

func loadCmd(_ *term.Terminal, arg []string) (res string, err error) {
	if OS == nil {
		return "", errNoOS
	}

	if err = OS.LoadProgram(arg[0]); err != nil {
		return
	}

	return fmt.Sprintf("%s running", arg[0]), nil
}

func stopCmd(_ *term.Terminal, _ []string) (res string, err error) {
	if OS == nil {
		return "", errNoOS
	}

	if !OS.StopProgram() {
		return "no program running", nil
	}

	return "program stopped", nil
}

func statusCmd(_ *term.Terminal, _ []string) (res string, err error) {
	var buf bytes.Buffer

	if OS == nil {
		return "", errNoOS
	}

	s := OS.Session()

	fmt.Fprintf(&buf, "program    %s running:%v\n", s.Path, s.Running)
	fmt.Fprintf(&buf, "supervisor %s\n", OS.Supervisor())
	fmt.Fprintf(&buf, "heap       %s\n", OS.Heap())

	if n := OS.Notice(); n != nil {
		fmt.Fprintf(&buf, "notice     %s %s\n", n.Header, n.Message)
	}

	return buf.String(), nil
}

func segmentsCmd(_ *term.Terminal, _ []string) (res string, err error) {
	var buf bytes.Buffer

	if OS == nil {
		return "", errNoOS
	}

	p := OS.Report()

	if p == nil {
		return "no image loaded", nil
	}

	fmt.Fprintf(&buf, "%s entry:%#.8x\n", p.Path, p.Entry())
	buf.WriteString(p.Table())

	for i, c := range p.Copies {
		fmt.Fprintf(&buf, "copy %d %s\n", i, c)
	}

	fmt.Fprintf(&buf, "erased:%d programmed:%d copied:%d", p.SectorsErased, p.PagesProgrammed, p.BytesCopied)

	return buf.String(), nil
}

func pressCmd(_ *term.Terminal, arg []string) (res string, err error) {
	if Buttons == nil {
		return "", errors.New("button injection unsupported")
	}

	b, ok := platform.ParseButton(arg[0])

	if !ok {
		return "", errors.Errorf("invalid button %s", arg[0])
	}

	Buttons.Tap(b)

	return
}
