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
	"io"
	"regexp"
	"runtime/debug"
	"runtime/pprof"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/piconsole/piconsole/util"
)

func init() {
	Add(Cmd{
		Name: "stack",
		Help: "stack trace of current goroutine",
		Fn:   stackCmd,
	})

	Add(Cmd{
		Name: "stackall",
		Help: "stack trace of all goroutines",
		Fn:   stackallCmd,
	})

	Add(Cmd{
		Name:    "sym",
		Args:    1,
		Pattern: regexp.MustCompile(`^sym (\S+)$`),
		Syntax:  "<symbol>",
		Help:    "look up symbol in current program image",
		Fn:      symCmd,
	})

	Add(Cmd{
		Name:    "line",
		Args:    1,
		Pattern: regexp.MustCompile(`^line ([[:xdigit:]]+)$`),
		Syntax:  "<hex pc>",
		Help:    "resolve Go program counter to source line",
		Fn:      lineCmd,
	})
}

func stackCmd(_ *term.Terminal, _ []string) (string, error) {
	return string(debug.Stack()), nil
}

func stackallCmd(_ *term.Terminal, _ []string) (string, error) {
	var buf bytes.Buffer

	if err := pprof.Lookup("goroutine").WriteTo(&buf, 1); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// programImage reads the image of the current program.
func programImage() (buf []byte, err error) {
	if OS == nil || FS == nil {
		return nil, errNoOS
	}

	path := OS.Session().Path

	if path == "" {
		return nil, errors.New("no program loaded")
	}

	f, err := FS.Open(path)

	if err != nil {
		return
	}

	defer f.Close()

	return io.ReadAll(f)
}

func symCmd(_ *term.Terminal, arg []string) (res string, err error) {
	buf, err := programImage()

	if err != nil {
		return
	}

	sym, err := util.LookupSym(buf, arg[0])

	if err != nil {
		return "", errors.Wrapf(err, "could not find %s", arg[0])
	}

	return fmt.Sprintf("%s value:%#.8x size:%d", sym.Name, sym.Value, sym.Size), nil
}

func lineCmd(_ *term.Terminal, arg []string) (res string, err error) {
	pc, err := strconv.ParseUint(arg[0], 16, 64)

	if err != nil {
		return
	}

	buf, err := programImage()

	if err != nil {
		return
	}

	return util.PCToLine(buf, pc)
}
