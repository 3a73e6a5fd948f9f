// Copyright (c) The GoTEE authors. All Rights Reserved.
// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package cmd implements the remote console commands.
package cmd

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

// Cmd is a console command.
type Cmd struct {
	Name string
	// Args is the number of arguments captured by Pattern, commands with
	// optional arguments set a Pattern and leave Args at zero.
	Args    int
	Pattern *regexp.Regexp
	Syntax  string
	Help    string
	Fn      func(term *term.Terminal, arg []string) (res string, err error)
}

var cmds = make(map[string]*Cmd)

func init() {
	Add(Cmd{
		Name: "help",
		Help: "this help",
		Fn:   helpCmd,
	})

	Add(Cmd{
		Name: "exit",
		Help: "close session",
		Fn:   exitCmd,
	})

	Add(Cmd{
		Name: "quit",
		Help: "close session",
		Fn:   exitCmd,
	})
}

// Add registers a command.
func Add(cmd Cmd) {
	cmds[cmd.Name] = &cmd
}

// Help returns the command list.
func Help(term *term.Terminal) string {
	var help bytes.Buffer
	var names []string

	t := tabwriter.NewWriter(&help, 16, 8, 0, '\t', tabwriter.TabIndent)

	for name := range cmds {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		cmd := cmds[name]
		_, _ = fmt.Fprintf(t, "%s\t%s\t # %s\n", cmd.Name, cmd.Syntax, cmd.Help)
	}

	_ = t.Flush()

	if term != nil {
		return string(term.Escape.Cyan) + help.String() + string(term.Escape.Reset)
	}

	return help.String()
}

// Handle executes a command line, it returns io.EOF when the session should
// end.
func Handle(term *term.Terminal, line string) (err error) {
	var arg []string

	line = strings.TrimSpace(line)
	fields := strings.Fields(line)

	if len(fields) == 0 {
		return
	}

	cmd, ok := cmds[fields[0]]

	if !ok {
		return errors.Errorf("unknown command %q, type `help`", fields[0])
	}

	if cmd.Pattern != nil {
		m := cmd.Pattern.FindStringSubmatch(line)

		switch {
		case m != nil:
			arg = m[1:]
		case cmd.Args > 0 || len(fields) > 1:
			return errors.Errorf("invalid syntax, usage: %s %s", cmd.Name, cmd.Syntax)
		}
	} else if len(fields) > 1 {
		return errors.Errorf("%s takes no arguments", cmd.Name)
	}

	res, err := cmd.Fn(term, arg)

	if err != nil {
		return
	}

	if res != "" && term != nil {
		_, _ = fmt.Fprintln(term, res)
	}

	return
}

func helpCmd(term *term.Terminal, _ []string) (string, error) {
	return Help(term), nil
}

func exitCmd(_ *term.Terminal, _ []string) (string, error) {
	return "logout", io.EOF
}
