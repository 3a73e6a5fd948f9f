// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

import (
	"bytes"
	"os"
	"sync"

	"golang.org/x/term"
)

var (
	mu            sync.Mutex
	osOutput      bytes.Buffer
	programOutput bytes.Buffer
)

const outputLimit = 1024
const flushChr = 0x0a // \n

func buffer(program bool) *bytes.Buffer {
	if program {
		return &programOutput
	}

	return &osOutput
}

// BufferedStdoutLog collects output bytes of either context and flushes
// them to stdout one line at a time.
func BufferedStdoutLog(c byte, program bool) {
	mu.Lock()
	defer mu.Unlock()

	buf := buffer(program)
	buf.WriteByte(c)

	if c == flushChr || buf.Len() > outputLimit {
		os.Stdout.Write(buf.Bytes())
		buf.Reset()
	}
}

// BufferedTermLog is BufferedStdoutLog for a remote terminal, program
// output is shown in green.
func BufferedTermLog(c byte, program bool, t *term.Terminal) {
	var color []byte

	mu.Lock()
	defer mu.Unlock()

	buf := buffer(program)

	if program {
		color = t.Escape.Green
	} else {
		color = t.Escape.Cyan
	}

	buf.WriteByte(c)

	if c == flushChr || buf.Len() > outputLimit {
		t.Write(color)
		t.Write(buf.Bytes())
		t.Write(t.Escape.Reset)

		buf.Reset()
	}
}

// Output is a writer feeding the buffered logs.
type Output struct {
	// Term, when set, receives the output instead of stdout.
	Term    *term.Terminal
	Program bool
}

func (o *Output) Write(p []byte) (int, error) {
	for _, c := range p {
		if o.Term != nil {
			BufferedTermLog(c, o.Program, o.Term)
		} else {
			BufferedStdoutLog(c, o.Program)
		}
	}

	return len(p), nil
}
