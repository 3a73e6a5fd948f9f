// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/dustin/go-humanize"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/term"

	"github.com/piconsole/piconsole/heap"
)

func init() {
	Add(Cmd{
		Name:    "heap",
		Pattern: regexp.MustCompile(`^heap (json)$`),
		Syntax:  "(json)?",
		Help:    "show supervisor heap blocks",
		Fn:      heapCmd,
	})
}

func heapCmd(_ *term.Terminal, arg []string) (res string, err error) {
	var buf bytes.Buffer

	if OS == nil {
		return "", errNoOS
	}

	a := OS.Heap()

	if len(arg) > 0 {
		w := jwriter.NewWriter()
		a.PrintDetailedMap(&w)

		if err = w.Error(); err != nil {
			return
		}

		return string(w.Bytes()), nil
	}

	fmt.Fprintf(&buf, "%s\n", a)
	fmt.Fprintf(&buf, "%-10s %-10s %s\n", "addr", "size", "owner")

	a.Walk(func(b heap.Block) bool {
		owner := b.Owner.String()

		if b.Free {
			owner = "free"
		}

		fmt.Fprintf(&buf, "%#.8x %-10s %s\n", b.Addr, humanize.IBytes(uint64(b.Size)), owner)

		return true
	})

	fmt.Fprintf(&buf, "largest free block %s", humanize.IBytes(uint64(a.LargestFreeBlock())))

	return buf.String(), nil
}
