// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package heap

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slog"
)

// String returns a one line usage summary.
func (a *Arena) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return fmt.Sprintf("arena:%s free:%s os:%s program:%s overhead:%s blocks:%d",
		humanize.IBytes(uint64(len(a.buf))),
		humanize.IBytes(uint64(a.free)),
		humanize.IBytes(uint64(a.owned[OwnerOS])),
		humanize.IBytes(uint64(a.owned[OwnerProgram])),
		humanize.IBytes(uint64(a.overhead)),
		a.blocks,
	)
}

// PrintDetailedMap writes the arena counters and block chain as JSON.
func (a *Arena) PrintDetailedMap(writer *jwriter.Writer) {
	obj := writer.Object()
	defer obj.End()

	a.mu.Lock()
	obj.Name("Start").Int(int(a.start))
	obj.Name("TotalBytes").Int(len(a.buf))
	obj.Name("UnusedBytes").Int(int(a.free))
	obj.Name("OverheadBytes").Int(int(a.overhead))
	obj.Name("Allocations").Int(a.live.Count())
	obj.Name("Blocks").Int(a.blocks)
	a.mu.Unlock()

	arr := obj.Name("Chain").Array()
	defer arr.End()

	a.Walk(func(b Block) bool {
		block := arr.Object()
		defer block.End()

		block.Name("Offset").Int(int(b.Addr - a.start - HeaderSize))
		block.Name("Size").Int(int(b.Size))

		if b.Free {
			block.Name("Type").String("FREE")
		} else {
			block.Name("Type").String(b.Owner.String())
		}

		return true
	})
}

// DebugLogAllAllocations logs every allocated block.
func (a *Arena) DebugLogAllAllocations(logger *slog.Logger) {
	a.Walk(func(b Block) bool {
		if !b.Free {
			logger.Debug("allocation", "addr", fmt.Sprintf("%#x", b.Addr), "size", b.Size, "owner", b.Owner.String())
		}

		return true
	})
}
