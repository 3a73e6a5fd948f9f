// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package heap implements the supervisor arena allocator.
//
// The arena is a fixed byte range carved into a gapless chain of blocks, each
// preceded by a header encoded in the arena itself. Allocation is best-fit
// with block splitting, release coalesces with both physical neighbours.
package heap

import (
	"sync"

	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"
)

// Alignment is the granularity of every allocation size and payload address.
const Alignment = 4

var (
	ErrOutOfMemory    = errors.New("out of memory")
	ErrInvalidAddress = errors.New("address is not a live allocation")
	ErrInvalidSize    = errors.New("invalid allocation size")
	ErrInvalidOwner   = errors.New("invalid owner")
)

// Arena is a best-fit allocator over a fixed memory window.
type Arena struct {
	mu sync.Mutex

	start uint32
	buf   []byte

	free     uint32
	owned    [ownerCount]uint32
	overhead uint32
	blocks   int

	// live maps payload offsets of allocated blocks to their owner
	live *swiss.Map[uint32, Owner]

	// Logger, when set, traces every allocation and release.
	Logger *slog.Logger
}

// New initializes an arena at address start backed by buf, all of buf is
// handed to a single free block.
func New(start uint32, buf []byte) (a *Arena, err error) {
	if start%Alignment != 0 || len(buf)%Alignment != 0 {
		return nil, errors.Errorf("arena %#x+%d is not %d byte aligned", start, len(buf), Alignment)
	}

	if len(buf) <= HeaderSize || uint64(start)+uint64(len(buf)) > 1<<32 {
		return nil, errors.Errorf("invalid arena size %d", len(buf))
	}

	a = &Arena{
		start: start,
		buf:   buf,
	}

	a.Reset()

	return
}

// Reset discards every allocation.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	h := header{
		size:     uint32(len(a.buf)) - HeaderSize,
		previous: noPrevious,
	}

	h.setFree(true)
	a.writeHeader(0, h)

	a.free = h.size
	a.owned = [ownerCount]uint32{}
	a.overhead = HeaderSize
	a.blocks = 1
	a.live = swiss.NewMap[uint32, Owner](42)
}

// Start returns the arena base address.
func (a *Arena) Start() uint32 {
	return a.start
}

// Len returns the arena length in bytes.
func (a *Arena) Len() int {
	return len(a.buf)
}

// Allocate reserves at least size bytes tagged with owner and returns the
// payload address. Sizes are rounded up to the allocation alignment.
func (a *Arena) Allocate(size int, owner Owner) (addr uint32, err error) {
	if owner == OwnerNone || owner >= ownerCount {
		return 0, errors.Wrapf(ErrInvalidOwner, "%v", owner)
	}

	if size <= 0 || size > len(a.buf) {
		return 0, errors.Wrapf(ErrInvalidSize, "%d", size)
	}

	n := (uint32(size) + Alignment - 1) &^ (Alignment - 1)

	a.mu.Lock()
	defer a.mu.Unlock()

	off, ok := a.bestFit(n)

	if !ok {
		return 0, errors.Wrapf(ErrOutOfMemory, "requested:%d free:%d largest:%d", n, a.free, a.largestFree())
	}

	h := a.readHeader(off)

	if h.size-n >= HeaderSize {
		rest := header{
			size:     h.size - n - HeaderSize,
			previous: off,
		}

		rest.setFree(true)

		h.size = n
		restOff := next(off, h)

		a.writeHeader(restOff, rest)
		a.relink(restOff, rest)

		a.free -= HeaderSize
		a.overhead += HeaderSize
		a.blocks++
	}

	h.setFree(false)
	h.setOwner(owner)
	a.writeHeader(off, h)

	a.free -= h.size
	a.owned[owner] += h.size
	a.live.Put(off+HeaderSize, owner)

	addr = a.start + off + HeaderSize

	if a.Logger != nil {
		a.Logger.Debug("allocate", "addr", addr, "size", h.size, "requested", size, "owner", owner.String())
	}

	return
}

// bestFit returns the offset of the smallest free block holding at least
// size bytes, an exact fit ends the scan.
func (a *Arena) bestFit(size uint32) (best uint32, found bool) {
	var bestSize uint32

	for off := uint32(0); off < uint32(len(a.buf)); {
		h := a.readHeader(off)

		if h.free() && h.size >= size {
			if h.size == size {
				return off, true
			}

			if !found || h.size < bestSize {
				best = off
				bestSize = h.size
				found = true
			}
		}

		off = next(off, h)
	}

	return
}

// Release returns the allocation at addr to the arena and merges it with
// free neighbours, forward first.
func (a *Arena) Release(addr uint32) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	off, err := a.payloadOffset(addr)

	if err != nil {
		return
	}

	a.live.Delete(off)
	off -= HeaderSize

	h := a.readHeader(off)
	owner := h.owner()

	a.owned[owner] -= h.size
	a.free += h.size

	h.setFree(true)
	h.setOwner(OwnerNone)

	if n := next(off, h); n < uint32(len(a.buf)) {
		if nh := a.readHeader(n); nh.free() {
			h.size += HeaderSize + nh.size
			a.merged()
		}
	}

	a.writeHeader(off, h)
	a.relink(off, h)

	if h.previous != noPrevious {
		if ph := a.readHeader(h.previous); ph.free() {
			ph.size += HeaderSize + h.size
			a.merged()

			a.writeHeader(h.previous, ph)
			a.relink(h.previous, ph)
		}
	}

	if a.Logger != nil {
		a.Logger.Debug("release", "addr", addr, "owner", owner.String())
	}

	return
}

// merged accounts for a header absorbed into a free neighbour.
func (a *Arena) merged() {
	a.free += HeaderSize
	a.overhead -= HeaderSize
	a.blocks--
}

func (a *Arena) payloadOffset(addr uint32) (off uint32, err error) {
	if addr < a.start+HeaderSize || addr >= a.start+uint32(len(a.buf)) {
		return 0, errors.Wrapf(ErrInvalidAddress, "%#x outside arena", addr)
	}

	off = addr - a.start

	if _, ok := a.live.Get(off); !ok {
		return 0, errors.Wrapf(ErrInvalidAddress, "%#x", addr)
	}

	return
}

// Bytes returns the payload of the allocation at addr.
func (a *Arena) Bytes(addr uint32) (buf []byte, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	off, err := a.payloadOffset(addr)

	if err != nil {
		return
	}

	h := a.readHeader(off - HeaderSize)

	return a.buf[off : off+h.size : off+h.size], nil
}

// BytesFree returns the payload bytes held by free blocks.
func (a *Arena) BytesFree() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return int(a.free)
}

// BytesOwnedBy returns the payload bytes allocated to owner.
func (a *Arena) BytesOwnedBy(owner Owner) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if owner >= ownerCount {
		return 0
	}

	return int(a.owned[owner])
}

// Overhead returns the bytes taken by block headers.
func (a *Arena) Overhead() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return int(a.overhead)
}

// BlockCount returns the number of blocks in the chain.
func (a *Arena) BlockCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.blocks
}

// LargestFreeBlock returns the size of the largest free block.
func (a *Arena) LargestFreeBlock() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return int(a.largestFree())
}

func (a *Arena) largestFree() (largest uint32) {
	for off := uint32(0); off < uint32(len(a.buf)); {
		h := a.readHeader(off)

		if h.free() && h.size > largest {
			largest = h.size
		}

		off = next(off, h)
	}

	return
}

// Walk calls fn for every block in address order until fn returns false.
func (a *Arena) Walk(fn func(b Block) bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for off := uint32(0); off < uint32(len(a.buf)); {
		h := a.readHeader(off)

		b := Block{
			Addr:  a.start + off + HeaderSize,
			Size:  h.size,
			Owner: h.owner(),
			Free:  h.free(),
		}

		if !fn(b) {
			return
		}

		off = next(off, h)
	}
}
