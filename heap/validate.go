// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package heap

import (
	"github.com/pkg/errors"
)

// Validate walks the block chain and checks it against the arena counters.
func (a *Arena) Validate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var free, overhead uint32
	var owned [ownerCount]uint32
	var blocks, allocated int

	prev := uint32(noPrevious)
	prevFree := false
	length := uint32(len(a.buf))

	off := uint32(0)

	for off < length {
		if length-off < HeaderSize {
			return errors.Errorf("truncated header at offset %#x", off)
		}

		h := a.readHeader(off)

		if h.previous != prev {
			return errors.Errorf("block %#x previous:%#x expected:%#x", off, h.previous, prev)
		}

		if h.size%Alignment != 0 {
			return errors.Errorf("block %#x size:%d is not aligned", off, h.size)
		}

		if uint64(off)+HeaderSize+uint64(h.size) > uint64(length) {
			return errors.Errorf("block %#x size:%d overruns the arena", off, h.size)
		}

		overhead += HeaderSize
		blocks++

		if h.free() {
			if prevFree {
				return errors.Errorf("adjacent free blocks at %#x", off)
			}

			free += h.size
		} else {
			owner, ok := a.live.Get(off + HeaderSize)

			if !ok || owner != h.owner() {
				return errors.Errorf("block %#x is not a tracked allocation", off)
			}

			owned[h.owner()] += h.size
			allocated++
		}

		prev = off
		prevFree = h.free()
		off = next(off, h)
	}

	switch {
	case off != length:
		return errors.Errorf("chain ends at %#x, arena length %#x", off, length)
	case free != a.free:
		return errors.Errorf("free bytes %d, counted %d", a.free, free)
	case overhead != a.overhead:
		return errors.Errorf("overhead %d, counted %d", a.overhead, overhead)
	case owned != a.owned:
		return errors.Errorf("owned bytes %v, counted %v", a.owned, owned)
	case blocks != a.blocks:
		return errors.Errorf("block count %d, counted %d", a.blocks, blocks)
	case allocated != a.live.Count():
		return errors.Errorf("%d allocations tracked, %d in chain", a.live.Count(), allocated)
	}

	return nil
}
