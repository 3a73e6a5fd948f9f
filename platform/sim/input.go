// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sim

import (
	"sync"

	"github.com/piconsole/piconsole/platform"
)

// Input replays queued button states, one per Update.
type Input struct {
	sync.Mutex

	state  uint32
	script []uint32
}

// Queue appends button states, each a mask of 1<<Button.
func (i *Input) Queue(states ...uint32) {
	i.Lock()
	defer i.Unlock()

	i.script = append(i.script, states...)
}

// Tap queues a press followed by a release of b.
func (i *Input) Tap(b platform.Button) {
	i.Queue(1<<uint(b), 0)
}

func (i *Input) Update() error {
	i.Lock()
	defer i.Unlock()

	if len(i.script) > 0 {
		i.state = i.script[0]
		i.script = i.script[1:]
	}

	return nil
}

func (i *Input) Pressed(b platform.Button) bool {
	i.Lock()
	defer i.Unlock()

	return i.state&(1<<uint(b)) != 0
}
