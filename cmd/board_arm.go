// Copyright (c) The GoTEE authors. All Rights Reserved.
// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm

package cmd

import (
	"bytes"
	"fmt"

	"golang.org/x/term"

	"github.com/usbarmory/tamago/bits"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/piconsole/piconsole/mem"
)

func init() {
	Add(Cmd{
		Name: "board",
		Help: "show SoC, memory windows and debug permissions",
		Fn:   boardCmd,
	})
}

func boardCmd(_ *term.Terminal, _ []string) (res string, err error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "SoC ......: %s native:%v %d MHz\n", imx6ul.Model(), imx6ul.Native, imx6ul.ARMFreq()/1000000)
	fmt.Fprintf(&buf, "Flash ....: %s\n", mem.Board.Flash)
	fmt.Fprintf(&buf, "RAM ......: %s\n", mem.Board.RAM)
	fmt.Fprintf(&buf, "Arena ....: %s\n", mem.Board.Arena)

	if !imx6ul.Native {
		return buf.String(), nil
	}

	status := imx6ul.ARM.DebugStatus()

	// DBGAUTHSTATUS pairs: implemented, enabled
	fmt.Fprintf(&buf, "Debug ....: secure invasive:%d/%d non-invasive:%d/%d\n",
		bits.GetN(&status, 5, 1), bits.GetN(&status, 4, 1),
		bits.GetN(&status, 7, 1), bits.GetN(&status, 6, 1),
	)

	return buf.String(), nil
}
