// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import (
	"image/color"
	"log"
	"strings"

	"github.com/piconsole/piconsole/platform"
)

// Text metrics of the console font.
const (
	charWidth  = 7
	lineHeight = 13
)

var (
	black = color.RGBA{0x00, 0x00, 0x00, 0xff}
	red   = color.RGBA{0xff, 0x00, 0x00, 0xff}
)

// Notice is an error screen, it stays up until Start is pressed when the
// console has input.
type Notice struct {
	Header  string
	Message string
	Footer  string

	// restart shows the color test once cleared
	restart bool

	armed   bool
	pressed bool
}

// Notice returns the notice currently shown, if any.
func (o *OS) Notice() *Notice {
	o.Lock()
	defer o.Unlock()

	if o.notice == nil {
		return nil
	}

	n := *o.notice

	return &n
}

// ShowProgramError shows a recoverable program error.
func (o *OS) ShowProgramError(msg string) {
	o.Lock()
	defer o.Unlock()

	o.programError(msg)
}

// ShowFatalProgramError shows a program crash and stops the program.
func (o *OS) ShowFatalProgramError(msg string) {
	o.Lock()
	defer o.Unlock()

	o.fatalProgramError(msg)
}

// ShowOSError shows a supervisor error.
func (o *OS) ShowOSError(msg string) {
	o.Lock()
	defer o.Unlock()

	o.osError(msg)
}

// ShowColorTest draws the color gradient test pattern.
func (o *OS) ShowColorTest() {
	o.Lock()
	defer o.Unlock()

	o.colorTest()
}

func (o *OS) programError(msg string) {
	o.show(Notice{Header: "! PROG ERROR !", Message: msg, Footer: "Press [START] to clear"})
}

func (o *OS) fatalProgramError(msg string) {
	o.show(Notice{Header: "! PROG CRASH !", Message: msg, Footer: "Press [START] to restart OS", restart: true})
	o.supervisor.Stop()
	o.setPath("")
}

func (o *OS) osError(msg string) {
	o.show(Notice{Header: "! OS ERROR !", Message: msg, Footer: "Press [START] to clear"})
}

func (o *OS) show(n Notice) {
	log.Printf("OS error: %s", n.Message)

	if d := o.conf.Display; d != nil {
		o.draw(d, &n)
	}

	if o.conf.Input != nil && n.Footer != "" {
		o.notice = &n
	}
}

func (o *OS) clearNotice() {
	n := o.notice
	o.notice = nil

	log.Printf("OS cleared %s", strings.Trim(n.Header, "! "))

	if n.restart && o.conf.Display != nil {
		o.colorTest()
	}
}

// wrap splits s into lines of at most width characters, breaking on spaces
// where possible.
func wrap(s string, width int) (lines []string) {
	if width < 1 {
		width = 1
	}

	for _, paragraph := range strings.Split(s, "\n") {
		line := ""

		for _, word := range strings.Fields(paragraph) {
			for len(word) > width {
				if line != "" {
					lines = append(lines, line)
					line = ""
				}

				lines = append(lines, word[:width])
				word = word[width:]
			}

			switch {
			case line == "":
				line = word
			case len(line)+1+len(word) <= width:
				line += " " + word
			default:
				lines = append(lines, line)
				line = word
			}
		}

		lines = append(lines, line)
	}

	return
}

func centered(width int, s string) int {
	x := (width - len(s)*charWidth) / 2

	if x < 0 {
		return 0
	}

	return x
}

func (o *OS) draw(d platform.Display, n *Notice) {
	w, h := d.Size()

	d.Rect(4, 4, w-8, h-8, black, true)
	d.Rect(6, 6, w-12, h-12, red, false)
	d.Text(centered(w, n.Header), 8, n.Header, red)

	end := h - 12

	if n.Footer != "" {
		end = h - 20
	}

	y := 8 + lineHeight

	for _, line := range wrap(n.Message, (w-16)/charWidth) {
		if y+lineHeight > end {
			break
		}

		d.Text(8, y, line, red)
		y += lineHeight
	}

	if n.Footer != "" {
		d.Text(centered(w, n.Footer), h-20, n.Footer, red)
	}

	if err := d.Show(); err != nil {
		log.Printf("OS display error, %v", err)
	}
}

// colorTest draws a red to green gradient fading out of blue.
func (o *OS) colorTest() {
	d := o.conf.Display
	w, h := d.Size()

	for y := 0; y < h; y++ {
		vr := float64(y) / float64(h)

		for x := 0; x < w; x++ {
			hr := float64(x) / float64(w)
			b := 255 * (1 - (hr+vr)*0.5)

			if b < 0 {
				b = 0
			}

			d.Pixel(x, y, color.RGBA{uint8(vr * 255), uint8(hr * 255), uint8(b), 0xff})
		}
	}

	if err := d.Show(); err != nil {
		log.Printf("OS display error, %v", err)
	}
}
