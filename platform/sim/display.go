// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sim

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	DisplayWidth  = 240
	DisplayHeight = 240
)

// Display is a framebuffer backed screen.
type Display struct {
	sync.Mutex

	back  *image.RGBA
	front *image.RGBA
	lines []string
	shown []string

	// Frames counts calls to Show.
	Frames int
}

// NewDisplay returns a blank screen.
func NewDisplay() *Display {
	r := image.Rect(0, 0, DisplayWidth, DisplayHeight)

	return &Display{
		back:  image.NewRGBA(r),
		front: image.NewRGBA(r),
	}
}

func (d *Display) Size() (int, int) {
	return DisplayWidth, DisplayHeight
}

func (d *Display) Fill(c color.Color) {
	d.Lock()
	defer d.Unlock()

	draw.Draw(d.back, d.back.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	d.lines = nil
}

func (d *Display) Rect(x, y, width, height int, c color.Color, filled bool) {
	d.Lock()
	defer d.Unlock()

	r := image.Rect(x, y, x+width, y+height)

	if filled {
		draw.Draw(d.back, r, image.NewUniform(c), image.Point{}, draw.Src)
		return
	}

	for i := r.Min.X; i < r.Max.X; i++ {
		d.back.Set(i, r.Min.Y, c)
		d.back.Set(i, r.Max.Y-1, c)
	}

	for j := r.Min.Y; j < r.Max.Y; j++ {
		d.back.Set(r.Min.X, j, c)
		d.back.Set(r.Max.X-1, j, c)
	}
}

func (d *Display) Text(x, y int, s string, c color.Color) {
	d.Lock()
	defer d.Unlock()

	face := basicfont.Face7x13

	drawer := &font.Drawer{
		Dst:  d.back,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}

	drawer.DrawString(s)
	d.lines = append(d.lines, s)
}

func (d *Display) Pixel(x, y int, c color.Color) {
	d.Lock()
	defer d.Unlock()

	d.back.Set(x, y, c)
}

// Show presents the back buffer.
func (d *Display) Show() error {
	d.Lock()
	defer d.Unlock()

	copy(d.front.Pix, d.back.Pix)
	d.shown, d.lines = d.lines, nil
	d.Frames++

	return nil
}

// Lines returns the text drawn for the presented frame.
func (d *Display) Lines() []string {
	d.Lock()
	defer d.Unlock()

	return append([]string{}, d.shown...)
}

// Snapshot returns a copy of the presented frame.
func (d *Display) Snapshot() *image.RGBA {
	d.Lock()
	defer d.Unlock()

	img := image.NewRGBA(d.front.Bounds())
	copy(img.Pix, d.front.Pix)

	return img
}

// TextWidth returns the width in pixels of s.
func TextWidth(s string) int {
	return font.MeasureString(basicfont.Face7x13, s).Ceil()
}
