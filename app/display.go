package app

import (
	"image/color"

	"g8rtos/hal"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

var _ drivers.Displayer = (*fbDisplay)(nil)

// fbDisplay adapts a RGB565 hal.Framebuffer to the tinygo drivers API so
// tinyfont can render into it.
type fbDisplay struct {
	fb hal.Framebuffer
}

// newFBDisplay returns nil when the framebuffer has no pixel memory.
func newFBDisplay(fb hal.Framebuffer) *fbDisplay {
	if fb == nil || fb.Format() != hal.PixelFormatRGB565 || fb.Buffer() == nil {
		return nil
	}
	return &fbDisplay{fb: fb}
}

func (d *fbDisplay) Size() (x, y int16) {
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d *fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	ix, iy := int(x), int(y)
	if ix < 0 || iy < 0 || ix >= d.fb.Width() || iy >= d.fb.Height() {
		return
	}
	buf := d.fb.Buffer()
	off := iy*d.fb.StrideBytes() + ix*2
	if off+1 >= len(buf) {
		return
	}
	px := hal.RGB565(c.R, c.G, c.B)
	buf[off] = byte(px)
	buf[off+1] = byte(px >> 8)
}

func (d *fbDisplay) Display() error { return d.fb.Present() }

// FillRectangle clips to the screen. Empty rectangles are ignored.
func (d *fbDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	x0, y0 := max(int(x), 0), max(int(y), 0)
	x1 := min(int(x)+int(width), d.fb.Width())
	y1 := min(int(y)+int(height), d.fb.Height())
	if x0 >= x1 || y0 >= y1 {
		return nil
	}
	px := hal.RGB565(c.R, c.G, c.B)
	lo, hi := byte(px), byte(px>>8)
	buf := d.fb.Buffer()
	stride := d.fb.StrideBytes()
	for row := y0; row < y1; row++ {
		off := row*stride + x0*2
		for col := x0; col < x1; col++ {
			buf[off] = lo
			buf[off+1] = hi
			off += 2
		}
	}
	return nil
}

func (d *fbDisplay) Clear(c color.RGBA) {
	d.fb.ClearRGB(c.R, c.G, c.B)
}

func (d *fbDisplay) SetRotation(drivers.Rotation) error { return nil }

func (d *fbDisplay) SetScroll(line int16) {}

var font = &proggy.TinySZ8pt7b

const (
	fontHeight = 10
	// fontBaseline is the distance from the top of a text row to the
	// baseline tinyfont draws on.
	fontBaseline = 8
)

// text draws s with its top-left corner at (x, y).
func (d *fbDisplay) text(x, y int16, s string, c color.RGBA) {
	tinyfont.WriteLine(d, font, x, y+fontBaseline, s, c)
}

// centered draws s horizontally centered on row y.
func (d *fbDisplay) centered(y int16, s string, c color.RGBA) {
	_, w := tinyfont.LineWidth(font, s)
	sw, _ := d.Size()
	d.text((sw-int16(w))/2, y, s, c)
}
