//go:build !tinygo && cgo

package hal

import (
	"context"
	"image"
	"image/color"
	"time"

	"g8rtos/internal/buildinfo"

	"github.com/hajimehoshi/ebiten/v2"
)

// RunWindow starts a desktop window that displays the framebuffer, shows the
// status LED and forwards keyboard input. It blocks until the window closes
// or ctx is done.
func RunWindow(ctx context.Context, newApp func(context.Context, HAL) func() error, opts HostOptions) error {
	h := newHost(opts)
	h.t.advance(time.Now())
	step := newApp(ctx, h)

	g := &hostGame{ctx: ctx, h: h, step: step}
	ebiten.SetWindowTitle("G8RTOS (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(h.fb.width*2, h.fb.height*2)
	ebiten.SetTPS(60)
	return ebiten.RunGame(g)
}

type hostGame struct {
	ctx     context.Context
	h       *hostHAL
	fbImg   *ebiten.Image
	rgba    []byte
	scratch []byte
	step    func() error
}

func (g *hostGame) Update() error {
	if g.ctx.Err() != nil {
		return ebiten.Termination
	}
	g.h.kbd.poll()
	g.h.t.advance(time.Now())
	if g.step != nil {
		if err := g.step(); err != nil {
			return err
		}
	}
	return nil
}

var ledColor = color.RGBA{R: 0xFF, G: 0x30, B: 0x30, A: 0xFF}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.fbImg == nil {
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
		g.scratch = make([]byte, len(fb.buf))
		g.rgba = make([]byte, fb.width*fb.height*4)
	}

	fb.snapshotRGB565(g.scratch)
	expandRGB565(g.rgba, g.scratch)
	g.fbImg.WritePixels(g.rgba)
	screen.DrawImage(g.fbImg, nil)

	if g.h.led.isOn() {
		r := image.Rect(fb.width-8, 2, fb.width-2, 8)
		screen.SubImage(r).(*ebiten.Image).Fill(ledColor)
	}
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
