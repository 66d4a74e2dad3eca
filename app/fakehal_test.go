package app

import (
	"bytes"
	"io"
	"sync"

	"g8rtos/hal"
)

type fakeFramebuffer struct {
	w, h     int
	buf      []byte
	mu       sync.Mutex
	presents int
}

func newFakeFramebuffer(w, h int) *fakeFramebuffer {
	return &fakeFramebuffer{w: w, h: h, buf: make([]byte, w*h*2)}
}

func (f *fakeFramebuffer) Width() int              { return f.w }
func (f *fakeFramebuffer) Height() int             { return f.h }
func (f *fakeFramebuffer) Format() hal.PixelFormat { return hal.PixelFormatRGB565 }
func (f *fakeFramebuffer) StrideBytes() int        { return f.w * 2 }
func (f *fakeFramebuffer) Buffer() []byte          { return f.buf }
func (f *fakeFramebuffer) ClearRGB(r, g, b uint8) {
	px := hal.RGB565(r, g, b)
	for i := 0; i+1 < len(f.buf); i += 2 {
		f.buf[i], f.buf[i+1] = byte(px), byte(px>>8)
	}
}

func (f *fakeFramebuffer) Present() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presents++
	return nil
}

func (f *fakeFramebuffer) presented() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.presents
}

func (f *fakeFramebuffer) pixel(x, y int) uint16 {
	off := y*f.StrideBytes() + x*2
	return uint16(f.buf[off]) | uint16(f.buf[off+1])<<8
}

// fakePin is an interrupt-capable input the test fires by hand.
type fakePin struct {
	name string
	mu   sync.Mutex
	fn   func(hal.GPIOPin)
	edge hal.GPIOEdge
}

func (p *fakePin) Name() string        { return p.name }
func (p *fakePin) Caps() hal.GPIOCaps  { return hal.GPIOCapInput | hal.GPIOCapInterrupt }
func (p *fakePin) Read() (bool, error) { return true, nil }
func (p *fakePin) Write(bool) error    { return hal.ErrNotImplemented }
func (p *fakePin) Configure(hal.GPIOMode, hal.GPIOPull) error {
	return nil
}

func (p *fakePin) SetInterrupt(edge hal.GPIOEdge, fn func(hal.GPIOPin)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edge, p.fn = edge, fn
	return nil
}

func (p *fakePin) fire() {
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

type fakeLED struct{}

func (fakeLED) High() {}
func (fakeLED) Low()  {}

type fakeLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *fakeLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *fakeLogger) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

type fakeGPIO []hal.GPIOPin

func (g fakeGPIO) PinCount() int { return len(g) }

func (g fakeGPIO) Pin(id int) hal.GPIOPin {
	if id < 0 || id >= len(g) {
		return nil
	}
	return g[id]
}

type fakeKeyboard chan hal.KeyEvent

func (k fakeKeyboard) Events() <-chan hal.KeyEvent { return k }

type fakeTime chan uint64

func (t fakeTime) Ticks() <-chan uint64 { return t }

// syncBuffer collects serial output written by the monitor thread.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeSerial struct {
	io.Reader
	io.Writer
}

type fakeHAL struct {
	log    *fakeLogger
	fb     *fakeFramebuffer
	button *fakePin
	gpio   fakeGPIO
	kbd    fakeKeyboard
	ticks  fakeTime
	serial hal.Serial
	rxw    *io.PipeWriter
	tx     *syncBuffer
}

func newFakeHAL() *fakeHAL {
	r, w := io.Pipe()
	tx := &syncBuffer{}
	button := &fakePin{name: hal.PinButton}
	return &fakeHAL{
		log:    &fakeLogger{},
		fb:     newFakeFramebuffer(320, 240),
		button: button,
		gpio:   fakeGPIO{button},
		kbd:    make(fakeKeyboard, 8),
		ticks:  make(fakeTime),
		serial: fakeSerial{Reader: r, Writer: tx},
		rxw:    w,
		tx:     tx,
	}
}

func (h *fakeHAL) Logger() hal.Logger   { return h.log }
func (h *fakeHAL) LED() hal.LED         { return fakeLED{} }
func (h *fakeHAL) GPIO() hal.GPIO       { return h.gpio }
func (h *fakeHAL) Display() hal.Display { return fakeDisplay{h.fb} }
func (h *fakeHAL) Input() hal.Input     { return fakeInput{h.kbd} }
func (h *fakeHAL) Time() hal.Time       { return h.ticks }
func (h *fakeHAL) Serial() hal.Serial   { return h.serial }

type fakeDisplay struct{ fb *fakeFramebuffer }

func (d fakeDisplay) Framebuffer() hal.Framebuffer { return d.fb }

type fakeInput struct{ kbd fakeKeyboard }

func (in fakeInput) Keyboard() hal.Keyboard { return in.kbd }
