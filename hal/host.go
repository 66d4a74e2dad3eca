//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// LCD geometry of the BoosterPack panel.
const (
	hostWidth  = 320
	hostHeight = 240
)

type hostHAL struct {
	logger *hostLogger
	led    *hostLED
	button *virtualPin
	gpio   GPIO
	fb     *hostFramebuffer
	kbd    *hostKeyboard
	t      *hostTime
	serial Serial
}

// HostOptions selects where the host HAL sends its output.
type HostOptions struct {
	// Log receives HAL log lines. Nil selects stdout.
	Log io.Writer
	// Serial is the UART line. Nil selects stdin/stdout.
	Serial io.ReadWriter
}

// New returns a host HAL implementation.
func New(opts HostOptions) HAL {
	return newHost(opts)
}

func newHost(opts HostOptions) *hostHAL {
	if opts.Log == nil {
		opts.Log = os.Stdout
	}
	logger := &hostLogger{w: opts.Log}
	led := &hostLED{}
	button := newVirtualPin(PinButton, GPIOCapInput|GPIOCapPullUp|GPIOCapInterrupt)

	pins := []GPIOPin{newLEDPin(PinLED, led), button}
	for i := 0; i < 4; i++ {
		pins = append(pins, newVirtualPin(fmt.Sprintf("GPIO%d", i+1), GPIOCapInput|GPIOCapOutput|GPIOCapPullUp|GPIOCapPullDown|GPIOCapInterrupt))
	}

	var serial Serial = &hostSerial{r: os.Stdin, w: os.Stdout}
	if opts.Serial != nil {
		serial = &hostSerial{r: opts.Serial, w: opts.Serial}
	}

	h := &hostHAL{
		logger: logger,
		led:    led,
		button: button,
		gpio:   newPinList(pins),
		fb:     newHostFramebuffer(hostWidth, hostHeight),
		t:      newHostTime(),
		serial: serial,
	}
	h.kbd = newHostKeyboard(h.pressButton)
	return h
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) LED() LED         { return h.led }
func (h *hostHAL) GPIO() GPIO       { return h.gpio }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Input() Input     { return hostInput{kbd: h.kbd} }
func (h *hostHAL) Time() Time       { return h.t }
func (h *hostHAL) Serial() Serial   { return h.serial }

// pressButton drives the button pin. The button is active low.
func (h *hostHAL) pressButton(down bool) {
	h.button.drive(!down)
}

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

type hostLED struct {
	mu sync.Mutex
	on bool
}

func (l *hostLED) High() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = true
}

func (l *hostLED) Low() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = false
}

func (l *hostLED) isOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}
