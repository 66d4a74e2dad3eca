package hal

import (
	"fmt"
	"sync"
)

// GPIOMode selects whether a pin is an input or output.
type GPIOMode uint8

const (
	GPIOModeInput GPIOMode = iota
	GPIOModeOutput
)

// GPIOPull selects the pull resistor configuration.
type GPIOPull uint8

const (
	GPIOPullNone GPIOPull = iota
	GPIOPullUp
	GPIOPullDown
)

// GPIOCaps declares what operations a pin supports.
type GPIOCaps uint8

const (
	GPIOCapInput GPIOCaps = 1 << iota
	GPIOCapOutput
	GPIOCapPullUp
	GPIOCapPullDown
	GPIOCapInterrupt
)

// GPIOEdge selects which transitions raise a pin interrupt.
type GPIOEdge uint8

const (
	GPIOEdgeNone    GPIOEdge = 0
	GPIOEdgeRising  GPIOEdge = 1 << 0
	GPIOEdgeFalling GPIOEdge = 1 << 1
	GPIOEdgeBoth             = GPIOEdgeRising | GPIOEdgeFalling
)

// GPIO provides access to general-purpose IO pins.
type GPIO interface {
	PinCount() int
	Pin(id int) GPIOPin
}

// GPIOPin is a single digital IO pin.
type GPIOPin interface {
	Name() string
	Caps() GPIOCaps
	Configure(mode GPIOMode, pull GPIOPull) error
	Read() (level bool, err error)
	Write(level bool) error
	// SetInterrupt calls fn from the edge detector on every matching
	// transition. GPIOEdgeNone or a nil fn disables the interrupt. fn must
	// not block.
	SetInterrupt(edge GPIOEdge, fn func(GPIOPin)) error
}

// FindPin returns the pin called name, or nil.
func FindPin(g GPIO, name string) GPIOPin {
	if g == nil {
		return nil
	}
	for i := 0; i < g.PinCount(); i++ {
		if p := g.Pin(i); p != nil && p.Name() == name {
			return p
		}
	}
	return nil
}

type nullGPIO struct{}

func (nullGPIO) PinCount() int      { return 0 }
func (nullGPIO) Pin(id int) GPIOPin { return nil }

type pinList struct {
	pins []GPIOPin
}

func newPinList(pins []GPIOPin) GPIO {
	var out []GPIOPin
	for _, p := range pins {
		if p != nil {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nullGPIO{}
	}
	return &pinList{pins: out}
}

func (g *pinList) PinCount() int { return len(g.pins) }

func (g *pinList) Pin(id int) GPIOPin {
	if id < 0 || id >= len(g.pins) {
		return nil
	}
	return g.pins[id]
}

// virtualPin is a pin whose input level is driven by host code, such as the
// keyboard standing in for a push button.
type virtualPin struct {
	mu    sync.Mutex
	name  string
	caps  GPIOCaps
	mode  GPIOMode
	pull  GPIOPull
	level bool

	edge  GPIOEdge
	onIRQ func(GPIOPin)
}

func newVirtualPin(name string, caps GPIOCaps) *virtualPin {
	return &virtualPin{
		name: name,
		caps: caps,
		mode: GPIOModeInput,
		pull: GPIOPullNone,
	}
}

func (p *virtualPin) Name() string   { return p.name }
func (p *virtualPin) Caps() GPIOCaps { return p.caps }

func (p *virtualPin) Configure(mode GPIOMode, pull GPIOPull) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch mode {
	case GPIOModeInput:
		if p.caps&GPIOCapInput == 0 {
			return fmt.Errorf("gpio: pin %s: input unsupported", p.name)
		}
	case GPIOModeOutput:
		if p.caps&GPIOCapOutput == 0 {
			return fmt.Errorf("gpio: pin %s: output unsupported", p.name)
		}
	default:
		return fmt.Errorf("gpio: pin %s: invalid mode", p.name)
	}

	switch pull {
	case GPIOPullNone:
	case GPIOPullUp:
		if p.caps&GPIOCapPullUp == 0 {
			return fmt.Errorf("gpio: pin %s: pull-up unsupported", p.name)
		}
		if mode == GPIOModeInput {
			p.level = true
		}
	case GPIOPullDown:
		if p.caps&GPIOCapPullDown == 0 {
			return fmt.Errorf("gpio: pin %s: pull-down unsupported", p.name)
		}
		if mode == GPIOModeInput {
			p.level = false
		}
	default:
		return fmt.Errorf("gpio: pin %s: invalid pull", p.name)
	}

	p.mode = mode
	p.pull = pull
	return nil
}

func (p *virtualPin) Read() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level, nil
}

func (p *virtualPin) Write(level bool) error {
	p.mu.Lock()
	if p.mode != GPIOModeOutput {
		p.mu.Unlock()
		return fmt.Errorf("gpio: pin %s: not in output mode", p.name)
	}
	fn := p.transition(level)
	p.mu.Unlock()
	if fn != nil {
		fn(p)
	}
	return nil
}

func (p *virtualPin) SetInterrupt(edge GPIOEdge, fn func(GPIOPin)) error {
	if p.caps&GPIOCapInterrupt == 0 && edge != GPIOEdgeNone {
		return fmt.Errorf("gpio: pin %s: interrupts unsupported", p.name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if fn == nil {
		edge = GPIOEdgeNone
	}
	p.edge = edge
	p.onIRQ = fn
	return nil
}

// drive sets the level seen on an input pin and runs the edge handler if
// the transition matches.
func (p *virtualPin) drive(level bool) {
	p.mu.Lock()
	if p.mode != GPIOModeInput {
		p.mu.Unlock()
		return
	}
	fn := p.transition(level)
	p.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (p *virtualPin) transition(level bool) func(GPIOPin) {
	old := p.level
	p.level = level
	switch {
	case !old && level && p.edge&GPIOEdgeRising != 0:
		return p.onIRQ
	case old && !level && p.edge&GPIOEdgeFalling != 0:
		return p.onIRQ
	}
	return nil
}

type ledPin struct {
	mu    sync.Mutex
	led   LED
	name  string
	level bool
}

func newLEDPin(name string, led LED) GPIOPin {
	if led == nil {
		return nil
	}
	return &ledPin{led: led, name: name}
}

func (p *ledPin) Name() string   { return p.name }
func (p *ledPin) Caps() GPIOCaps { return GPIOCapOutput }

func (p *ledPin) Configure(mode GPIOMode, pull GPIOPull) error {
	if mode != GPIOModeOutput {
		return fmt.Errorf("gpio: pin %s: only output supported", p.name)
	}
	if pull != GPIOPullNone {
		return fmt.Errorf("gpio: pin %s: pull unsupported", p.name)
	}
	return nil
}

func (p *ledPin) Read() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level, nil
}

func (p *ledPin) Write(level bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
	if level {
		p.led.High()
	} else {
		p.led.Low()
	}
	return nil
}

func (p *ledPin) SetInterrupt(edge GPIOEdge, fn func(GPIOPin)) error {
	if edge != GPIOEdgeNone {
		return fmt.Errorf("gpio: pin %s: interrupts unsupported", p.name)
	}
	return nil
}
