// Package app wires the kernel to a HAL and runs the paddle demo and the
// serial monitor on top of it.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"g8rtos/config"
	"g8rtos/hal"
	"g8rtos/internal/buildinfo"
	"g8rtos/kernel"
)

const (
	// maxTickBurst bounds how many missed ticks are replayed at once after
	// the tick source stalls.
	maxTickBurst = 100
	rxQueueSize  = 256
	uartPriority = 5
)

type Config struct {
	Kernel kernel.Config
	Demo   config.Demo
	Logger zerolog.Logger
}

// System is a configured kernel bound to a HAL.
type System struct {
	k    *kernel.Kernel
	h    hal.HAL
	log  zerolog.Logger
	disp *fbDisplay
	game *game
	mon  *monitor
	rx   *rxQueue

	// lines latches interrupt requests raised by pin callbacks. The tick
	// pump forwards them to the kernel.
	lines atomic.Uint64
}

// NewSystem builds the kernel and installs the demo. Nothing runs until Run.
func NewSystem(h hal.HAL, cfg Config) (*System, error) {
	s := &System{
		h:   h,
		log: cfg.Logger,
		rx:  newRxQueue(rxQueueSize),
	}
	kcfg := cfg.Kernel
	kcfg.Logger = cfg.Logger.With().Str("component", "kernel").Logger()
	kcfg.PanicHandler = s.onPanic
	s.k = kernel.New(kcfg)

	if d := h.Display(); d != nil {
		s.disp = newFBDisplay(d.Framebuffer())
	}
	led := hal.FindPin(h.GPIO(), hal.PinLED)
	s.game = newGame(cfg.Logger.With().Str("component", "game").Logger(), cfg.Demo, s.disp, led)
	s.game.inPanic = s.k.InPanicMode
	if err := s.game.install(s.k); err != nil {
		return nil, fmt.Errorf("install game: %w", err)
	}

	if cfg.Demo.Monitor && h.Serial() != nil {
		s.mon = newMonitor(s.k, s.rx, h.Serial(), cfg.Logger.With().Str("component", "monitor").Logger())
		if err := s.k.InitFIFO(consoleFIFO); err != nil {
			return nil, fmt.Errorf("console fifo: %w", err)
		}
		if err := s.k.AddAperiodicEvent(consoleRx(s.rx), uartPriority, kernel.IRQEUSCIA0); err != nil {
			return nil, fmt.Errorf("uart interrupt: %w", err)
		}
		if _, err := s.k.AddThread(s.mon.thread, prioMonitor, "monitor"); err != nil {
			return nil, fmt.Errorf("monitor thread: %w", err)
		}
	}

	if err := s.bindButton(); err != nil {
		s.log.Warn().Err(err).Msg("button unavailable")
	}
	return s, nil
}

// Kernel returns the underlying kernel.
func (s *System) Kernel() *kernel.Kernel { return s.k }

// bindButton routes falling edges of the active-low button pin to PORT4.
func (s *System) bindButton() error {
	pin := hal.FindPin(s.h.GPIO(), hal.PinButton)
	if pin == nil {
		return errors.New("no button pin")
	}
	if err := pin.Configure(hal.GPIOModeInput, hal.GPIOPullUp); err != nil {
		return err
	}
	return pin.SetInterrupt(hal.GPIOEdgeFalling, func(hal.GPIOPin) {
		s.latch(kernel.IRQPort4)
	})
}

// latch records irq for the next tick. Safe from a hardware interrupt.
func (s *System) latch(irq kernel.IRQ) {
	s.lines.Or(1 << irq)
}

// Run launches the kernel and the pumps that feed it ticks, input and
// serial bytes. It returns when ctx is done or the kernel halts.
func (s *System) Run(ctx context.Context) error {
	s.log.Info().Str("version", buildinfo.Describe()).Msg("boot")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.k.Launch(gctx) })
	g.Go(func() error { return s.pumpTicks(gctx) })
	g.Go(func() error { return s.pumpKeys(gctx) })
	if s.mon != nil {
		// Serial reads cannot be interrupted, so the reader is left detached.
		go s.readSerial()
	}
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error().Err(err).Msg("kernel halted")
	}
	return err
}

// pumpTicks turns the HAL tick stream into SysTick interrupts and forwards
// latched interrupt lines.
func (s *System) pumpTicks(ctx context.Context) error {
	t := s.h.Time()
	if t == nil || t.Ticks() == nil {
		s.log.Warn().Msg("no tick source, sleeping threads will not wake")
		return nil
	}
	ticks := t.Ticks()
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.k.Done():
			return nil
		case seq, ok := <-ticks:
			if !ok {
				return nil
			}
			n := uint64(1)
			if last != 0 && seq > last {
				n = min(seq-last, maxTickBurst)
			}
			last = seq
			for i := uint64(0); i < n; i++ {
				s.k.Tick()
			}
			s.forwardLines()
		}
	}
}

func (s *System) forwardLines() {
	if s.mon != nil && s.rx.len() > 0 {
		s.latch(kernel.IRQEUSCIA0)
	}
	lines := s.lines.Swap(0)
	for irq := kernel.IRQMin; lines != 0; irq++ {
		if lines&1 != 0 {
			if err := s.k.RaiseIRQ(irq); err != nil {
				s.log.Warn().Err(err).Msg("raise irq")
			}
		}
		lines >>= 1
	}
}

// pumpKeys maps the arrow keys onto the joystick axis.
func (s *System) pumpKeys(ctx context.Context) error {
	in := s.h.Input()
	if in == nil || in.Keyboard() == nil {
		return nil
	}
	events := in.Keyboard().Events()
	if events == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.k.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.joystick(ev)
		}
	}
}

func (s *System) joystick(ev hal.KeyEvent) {
	var dir int32
	switch {
	case ev.Code == hal.KeyLeft:
		dir = -1
	case ev.Code == hal.KeyRight:
		dir = 1
	case ev.Code == hal.KeySpace && ev.Press:
		s.latch(kernel.IRQPort4)
		return
	default:
		return
	}
	if ev.Press {
		s.game.joystick.Store(dir)
		return
	}
	s.game.joystick.CompareAndSwap(dir, 0)
}

func (s *System) readSerial() {
	buf := make([]byte, 64)
	for {
		n, err := s.h.Serial().Read(buf)
		if n > 0 {
			s.rx.push(buf[:n])
			s.latch(kernel.IRQEUSCIA0)
		}
		if err != nil {
			s.log.Debug().Err(err).Msg("serial reader stopped")
			return
		}
	}
}

// Start builds and runs the system in the background. The returned step
// function reports a halt to the host runner; after a kernel panic it
// keeps returning nil so the panic screen stays up.
func Start(ctx context.Context, h hal.HAL, cfg Config) func() error {
	s, err := NewSystem(h, cfg)
	if err != nil {
		return func() error { return err }
	}
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	var (
		done  bool
		final error
	)
	return func() error {
		if !done {
			select {
			case final = <-errc:
				done = true
			default:
				return nil
			}
		}
		if s.k.InPanicMode() {
			return nil
		}
		return final
	}
}

// Run builds and runs the system, then blocks forever. It is the firmware
// entry point.
func Run(h hal.HAL, cfg Config) {
	s, err := NewSystem(h, cfg)
	if err != nil {
		cfg.Logger.Error().Err(err).Msg("boot failed")
		select {}
	}
	_ = s.Run(context.Background())
	select {}
}
