package app

import (
	"errors"
	"fmt"
	"image/color"
	"sync/atomic"

	"github.com/rs/zerolog"

	"g8rtos/config"
	"g8rtos/hal"
	"g8rtos/kernel"
)

// FIFO channels used by the system.
const (
	joystickFIFO = 0
	consoleFIFO  = 1
)

// Thread priorities. Lower is more urgent.
const (
	prioStartup  = 0
	prioPaddle   = 1
	prioJoystick = 2
	prioBall     = 2
	prioRender   = 3
	prioMonitor  = 4
	prioIdle     = kernel.MaxPriority
)

const (
	joystickPeriodMS = 10
	ballPeriodMS     = 20
)

var (
	colorBackground = color.RGBA{A: 0xFF}
	colorWall       = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}
	colorPaddle     = color.RGBA{R: 0x20, G: 0x60, B: 0xFF, A: 0xFF}
	colorBall       = color.RGBA{R: 0xFF, G: 0xD0, B: 0x20, A: 0xFF}
	colorText       = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
)

// game is the paddle demo: a startup thread waits for the button, then
// spawns the joystick, paddle, ball and render threads.
type game struct {
	log  zerolog.Logger
	cfg  config.Demo
	disp *fbDisplay
	led  hal.GPIOPin

	// joystick is the horizontal stick position, -1, 0 or 1. The input
	// pump writes it; the joystick thread samples it like an ADC.
	joystick atomic.Int32
	started  atomic.Bool
	paused   atomic.Bool
	// inPanic reports a kernel halt; the renderer stops presenting.
	inPanic func() bool

	// ledOn is only touched by the heartbeat handler.
	ledOn bool

	state, screen, start, frame kernel.Semaphore

	court court
}

func newGame(log zerolog.Logger, cfg config.Demo, disp *fbDisplay, led hal.GPIOPin) *game {
	return &game{
		log:     log,
		cfg:     cfg,
		disp:    disp,
		led:     led,
		inPanic: func() bool { return false },
		court:   newCourt(),
	}
}

// install registers the semaphores, FIFO, threads and events of the game.
func (g *game) install(k *kernel.Kernel) error {
	var err error
	for _, s := range []struct {
		sem   *kernel.Semaphore
		value int32
	}{
		{&g.state, 1},
		{&g.screen, 1},
		{&g.start, 0},
		{&g.frame, 0},
	} {
		if *s.sem, err = k.NewSemaphore(s.value); err != nil {
			return fmt.Errorf("game semaphore: %w", err)
		}
	}
	if err := k.InitFIFO(joystickFIFO); err != nil {
		return fmt.Errorf("joystick fifo: %w", err)
	}

	if _, err := k.AddThread(g.idle, prioIdle, "idle"); err != nil {
		return err
	}
	if _, err := k.AddThread(g.startup, prioStartup, "startup"); err != nil {
		return err
	}

	if err := k.AddPeriodicEvent(g.heartbeat, g.cfg.HeartbeatPeriod); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if err := k.AddPeriodicEvent(g.frameTick, g.cfg.FramePeriod); err != nil {
		return fmt.Errorf("frame pacing: %w", err)
	}
	if err := k.AddAperiodicEvent(g.button, g.cfg.ButtonPriority, kernel.IRQPort4); err != nil {
		return fmt.Errorf("button: %w", err)
	}
	return nil
}

func (g *game) idle(c *kernel.Context) {
	for {
		c.Idle()
	}
}

func (g *game) startup(c *kernel.Context) {
	c.Wait(g.screen)
	g.drawTitle()
	c.Signal(g.screen)

	c.Wait(g.start)
	g.started.Store(true)
	g.log.Info().Stringer("thread", c.ThreadID()).Msg("game started")

	for _, t := range []struct {
		fn   kernel.ThreadFunc
		prio uint8
		name string
	}{
		{g.joystickThread, prioJoystick, "joystick"},
		{g.paddleThread, prioPaddle, "paddle"},
		{g.ballThread, prioBall, "ball"},
		{g.renderThread, prioRender, "render"},
	} {
		if _, err := c.AddThread(t.fn, t.prio, t.name); err != nil {
			g.log.Error().Err(err).Str("name", t.name).Msg("add thread")
		}
	}
	c.KillSelf()
}

// joystickThread samples the stick and queues paddle displacements.
func (g *game) joystickThread(c *kernel.Context) {
	for {
		if x := g.joystick.Load(); x != 0 && !g.paused.Load() {
			d := int32(x) * paddleStep
			if err := c.WriteFIFO(joystickFIFO, uint32(d)); errors.Is(err, kernel.ErrBufferFull) {
				g.log.Debug().Msg("joystick fifo full")
			}
		}
		c.Sleep(joystickPeriodMS)
	}
}

func (g *game) paddleThread(c *kernel.Context) {
	for {
		v, err := c.ReadFIFO(joystickFIFO)
		if err != nil {
			g.log.Error().Err(err).Msg("joystick fifo")
			c.KillSelf()
		}
		c.Wait(g.state)
		g.court.movePaddle(int16(int32(v)))
		c.Signal(g.state)
	}
}

func (g *game) ballThread(c *kernel.Context) {
	for {
		c.Sleep(ballPeriodMS)
		if g.paused.Load() {
			continue
		}
		c.Wait(g.state)
		r := g.court.stepBall()
		misses := g.court.misses
		c.Signal(g.state)
		if r == rallyMiss {
			g.log.Info().Uint16("misses", misses).Uint64("tick", c.Now()).Msg("ball lost")
		}
	}
}

// renderThread redraws the court once per frame event.
func (g *game) renderThread(c *kernel.Context) {
	for {
		c.Wait(g.frame)
		c.Wait(g.state)
		snap := g.court
		c.Signal(g.state)

		c.Wait(g.screen)
		g.drawCourt(&snap)
		c.Signal(g.screen)
	}
}

func (g *game) heartbeat(c *kernel.Context) {
	g.ledOn = !g.ledOn
	if g.led != nil {
		g.led.Write(g.ledOn)
	}
}

func (g *game) frameTick(c *kernel.Context) {
	if g.started.Load() {
		c.Signal(g.frame)
	}
}

// button starts the game on the first press and toggles pause afterwards.
func (g *game) button(c *kernel.Context) {
	if !g.started.Load() {
		c.Signal(g.start)
		return
	}
	g.paused.Store(!g.paused.Load())
}

func (g *game) drawTitle() {
	d := g.disp
	if d == nil {
		return
	}
	d.Clear(colorBackground)
	d.centered(80, "G8RTOS", colorText)
	d.centered(100, "PADDLE", colorPaddle)
	d.centered(140, "press the button to start", colorText)
	g.present()
}

func (g *game) drawCourt(ct *court) {
	d := g.disp
	if d == nil {
		return
	}
	d.Clear(colorBackground)
	d.FillRectangle(arenaMinX-2, arenaMinY, 2, arenaMaxY-arenaMinY, colorWall)
	d.FillRectangle(arenaMaxX, arenaMinY, 2, arenaMaxY-arenaMinY, colorWall)
	d.FillRectangle(arenaMinX-2, arenaMinY-2, arenaMaxX-arenaMinX+4, 2, colorWall)
	d.FillRectangle(ct.paddle-paddleLenD2, paddleY, 2*paddleLenD2, paddleWidth, colorPaddle)
	d.FillRectangle(ct.ballX, ct.ballY, ballSize, ballSize, colorBall)

	d.text(arenaMinX, 2, fmt.Sprintf("SCORE %d", ct.score), colorText)
	d.text(arenaMaxX-80, 2, fmt.Sprintf("BEST %d", ct.best), colorText)
	if g.paused.Load() {
		d.centered(110, "PAUSED", colorText)
	}
	g.present()
}

func (g *game) present() {
	if g.inPanic() {
		return
	}
	if err := g.disp.Display(); err != nil && !errors.Is(err, hal.ErrNotImplemented) {
		g.log.Warn().Err(err).Msg("present")
	}
}
