package app

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/shlex"
	"github.com/rs/zerolog"

	"g8rtos/internal/buildinfo"
	"g8rtos/kernel"
)

const maxLineLen = 128

// monitor is the serial console. Bytes arrive through the console FIFO,
// filled by the UART receive interrupt.
type monitor struct {
	k    *kernel.Kernel
	rx   *rxQueue
	out  io.Writer
	log  zerolog.Logger
	line []byte
}

// A command runs on the monitor thread's context. Host-side callers pass nil.
type command struct {
	usage string
	run   func(m *monitor, c *kernel.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":   {"help", (*monitor).help},
		"ps":     {"ps", (*monitor).ps},
		"kill":   {"kill <id>", (*monitor).kill},
		"sem":    {"sem", (*monitor).sem},
		"fifo":   {"fifo", (*monitor).fifo},
		"uptime": {"uptime", (*monitor).uptime},
		"button": {"button", (*monitor).button},
		"version": {"version", func(m *monitor, _ *kernel.Context, _ []string) error {
			m.printf("g8rtos %s\n", buildinfo.Describe())
			return nil
		}},
	}
}

func newMonitor(k *kernel.Kernel, rx *rxQueue, out io.Writer, log zerolog.Logger) *monitor {
	return &monitor{k: k, rx: rx, out: out, log: log, line: make([]byte, 0, maxLineLen)}
}

func (m *monitor) thread(c *kernel.Context) {
	m.printf("\ng8rtos monitor, type help\n")
	m.prompt()
	for {
		v, err := c.ReadFIFO(consoleFIFO)
		if err != nil {
			m.log.Error().Err(err).Msg("console fifo")
			c.KillSelf()
		}
		m.feed(c, byte(v))
	}
}

// feed handles one received byte of line input.
func (m *monitor) feed(c *kernel.Context, b byte) {
	switch b {
	case '\r', '\n':
		if len(m.line) > 0 {
			m.exec(c, string(m.line))
			m.line = m.line[:0]
		}
		m.prompt()
	case 0x08, 0x7f:
		if n := len(m.line); n > 0 {
			m.line = m.line[:n-1]
		}
	default:
		if b >= 0x20 && len(m.line) < maxLineLen {
			m.line = append(m.line, b)
		}
	}
}

func (m *monitor) exec(c *kernel.Context, line string) {
	args, err := shlex.Split(line)
	if err != nil {
		m.printf("error: %v\n", err)
		return
	}
	if len(args) == 0 {
		return
	}
	cmd, ok := commands[args[0]]
	if !ok {
		m.printf("unknown command %q, type help\n", args[0])
		return
	}
	m.log.Debug().Strs("args", args).Msg("monitor command")
	if err := cmd.run(m, c, args[1:]); err != nil {
		m.printf("error: %v\n", err)
	}
}

func (m *monitor) prompt() { m.printf("> ") }

func (m *monitor) printf(format string, args ...any) {
	fmt.Fprintf(m.out, format, args...)
}

func (m *monitor) help(_ *kernel.Context, _ []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m.printf("  %s\n", commands[name].usage)
	}
	return nil
}

func (m *monitor) ps(_ *kernel.Context, _ []string) error {
	m.printf("%-8s %-10s %4s  %s\n", "ID", "NAME", "PRIO", "STATE")
	for _, t := range m.k.Threads() {
		state := t.State.String()
		switch t.State {
		case kernel.ThreadBlocked:
			state = fmt.Sprintf("blocked on sem %d", t.BlockedOn)
		case kernel.ThreadSleeping:
			state = fmt.Sprintf("sleeping until %d", t.SleepUntil)
		}
		m.printf("%-8s %-10s %4d  %s\n", t.ID, t.Name, t.Priority, state)
	}
	return nil
}

// kill stops a thread. Killing the monitor's own thread does not return.
func (m *monitor) kill(c *kernel.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", commands["kill"].usage)
	}
	id, err := kernel.ParseThreadID(args[0])
	if err != nil {
		return err
	}
	if c == nil {
		err = m.k.KillThread(id)
	} else {
		if id == c.ThreadID() {
			m.log.Info().Stringer("id", id).Msg("monitor killing itself")
			m.printf("monitor exiting\n")
		}
		err = c.KillThread(id)
	}
	if err != nil {
		return err
	}
	m.log.Info().Stringer("id", id).Msg("thread killed from console")
	m.printf("killed %s\n", id)
	return nil
}

func (m *monitor) sem(_ *kernel.Context, _ []string) error {
	m.printf("%-4s %6s %7s\n", "SEM", "VALUE", "WAITERS")
	for _, s := range m.k.Semaphores() {
		m.printf("%-4d %6d %7d\n", s.Handle, s.Value, s.Waiters)
	}
	return nil
}

func (m *monitor) fifo(_ *kernel.Context, _ []string) error {
	m.printf("%-4s %9s %6s\n", "FIFO", "LEN/DEPTH", "LOST")
	for _, f := range m.k.FIFOStats() {
		if !f.Ready {
			continue
		}
		m.printf("%-4d %9s %6d\n", f.Index, fmt.Sprintf("%d/%d", f.Len, f.Depth), f.Lost)
	}
	if m.rx != nil {
		m.printf("uart rx: %d queued, %d dropped\n", m.rx.len(), m.rx.drops())
	}
	return nil
}

func (m *monitor) uptime(c *kernel.Context, _ []string) error {
	var ticks uint64
	if c != nil {
		ticks = c.Now()
	} else {
		ticks = m.k.Now()
	}
	m.printf("%d ticks (%s)\n", ticks, time.Duration(ticks)*time.Millisecond)
	return nil
}

// button raises the button interrupt as if the pin had fired.
func (m *monitor) button(_ *kernel.Context, _ []string) error {
	return m.k.RaiseIRQ(kernel.IRQPort4)
}

// consoleRx is the UART receive interrupt handler. It moves received bytes
// into the console FIFO; bytes that do not fit stay queued until the
// next interrupt.
func consoleRx(rx *rxQueue) kernel.Handler {
	return func(c *kernel.Context) {
		for {
			b, ok := rx.peek()
			if !ok {
				return
			}
			if err := c.WriteFIFO(consoleFIFO, uint32(b)); err != nil {
				return
			}
			rx.pop()
		}
	}
}

