package app

import (
	"bytes"
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"g8rtos/kernel"
)

func newTestMonitor(t *testing.T) (*monitor, *kernel.Kernel, *bytes.Buffer) {
	t.Helper()
	k := kernel.New(kernel.Config{Logger: zerolog.Nop()})
	var out bytes.Buffer
	return newMonitor(k, nil, &out, zerolog.Nop()), k, &out
}

func nopThread(c *kernel.Context) {}

func TestMonitorPS(t *testing.T) {
	m, k, out := newTestMonitor(t)
	id, err := k.AddThread(nopThread, 3, "worker")
	require.NoError(t, err)

	m.exec(nil, "ps")
	require.Contains(t, out.String(), "NAME")
	require.Contains(t, out.String(), id.String())
	require.Contains(t, out.String(), "worker")
}

func TestMonitorKill(t *testing.T) {
	m, k, out := newTestMonitor(t)
	_, err := k.AddThread(nopThread, 1, "keep")
	require.NoError(t, err)
	victim, err := k.AddThread(nopThread, 1, "victim")
	require.NoError(t, err)

	for _, b := range []byte("kill " + victim.String() + "\r") {
		m.feed(nil, b)
	}
	require.Contains(t, out.String(), "killed "+victim.String())
	require.Len(t, k.Threads(), 1)

	out.Reset()
	m.exec(nil, "kill " + victim.String())
	require.Contains(t, out.String(), "error: ")

	out.Reset()
	m.exec(nil, "kill")
	require.Contains(t, out.String(), "usage: kill <id>")
}

func TestMonitorTables(t *testing.T) {
	m, k, out := newTestMonitor(t)
	s, err := k.NewSemaphore(3)
	require.NoError(t, err)
	require.NoError(t, k.InitFIFO(consoleFIFO))

	m.exec(nil, "sem")
	require.Contains(t, out.String(), "SEM")
	require.Regexp(t, `\n`+strconv.Itoa(int(s))+`\s+3\s+0\n`, out.String())

	out.Reset()
	m.exec(nil, "fifo")
	require.Regexp(t, `\n1\s+0/16\s+0\n`, out.String())

	out.Reset()
	k.Tick()
	k.Tick()
	m.exec(nil, "uptime")
	require.Equal(t, "2 ticks (2ms)\n", out.String())
}

func TestMonitorButtonRaisesPort4(t *testing.T) {
	m, k, _ := newTestMonitor(t)
	fired := 0
	require.NoError(t, k.AddAperiodicEvent(func(*kernel.Context) { fired++ }, 0, kernel.IRQPort4))

	m.exec(nil, "button")
	require.Equal(t, 1, fired)
}

func TestMonitorLineEditing(t *testing.T) {
	m, _, out := newTestMonitor(t)
	for _, b := range []byte("hepl\x7f\x7flp\n") {
		m.feed(nil, b)
	}
	require.Contains(t, out.String(), "kill <id>")
	require.Contains(t, out.String(), "uptime")

	out.Reset()
	m.exec(nil, "frobnicate")
	require.Contains(t, out.String(), `unknown command "frobnicate"`)

	out.Reset()
	m.exec(nil, `kill "1.0`)
	require.Contains(t, out.String(), "error: ")
}

func TestConsoleRxKeepsOverflow(t *testing.T) {
	k := kernel.New(kernel.Config{Logger: zerolog.Nop(), FIFODepth: 4})
	require.NoError(t, k.InitFIFO(consoleFIFO))
	rx := newRxQueue(16)
	require.NoError(t, k.AddAperiodicEvent(consoleRx(rx), uartPriority, kernel.IRQEUSCIA0))

	rx.push([]byte("hello"))
	require.NoError(t, k.RaiseIRQ(kernel.IRQEUSCIA0))

	// Three words fit; the rest waits for the next interrupt.
	require.Equal(t, 2, rx.len())
	stats := k.FIFOStats()[consoleFIFO]
	require.Equal(t, 3, stats.Len)
}

func TestMonitorFIFOShowsUARTDrops(t *testing.T) {
	k := kernel.New(kernel.Config{Logger: zerolog.Nop()})
	require.NoError(t, k.InitFIFO(consoleFIFO))
	rx := newRxQueue(4)
	var out bytes.Buffer
	m := newMonitor(k, rx, &out, zerolog.Nop())

	rx.push([]byte("abcdef"))
	m.exec(nil, "fifo")
	require.Contains(t, out.String(), "uart rx: 4 queued, 2 dropped\n")
}

func TestMonitorKillSelfDoesNotReturn(t *testing.T) {
	k := kernel.New(kernel.Config{Logger: zerolog.Nop()})
	out := &syncBuffer{}
	m := newMonitor(k, nil, out, zerolog.Nop())
	var returned atomic.Bool

	_, err := k.AddThread(func(c *kernel.Context) {
		m.exec(c, "kill "+c.ThreadID().String())
		returned.Store(true)
	}, prioMonitor, "monitor")
	require.NoError(t, err)
	_, err = k.AddThread(func(c *kernel.Context) {
		for {
			c.Idle()
		}
	}, kernel.MaxPriority, "idle")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- k.Launch(ctx) }()

	require.Eventually(t, func() bool { return !hasThread(k, "monitor") }, 2*time.Second, time.Millisecond)
	require.Contains(t, out.String(), "monitor exiting")
	time.Sleep(20 * time.Millisecond)
	require.False(t, returned.Load())
	require.NotContains(t, out.String(), "killed ")

	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
}
