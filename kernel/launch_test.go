package kernel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const launchTimeout = 5 * time.Second

func launch(ctx context.Context, k *Kernel) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- k.Launch(ctx) }()
	return errc
}

func waitLaunch(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(launchTimeout):
		t.Fatal("kernel did not halt")
		return nil
	}
}

func threadState(k *Kernel, id ThreadID) ThreadState {
	for _, info := range k.Threads() {
		if info.ID == id {
			return info.State
		}
	}
	return ThreadState(255)
}

// spin busy-waits for d without entering the kernel.
func spin(d time.Duration) {
	for end := time.Now().Add(d); time.Now().Before(end); {
	}
}

// watchIdle is an idle thread that records whether it ever ran while
// another thread was spinning on the CPU.
func watchIdle(spinning, overlap *atomic.Bool) ThreadFunc {
	return func(c *Context) {
		for {
			if spinning.Load() {
				overlap.Store(true)
			}
			c.Idle()
		}
	}
}

func blockedOn(k *Kernel, id ThreadID) Semaphore {
	for _, info := range k.Threads() {
		if info.ID == id {
			return info.BlockedOn
		}
	}
	return 0
}

func TestLaunchErrors(t *testing.T) {
	k := newTestKernel(Config{})
	require.ErrorIs(t, k.Launch(context.Background()), ErrNoThreadsScheduled)

	_, _ = k.AddThread(func(c *Context) {
		for {
			c.Idle()
		}
	}, MaxPriority, "idle")

	ctx, cancel := context.WithCancel(context.Background())
	errc := launch(ctx, k)
	require.Eventually(t, func() bool { return k.CurrentThreadID() != 0 }, launchTimeout, time.Millisecond)
	require.ErrorIs(t, k.Launch(ctx), ErrAlreadyLaunched)

	cancel()
	require.ErrorIs(t, waitLaunch(t, errc), context.Canceled)
	require.ErrorIs(t, k.Err(), context.Canceled)
	require.False(t, k.InPanicMode())
}

func TestBlockedThreadYieldsToLowerPriority(t *testing.T) {
	k := newTestKernel(Config{})
	s, _ := k.NewSemaphore(0)

	var trace []string
	_, _ = k.AddThread(func(c *Context) {
		trace = append(trace, "A1")
		c.Wait(s)
		trace = append(trace, "A2")
	}, 1, "A")
	_, _ = k.AddThread(func(c *Context) {
		trace = append(trace, "B1")
		c.Signal(s)
		trace = append(trace, "B2")
		c.Yield()
		trace = append(trace, "B3")
	}, 2, "B")

	err := waitLaunch(t, launch(context.Background(), k))
	require.ErrorIs(t, err, ErrNoThreadsScheduled)
	require.Equal(t, []string{"A1", "B1", "B2", "A2", "B3"}, trace)
}

func TestSleepWakesOnDeadline(t *testing.T) {
	k := newTestKernel(Config{})
	woke := make(chan uint64, 1)

	sleeper, _ := k.AddThread(func(c *Context) {
		c.Sleep(5)
		woke <- c.Now()
		for {
			c.Idle()
		}
	}, 1, "sleeper")
	_, _ = k.AddThread(func(c *Context) {
		for {
			c.Idle()
		}
	}, MaxPriority, "idle")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := launch(ctx, k)

	require.Eventually(t, func() bool { return threadState(k, sleeper) == ThreadSleeping }, launchTimeout, time.Millisecond)
	for i := 1; i <= 4; i++ {
		k.Tick()
		want := uint64(i)
		require.Eventually(t, func() bool { return k.Now() == want }, launchTimeout, time.Millisecond)
		require.Equal(t, ThreadSleeping, threadState(k, sleeper))
	}

	k.Tick()
	select {
	case now := <-woke:
		require.Equal(t, uint64(5), now)
	case <-time.After(launchTimeout):
		t.Fatal("sleeper never woke")
	}

	cancel()
	require.ErrorIs(t, waitLaunch(t, errc), context.Canceled)
}

func TestKillThreadFromThread(t *testing.T) {
	k := newTestKernel(Config{})
	s, _ := k.NewSemaphore(0)
	type report struct {
		before, after int32
		kill, again   error
		self          error
		threads       int
	}
	out := make(chan report, 1)

	victim, _ := k.AddThread(func(c *Context) {
		c.Wait(s)
		panic("victim resumed")
	}, 1, "victim")
	_, _ = k.AddThread(func(c *Context) {
		var r report
		r.before, _ = k.SemaphoreValue(s)
		r.kill = c.KillThread(victim)
		r.after, _ = k.SemaphoreValue(s)
		r.again = c.KillThread(victim)
		r.self = c.KillSelf()
		r.threads = len(k.Threads())
		out <- r
	}, 2, "killer")

	err := waitLaunch(t, launch(context.Background(), k))
	require.ErrorIs(t, err, ErrNoThreadsScheduled)

	r := <-out
	require.Equal(t, int32(-1), r.before)
	require.NoError(t, r.kill)
	require.Equal(t, int32(0), r.after)
	require.ErrorIs(t, r.again, ErrCannotKillLastThread)
	require.ErrorIs(t, r.self, ErrCannotKillLastThread)
	require.Equal(t, 1, r.threads)
}

func TestKillSelfDoesNotReturn(t *testing.T) {
	k := newTestKernel(Config{})
	returned := make(chan bool, 1)
	counted := make(chan int, 1)

	_, _ = k.AddThread(func(c *Context) {
		_ = c.KillSelf()
		returned <- true
	}, 1, "quitter")
	_, _ = k.AddThread(func(c *Context) {
		counted <- len(k.Threads())
	}, 2, "witness")

	err := waitLaunch(t, launch(context.Background(), k))
	require.ErrorIs(t, err, ErrNoThreadsScheduled)
	require.Equal(t, 1, <-counted)
	require.Empty(t, returned)
}

func TestFIFOReaderBlocksUntilWrite(t *testing.T) {
	k := newTestKernel(Config{})
	require.NoError(t, k.InitFIFO(0))
	got := make(chan []uint32, 1)
	var readerBlocked bool

	reader, _ := k.AddThread(func(c *Context) {
		a, _ := c.ReadFIFO(0)
		b, _ := c.ReadFIFO(0)
		got <- []uint32{a, b}
	}, 1, "reader")
	_, _ = k.AddThread(func(c *Context) {
		readerBlocked = threadState(k, reader) == ThreadBlocked
		_ = c.WriteFIFO(0, 42)
		_ = c.WriteFIFO(0, 43)
		c.Yield()
	}, 2, "writer")

	err := waitLaunch(t, launch(context.Background(), k))
	require.ErrorIs(t, err, ErrNoThreadsScheduled)
	require.True(t, readerBlocked)
	require.Equal(t, []uint32{42, 43}, <-got)
	require.Zero(t, k.FIFOStats()[0].Lost)
}

func TestInterruptWakesThread(t *testing.T) {
	k := newTestKernel(Config{})
	s, _ := k.NewSemaphore(0)
	pressed := make(chan ThreadID, 1)

	require.NoError(t, k.AddAperiodicEvent(func(c *Context) {
		pressed <- c.ThreadID()
		c.Signal(s)
	}, 2, IRQPort4))

	waiter, _ := k.AddThread(func(c *Context) {
		c.Wait(s)
		c.Sleep(1)
	}, 1, "waiter")
	idle, _ := k.AddThread(func(c *Context) {
		for {
			c.Idle()
		}
	}, MaxPriority, "idle")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := launch(ctx, k)

	require.Eventually(t, func() bool { return threadState(k, waiter) == ThreadBlocked }, launchTimeout, time.Millisecond)
	require.NoError(t, k.RaiseIRQ(IRQPort4))
	require.Equal(t, idle, <-pressed)
	require.Eventually(t, func() bool { return threadState(k, waiter) == ThreadSleeping }, launchTimeout, time.Millisecond)

	cancel()
	require.ErrorIs(t, waitLaunch(t, errc), context.Canceled)
}

func TestThreadPanicHaltsKernel(t *testing.T) {
	infos := make(chan PanicInfo, 1)
	k := New(Config{Logger: zerolog.Nop(), PanicHandler: func(p PanicInfo) { infos <- p }})

	id, _ := k.AddThread(func(c *Context) { panic("bad pointer") }, 1, "crasher")
	_, _ = k.AddThread(func(c *Context) {
		for {
			c.Idle()
		}
	}, MaxPriority, "idle")

	err := waitLaunch(t, launch(context.Background(), k))
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad pointer")
	require.True(t, k.InPanicMode())

	p := <-infos
	require.Equal(t, id, p.ThreadID)
	require.Equal(t, "bad pointer", p.Value)
}

func TestPeriodicEventPreemptsThroughTicks(t *testing.T) {
	k := newTestKernel(Config{})
	s, _ := k.NewSemaphore(0)
	done := make(chan uint64, 1)

	require.NoError(t, k.AddPeriodicEvent(func(c *Context) { c.Signal(s) }, 3))
	_, _ = k.AddThread(func(c *Context) {
		for i := 0; i < 3; i++ {
			c.Wait(s)
		}
		done <- c.Now()
		for {
			c.Idle()
		}
	}, 1, "consumer")
	_, _ = k.AddThread(func(c *Context) {
		for {
			c.Idle()
		}
	}, MaxPriority, "idle")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := launch(ctx, k)

	require.Eventually(t, func() bool { return k.CurrentThreadID() != 0 }, launchTimeout, time.Millisecond)
	for i := 0; i < 7; i++ {
		k.Tick()
	}
	select {
	case now := <-done:
		require.GreaterOrEqual(t, now, uint64(7))
	case <-time.After(launchTimeout):
		t.Fatal("consumer missed periodic signals")
	}

	cancel()
	require.ErrorIs(t, waitLaunch(t, errc), context.Canceled)
}

func TestKilledThreadDefersStayOffTheCPU(t *testing.T) {
	k := newTestKernel(Config{})
	s, _ := k.NewSemaphore(0)
	var spinning, overlap, done atomic.Bool

	_, _ = k.AddThread(func(c *Context) {
		defer c.Signal(s)
		_ = c.KillSelf()
	}, 1, "quitter")
	_, _ = k.AddThread(func(c *Context) {
		c.Sleep(5)
		spinning.Store(true)
		spin(100 * time.Millisecond)
		spinning.Store(false)
		done.Store(true)
		for {
			c.Idle()
		}
	}, 2, "sleeper")
	_, _ = k.AddThread(watchIdle(&spinning, &overlap), MaxPriority, "idle")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := launch(ctx, k)

	deadline := time.Now().Add(launchTimeout)
	for !done.Load() {
		require.True(t, time.Now().Before(deadline), "sleeper never finished")
		k.Tick()
		time.Sleep(time.Millisecond)
	}
	require.False(t, overlap.Load(), "idle ran while the sleeper held the CPU")
	v, _ := k.SemaphoreValue(s)
	require.Equal(t, int32(0), v, "defer of a killed thread ran")
	require.Len(t, k.Threads(), 2)

	cancel()
	require.ErrorIs(t, waitLaunch(t, errc), context.Canceled)
}

func TestKillParkedFIFOReaderReleasesMutex(t *testing.T) {
	k := newTestKernel(Config{})
	require.NoError(t, k.InitFIFO(0))
	gate, _ := k.NewSemaphore(0)
	var size, mu Semaphore
	locked(k, func() {
		size, mu = k.fifos[0].size, k.fifos[0].mutex
		// The test holds the channel mutex until the reader queues on it.
		k.sems[mu-1] = 0
	})
	require.NoError(t, k.AddAperiodicEvent(func(c *Context) { _ = c.WriteFIFO(0, 7) }, 2, IRQPort4))

	var spinning, overlap, stop, wrote atomic.Bool
	_, _ = k.AddThread(func(c *Context) {
		c.Wait(gate)
		spinning.Store(true)
		for !stop.Load() {
		}
		spinning.Store(false)
		if c.WriteFIFO(0, 9) == nil {
			wrote.Store(true)
		}
		for {
			c.Idle()
		}
	}, 1, "writer")
	reader, _ := k.AddThread(func(c *Context) {
		_, _ = c.ReadFIFO(0)
		panic("reader resumed after kill")
	}, 2, "reader")
	_, _ = k.AddThread(watchIdle(&spinning, &overlap), MaxPriority, "idle")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := launch(ctx, k)

	require.Eventually(t, func() bool { return blockedOn(k, reader) == size }, launchTimeout, time.Millisecond)
	require.NoError(t, k.RaiseIRQ(IRQPort4))
	require.Eventually(t, func() bool { return blockedOn(k, reader) == mu }, launchTimeout, time.Millisecond)

	// The writer takes the CPU and keeps it, so the reader stays parked
	// once it owns the mutex.
	k.Signal(gate)
	require.Eventually(t, spinning.Load, launchTimeout, time.Millisecond)
	k.Signal(mu)
	require.Zero(t, blockedOn(k, reader))
	require.NoError(t, k.KillThread(reader))

	for i := 0; i < 20; i++ {
		k.Tick()
		time.Sleep(time.Millisecond)
	}
	require.False(t, overlap.Load(), "idle ran while the writer held the CPU")

	stop.Store(true)
	require.Eventually(t, wrote.Load, launchTimeout, time.Millisecond, "writer blocked on a leaked mutex")
	v, _ := k.SemaphoreValue(mu)
	require.Equal(t, int32(1), v)
	require.Equal(t, 2, k.FIFOStats()[0].Len)

	cancel()
	require.ErrorIs(t, waitLaunch(t, errc), context.Canceled)
}
