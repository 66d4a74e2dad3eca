package kernel

import (
	"fmt"
	"strconv"
	"strings"
)

// ThreadID identifies a thread: generation counter in the high half, pool
// slot in the low half. Zero is never a valid id.
type ThreadID uint32

// Slot returns the pool slot the thread occupies.
func (id ThreadID) Slot() int { return int(id & 0xFFFF) }

// Generation returns the creation counter of the thread.
func (id ThreadID) Generation() uint16 { return uint16(id >> 16) }

func (id ThreadID) String() string {
	return fmt.Sprintf("%d.%d", id.Generation(), id.Slot())
}

// ParseThreadID accepts the "gen.slot" form printed by String or a raw
// decimal id.
func ParseThreadID(s string) (ThreadID, error) {
	gen, slot, ok := strings.Cut(s, ".")
	if !ok {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("thread id %q: %w", s, err)
		}
		return ThreadID(n), nil
	}
	g, err := strconv.ParseUint(gen, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("thread id %q: %w", s, err)
	}
	sl, err := strconv.ParseUint(slot, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("thread id %q: %w", s, err)
	}
	return ThreadID(g<<16 | sl), nil
}

type tcb struct {
	id         ThreadID
	name       string
	priority   uint8
	alive      bool
	asleep     bool
	sleepUntil uint64
	blockedOn  Semaphore
	// holds is the FIFO mutex the thread owns, released if it is killed.
	holds Semaphore

	next int
	prev int

	stack   []uint32
	sp      int
	started bool

	entry ThreadFunc
	ctx   *Context
}

func (t *tcb) eligible() bool {
	return t.alive && t.blockedOn == 0 && !t.asleep
}

func (t *tcb) linked() bool {
	return t.next >= 0 || t.prev >= 0
}

// AddThread creates a thread. It may be called before Launch or from boot
// code outside any thread; threads use Context.AddThread.
func (k *Kernel) AddThread(entry ThreadFunc, priority uint8, name string) (ThreadID, error) {
	return k.addThread(nil, entry, priority, name)
}

// AddThread creates a thread from a running thread or handler.
func (c *Context) AddThread(entry ThreadFunc, priority uint8, name string) (ThreadID, error) {
	return c.k.addThread(c, entry, priority, name)
}

func (k *Kernel) addThread(c *Context, entry ThreadFunc, priority uint8, name string) (ThreadID, error) {
	defer k.exit(c, k.enter(c))

	if k.nThreads >= len(k.tcbs) {
		return 0, ErrThreadLimit
	}

	slot := -1
	exiting := false
	for i := range k.tcbs {
		if k.tcbs[i].alive {
			continue
		}
		// The running thread may be dead and still on the CPU; its slot is
		// reusable once the switch has left it.
		if i == k.current {
			exiting = true
			continue
		}
		slot = i
		break
	}
	if slot < 0 {
		if exiting {
			return 0, ErrThreadLimit
		}
		k.fatal(c, fmt.Errorf("%w: %d threads counted but no dead slot", ErrPoolInconsistent, k.nThreads))
	}

	t := &k.tcbs[slot]
	if t.linked() {
		k.fatal(c, fmt.Errorf("%w: dead slot %d still linked", ErrPoolInconsistent, slot))
	}

	k.idGen++
	if k.idGen == 0 {
		k.idGen = 1
	}
	t.id = ThreadID(uint32(k.idGen)<<16 | uint32(slot))
	t.name = name
	t.priority = priority
	t.entry = entry
	t.asleep = false
	t.sleepUntil = 0
	t.blockedOn = 0
	t.holds = 0
	t.started = false
	t.buildFrame(slot)
	t.ctx = &Context{k: k, slot: slot, id: t.id, wake: make(chan struct{}, 1)}
	t.alive = true

	k.link(slot)
	k.nThreads++

	go k.threadMain(t.ctx, entry)

	k.log.Debug().
		Stringer("id", t.id).
		Str("name", name).
		Uint8("priority", priority).
		Int("threads", k.nThreads).
		Msg("thread added")
	return t.id, nil
}

// link appends slot to the circular list, just before the anchor.
func (k *Kernel) link(slot int) {
	t := &k.tcbs[slot]
	if k.nThreads == 0 {
		t.next, t.prev = slot, slot
		k.head = slot
		return
	}
	h := &k.tcbs[k.head]
	tail := h.prev
	t.prev = tail
	t.next = k.head
	k.tcbs[tail].next = slot
	h.prev = slot
}

func (k *Kernel) unlink(slot int) {
	t := &k.tcbs[slot]
	if k.nThreads == 1 {
		k.head = -1
	} else {
		k.tcbs[t.prev].next = t.next
		k.tcbs[t.next].prev = t.prev
		if k.head == slot {
			k.head = t.next
		}
	}
	t.next, t.prev = -1, -1
}

// KillThread kills the thread with the given id.
func (k *Kernel) KillThread(id ThreadID) error {
	return k.killThread(nil, id)
}

// KillThread kills the thread with the given id. Killing the calling thread
// does not return on success.
func (c *Context) KillThread(id ThreadID) error {
	return c.k.killThread(c, id)
}

// KillSelf kills the calling thread. It does not return on success.
func (c *Context) KillSelf() error {
	if c.isr {
		return ErrNotThread
	}
	return c.k.killThread(c, c.id)
}

func (k *Kernel) killThread(c *Context, id ThreadID) error {
	defer k.exit(c, k.enter(c))

	if k.nThreads == 1 {
		return ErrCannotKillLastThread
	}
	slot := id.Slot()
	if id == 0 || slot >= len(k.tcbs) || !k.tcbs[slot].alive || k.tcbs[slot].id != id {
		return ErrThreadNotFound
	}

	t := &k.tcbs[slot]
	// A blocked thread holds one negative unit of its semaphore.
	if s := t.blockedOn; s != 0 {
		k.sems[s-1]++
		t.blockedOn = 0
		if t.holds == s {
			t.holds = 0
		}
	}
	// Defers of a killed thread do not run, so the kernel hands a held FIFO
	// mutex to the next waiter itself. The victim is still linked for the scan.
	if s := t.holds; s != 0 {
		t.holds = 0
		k.signalLocked(c, s)
	}
	k.unlink(slot)
	t.alive = false
	k.nThreads--

	victim := t.ctx
	victim.killed = true
	if slot == k.current {
		k.requestSwitch()
	} else {
		close(victim.wake)
	}

	k.log.Debug().
		Stringer("id", id).
		Str("name", t.name).
		Int("threads", k.nThreads).
		Msg("thread killed")
	return nil
}

// Sleep suspends the calling thread for at least ms ticks.
func (c *Context) Sleep(ms uint32) {
	k := c.k
	defer k.exit(c, k.enter(c))
	if c.isr {
		k.fatal(c, fmt.Errorf("%w: sleep from interrupt context", ErrNotThread))
	}
	t := &k.tcbs[c.slot]
	t.sleepUntil = k.now + uint64(ms)
	t.asleep = true
	k.pend = true
}

func (k *Kernel) threadMain(c *Context, entry ThreadFunc) {
	if _, ok := <-c.wake; !ok {
		return
	}
	defer k.threadExit(c)
	entry(c)
}

// threadExit runs when a thread goroutine leaves its entry function, by
// returning, by being killed, or by panicking.
func (k *Kernel) threadExit(c *Context) {
	r := recover()
	if c.masked {
		c.masked = false
		k.mask.Unlock()
	}
	if r != nil {
		if _, ok := r.(*FatalError); !ok {
			err := fmt.Errorf("thread %s panicked: %v", c.id, r)
			k.log.Error().Stringer("id", c.id).Interface("panic", r).Msg("thread panicked")
			k.triggerPanic(PanicInfo{ThreadID: c.id, Value: r})
			k.halt(err)
		}
		return
	}

	k.mask.Lock()
	killed := c.killed
	k.mask.Unlock()
	if killed || k.halted.Load() {
		return
	}

	k.log.Debug().Stringer("id", c.id).Msg("thread returned")
	if err := k.killThread(c, c.id); err != nil {
		k.halt(fmt.Errorf("%w: last thread %s returned", ErrNoThreadsScheduled, c.id))
	}
}
