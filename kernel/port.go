package kernel

import "runtime"

// Each thread runs on its own goroutine. Exactly one of them holds the CPU;
// the others are parked on their wake channel. A context switch hands the
// wake token to the selected thread and parks the caller.

type switchOutcome int

const (
	switchStay switchOutcome = iota
	switchIdle
	switchAway
	switchRetire
)

// restore hands the CPU to t. Caller holds the mask.
func (k *Kernel) restore(t *tcb) error {
	if !t.started {
		if err := t.checkFrame(); err != nil {
			return err
		}
		t.started = true
	}
	t.ctx.wake <- struct{}{}
	return nil
}

// reschedule performs a pending context switch for the running thread c.
// It returns once c holds the CPU again.
func (k *Kernel) reschedule(c *Context) {
	for {
		switch k.dispatch(c) {
		case switchStay:
			return
		case switchIdle:
			select {
			case <-k.kick:
			case <-k.done:
				k.park(c)
			}
		case switchAway:
			if _, ok := <-c.wake; !ok {
				k.retire(c)
			}
			if k.halted.Load() {
				k.park(c)
			}
			return
		case switchRetire:
			k.retire(c)
		}
	}
}

func (k *Kernel) dispatch(c *Context) switchOutcome {
	k.mask.Lock()
	defer k.mask.Unlock()

	if k.halted.Load() {
		return switchRetire
	}
	// A dead thread that no longer owns the CPU must not pick a successor.
	if c.killed && k.current != c.slot {
		return switchRetire
	}
	if !k.pend && !c.killed && k.tcbs[c.slot].eligible() {
		return switchStay
	}
	k.pend = false

	next := k.schedule()
	if next < 0 {
		return switchIdle
	}
	t := &k.tcbs[next]
	if !t.eligible() {
		// Nothing can run; the CPU waits for an interrupt.
		return switchIdle
	}
	if t.ctx == c {
		return switchStay
	}

	k.current = next
	if err := k.restore(t); err != nil {
		k.fatal(c, err)
	}
	if c.killed {
		return switchRetire
	}
	return switchAway
}

// park retires a thread goroutine once the kernel has halted.
func (k *Kernel) park(c *Context) {
	runtime.Goexit()
}

// retire parks the goroutine of a killed thread for good. Its pending defers
// run only after the kernel halts, so a killed thread never executes kernel
// code while other threads are scheduled.
func (k *Kernel) retire(c *Context) {
	<-k.done
	k.park(c)
}
