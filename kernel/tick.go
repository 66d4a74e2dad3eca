package kernel

import "fmt"

// Tick advances system time by one tick, the way the SysTick timer would.
// A host timer or the board's timer goroutine calls it once per millisecond.
func (k *Kernel) Tick() {
	k.pendingTicks.Add(1)
	k.service()
}

// service runs pending interrupts to completion. One goroutine services at a
// time; a caller that finds the engine busy leaves its work to the owner,
// which re-checks before letting go.
func (k *Kernel) service() {
	for !k.halted.Load() {
		if !k.isrMu.TryLock() {
			return
		}
		for k.serviceOne() {
		}
		k.isrMu.Unlock()
		if k.pendingIRQ.Load() == 0 && k.pendingTicks.Load() == 0 {
			return
		}
	}
}

// serviceOne runs the most urgent pending interrupt with interrupts masked.
// SysTick has the lowest priority of all sources.
func (k *Kernel) serviceOne() (ran bool) {
	if k.halted.Load() {
		return false
	}
	k.mask.Lock()
	k.isr.masked = true
	defer func() {
		r := recover()
		k.isr.masked = false
		k.isr.unwinding = false
		k.mask.Unlock()
		if r == nil {
			return
		}
		ran = false
		if _, ok := r.(*FatalError); ok {
			return
		}
		var id ThreadID
		if k.current >= 0 {
			id = k.tcbs[k.current].id
		}
		k.log.Error().Interface("panic", r).Stringer("thread", id).Msg("interrupt handler panicked")
		k.triggerPanic(PanicInfo{ThreadID: id, Value: r})
		k.halt(fmt.Errorf("interrupt handler panicked: %v", r))
	}()

	if h, ok := k.nextIRQ(); ok {
		h(&k.isr)
		return true
	}
	if k.pendingTicks.Load() > 0 {
		k.pendingTicks.Add(-1)
		k.sysTick()
		return true
	}
	return false
}

// sysTick advances time, fires due periodic events, wakes sleepers whose
// deadline has passed and requests a context switch, in that order.
func (k *Kernel) sysTick() {
	k.now++
	k.firePeriodic()
	for i, s := 0, k.head; i < k.nThreads && s >= 0; i++ {
		t := &k.tcbs[s]
		if t.asleep && t.sleepUntil <= k.now {
			t.asleep = false
		}
		s = t.next
	}
	k.requestSwitch()
}
