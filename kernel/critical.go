package kernel

// Token records whether interrupts were already masked when a critical
// section was entered.
type Token bool

// enter masks interrupts for c. A nil context stands for boot code running
// outside the kernel (before Launch, or from a host goroutine).
func (k *Kernel) enter(c *Context) Token {
	if c != nil && c.masked {
		return true
	}
	k.mask.Lock()
	if c != nil {
		c.masked = true
	}
	return false
}

// exit restores the masking state captured by enter. The outermost exit of a
// thread context services interrupts raised while masked, then performs a
// pending context switch.
func (k *Kernel) exit(c *Context, t Token) {
	if t {
		return
	}
	dead := false
	if c != nil {
		c.masked = false
		dead = c.killed && k.current != c.slot
	}
	k.mask.Unlock()

	if c == nil || c.isr || c.unwinding {
		return
	}
	if dead {
		k.retire(c)
	}
	if k.halted.Load() {
		k.park(c)
	}
	if k.pendingIRQ.Load() != 0 || k.pendingTicks.Load() != 0 {
		k.service()
	}
	k.reschedule(c)
}

// requestSwitch pends a context switch and wakes an idling CPU. Caller holds
// the mask.
func (k *Kernel) requestSwitch() {
	k.pend = true
	k.kickCPU()
}

// kickCPU wakes a CPU waiting for an interrupt.
func (k *Kernel) kickCPU() {
	select {
	case k.kick <- struct{}{}:
	default:
	}
}
