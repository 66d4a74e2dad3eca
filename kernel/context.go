package kernel

// Context provides thread-local (or interrupt-local) access to kernel
// operations. Every thread receives its own Context; periodic and aperiodic
// handlers share the interrupt context.
type Context struct {
	k    *Kernel
	slot int
	id   ThreadID
	isr  bool

	// masked and unwinding belong to the goroutine running on this context.
	masked    bool
	unwinding bool

	// killed is guarded by k.mask.
	killed bool
	wake   chan struct{}
}

// ThreadID returns the id of the thread running on c. In interrupt context
// it is the id of the interrupted thread.
func (c *Context) ThreadID() ThreadID {
	if !c.isr {
		return c.id
	}
	k := c.k
	defer k.exit(c, k.enter(c))
	if k.current < 0 {
		return 0
	}
	return k.tcbs[k.current].id
}

// InInterrupt reports whether c is the interrupt context.
func (c *Context) InInterrupt() bool { return c.isr }

// Now returns the system time in ticks.
func (c *Context) Now() uint64 {
	k := c.k
	defer k.exit(c, k.enter(c))
	return k.now
}

// EnterCritical masks interrupts and returns the previous masking state.
// Every call must be paired with exactly one ExitCritical.
func (c *Context) EnterCritical() Token {
	return c.k.enter(c)
}

// ExitCritical restores the masking state returned by EnterCritical.
func (c *Context) ExitCritical(t Token) {
	c.k.exit(c, t)
}

// Yield requests a context switch. The calling thread keeps the CPU only if
// the scheduler selects it again.
func (c *Context) Yield() {
	k := c.k
	tok := k.enter(c)
	if !c.isr {
		k.pend = true
	}
	k.exit(c, tok)
}

// Idle blocks until the next interrupt requests a context switch, then
// yields. An idle thread loops on it instead of spinning.
func (c *Context) Idle() {
	if c.isr || c.masked {
		return
	}
	select {
	case <-c.k.kick:
	case <-c.k.done:
	}
	c.Yield()
}
