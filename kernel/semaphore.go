package kernel

import "fmt"

// Semaphore is a handle to a signed counting semaphore. A negative value
// counts the threads blocked on it. The zero handle is never valid.
type Semaphore uint16

// NewSemaphore allocates a semaphore with the given initial value.
func (k *Kernel) NewSemaphore(value int32) (Semaphore, error) {
	return k.newSemaphore(nil, value)
}

// NewSemaphore allocates a semaphore with the given initial value.
func (c *Context) NewSemaphore(value int32) (Semaphore, error) {
	return c.k.newSemaphore(c, value)
}

func (k *Kernel) newSemaphore(c *Context, value int32) (Semaphore, error) {
	defer k.exit(c, k.enter(c))
	if k.nSems >= k.cfg.MaxSemaphores {
		return 0, ErrSemaphoreLimit
	}
	k.nSems++
	s := Semaphore(k.nSems)
	k.sems[s-1] = value
	return s, nil
}

// InitSemaphore resets s to value.
func (k *Kernel) InitSemaphore(s Semaphore, value int32) error {
	return k.initSemaphore(nil, s, value)
}

// InitSemaphore resets s to value.
func (c *Context) InitSemaphore(s Semaphore, value int32) error {
	return c.k.initSemaphore(c, s, value)
}

func (k *Kernel) initSemaphore(c *Context, s Semaphore, value int32) error {
	defer k.exit(c, k.enter(c))
	if !k.validSemaphore(s) {
		return ErrInvalidSemaphore
	}
	k.sems[s-1] = value
	return nil
}

// SemaphoreValue returns the current counter of s.
func (k *Kernel) SemaphoreValue(s Semaphore) (int32, error) {
	k.mask.Lock()
	defer k.mask.Unlock()
	if !k.validSemaphore(s) {
		return 0, ErrInvalidSemaphore
	}
	return k.sems[s-1], nil
}

// validSemaphore accepts application semaphores and the ones backing FIFOs.
func (k *Kernel) validSemaphore(s Semaphore) bool {
	n := int(s)
	return (n >= 1 && n <= k.nSems) || (n > k.cfg.MaxSemaphores && n <= len(k.sems))
}

// Wait decrements s and blocks the calling thread while the result is
// negative.
func (c *Context) Wait(s Semaphore) {
	k := c.k
	defer k.exit(c, k.enter(c))
	k.waitLocked(c, s)
}

// Signal increments s and releases one blocked thread if any were waiting.
// Handlers may signal.
func (c *Context) Signal(s Semaphore) {
	k := c.k
	defer k.exit(c, k.enter(c))
	k.signalLocked(c, s)
}

// Signal increments s from boot or host code.
func (k *Kernel) Signal(s Semaphore) {
	defer k.exit(nil, k.enter(nil))
	k.signalLocked(nil, s)
}

func (k *Kernel) waitLocked(c *Context, s Semaphore) {
	if !k.validSemaphore(s) {
		k.fatal(c, fmt.Errorf("%w: wait on %d", ErrInvalidSemaphore, s))
	}
	k.sems[s-1]--
	if k.sems[s-1] >= 0 {
		return
	}
	if c == nil || c.isr {
		k.fatal(c, fmt.Errorf("%w: blocking wait on semaphore %d", ErrNotThread, s))
	}
	k.tcbs[c.slot].blockedOn = s
	k.pend = true
}

// signalLocked releases the first thread blocked on s in scan order, starting
// after the running thread and ending on it.
func (k *Kernel) signalLocked(c *Context, s Semaphore) {
	if !k.validSemaphore(s) {
		k.fatal(c, fmt.Errorf("%w: signal on %d", ErrInvalidSemaphore, s))
	}
	k.sems[s-1]++
	if k.sems[s-1] > 0 {
		return
	}
	for i, slot := 0, k.scanStart(); i < k.nThreads && slot >= 0; i++ {
		t := &k.tcbs[slot]
		if t.blockedOn == s {
			t.blockedOn = 0
			k.kickCPU()
			return
		}
		slot = t.next
	}
	k.fatal(c, fmt.Errorf("%w: semaphore %d at %d has no blocked thread", ErrPoolInconsistent, s, k.sems[s-1]))
}
