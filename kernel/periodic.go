package kernel

type ptcb struct {
	handler  Handler
	period   uint64
	nextFire uint64
	next     int
	prev     int
}

// AddPeriodicEvent registers handler to run in interrupt context every period
// ticks. Events are staggered by registration order: the n-th event (from
// zero) first fires n+1 ticks after it is added.
func (k *Kernel) AddPeriodicEvent(handler Handler, period uint32) error {
	return k.addPeriodic(nil, handler, period)
}

// AddPeriodicEvent registers a periodic handler from a thread or handler.
func (c *Context) AddPeriodicEvent(handler Handler, period uint32) error {
	return c.k.addPeriodic(c, handler, period)
}

func (k *Kernel) addPeriodic(c *Context, handler Handler, period uint32) error {
	defer k.exit(c, k.enter(c))
	if k.nPeriodic >= len(k.ptcbs) {
		return ErrPeriodicLimit
	}
	if period == 0 {
		period = 1
	}

	slot := k.nPeriodic
	p := &k.ptcbs[slot]
	p.handler = handler
	p.period = uint64(period)
	p.nextFire = k.now + uint64(slot) + 1

	if k.nPeriodic == 0 {
		p.next, p.prev = slot, slot
		k.pHead = slot
	} else {
		h := &k.ptcbs[k.pHead]
		tail := h.prev
		p.prev = tail
		p.next = k.pHead
		k.ptcbs[tail].next = slot
		h.prev = slot
	}
	k.nPeriodic++

	k.log.Debug().Int("slot", slot).Uint32("period", period).Uint64("first", p.nextFire).Msg("periodic event added")
	return nil
}

// firePeriodic runs every event due at the current tick. Caller holds the
// mask on the interrupt context.
func (k *Kernel) firePeriodic() {
	for i, s := 0, k.pHead; i < k.nPeriodic; i++ {
		p := &k.ptcbs[s]
		if p.nextFire == k.now {
			p.nextFire = k.now + p.period
			p.handler(&k.isr)
		}
		s = p.next
	}
}
