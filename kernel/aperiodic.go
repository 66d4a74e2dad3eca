package kernel

import "fmt"

// IRQ is an interrupt source number on the MSP432 NVIC.
type IRQ uint8

const (
	IRQMin IRQ = 0
	IRQMax IRQ = 40

	irqCount = int(IRQMax) + 1

	IRQEUSCIA0 IRQ = 16
	IRQPort1   IRQ = 35
	IRQPort2   IRQ = 36
	IRQPort3   IRQ = 37
	IRQPort4   IRQ = 38
	IRQPort5   IRQ = 39
	IRQPort6   IRQ = 40
)

// MaxIRQPriority is the least urgent priority an aperiodic handler may use.
// SysTick sits one level below it.
const MaxIRQPriority uint8 = 6

const sysTickPriority uint8 = 7

type vector struct {
	handler  Handler
	priority uint8
	enabled  bool
}

// AddAperiodicEvent binds handler to irq at priority and enables the source.
// Rebinding a source replaces its handler.
func (k *Kernel) AddAperiodicEvent(handler Handler, priority uint8, irq IRQ) error {
	return k.addAperiodic(nil, handler, priority, irq)
}

// AddAperiodicEvent binds an interrupt handler from a thread or handler.
func (c *Context) AddAperiodicEvent(handler Handler, priority uint8, irq IRQ) error {
	return c.k.addAperiodic(c, handler, priority, irq)
}

func (k *Kernel) addAperiodic(c *Context, handler Handler, priority uint8, irq IRQ) error {
	if irq > IRQMax {
		return fmt.Errorf("%w: %d", ErrInvalidIRQ, irq)
	}
	if priority > MaxIRQPriority {
		return fmt.Errorf("%w: %d", ErrInvalidIRQPriority, priority)
	}
	defer k.exit(c, k.enter(c))
	k.vectors[irq] = vector{handler: handler, priority: priority, enabled: true}
	k.log.Debug().Uint8("irq", uint8(irq)).Uint8("priority", priority).Msg("aperiodic event added")
	return nil
}

// RaiseIRQ asserts irq from outside the kernel, the way a peripheral would.
// The handler runs before RaiseIRQ returns unless interrupts are masked, in
// which case it runs when they are unmasked.
func (k *Kernel) RaiseIRQ(irq IRQ) error {
	if irq > IRQMax {
		return fmt.Errorf("%w: %d", ErrInvalidIRQ, irq)
	}
	k.pendingIRQ.Or(1 << irq)
	k.service()
	return nil
}

// TriggerIRQ pends irq in software. From a thread the handler runs when the
// thread leaves its critical section; from a handler it runs after the
// current one returns.
func (c *Context) TriggerIRQ(irq IRQ) error {
	if irq > IRQMax {
		return fmt.Errorf("%w: %d", ErrInvalidIRQ, irq)
	}
	k := c.k
	k.pendingIRQ.Or(1 << irq)
	if c.isr || c.masked {
		return nil
	}
	k.service()
	k.reschedule(c)
	return nil
}

// nextIRQ claims the most urgent pending and enabled source. Ties go to the
// lower source number. Pending sources without a handler are dropped. Caller
// holds the mask.
func (k *Kernel) nextIRQ() (Handler, bool) {
	pending := k.pendingIRQ.Load()
	if pending == 0 {
		return nil, false
	}
	best := -1
	for i := 0; i < irqCount; i++ {
		if pending&(1<<i) == 0 {
			continue
		}
		v := &k.vectors[i]
		if !v.enabled || v.handler == nil {
			k.pendingIRQ.And(^uint64(1 << i))
			continue
		}
		if best < 0 || v.priority < k.vectors[best].priority {
			best = i
		}
	}
	if best < 0 {
		return nil, false
	}
	k.pendingIRQ.And(^uint64(1 << best))
	return k.vectors[best].handler, true
}
