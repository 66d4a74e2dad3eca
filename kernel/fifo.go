package kernel

import "fmt"

// A FIFO keeps one slot empty, so a channel of depth n holds n-1 words.
type fifo struct {
	buf   []uint32
	head  int
	tail  int
	lost  uint32
	size  Semaphore
	mutex Semaphore
	ready bool
}

func (f *fifo) len() int {
	return (f.head - f.tail + len(f.buf)) % len(f.buf)
}

// FIFOStats is a snapshot of one channel.
type FIFOStats struct {
	Index int
	Depth int
	Len   int
	Lost  uint32
	Ready bool
}

// InitFIFO resets channel index to empty.
func (k *Kernel) InitFIFO(index int) error {
	return k.initFIFO(nil, index)
}

// InitFIFO resets channel index to empty.
func (c *Context) InitFIFO(index int) error {
	return c.k.initFIFO(c, index)
}

func (k *Kernel) initFIFO(c *Context, index int) error {
	defer k.exit(c, k.enter(c))
	if index < 0 || index >= len(k.fifos) {
		return ErrFIFOLimit
	}
	f := &k.fifos[index]
	f.head, f.tail, f.lost = 0, 0, 0
	k.sems[f.size-1] = 0
	k.sems[f.mutex-1] = 1
	f.ready = true
	return nil
}

func (k *Kernel) channel(c *Context, index int) (*fifo, error) {
	defer k.exit(c, k.enter(c))
	if index < 0 || index >= len(k.fifos) {
		return nil, ErrFIFOLimit
	}
	f := &k.fifos[index]
	if !f.ready {
		return nil, fmt.Errorf("%w: channel %d", ErrFIFOUninitialized, index)
	}
	return f, nil
}

// WriteFIFO appends v to channel index. A full channel counts the word as
// lost and returns ErrBufferFull. Handlers may write; they skip the channel
// mutex since the buffer is only touched with interrupts masked.
func (c *Context) WriteFIFO(index int, v uint32) error {
	k := c.k
	f, err := k.channel(c, index)
	if err != nil {
		return err
	}
	if !c.isr {
		k.lockFIFO(c, f)
		defer k.unlockFIFO(c, f)
	}
	return k.push(c, f, v)
}

func (k *Kernel) push(c *Context, f *fifo, v uint32) error {
	defer k.exit(c, k.enter(c))
	if f.len() >= len(f.buf)-1 {
		f.lost++
		return ErrBufferFull
	}
	f.buf[f.head] = v
	f.head = (f.head + 1) % len(f.buf)
	k.signalLocked(c, f.size)
	return nil
}

// ReadFIFO removes the oldest word from channel index, blocking while the
// channel is empty.
func (c *Context) ReadFIFO(index int) (uint32, error) {
	if c.isr {
		return 0, ErrNotThread
	}
	k := c.k
	f, err := k.channel(c, index)
	if err != nil {
		return 0, err
	}
	c.Wait(f.size)
	k.lockFIFO(c, f)
	defer k.unlockFIFO(c, f)
	return k.pop(c, f), nil
}

// lockFIFO takes the channel mutex for the calling thread. Ownership is
// recorded in the same critical section, so a kill at any later point
// releases it.
func (k *Kernel) lockFIFO(c *Context, f *fifo) {
	defer k.exit(c, k.enter(c))
	k.waitLocked(c, f.mutex)
	k.tcbs[c.slot].holds = f.mutex
}

func (k *Kernel) unlockFIFO(c *Context, f *fifo) {
	defer k.exit(c, k.enter(c))
	if c.killed {
		// The kill already released it.
		return
	}
	k.tcbs[c.slot].holds = 0
	k.signalLocked(c, f.mutex)
}

func (k *Kernel) pop(c *Context, f *fifo) uint32 {
	defer k.exit(c, k.enter(c))
	v := f.buf[f.tail]
	f.tail = (f.tail + 1) % len(f.buf)
	return v
}

// FIFOStats returns a snapshot of every channel.
func (k *Kernel) FIFOStats() []FIFOStats {
	k.mask.Lock()
	defer k.mask.Unlock()
	out := make([]FIFOStats, len(k.fifos))
	for i := range k.fifos {
		f := &k.fifos[i]
		out[i] = FIFOStats{
			Index: i,
			Depth: len(f.buf),
			Len:   f.len(),
			Lost:  f.lost,
			Ready: f.ready,
		}
	}
	return out
}
