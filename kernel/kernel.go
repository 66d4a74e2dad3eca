package kernel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxThreads is the size of the thread control block pool.
	DefaultMaxThreads = 25
	// DefaultMaxPeriodic is the size of the periodic event pool.
	DefaultMaxPeriodic = 2
	// DefaultMaxSemaphores is the number of semaphores available to applications.
	DefaultMaxSemaphores = 16
	// DefaultMaxFIFOs is the number of FIFO channels.
	DefaultMaxFIFOs = 4
	// DefaultFIFODepth is the number of words per FIFO channel.
	DefaultFIFODepth = 16
	// DefaultStackSize is the private stack region per thread, in bytes.
	DefaultStackSize = 2048

	// MaxPriority is the least urgent thread priority.
	MaxPriority = 255
)

// ThreadFunc is a thread entry point. It runs on the thread's own context.
type ThreadFunc func(c *Context)

// Handler is a periodic or aperiodic event handler. It runs in interrupt
// context and must not block.
type Handler func(c *Context)

// Config sizes the kernel tables. Zero values select the defaults.
type Config struct {
	MaxThreads    int
	MaxPeriodic   int
	MaxSemaphores int
	MaxFIFOs      int
	FIFODepth     int
	StackSize     int

	Logger zerolog.Logger

	// PanicHandler is invoked at most once, when the kernel halts.
	PanicHandler func(PanicInfo)
}

func (c Config) withDefaults() Config {
	if c.MaxThreads <= 0 {
		c.MaxThreads = DefaultMaxThreads
	}
	if c.MaxPeriodic <= 0 {
		c.MaxPeriodic = DefaultMaxPeriodic
	}
	if c.MaxSemaphores <= 0 {
		c.MaxSemaphores = DefaultMaxSemaphores
	}
	if c.MaxFIFOs <= 0 {
		c.MaxFIFOs = DefaultMaxFIFOs
	}
	if c.FIFODepth < 2 {
		c.FIFODepth = DefaultFIFODepth
	}
	if c.StackSize < frameWords*4 {
		c.StackSize = DefaultStackSize
	}
	return c
}

// Kernel is the single execution environment: thread table, periodic table,
// semaphores, FIFOs, vector table and system time.
type Kernel struct {
	cfg Config
	log zerolog.Logger

	// mask is held while interrupts are masked. Every field below it is
	// guarded by mask.
	mask sync.Mutex

	tcbs     []tcb
	nThreads int
	head     int
	current  int
	idGen    uint16

	ptcbs     []ptcb
	nPeriodic int
	pHead     int

	sems     []int32
	nSems    int
	fifos    []fifo
	vectors  [irqCount]vector
	now      uint64
	pend     bool
	launched bool

	// isrMu serializes interrupt handlers; isr is the context they run on.
	isrMu        sync.Mutex
	isr          Context
	pendingIRQ   atomic.Uint64
	pendingTicks atomic.Int64

	kick chan struct{}

	halted   atomic.Bool
	haltOnce sync.Once
	haltErr  error
	done     chan struct{}

	panicOnce sync.Once
	panicked  atomic.Bool
}

// New creates a kernel with all tables allocated and empty.
func New(cfg Config) *Kernel {
	cfg = cfg.withDefaults()
	k := &Kernel{
		cfg:     cfg,
		log:     cfg.Logger,
		tcbs:    make([]tcb, cfg.MaxThreads),
		head:    -1,
		current: -1,
		ptcbs:   make([]ptcb, cfg.MaxPeriodic),
		pHead:   -1,
		sems:    make([]int32, cfg.MaxSemaphores+2*cfg.MaxFIFOs),
		fifos:   make([]fifo, cfg.MaxFIFOs),
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	k.isr = Context{k: k, slot: -1, isr: true}

	stackWords := cfg.StackSize / 4
	for i := range k.tcbs {
		k.tcbs[i].stack = make([]uint32, stackWords)
		k.tcbs[i].next, k.tcbs[i].prev = -1, -1
	}
	for i := range k.ptcbs {
		k.ptcbs[i].next, k.ptcbs[i].prev = -1, -1
	}
	for i := range k.fifos {
		f := &k.fifos[i]
		f.buf = make([]uint32, cfg.FIFODepth)
		f.size = Semaphore(cfg.MaxSemaphores + 2*i + 1)
		f.mutex = Semaphore(cfg.MaxSemaphores + 2*i + 2)
	}
	return k
}

// Launch selects the first thread, hands it the CPU and blocks until ctx is
// done or the kernel halts.
func (k *Kernel) Launch(ctx context.Context) error {
	if err := k.start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		k.halt(ctx.Err())
		return ctx.Err()
	case <-k.done:
		return k.haltErr
	}
}

func (k *Kernel) start() error {
	k.mask.Lock()
	defer k.mask.Unlock()

	if k.launched {
		return ErrAlreadyLaunched
	}
	if k.nThreads == 0 {
		return ErrNoThreadsScheduled
	}
	k.launched = true
	k.current = k.head
	k.current = k.schedule()
	t := &k.tcbs[k.current]
	k.log.Info().
		Int("threads", k.nThreads).
		Str("first", t.name).
		Stringer("id", t.id).
		Msg("kernel launched")
	if err := k.restore(t); err != nil {
		fe := &FatalError{ThreadID: t.id, Err: err}
		k.triggerPanic(PanicInfo{ThreadID: t.id, Value: fe})
		k.halt(fe)
		return fe
	}
	return nil
}

// Done is closed when the kernel halts.
func (k *Kernel) Done() <-chan struct{} { return k.done }

// Err returns the reason the kernel halted, or nil while it runs.
func (k *Kernel) Err() error {
	select {
	case <-k.done:
		return k.haltErr
	default:
		return nil
	}
}

// Now returns the system time in ticks (milliseconds).
func (k *Kernel) Now() uint64 {
	k.mask.Lock()
	defer k.mask.Unlock()
	return k.now
}

// CurrentThreadID returns the id of the thread selected as running, or 0
// before launch.
func (k *Kernel) CurrentThreadID() ThreadID {
	k.mask.Lock()
	defer k.mask.Unlock()
	if k.current < 0 {
		return 0
	}
	return k.tcbs[k.current].id
}

func (k *Kernel) halt(err error) {
	k.haltOnce.Do(func() {
		k.haltErr = err
		k.halted.Store(true)
		close(k.done)
	})
}
