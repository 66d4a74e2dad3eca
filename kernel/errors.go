package kernel

import (
	"errors"
	"fmt"
)

var (
	ErrThreadLimit          = errors.New("kernel: thread limit reached")
	ErrNoThreadsScheduled   = errors.New("kernel: no threads scheduled")
	ErrPoolInconsistent     = errors.New("kernel: thread pool inconsistent")
	ErrThreadNotFound       = errors.New("kernel: thread does not exist")
	ErrCannotKillLastThread = errors.New("kernel: cannot kill last thread")
	ErrInvalidIRQ           = errors.New("kernel: invalid interrupt number")
	ErrInvalidIRQPriority   = errors.New("kernel: invalid interrupt priority")
	ErrFIFOLimit            = errors.New("kernel: fifo limit reached")
	ErrBufferFull           = errors.New("kernel: fifo buffer full")

	ErrPeriodicLimit     = errors.New("kernel: periodic event limit reached")
	ErrSemaphoreLimit    = errors.New("kernel: semaphore limit reached")
	ErrInvalidSemaphore  = errors.New("kernel: invalid semaphore")
	ErrFIFOUninitialized = errors.New("kernel: fifo not initialized")
	ErrAlreadyLaunched   = errors.New("kernel: already launched")
	ErrNotThread         = errors.New("kernel: operation requires a thread context")
)

// FatalError reports a broken kernel invariant. The kernel halts when one is
// raised.
type FatalError struct {
	ThreadID ThreadID
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("kernel fatal (thread %s): %v", e.ThreadID, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// fatal halts the kernel and unwinds the calling goroutine. Callers hold
// their critical section through defer so the mask is released on the way out.
func (k *Kernel) fatal(c *Context, err error) {
	if c != nil {
		c.unwinding = true
	}
	var id ThreadID
	if k.current >= 0 {
		id = k.tcbs[k.current].id
	}
	fe := &FatalError{ThreadID: id, Err: err}
	k.log.Error().Err(err).Stringer("thread", id).Msg("kernel fatal")
	k.triggerPanic(PanicInfo{ThreadID: id, Value: fe})
	k.halt(fe)
	panic(fe)
}
