package kernel

import "fmt"

// Initial exception frame written at the top of a fresh thread stack:
// r4-r11 (software saved), then r0-r3, r12, lr, pc, xpsr (hardware saved).
const (
	frameWords = 16

	frameLR  = 13
	framePC  = 14
	framePSR = 15

	// thumbBit is the xPSR execution state bit; a restored frame without it
	// faults on real hardware.
	thumbBit uint32 = 0x01000000

	// excReturnThread returns to thread mode on the process stack.
	excReturnThread uint32 = 0xFFFFFFFD
)

// buildFrame prepares the slot's stack so the first restore enters the
// thread. The pc word holds the thread id; the entry point itself lives in
// the TCB.
func (t *tcb) buildFrame(slot int) {
	top := len(t.stack) - frameWords
	for i := 0; i < frameLR; i++ {
		t.stack[top+i] = uint32(i * (slot + 1))
	}
	t.stack[top+frameLR] = excReturnThread
	t.stack[top+framePC] = uint32(t.id)
	t.stack[top+framePSR] = thumbBit
	t.sp = top
}

// checkFrame validates the frame a first restore would pop.
func (t *tcb) checkFrame() error {
	if t.sp < 0 || t.sp+frameWords > len(t.stack) {
		return fmt.Errorf("%w: thread %s stack pointer %d out of range", ErrPoolInconsistent, t.id, t.sp)
	}
	if t.stack[t.sp+framePSR]&thumbBit == 0 {
		return fmt.Errorf("%w: thread %s frame has no thumb bit", ErrPoolInconsistent, t.id)
	}
	if t.stack[t.sp+framePC] != uint32(t.id) {
		return fmt.Errorf("%w: thread %s frame belongs to another thread", ErrPoolInconsistent, t.id)
	}
	return nil
}
