package kernel

// PanicInfo contains details about a kernel halt.
type PanicInfo struct {
	ThreadID ThreadID
	Value    any
	Stack    []byte
}

// InPanicMode reports whether the kernel has halted on a fatal error or a
// thread panic.
func (k *Kernel) InPanicMode() bool {
	return k.halted.Load() && k.panicked.Load()
}

// triggerPanic invokes the configured panic handler at most once. The
// handler must not panic.
func (k *Kernel) triggerPanic(info PanicInfo) {
	k.panicOnce.Do(func() {
		k.panicked.Store(true)
		info.Stack = captureStack()
		if fn := k.cfg.PanicHandler; fn != nil {
			fn(info)
		}
	})
}
