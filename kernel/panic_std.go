//go:build !tinygo

package kernel

import "runtime"

const maxPanicStack = 8 << 10

func captureStack() []byte {
	buf := make([]byte, maxPanicStack)
	return buf[:runtime.Stack(buf, false)]
}
