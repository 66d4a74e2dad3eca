//go:build !tinygo && !cgo

package hal

type hostKeyboard struct {
	ch     chan KeyEvent
	button func(down bool)
}

func newHostKeyboard(button func(down bool)) *hostKeyboard {
	return &hostKeyboard{ch: make(chan KeyEvent, 64), button: button}
}

func (k *hostKeyboard) Events() <-chan KeyEvent { return k.ch }

func (k *hostKeyboard) poll() {
	// No keyboard support without the window backend.
}
