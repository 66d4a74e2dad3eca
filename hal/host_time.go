//go:build !tinygo

package hal

import "time"

const hostTickPeriod = time.Millisecond

// hostTime converts wall-clock progress into 1 ms ticks. The host runners
// call advance from their frame loop; ticks that do not fit the channel are
// dropped and show up as gaps in the sequence.
type hostTime struct {
	ch  chan uint64
	seq uint64

	last time.Time
	acc  time.Duration
}

func newHostTime() *hostTime {
	return &hostTime{ch: make(chan uint64, 1024)}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

func (t *hostTime) advance(now time.Time) {
	if t.last.IsZero() {
		t.last = now
		t.acc = 0
		return
	}

	t.acc += now.Sub(t.last)
	t.last = now

	ticks := uint64(t.acc / hostTickPeriod)
	if ticks == 0 {
		return
	}
	t.acc %= hostTickPeriod
	t.emit(ticks)
}

func (t *hostTime) emit(n uint64) {
	for i := uint64(0); i < n; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
