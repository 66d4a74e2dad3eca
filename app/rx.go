package app

import "sync"

// rxQueue is the UART receive buffer between the serial reader and the
// receive interrupt handler.
type rxQueue struct {
	mu  sync.Mutex
	buf []byte
	max int
	// dropped counts bytes discarded on overflow.
	dropped int
}

func newRxQueue(size int) *rxQueue {
	return &rxQueue{max: size}
}

func (q *rxQueue) push(p []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	room := q.max - len(q.buf)
	if len(p) > room {
		q.dropped += len(p) - room
		p = p[:room]
	}
	q.buf = append(q.buf, p...)
}

func (q *rxQueue) peek() (byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return 0, false
	}
	return q.buf[0], true
}

func (q *rxQueue) pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) > 0 {
		q.buf = q.buf[1:]
	}
}

func (q *rxQueue) drops() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *rxQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
