package hal

import (
	"bytes"
	"io"
	"sync"
)

type logWriter struct {
	mu  sync.Mutex
	out Logger
	buf []byte
}

// LogWriter adapts a line Logger to an io.Writer. Partial lines are held
// until their newline arrives, so structured loggers can write through it.
func LogWriter(l Logger) io.Writer {
	return &logWriter{out: l}
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(w.buf[:i], "\r")
		w.out.WriteLineBytes(line)
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) == 0 {
		w.buf = nil
	}
	return len(p), nil
}
