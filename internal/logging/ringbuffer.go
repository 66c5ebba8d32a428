package logging

import (
	"os"
	"sync"
)

// RingBuffer keeps the last size bytes written to it. The detached worker has
// no stderr, so this is what ends up in a crash dump.
type RingBuffer struct {
	mu   sync.Mutex
	buf  []byte
	size int
	pos  int
	full bool
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 256 * 1024
	}
	return &RingBuffer{buf: make([]byte, size), size: size}
}

// Write implements io.Writer. Old data is overwritten once the buffer is full.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	if n >= rb.size {
		copy(rb.buf, p[n-rb.size:])
		rb.pos, rb.full = 0, true
		return n, nil
	}

	first := copy(rb.buf[rb.pos:], p)
	if first < n {
		copy(rb.buf, p[first:])
		rb.full = true
	}
	rb.pos = (rb.pos + n) % rb.size
	if rb.pos == 0 && n > 0 {
		rb.full = true
	}
	return n, nil
}

// Bytes returns the buffer contents in chronological order.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.full {
		return append([]byte(nil), rb.buf[:rb.pos]...)
	}
	out := make([]byte, 0, rb.size)
	out = append(out, rb.buf[rb.pos:]...)
	return append(out, rb.buf[:rb.pos]...)
}

// DumpToFile writes the buffer contents to path.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o600)
}
