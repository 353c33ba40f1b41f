package audio

import "sync"

// Tap is a fixed-size ring buffer holding the most recent mono samples of a
// capture stream. Writers are driver callbacks; readers take a snapshot of the
// latest window. Safe for concurrent use.
type Tap struct {
	mu     sync.Mutex
	buf    []float32
	pos    int
	filled int
	closed bool
}

// NewTap returns a tap retaining the last size samples. size must be positive.
func NewTap(size int) *Tap {
	if size <= 0 {
		size = DefaultFrameSize
	}
	return &Tap{buf: make([]float32, size)}
}

// Size returns the ring capacity in samples.
func (t *Tap) Size() int { return len(t.buf) }

// Write appends samples, overwriting the oldest ones. Writes after Close are
// discarded.
func (t *Tap) Write(samples []float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	size := len(t.buf)
	if len(samples) > size {
		samples = samples[len(samples)-size:]
	}
	for _, s := range samples {
		t.buf[t.pos] = s
		t.pos = (t.pos + 1) % size
	}
	t.filled = min(t.filled+len(samples), size)
}

// Latest copies the most recent len(dst) samples into dst in chronological
// order, left-padding with zeros when fewer samples have been written, and
// returns len(dst) capped at the ring capacity.
func (t *Tap) Latest(dst []float32) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	size := len(t.buf)
	n := min(len(dst), size)
	pad := max(n-t.filled, 0)
	clear(dst[:pad])
	start := (t.pos - (n - pad) + size) % size
	for i := pad; i < n; i++ {
		dst[i] = t.buf[start]
		start = (start + 1) % size
	}
	return n
}

// Close marks the tap closed. Subsequent writes are dropped; Latest keeps
// returning the last snapshot.
func (t *Tap) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}
