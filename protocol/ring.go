package protocol

// Ring is a fixed-capacity byte FIFO
type Ring struct {
	buf   []byte
	read  int
	write int
}

// NewRing returns a ring holding up to capacity bytes
func NewRing(capacity int) *Ring {
	return &Ring{buf: make([]byte, capacity+1)}
}

// Write appends as much of data as fits and returns the count
func (r *Ring) Write(data []byte) int {
	n := 0
	for _, b := range data {
		next := (r.write + 1) % len(r.buf)
		if next == r.read {
			break
		}
		r.buf[r.write] = b
		r.write = next
		n++
	}
	return n
}

// Len returns the number of unread bytes
func (r *Ring) Len() int {
	if r.write >= r.read {
		return r.write - r.read
	}
	return len(r.buf) - r.read + r.write
}

// Free returns the space left
func (r *Ring) Free() int {
	return len(r.buf) - 1 - r.Len()
}

// Peek returns the unread bytes without consuming them. A wrapped ring is
// copied into one slice.
func (r *Ring) Peek() []byte {
	if r.read <= r.write {
		return r.buf[r.read:r.write]
	}
	out := make([]byte, 0, r.Len())
	out = append(out, r.buf[r.read:]...)
	return append(out, r.buf[:r.write]...)
}

// Discard drops up to n unread bytes
func (r *Ring) Discard(n int) {
	if n > r.Len() {
		n = r.Len()
	}
	r.read = (r.read + n) % len(r.buf)
}

// Reset empties the ring
func (r *Ring) Reset() {
	r.read, r.write = 0, 0
}
