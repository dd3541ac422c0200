package regmap

// TwoWay is a bidirectional lookup table between a register encoding and
// the value it decodes to
type TwoWay[A comparable, B comparable] struct {
	forward map[A]B
	reverse map[B]A
}

// NewTwoWay creates an empty table
func NewTwoWay[A comparable, B comparable]() *TwoWay[A, B] {
	return &TwoWay[A, B]{
		forward: make(map[A]B),
		reverse: make(map[B]A),
	}
}

// Add maps a to b and b to a. A later Add for the same b replaces only
// the reverse entry, so several encodings may decode to one value while
// encoding picks the last one added.
func (t *TwoWay[A, B]) Add(a A, b B) *TwoWay[A, B] {
	t.forward[a] = b
	t.reverse[b] = a
	return t
}

// Decode returns the value for encoding a
func (t *TwoWay[A, B]) Decode(a A) (B, bool) {
	b, ok := t.forward[a]
	return b, ok
}

// Encode returns the encoding of value b
func (t *TwoWay[A, B]) Encode(b B) (A, bool) {
	a, ok := t.reverse[b]
	return a, ok
}

// Len returns the number of encodings
func (t *TwoWay[A, B]) Len() int {
	return len(t.forward)
}
