package regmap

// Bit reports whether bit i of v is set
func Bit(v uint32, i int) bool {
	return v&(1<<uint(i)) != 0
}

// SetBit returns v with bit i set to on
func SetBit(v uint32, i int, on bool) uint32 {
	if on {
		return v | 1<<uint(i)
	}
	return v &^ (1 << uint(i))
}

// Field extracts width bits of v starting at shift
func Field(v uint32, shift, width int) uint32 {
	return (v >> uint(shift)) & (1<<uint(width) - 1)
}

// SetField returns v with width bits at shift replaced by field
func SetField(v uint32, shift, width int, field uint32) uint32 {
	mask := uint32(1<<uint(width)-1) << uint(shift)
	return v&^mask | (field<<uint(shift))&mask
}

// EachSet calls fn for every set bit of v below n, lowest first
func EachSet(v uint32, n int, fn func(i int)) {
	for i := 0; i < n && i < 32; i++ {
		if v&(1<<uint(i)) != 0 {
			fn(i)
		}
	}
}

// Mask returns a value with the low n bits set
func Mask(n int) uint32 {
	if n >= 32 {
		return ^uint32(0)
	}
	return 1<<uint(n) - 1
}

// FromBools packs flags into a word, index 0 in bit 0
func FromBools(flags []bool) uint32 {
	var v uint32
	for i, f := range flags {
		if f && i < 32 {
			v |= 1 << uint(i)
		}
	}
	return v
}
