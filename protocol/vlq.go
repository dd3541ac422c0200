package protocol

import "errors"

var (
	ErrInvalidVLQ = errors.New("invalid VLQ encoding")
	ErrShortData  = errors.New("payload ends inside a value")
)

// AppendInt appends v in the 7-bit variable length encoding. Values in
// [-32, 96) take one byte; each further byte widens the range by 7 bits.
func AppendInt(buf []byte, v int32) []byte {
	if v < -(1<<26) || v >= 3<<26 {
		buf = append(buf, byte(v>>28)&0x7f|0x80)
	}
	if v < -(1<<19) || v >= 3<<19 {
		buf = append(buf, byte(v>>21)&0x7f|0x80)
	}
	if v < -(1<<12) || v >= 3<<12 {
		buf = append(buf, byte(v>>14)&0x7f|0x80)
	}
	if v < -(1<<5) || v >= 3<<5 {
		buf = append(buf, byte(v>>7)&0x7f|0x80)
	}
	return append(buf, byte(v)&0x7f)
}

// AppendUint appends v using the signed encoding's bit pattern
func AppendUint(buf []byte, v uint32) []byte {
	return AppendInt(buf, int32(v))
}

// AppendBool appends v as 0 or 1
func AppendBool(buf []byte, v bool) []byte {
	if v {
		return AppendUint(buf, 1)
	}
	return AppendUint(buf, 0)
}

// AppendBytes appends a length-prefixed byte string
func AppendBytes(buf, data []byte) []byte {
	buf = AppendUint(buf, uint32(len(data)))
	return append(buf, data...)
}

// AppendString appends a length-prefixed string
func AppendString(buf []byte, s string) []byte {
	buf = AppendUint(buf, uint32(len(s)))
	return append(buf, s...)
}

// Reader consumes values from a payload
type Reader struct {
	data []byte
}

// NewReader reads from data
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Len returns the number of unread bytes
func (r *Reader) Len() int {
	return len(r.data)
}

// Int reads one signed value
func (r *Reader) Int() (int32, error) {
	if len(r.data) == 0 {
		return 0, ErrShortData
	}
	c := uint32(r.data[0])
	r.data = r.data[1:]

	v := c & 0x7f
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1f)
	}
	for n := 0; c&0x80 != 0; n++ {
		if n == 4 {
			return 0, ErrInvalidVLQ
		}
		if len(r.data) == 0 {
			return 0, ErrShortData
		}
		c = uint32(r.data[0])
		r.data = r.data[1:]
		v = v<<7 | c&0x7f
	}
	return int32(v), nil
}

// Uint reads one unsigned value
func (r *Reader) Uint() (uint32, error) {
	v, err := r.Int()
	return uint32(v), err
}

// Bool reads one value and reports whether it was non-zero
func (r *Reader) Bool() (bool, error) {
	v, err := r.Uint()
	return v != 0, err
}

// Bytes reads a length-prefixed byte string. The result aliases the
// payload.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Uint()
	if err != nil {
		return nil, err
	}
	if uint32(len(r.data)) < n {
		return nil, ErrShortData
	}
	out := r.data[:n]
	r.data = r.data[n:]
	return out, nil
}

// String reads a length-prefixed string
func (r *Reader) String() (string, error) {
	b, err := r.Bytes()
	return string(b), err
}
