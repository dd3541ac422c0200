package protocol

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestVLQIntRoundTrip(t *testing.T) {
	testCases := []struct {
		value int32
		size  int
	}{
		{0, 1},
		{1, 1},
		{-1, 1},
		{-32, 1},
		{95, 1},
		{96, 2},
		{-33, 2},
		{1000, 2},
		{-1000, 2},
		{65535, 3},
		{1000000, 3},
		{-1000000, 4},
		{math.MaxInt32, 5},
		{math.MinInt32, 5},
	}

	for _, tc := range testCases {
		encoded := AppendInt(nil, tc.value)
		if len(encoded) != tc.size {
			t.Errorf("Expected %d to encode in %d bytes, got %d (%x)", tc.value, tc.size, len(encoded), encoded)
		}
		r := NewReader(encoded)
		got, err := r.Int()
		if err != nil {
			t.Errorf("Failed to decode %d: %v", tc.value, err)
			continue
		}
		if got != tc.value {
			t.Errorf("Expected %d, got %d", tc.value, got)
		}
		if r.Len() != 0 {
			t.Errorf("Expected all bytes consumed for %d, %d left", tc.value, r.Len())
		}
	}
}

func TestVLQUint(t *testing.T) {
	for _, v := range []uint32{0, 127, 128, 0xffff, 0x40010000, math.MaxUint32} {
		got, err := NewReader(AppendUint(nil, v)).Uint()
		if err != nil || got != v {
			t.Errorf("Expected %#x, got %#x (%v)", v, got, err)
		}
	}
}

func TestVLQSequence(t *testing.T) {
	buf := AppendUint(nil, 7)
	buf = AppendBool(buf, true)
	buf = AppendBytes(buf, []byte{1, 2, 3})
	buf = AppendString(buf, "gpio0")
	buf = AppendInt(buf, -5)

	r := NewReader(buf)
	if v, _ := r.Uint(); v != 7 {
		t.Errorf("Expected 7, got %d", v)
	}
	if v, _ := r.Bool(); !v {
		t.Errorf("Expected true, got false")
	}
	if v, _ := r.Bytes(); !bytes.Equal(v, []byte{1, 2, 3}) {
		t.Errorf("Expected [1 2 3], got %v", v)
	}
	if v, _ := r.String(); v != "gpio0" {
		t.Errorf("Expected gpio0, got %q", v)
	}
	if v, _ := r.Int(); v != -5 {
		t.Errorf("Expected -5, got %d", v)
	}
	if _, err := r.Uint(); !errors.Is(err, ErrShortData) {
		t.Errorf("Expected ErrShortData at end, got %v", err)
	}
}

func TestVLQMalformed(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
		err  error
	}{
		{"truncated", []byte{0x81}, ErrShortData},
		{"too long", []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}, ErrInvalidVLQ},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewReader(tc.data).Int()
			if !errors.Is(err, tc.err) {
				t.Errorf("Expected %v, got %v", tc.err, err)
			}
		})
	}

	if _, err := NewReader(AppendUint(nil, 10)).Bytes(); !errors.Is(err, ErrShortData) {
		t.Errorf("Expected ErrShortData for short byte string, got %v", err)
	}
}
