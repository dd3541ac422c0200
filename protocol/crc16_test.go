package protocol

import "testing"

func TestCRC16(t *testing.T) {
	testCases := []struct {
		data     []byte
		expected uint16
	}{
		{[]byte{}, 0xffff},
		{[]byte("123456789"), 0x6f91},
	}

	for _, tc := range testCases {
		if got := CRC16(tc.data); got != tc.expected {
			t.Errorf("Expected CRC16(%q) = %#04x, got %#04x", tc.data, tc.expected, got)
		}
	}
}

func TestCRC16DetectsChange(t *testing.T) {
	if CRC16([]byte{1, 2, 3}) == CRC16([]byte{1, 2, 4}) {
		t.Errorf("Expected different checksums for different data")
	}
}
