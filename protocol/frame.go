package protocol

import "fmt"

// Frame is one decoded frame
type Frame struct {
	Seq     uint8
	Payload []byte
}

// IsAck reports whether the frame carries no payload
func (f Frame) IsAck() bool {
	return len(f.Payload) == 0
}

// Encode builds the wire form of a frame
func Encode(seq uint8, payload []byte) ([]byte, error) {
	n := FrameMin + len(payload)
	if n > FrameMax {
		return nil, fmt.Errorf("%d byte payload: %w", len(payload), ErrFrameTooLong)
	}
	out := make([]byte, 0, n)
	out = append(out, byte(n), seq)
	out = append(out, payload...)
	crc := CRC16(out)
	return append(out, byte(crc>>8), byte(crc), SyncByte), nil
}

// Scanner extracts frames from a byte stream. Bytes that do not form a
// valid frame are skipped up to the next sync byte.
type Scanner struct {
	buf     *Ring
	synced  bool
	dropped int
}

// NewScanner returns a scanner with room for capacity unread bytes
func NewScanner(capacity int) *Scanner {
	return &Scanner{buf: NewRing(capacity), synced: true}
}

// Feed adds received bytes and returns how many fit
func (s *Scanner) Feed(data []byte) int {
	return s.buf.Write(data)
}

// Dropped returns how many frames were discarded as corrupt
func (s *Scanner) Dropped() int {
	return s.dropped
}

// Next returns the next complete frame. ok is false when more bytes are
// needed.
func (s *Scanner) Next() (f Frame, ok bool) {
	for {
		data := s.buf.Peek()
		if len(data) == 0 {
			return Frame{}, false
		}
		if !s.synced {
			i := indexByte(data, SyncByte)
			if i < 0 {
				s.buf.Discard(len(data))
				return Frame{}, false
			}
			s.buf.Discard(i + 1)
			s.synced = true
			continue
		}
		if data[0] == SyncByte {
			s.buf.Discard(1)
			continue
		}
		if len(data) < FrameMin {
			return Frame{}, false
		}
		n := int(data[posLen])
		if n < FrameMin || n > FrameMax || data[posSeq]&^SeqMask != SeqBase {
			s.desync()
			continue
		}
		if len(data) < n {
			return Frame{}, false
		}
		if data[n-1] != SyncByte {
			s.desync()
			continue
		}
		want := uint16(data[n-3])<<8 | uint16(data[n-2])
		if CRC16(data[:n-FrameTrailerSize]) != want {
			s.desync()
			continue
		}
		payload := make([]byte, n-FrameMin)
		copy(payload, data[FrameHeaderSize:n-FrameTrailerSize])
		f = Frame{Seq: data[posSeq], Payload: payload}
		s.buf.Discard(n)
		return f, true
	}
}

func (s *Scanner) desync() {
	s.synced = false
	s.dropped++
}

func indexByte(data []byte, c byte) int {
	for i, b := range data {
		if b == c {
			return i
		}
	}
	return -1
}
