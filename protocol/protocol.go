// Package protocol implements the framed serial link used to drive a
// simulated board from another process or machine.
//
// A frame is
//
//	len seq payload... crc_hi crc_lo 0x7e
//
// where len counts the whole frame and the CRC covers len, seq and the
// payload. Payloads are a command id followed by its arguments, all VLQ
// encoded. A frame with an empty payload is an acknowledgement carrying the
// next sequence the receiver expects.
package protocol

import "errors"

const (
	FrameHeaderSize  = 2
	FrameTrailerSize = 3
	FrameMin         = FrameHeaderSize + FrameTrailerSize
	FrameMax         = 64
	PayloadMax       = FrameMax - FrameMin

	posLen = 0
	posSeq = 1

	SyncByte = 0x7e

	// Sequence numbers live in the low nibble; the high nibble is fixed.
	SeqMask = 0x0f
	SeqBase = 0x10
)

var (
	ErrFrameTooLong = errors.New("frame too long")
	ErrClosed       = errors.New("link closed")
	ErrTimeout      = errors.New("timed out")
)

// NextSeq returns the sequence following seq
func NextSeq(seq uint8) uint8 {
	return (seq+1)&SeqMask | SeqBase
}
