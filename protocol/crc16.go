package protocol

// CRC16 is the reflected CCITT checksum (polynomial 0x8408, seed 0xffff)
// used on every frame
func CRC16(data []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range data {
		b ^= uint8(crc)
		b ^= b << 4
		w := uint16(b)
		crc = (w<<8 | crc>>8) ^ (w >> 4) ^ (w << 3)
	}
	return crc
}
