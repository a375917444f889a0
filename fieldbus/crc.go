package fieldbus

// crc16 computes the reflected CRC-16/CCITT checksum used to guard every
// HDLC frame on the field bus (§4.6): polynomial 0x11021 (0x1021 with its
// implicit top bit), init 0xFFFF, input bits reflected, xor-out 0. This is
// the bit-reversed form of the polynomial (0x8408) processed LSB-first,
// equivalent to crcmod.mkCrcFun(0x11021, 0xFFFF, rev=True, xorOut=0) in the
// original controller.
func crc16(data []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
