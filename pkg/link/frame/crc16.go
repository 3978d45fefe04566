package frame

// CRC16 calculates the CRC-16 (polynomial 0x1021 reflected, initial 0xffff)
// of data. Appending the result in little endian to data makes the CRC of the
// whole sequence zero.
func CRC16(data []byte) uint16 {
	return updateCRC16(0xffff, data)
}

func updateCRC16(crc uint16, data []byte) uint16 {
	for _, b := range data {
		b ^= uint8(crc & 0xff)
		b ^= b << 4
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}
