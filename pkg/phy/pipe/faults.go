package pipe

// FlipBit corrupts a copy of the transmission at the given bit offset.
func FlipBit(data []byte, bit int) []byte {
	out := append([]byte(nil), data...)
	if bit/8 < len(out) {
		out[bit/8] ^= 1 << uint(bit%8)
	}
	return out
}

// Nth applies fault only to the transmissions selected by match, which
// receives the zero-based transmission index.
func Nth(match func(n int) bool, fault Fault) Fault {
	n := -1
	return func(data []byte) []byte {
		n++
		if match(n) {
			return fault(data)
		}
		return data
	}
}

// Drop is a Fault losing every transmission.
func Drop(data []byte) []byte {
	return nil
}
