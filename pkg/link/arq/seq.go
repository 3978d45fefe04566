package arq

// Seq is a sequence number modulo 256.
type Seq uint8

// SeqSpace is the number of distinct sequence numbers.
const SeqSpace = 256

// MaxWindow is the largest window for which sequence numbers stay unambiguous.
const MaxWindow = SeqSpace / 2

// Next returns the sequence number following s.
func (s Seq) Next() Seq {
	return s + 1
}

// Add advances s by n.
func (s Seq) Add(n int) Seq {
	return s + Seq(n)
}

// Distance returns how far to is ahead of s, in [0, SeqSpace).
func (s Seq) Distance(to Seq) int {
	return int(uint8(to - s))
}

// InWindow checks if s is within [base, base+size).
func (s Seq) InWindow(base Seq, size int) bool {
	return base.Distance(s) < size
}
