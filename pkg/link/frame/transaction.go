package frame

import "encoding/binary"

// Transaction is the framing for chip-select bounded transfers. Every transfer
// has the fixed size TransactionSize and carries at most one frame.
type Transaction struct {
	limits Limits
}

// NewTransaction creates the transaction framing.
func NewTransaction(l Limits) *Transaction {
	return &Transaction{limits: l}
}

// TransactionSize is the size of a transfer able to carry the largest frame.
func TransactionSize(l Limits) int {
	return l.MaxFrameSize()
}

// Limits implements Framing.
func (t *Transaction) Limits() Limits {
	return t.limits
}

// Size returns the transfer size.
func (t *Transaction) Size() int {
	return TransactionSize(t.limits)
}

// Encode implements Framing. The result is the raw frame, the transport pads
// it with zeros up to Size.
func (t *Transaction) Encode(f *Frame) ([]byte, error) {
	return Marshal(f, t.limits)
}

// NewDecoder implements Framing.
func (t *Transaction) NewDecoder() Decoder {
	return transactionDecoder{limits: t.limits}
}

// DecodeTransaction decodes the frame at the start of a transfer buffer.
func DecodeTransaction(buf []byte, l Limits) (*Frame, error) {
	if len(buf) < HeaderSize {
		return nil, ErrNeedMoreData
	}
	if IsIdle(buf) {
		return nil, ErrIdle
	}
	// The length field only locates the checksum. A length beyond the largest
	// frame leaves no checksum to verify, so the transfer is corrupt as a
	// whole and no other field is read.
	size := int(binary.LittleEndian.Uint16(buf[4:6]))
	if size > l.MaxPayload {
		return nil, corruptf("length field %d beyond a transaction, treated as corrupt", size)
	}
	if len(buf) < Overhead+size {
		return nil, ErrNeedMoreData
	}
	return Unmarshal(buf[:Overhead+size], l)
}

type transactionDecoder struct {
	limits Limits
}

func (d transactionDecoder) Feed(p []byte, emit func(*Frame, error)) {
	f, err := DecodeTransaction(p, d.limits)
	switch err {
	case ErrIdle:
	case ErrNeedMoreData:
		emit(nil, corruptf("truncated transaction of %d bytes", len(p)))
	default:
		emit(f, err)
	}
}

// IsIdle checks if a transfer buffer starts with an all-zero header.
func IsIdle(buf []byte) bool {
	return len(buf) >= HeaderSize && isZero(buf[:HeaderSize])
}

func isZero(p []byte) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}
