package frame

// Stream framing bytes.
const (
	Flag   byte = 0x7e
	Esc    byte = 0x7d
	EscXor byte = 0x20
)

// Stream is the framing for byte streams.
type Stream struct {
	limits Limits
}

// NewStream creates the byte stream framing.
func NewStream(l Limits) *Stream {
	return &Stream{limits: l}
}

// Limits implements Framing.
func (s *Stream) Limits() Limits {
	return s.limits
}

// Encode implements Framing.
func (s *Stream) Encode(f *Frame) ([]byte, error) {
	raw, err := Marshal(f, s.limits)
	if err != nil {
		return nil, err
	}
	return Escape(raw), nil
}

// NewDecoder implements Framing.
func (s *Stream) NewDecoder() Decoder {
	return NewStreamDecoder(s.limits)
}

// Escape stuffs raw and appends the trailing Flag.
func Escape(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+len(raw)/16+2)
	for _, b := range raw {
		if b == Flag || b == Esc {
			out = append(out, Esc, b^EscXor)
		} else {
			out = append(out, b)
		}
	}
	return append(out, Flag)
}

// StreamDecoder parses a byte stream into frames.
type StreamDecoder struct {
	limits  Limits
	buf     []byte
	escaped bool
	discard bool
}

// NewStreamDecoder creates a StreamDecoder.
func NewStreamDecoder(l Limits) *StreamDecoder {
	return &StreamDecoder{limits: l, buf: make([]byte, 0, l.MaxFrameSize())}
}

// Reset drops any partially received frame.
func (d *StreamDecoder) Reset() {
	d.buf, d.escaped, d.discard = d.buf[:0], false, false
}

// Parse consumes one byte. It returns a frame when b completes one, an error
// wrapping ErrFrameCorrupt when the frame is discarded, or nothing while a frame
// is still incomplete.
func (d *StreamDecoder) Parse(b byte) (*Frame, error) {
	switch {
	case b == Flag:
		return d.frameReady()
	case d.discard:
		return nil, nil
	case b == Esc:
		if d.escaped {
			return d.resync("invalid escape sequence")
		}
		d.escaped = true
		return nil, nil
	}
	if d.escaped {
		b ^= EscXor
		d.escaped = false
	}
	if len(d.buf) >= d.limits.MaxFrameSize() {
		return d.resync("frame exceeds %d bytes", d.limits.MaxFrameSize())
	}
	d.buf = append(d.buf, b)
	return nil, nil
}

// Decode consumes bytes from p until a frame completes. It returns the number
// of bytes consumed and ErrNeedMoreData when p ends inside a frame.
func (d *StreamDecoder) Decode(p []byte) (*Frame, int, error) {
	for n, b := range p {
		f, err := d.Parse(b)
		if f != nil || err != nil {
			return f, n + 1, err
		}
	}
	return nil, len(p), ErrNeedMoreData
}

// Feed implements Decoder.
func (d *StreamDecoder) Feed(p []byte, emit func(*Frame, error)) {
	for len(p) > 0 {
		f, n, err := d.Decode(p)
		p = p[n:]
		if err == ErrNeedMoreData {
			return
		}
		emit(f, err)
	}
}

// resync discards everything up to the next Flag.
func (d *StreamDecoder) resync(format string, args ...interface{}) (*Frame, error) {
	d.buf, d.escaped, d.discard = d.buf[:0], false, true
	return nil, corruptf(format, args...)
}

func (d *StreamDecoder) frameReady() (*Frame, error) {
	raw, escaped, discard := d.buf, d.escaped, d.discard
	d.Reset()
	if discard || (len(raw) == 0 && !escaped) {
		return nil, nil
	}
	if escaped {
		return nil, corruptf("escape before flag")
	}
	return Unmarshal(raw, d.limits)
}
