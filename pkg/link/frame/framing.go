package frame

// Framing converts frames to and from the representation used by a physical
// link.
type Framing interface {
	Limits() Limits
	// Encode serializes a frame for the wire.
	Encode(f *Frame) ([]byte, error)
	// NewDecoder creates a decoder for one receive path.
	NewDecoder() Decoder
}

// Decoder reassembles frames from raw input.
type Decoder interface {
	// Feed consumes p and calls emit once for every complete frame, or with an
	// error wrapping ErrFrameCorrupt for every frame discarded.
	Feed(p []byte, emit func(*Frame, error))
}
