package frame

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Control is the set of control flags in a frame header.
type Control uint8

// Control flags.
const (
	// FlagData marks a frame carrying an endpoint payload.
	FlagData Control = 1 << iota
	// FlagAck marks the Ack field as valid.
	FlagAck
	// FlagReset requests a link reset.
	FlagReset
	// FlagResetAck confirms a link reset.
	FlagResetAck
	// FlagPoll asks the peer to answer with its current acknowledgment.
	FlagPoll
	// FlagBusy reports the receive queue of the endpoint is full. The
	// acknowledgment does not cover the rejected frame.
	FlagBusy

	flagsDefined = FlagData | FlagAck | FlagReset | FlagResetAck | FlagPoll | FlagBusy
)

// Has checks if all flags in f are set.
func (c Control) Has(f Control) bool {
	return c&f == f
}

func (c Control) String() string {
	var names []string
	for _, f := range []struct {
		flag Control
		name string
	}{
		{FlagData, "DATA"},
		{FlagAck, "ACK"},
		{FlagReset, "RESET"},
		{FlagResetAck, "RESET-ACK"},
		{FlagPoll, "POLL"},
		{FlagBusy, "BUSY"},
	} {
		if c.Has(f.flag) {
			names = append(names, f.name)
		}
	}
	if rest := c &^ flagsDefined; rest != 0 {
		names = append(names, fmt.Sprintf("0x%02x", uint8(rest)))
	}
	if len(names) == 0 {
		return "NONE"
	}
	return strings.Join(names, "|")
}

// Frame layout.
const (
	HeaderSize  = 6
	TrailerSize = 2
	Overhead    = HeaderSize + TrailerSize

	// NonceSize is the size of the payload of RESET and RESET-ACK frames.
	NonceSize = 4

	// SystemEndpoint is the endpoint carrying link management traffic.
	SystemEndpoint uint8 = 0
)

// Limits bounds what a codec accepts as a well-formed frame.
type Limits struct {
	// MaxPayload is the largest payload size.
	MaxPayload int
	// MaxEndpoints is the number of endpoint ids, valid ids are [0, MaxEndpoints).
	MaxEndpoints int
}

// DefaultLimits are used when no limits are configured.
var DefaultLimits = Limits{
	MaxPayload:   256,
	MaxEndpoints: 32,
}

// MaxFrameSize is the largest raw frame (header, payload and trailer).
func (l Limits) MaxFrameSize() int {
	return Overhead + l.MaxPayload
}

// Header is the frame header.
type Header struct {
	Endpoint uint8
	Control  Control
	Seq      uint8
	Ack      uint8
}

// Frame is the unit of transmission.
type Frame struct {
	Header
	Payload []byte
}

// NewData creates a DATA frame acknowledging ack.
func NewData(endpoint, seq, ack uint8, payload []byte) *Frame {
	return &Frame{
		Header:  Header{Endpoint: endpoint, Control: FlagData | FlagAck, Seq: seq, Ack: ack},
		Payload: payload,
	}
}

// NewAck creates an ACK-only frame.
func NewAck(endpoint, ack uint8) *Frame {
	return &Frame{Header: Header{Endpoint: endpoint, Control: FlagAck, Ack: ack}}
}

// NewReset creates a RESET frame carrying the handshake nonce.
func NewReset(nonce uint32) *Frame {
	return newHandshake(FlagReset, nonce)
}

// NewResetAck creates a RESET-ACK frame echoing the handshake nonce.
func NewResetAck(nonce uint32) *Frame {
	return newHandshake(FlagResetAck, nonce)
}

func newHandshake(flag Control, nonce uint32) *Frame {
	f := &Frame{
		Header:  Header{Endpoint: SystemEndpoint, Control: flag},
		Payload: make([]byte, NonceSize),
	}
	binary.LittleEndian.PutUint32(f.Payload, nonce)
	return f
}

// Nonce extracts the handshake nonce from a RESET or RESET-ACK frame.
func (f *Frame) Nonce() uint32 {
	if len(f.Payload) < NonceSize {
		return 0
	}
	return binary.LittleEndian.Uint32(f.Payload)
}

// IsHandshake indicates a RESET or RESET-ACK frame.
func (f *Frame) IsHandshake() bool {
	return f.Control&(FlagReset|FlagResetAck) != 0
}

func (f *Frame) String() string {
	return fmt.Sprintf("ep=%d %s seq=%d ack=%d len=%d", f.Endpoint, f.Control, f.Seq, f.Ack, len(f.Payload))
}

// Validate checks the header fields against l.
func (f *Frame) Validate(l Limits) error {
	if f.Control&^flagsDefined != 0 {
		return corruptf("undefined control flags %s", f.Control)
	}
	if f.Control == 0 {
		return corruptf("empty control")
	}
	if int(f.Endpoint) >= l.MaxEndpoints {
		return corruptf("undefined endpoint %d", f.Endpoint)
	}
	if len(f.Payload) > l.MaxPayload {
		return corruptf("payload length %d exceeds %d", len(f.Payload), l.MaxPayload)
	}
	if f.IsHandshake() {
		if f.Control.Has(FlagReset|FlagResetAck) || f.Control&(FlagData|FlagPoll|FlagBusy) != 0 {
			return corruptf("invalid handshake control %s", f.Control)
		}
		if f.Endpoint != SystemEndpoint {
			return corruptf("handshake on endpoint %d", f.Endpoint)
		}
		if len(f.Payload) != NonceSize {
			return corruptf("handshake payload length %d", len(f.Payload))
		}
		return nil
	}
	if f.Control.Has(FlagBusy) && !f.Control.Has(FlagAck) {
		return corruptf("BUSY without ACK")
	}
	if !f.Control.Has(FlagData) && len(f.Payload) > 0 {
		return corruptf("payload on %s frame", f.Control)
	}
	return nil
}

// Marshal encodes a frame into its raw form (header, payload, trailer).
func Marshal(f *Frame, l Limits) ([]byte, error) {
	if err := f.Validate(l); err != nil {
		return nil, err
	}
	raw := make([]byte, HeaderSize+len(f.Payload)+TrailerSize)
	putHeader(raw, f)
	copy(raw[HeaderSize:], f.Payload)
	n := HeaderSize + len(f.Payload)
	binary.LittleEndian.PutUint16(raw[n:], CRC16(raw[:n]))
	return raw, nil
}

// Unmarshal decodes exactly one raw frame. The checksum is verified before any
// header field is looked at.
func Unmarshal(raw []byte, l Limits) (*Frame, error) {
	if len(raw) < Overhead {
		return nil, corruptf("short frame of %d bytes", len(raw))
	}
	if CRC16(raw) != 0 {
		return nil, corruptf("checksum mismatch")
	}
	size := int(binary.LittleEndian.Uint16(raw[4:6]))
	if size != len(raw)-Overhead {
		return nil, corruptf("length field %d, got %d bytes", size, len(raw)-Overhead)
	}
	f := &Frame{Header: readHeader(raw)}
	if size > 0 {
		f.Payload = make([]byte, size)
		copy(f.Payload, raw[HeaderSize:HeaderSize+size])
	}
	if err := f.Validate(l); err != nil {
		return nil, err
	}
	return f, nil
}

func putHeader(b []byte, f *Frame) {
	b[0], b[1], b[2], b[3] = f.Endpoint, uint8(f.Control), f.Seq, f.Ack
	binary.LittleEndian.PutUint16(b[4:6], uint16(len(f.Payload)))
}

func readHeader(b []byte) Header {
	return Header{Endpoint: b[0], Control: Control(b[1]), Seq: b[2], Ack: b[3]}
}
