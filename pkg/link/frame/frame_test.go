package frame

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC16(t *testing.T) {
	require.Equal(t, uint16(0x6f91), CRC16([]byte("123456789")))
	data := []byte{1, 2, 3, 0x7e, 0x7d, 0xff}
	crc := CRC16(data)
	require.Equal(t, uint16(0), CRC16(append(data, byte(crc), byte(crc>>8))))
}

func TestControlString(t *testing.T) {
	require.Equal(t, "DATA|ACK", (FlagData | FlagAck).String())
	require.Equal(t, "RESET-ACK", FlagResetAck.String())
	require.Equal(t, "NONE", Control(0).String())
	require.Equal(t, "POLL|0x80", (FlagPoll | 0x80).String())
	require.Equal(t, "ACK|BUSY", (FlagAck | FlagBusy).String())
}

func TestMarshalRoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		frame *Frame
	}{
		{"data", NewData(3, 17, 4, []byte("hello"))},
		{"data with flag bytes", NewData(1, 0xff, 0, []byte{Flag, Esc, Flag, 0, 0})},
		{"max payload", NewData(31, 1, 2, make([]byte, DefaultLimits.MaxPayload))},
		{"ack", NewAck(2, 9)},
		{"poll", &Frame{Header: Header{Endpoint: 5, Control: FlagPoll | FlagAck, Ack: 3}}},
		{"busy", &Frame{Header: Header{Endpoint: 5, Control: FlagBusy | FlagAck, Ack: 3}}},
		{"reset", NewReset(0xdeadbeef)},
		{"reset ack", NewResetAck(42)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Marshal(tc.frame, DefaultLimits)
			require.NoError(t, err)
			require.Len(t, raw, Overhead+len(tc.frame.Payload))
			f, err := Unmarshal(raw, DefaultLimits)
			require.NoError(t, err)
			require.Equal(t, tc.frame.Header, f.Header)
			require.Equal(t, len(tc.frame.Payload), len(f.Payload))
			if len(tc.frame.Payload) > 0 {
				require.Equal(t, tc.frame.Payload, f.Payload)
			}
		})
	}
}

func TestHandshakeNonce(t *testing.T) {
	require.Equal(t, uint32(0x01020304), NewReset(0x01020304).Nonce())
	require.True(t, NewResetAck(1).IsHandshake())
	require.False(t, NewAck(0, 1).IsHandshake())
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name  string
		frame *Frame
	}{
		{"undefined flags", &Frame{Header: Header{Control: FlagData | 0x40}}},
		{"empty control", &Frame{}},
		{"undefined endpoint", NewData(32, 0, 0, nil)},
		{"over-length payload", NewData(1, 0, 0, make([]byte, DefaultLimits.MaxPayload+1))},
		{"reset on payload endpoint", &Frame{Header: Header{Endpoint: 1, Control: FlagReset}, Payload: make([]byte, NonceSize)}},
		{"reset with data", &Frame{Header: Header{Control: FlagReset | FlagData}, Payload: make([]byte, NonceSize)}},
		{"reset and reset ack", &Frame{Header: Header{Control: FlagReset | FlagResetAck}, Payload: make([]byte, NonceSize)}},
		{"reset without nonce", &Frame{Header: Header{Control: FlagReset}}},
		{"busy without ack", &Frame{Header: Header{Endpoint: 1, Control: FlagBusy}}},
		{"reset with busy", &Frame{Header: Header{Control: FlagReset | FlagBusy | FlagAck}, Payload: make([]byte, NonceSize)}},
		{"ack with payload", &Frame{Header: Header{Endpoint: 1, Control: FlagAck}, Payload: []byte{1}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.frame.Validate(DefaultLimits)
			require.True(t, errors.Is(err, ErrFrameCorrupt), "got %v", err)
			_, err = Marshal(tc.frame, DefaultLimits)
			require.True(t, errors.Is(err, ErrFrameCorrupt))
		})
	}
}

func TestUnmarshalChecksumFirst(t *testing.T) {
	raw, err := Marshal(NewData(1, 2, 3, []byte{9, 8, 7}), DefaultLimits)
	require.NoError(t, err)

	for bit := 0; bit < len(raw)*8; bit++ {
		corrupted := append([]byte(nil), raw...)
		corrupted[bit/8] ^= 1 << uint(bit%8)
		f, err := Unmarshal(corrupted, DefaultLimits)
		require.Nil(t, f, "bit %d", bit)
		require.True(t, errors.Is(err, ErrFrameCorrupt), "bit %d", bit)
	}

	_, err = Unmarshal(raw[:Overhead-1], DefaultLimits)
	require.True(t, errors.Is(err, ErrFrameCorrupt))
}
