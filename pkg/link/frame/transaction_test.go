package frame

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransactionRoundTrip(t *testing.T) {
	tr := NewTransaction(DefaultLimits)
	require.Equal(t, DefaultLimits.MaxPayload+Overhead, tr.Size())

	for _, f := range []*Frame{
		NewData(7, 3, 1, []byte{0, 0, 0, Flag}),
		NewAck(7, 4),
		NewResetAck(99),
		NewData(1, 0, 0, make([]byte, DefaultLimits.MaxPayload)),
	} {
		raw, err := tr.Encode(f)
		require.NoError(t, err)
		buf := make([]byte, tr.Size())
		copy(buf, raw)

		got, err := DecodeTransaction(buf, DefaultLimits)
		require.NoError(t, err)
		require.Equal(t, f.Header, got.Header)
		require.Equal(t, len(f.Payload), len(got.Payload))
	}
}

func TestTransactionDecoder(t *testing.T) {
	tr := NewTransaction(DefaultLimits)
	raw, err := tr.Encode(NewData(2, 1, 1, []byte("xyz")))
	require.NoError(t, err)
	buf := make([]byte, tr.Size())
	copy(buf, raw)

	testCases := []struct {
		name    string
		in      []byte
		frames  int
		corrupt int
	}{
		{"frame", buf, 1, 0},
		{"idle", make([]byte, tr.Size()), 0, 0},
		{"truncated", buf[:len(raw)-1], 0, 1},
		{"checksum", func() []byte {
			b := append([]byte(nil), buf...)
			b[len(raw)-1] ^= 0x80
			return b
		}(), 0, 1},
		{"length overflow", func() []byte {
			b := append([]byte(nil), buf...)
			b[4], b[5] = 0xff, 0xff
			return b
		}(), 0, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var frames, corrupt int
			tr.NewDecoder().Feed(tc.in, func(f *Frame, err error) {
				if err != nil {
					require.True(t, errors.Is(err, ErrFrameCorrupt))
					corrupt++
				} else {
					frames++
				}
			})
			require.Equal(t, tc.frames, frames)
			require.Equal(t, tc.corrupt, corrupt)
		})
	}

	_, err = DecodeTransaction(buf[:3], DefaultLimits)
	require.Equal(t, ErrNeedMoreData, err)
}

func TestTransactionLengthBeyondTransfer(t *testing.T) {
	buf := make([]byte, TransactionSize(DefaultLimits))
	// a header which would be valid, except for the length
	buf[0], buf[1] = 1, uint8(FlagData|FlagAck)
	buf[4], buf[5] = 0x00, 0x10
	f, err := DecodeTransaction(buf, DefaultLimits)
	require.Nil(t, f)
	require.True(t, errors.Is(err, ErrFrameCorrupt))
	require.Contains(t, err.Error(), "treated as corrupt")
}
