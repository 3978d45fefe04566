package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustEncodeStream(t *testing.T, f *Frame) []byte {
	encoded, err := NewStream(DefaultLimits).Encode(f)
	require.NoError(t, err)
	return encoded
}

func TestEscape(t *testing.T) {
	require.Equal(t, []byte{1, Esc, 0x5e, Esc, 0x5d, 2, Flag}, Escape([]byte{1, Flag, Esc, 2}))
	require.Equal(t, []byte{Flag}, Escape(nil))
}

func TestStreamRoundTrip(t *testing.T) {
	frames := []*Frame{
		NewReset(0x7e7d7e7d),
		NewData(1, 0, 0, []byte{Flag, Flag, Esc}),
		NewAck(1, 1),
		NewData(2, 0x7e, 0x7d, bytes.Repeat([]byte{Esc}, 64)),
	}
	var wire []byte
	for _, f := range frames {
		encoded := mustEncodeStream(t, f)
		require.Equal(t, 1, bytes.Count(encoded, []byte{Flag}), "only the trailing flag is unescaped")
		wire = append(wire, encoded...)
	}

	dec := NewStreamDecoder(DefaultLimits)
	var got []*Frame
	dec.Feed(wire, func(f *Frame, err error) {
		require.NoError(t, err)
		got = append(got, f)
	})
	require.Len(t, got, len(frames))
	for n, f := range frames {
		require.Equal(t, f.Header, got[n].Header)
		require.Equal(t, f.Payload, got[n].Payload)
	}
}

func TestStreamDecodeCursor(t *testing.T) {
	encoded := mustEncodeStream(t, NewData(4, 1, 2, []byte("abc")))
	dec := NewStreamDecoder(DefaultLimits)

	f, n, err := dec.Decode(encoded[:3])
	require.Equal(t, ErrNeedMoreData, err)
	require.Nil(t, f)
	require.Equal(t, 3, n)

	rest := append(append([]byte(nil), encoded[3:]...), 0xaa, 0xbb)
	f, n, err = dec.Decode(rest)
	require.NoError(t, err)
	require.Equal(t, len(encoded)-3, n)
	require.Equal(t, []byte("abc"), f.Payload)
	require.Equal(t, uint8(4), f.Endpoint)
}

func TestStreamResync(t *testing.T) {
	good := mustEncodeStream(t, NewData(1, 5, 0, []byte("payload")))
	bad := append([]byte(nil), good...)
	bad[2] ^= 0x01

	testCases := []struct {
		name    string
		wire    []byte
		corrupt int
	}{
		{"garbage before frame", append([]byte{0x11, 0x22, Flag}, good...), 1},
		{"corrupt then good", append(bad, good...), 1},
		{"empty frames", append([]byte{Flag, Flag, Flag}, good...), 0},
		{"double escape", append([]byte{1, Esc, Esc, 3, 4, Flag}, good...), 1},
		{"escape before flag", append([]byte{1, 2, Esc, Flag}, good...), 1},
		{"over-length", append(bytes.Repeat([]byte{0x55}, DefaultLimits.MaxFrameSize()+10), append([]byte{Flag}, good...)...), 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dec := NewStreamDecoder(DefaultLimits)
			var frames []*Frame
			var corrupt int
			dec.Feed(tc.wire, func(f *Frame, err error) {
				if err != nil {
					require.True(t, errors.Is(err, ErrFrameCorrupt), "got %v", err)
					corrupt++
					return
				}
				frames = append(frames, f)
			})
			require.Equal(t, tc.corrupt, corrupt)
			require.Len(t, frames, 1)
			require.Equal(t, []byte("payload"), frames[0].Payload)
		})
	}
}

func TestStreamEncodeRejectsInvalid(t *testing.T) {
	_, err := NewStream(DefaultLimits).Encode(NewData(200, 0, 0, nil))
	require.True(t, errors.Is(err, ErrFrameCorrupt))
}
