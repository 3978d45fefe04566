package sysmsg

import (
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	testCases := []Message{
		&OpenRequest{Endpoint: 3, InitialSeq: 200},
		&OpenReply{Endpoint: 3, Status: StatusRefused, InitialSeq: 7},
		&CloseNotice{Endpoint: 31},
		&OpenRequest{},
	}
	for _, msg := range testCases {
		data, err := Encode(msg)
		require.NoError(t, err)
		decoded, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, msg.TypeID(), decoded.TypeID())
		require.True(t, proto.Equal(msg, decoded), "%v != %v", msg, decoded)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	data, err := proto.Marshal(&Typed{TypeId: 0x77})
	require.NoError(t, err)
	_, err = Decode(data)
	require.Equal(t, &ErrUnknownType{TypeID: 0x77}, err)

	_, err = Encode(nil)
	require.Equal(t, ErrEmptyMessage, err)
}

func TestTypedIsReply(t *testing.T) {
	typed, err := TypedFrom(&OpenReply{Endpoint: 1})
	require.NoError(t, err)
	require.True(t, typed.IsReply())
	typed, err = TypedFrom(&OpenRequest{Endpoint: 1})
	require.NoError(t, err)
	require.False(t, typed.IsReply())
	require.Equal(t, "refused", StatusString(StatusRefused))
}

func TestWireCompatible(t *testing.T) {
	// endpoint=3 (field 1 varint), initial_seq=200 (field 2 varint)
	data, err := proto.Marshal(&OpenRequest{Endpoint: 3, InitialSeq: 200})
	require.NoError(t, err)
	require.Equal(t, []byte{0x08, 0x03, 0x10, 0xc8, 0x01}, data)
}
