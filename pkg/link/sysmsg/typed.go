package sysmsg

import (
	"errors"
	"fmt"

	"github.com/golang/protobuf/proto"
)

// TypeID masks
const (
	TypeIDMaskID    uint32 = 0x0000ffff
	TypeIDMaskReply uint32 = 0x00008000
)

// Message type ids.
const (
	OpenRequestTypeID uint32 = 0x0001
	OpenReplyTypeID          = OpenRequestTypeID | TypeIDMaskReply
	CloseNoticeTypeID uint32 = 0x0002
)

// Message is a control message.
type Message interface {
	proto.Message
	TypeID() uint32
}

// MessageTypes maps type ids to message constructors.
var MessageTypes = map[uint32]func() Message{
	OpenRequestTypeID: func() Message { return &OpenRequest{} },
	OpenReplyTypeID:   func() Message { return &OpenReply{} },
	CloseNoticeTypeID: func() Message { return &CloseNotice{} },
}

// ErrUnknownType indicates unknown type id.
type ErrUnknownType struct {
	TypeID uint32
}

// Error implements error.
func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown type: %x", e.TypeID)
}

// ErrEmptyMessage indicates a nil message was given to Encode.
var ErrEmptyMessage = errors.New("empty message")

// Typed wraps a message with type information.
type Typed struct {
	TypeId  uint32 `protobuf:"varint,1,opt,name=type_id,json=typeId,proto3" json:"type_id,omitempty"`
	Message []byte `protobuf:"bytes,2,opt,name=message,proto3" json:"message,omitempty"`
}

// Reset implements proto.Message.
func (m *Typed) Reset() { *m = Typed{} }

// String implements proto.Message.
func (m *Typed) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.
func (*Typed) ProtoMessage() {}

// IsReply determines if the message is a reply.
func (m *Typed) IsReply() bool {
	return m.TypeId&TypeIDMaskReply != 0
}

// Decode decodes the wrapped message.
func (m *Typed) Decode() (Message, error) {
	newMsg, ok := MessageTypes[m.TypeId]
	if !ok {
		return nil, &ErrUnknownType{TypeID: m.TypeId}
	}
	msg := newMsg()
	if err := proto.Unmarshal(m.Message, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// TypedFrom wraps a message.
func TypedFrom(msg Message) (*Typed, error) {
	if msg == nil {
		return nil, ErrEmptyMessage
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &Typed{TypeId: msg.TypeID(), Message: data}, nil
}

// Encode wraps and serializes a message.
func Encode(msg Message) ([]byte, error) {
	typed, err := TypedFrom(msg)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(typed)
}

// Decode parses a serialized envelope and the message inside.
func Decode(data []byte) (Message, error) {
	var typed Typed
	if err := proto.Unmarshal(data, &typed); err != nil {
		return nil, err
	}
	return typed.Decode()
}
