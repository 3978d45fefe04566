package sysmsg

import (
	"github.com/golang/protobuf/proto"
)

// Open status codes.
const (
	StatusOK uint32 = iota
	StatusRefused
	StatusInvalid
)

// StatusString returns the name of an open status.
func StatusString(status uint32) string {
	switch status {
	case StatusOK:
		return "ok"
	case StatusRefused:
		return "refused"
	case StatusInvalid:
		return "invalid"
	}
	return "unknown"
}

// OpenRequest asks the peer to open an endpoint. InitialSeq is the sequence
// number of the first frame the requester will send on it.
type OpenRequest struct {
	Endpoint   uint32 `protobuf:"varint,1,opt,name=endpoint,proto3" json:"endpoint,omitempty"`
	InitialSeq uint32 `protobuf:"varint,2,opt,name=initial_seq,json=initialSeq,proto3" json:"initial_seq,omitempty"`
}

// Reset implements proto.Message.
func (m *OpenRequest) Reset() { *m = OpenRequest{} }

// String implements proto.Message.
func (m *OpenRequest) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.
func (*OpenRequest) ProtoMessage() {}

// TypeID implements Message.
func (*OpenRequest) TypeID() uint32 { return OpenRequestTypeID }

// OpenReply answers an OpenRequest.
type OpenReply struct {
	Endpoint   uint32 `protobuf:"varint,1,opt,name=endpoint,proto3" json:"endpoint,omitempty"`
	Status     uint32 `protobuf:"varint,2,opt,name=status,proto3" json:"status,omitempty"`
	InitialSeq uint32 `protobuf:"varint,3,opt,name=initial_seq,json=initialSeq,proto3" json:"initial_seq,omitempty"`
}

// Reset implements proto.Message.
func (m *OpenReply) Reset() { *m = OpenReply{} }

// String implements proto.Message.
func (m *OpenReply) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.
func (*OpenReply) ProtoMessage() {}

// TypeID implements Message.
func (*OpenReply) TypeID() uint32 { return OpenReplyTypeID }

// CloseNotice tells the peer an endpoint was closed.
type CloseNotice struct {
	Endpoint uint32 `protobuf:"varint,1,opt,name=endpoint,proto3" json:"endpoint,omitempty"`
}

// Reset implements proto.Message.
func (m *CloseNotice) Reset() { *m = CloseNotice{} }

// String implements proto.Message.
func (m *CloseNotice) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.
func (*CloseNotice) ProtoMessage() {}

// TypeID implements Message.
func (*CloseNotice) TypeID() uint32 { return CloseNoticeTypeID }
