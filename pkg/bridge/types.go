package bridge

import "context"

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// Endpoint is the link side of a bridge. It is implemented by *link.Endpoint.
type Endpoint interface {
	ID() uint8
	Send([]byte) error
	Recv(context.Context) ([]byte, error)
}
