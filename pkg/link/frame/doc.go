// Package frame provides the wire codec of the co-processor link.
package frame

// A frame is a 6-byte header, an opaque payload and a CRC-16 trailer:
//
//   +----------+---------+-----+-----+----------------+---------+-------+
//   | endpoint | control | seq | ack | length (LE 16) | payload | crc16 |
//   +----------+---------+-----+-----+----------------+---------+-------+
//
// The CRC covers header and payload. Nothing in a frame is trusted before
// the CRC validates.
//
// Two framings carry frames over a physical link:
//
// Stream is used on byte streams (UART). FLAG and ESC bytes inside a frame are
// escaped and every frame is terminated by FLAG, so a receiver recovers from
// garbage by skipping to the next FLAG.
//
// Transaction is used on chip-select bounded transfers (SPI). The transfer
// itself delimits the frame, the header length tells where the frame ends and
// the rest of the transfer is zero padding.
