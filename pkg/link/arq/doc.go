// Package arq implements the sliding window retransmission engine used per
// endpoint and per direction of a link.
//
// Sequence numbers are 8-bit and wrap. A Sender keeps every pushed payload in
// a fixed ring of window size slots until a cumulative acknowledgment retires
// it or its retries are exhausted. A Receiver accepts strictly in-order frames
// and keeps acknowledging the next expected sequence number, which makes the
// peer resend anything it missed.
package arq
