// Package sysmsg defines the control messages exchanged on the system
// endpoint to open and close payload endpoints.
//
// Every message travels wrapped in a Typed envelope so the receiver can
// decode it without knowing its type in advance. The wire schema is in
// sysmsg.proto.
package sysmsg
