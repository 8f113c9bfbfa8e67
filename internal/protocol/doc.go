// Package protocol implements the PHXI I/Q stream wire format.
// It handles the little-endian binary protocol: the one-shot stream
// header, the common frame header, data frame payloads, and metadata
// snapshots, plus exact-length reads from the stream socket.
package protocol
