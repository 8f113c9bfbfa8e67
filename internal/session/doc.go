// Package session orchestrates one connection to the I/Q stream
// server: dial, stream header exchange, then the frame demux loop that
// feeds the demodulation chain and output sink.
package session
