package protocol

import (
	"context"
	"fmt"
	"net"
	"time"
)

// pollInterval bounds how long a blocking receive can hide a cancelled
// context. Cancellation is only observed between receive attempts.
const pollInterval = 1 * time.Second

// FrameReader reads exact-length byte spans from a connected stream
// socket. A short read is connection loss; there is no partial success.
type FrameReader struct {
	conn    net.Conn
	timeout time.Duration // 0 disables the per-read timeout
}

// NewFrameReader wraps a connected socket. A non-zero timeout applies
// to each ReadFull call as a whole; zero means a stalled connection
// blocks until cancelled.
func NewFrameReader(conn net.Conn, timeout time.Duration) *FrameReader {
	return &FrameReader{
		conn:    conn,
		timeout: timeout,
	}
}

// ReadFull fills buf completely or fails. It returns ctx.Err() if the
// context is cancelled between receive attempts; a receive already in
// flight completes or errors first.
func (r *FrameReader) ReadFull(ctx context.Context, buf []byte) error {
	var deadline time.Time
	if r.timeout > 0 {
		deadline = time.Now().Add(r.timeout)
	}

	total := 0
	for total < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}

		poll := time.Now().Add(pollInterval)
		if !deadline.IsZero() && deadline.Before(poll) {
			poll = deadline
		}
		if err := r.conn.SetReadDeadline(poll); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, err := r.conn.Read(buf[total:])
		total += n
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				if !deadline.IsZero() && !time.Now().Before(deadline) {
					return fmt.Errorf("read timed out after %v (%d of %d bytes)", r.timeout, total, len(buf))
				}
				continue
			}
			return fmt.Errorf("connection lost after %d of %d bytes: %w", total, len(buf), err)
		}
	}

	return nil
}
