package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// DefaultAnnouncePort is the UDP port service announcements arrive on.
const DefaultAnnouncePort = 4534

// maxAnnouncementSize bounds a single announcement datagram.
const maxAnnouncementSize = 2048

// Listener receives JSON-encoded service announcements over UDP and
// forwards them to a notification callback. It is the in-process stand-in
// for the external discovery collaborator's listen interface.
type Listener struct {
	addr   string
	logger *slog.Logger
	notify func(Announcement)
}

// NewListener creates a listener delivering announcements from the
// given UDP address to notify.
func NewListener(addr string, logger *slog.Logger, notify func(Announcement)) *Listener {
	return &Listener{
		addr:   addr,
		logger: logger,
		notify: notify,
	}
}

// Run listens for announcement datagrams until the context is
// cancelled. Malformed datagrams are logged and skipped.
func (l *Listener) Run(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve announcement address: %w", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen for announcements: %w", err)
	}
	defer conn.Close()

	l.logger.Debug("Discovery listener started", slog.String("address", udpAddr.String()))

	buf := make([]byte, maxAnnouncementSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		// Polling deadline so cancellation is observed between reads.
		if err := conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("announcement read failed: %w", err)
		}

		var a Announcement
		if err := json.Unmarshal(buf[:n], &a); err != nil {
			l.logger.Warn("Ignoring malformed announcement",
				slog.String("remote_addr", remote.String()),
				slog.Int("size", n),
				slog.String("error", err.Error()),
			)
			continue
		}

		l.logger.Debug("Announcement received",
			slog.String("service", a.Service),
			slog.String("addr", a.Addr),
			slog.Int("data_port", a.DataPort),
			slog.Bool("bye", a.Bye),
		)

		l.notify(a)
	}
}
