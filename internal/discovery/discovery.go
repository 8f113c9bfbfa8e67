package discovery

import (
	"context"
	"net"
	"strconv"
	"time"
)

// DefaultService is the announced name of the I/Q stream server.
const DefaultService = "sdr_server"

// Announcement is one service notification from the discovery
// collaborator: a service coming up, or withdrawing when Bye is set.
type Announcement struct {
	ID           string `json:"id"`
	Service      string `json:"service"`
	Addr         string `json:"addr"`
	ControlPort  int    `json:"control_port"`
	DataPort     int    `json:"data_port"`
	Capabilities string `json:"capabilities"`
	Bye          bool   `json:"bye"`
}

// Endpoint is a resolved data-stream address.
type Endpoint struct {
	Host string
	Port int
}

// String renders the endpoint as host:port.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Resolver adapts the discovery collaborator's per-announcement
// notifications into a bounded synchronous wait for one named service.
// Notify may be called from any goroutine.
type Resolver struct {
	service string
	found   chan Endpoint
}

// NewResolver creates a resolver for the named service.
func NewResolver(service string) *Resolver {
	return &Resolver{
		service: service,
		found:   make(chan Endpoint, 1),
	}
}

// Notify records one announcement. Withdrawals, other services, and
// announcements without a usable data port are ignored; only the first
// match is retained.
func (r *Resolver) Notify(a Announcement) {
	if a.Bye || a.Service != r.service || a.DataPort <= 0 || a.Addr == "" {
		return
	}

	select {
	case r.found <- Endpoint{Host: a.Addr, Port: a.DataPort}:
	default:
		// already resolved
	}
}

// Wait blocks until the service is announced, the timeout elapses, or
// the context is cancelled. The second return value reports whether an
// endpoint was found; on false the caller falls back to its default
// address.
func (r *Resolver) Wait(ctx context.Context, timeout time.Duration) (Endpoint, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ep := <-r.found:
		return ep, true
	case <-timer.C:
		return Endpoint{}, false
	case <-ctx.Done():
		return Endpoint{}, false
	}
}
