// Package discovery resolves the I/Q stream server's address from
// service announcements. The resolver turns per-announcement callbacks
// into a bounded wait; the listener feeds it from UDP datagrams.
package discovery
