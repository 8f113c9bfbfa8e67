package session

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/audio"
	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(addr string) Config {
	return Config{
		Addr:            addr,
		DialTimeout:     time.Second,
		CutoffHz:        3000,
		DecimationRatio: 42,
		DCAlpha:         0.99,
		AGCTarget:       5000,
		Volume:          50,
	}
}

func testSink(t *testing.T, raw io.Writer) *audio.Sink {
	t.Helper()
	sink, err := audio.NewSink(audio.SinkConfig{FlushThreshold: 4096}, raw, nil)
	if err != nil {
		t.Fatalf("creating sink: %v", err)
	}
	return sink
}

// startServer runs serve against a single accepted connection and
// returns the listen address.
func startServer(t *testing.T, serve func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}()

	return ln.Addr().String()
}

func validHeader() *protocol.StreamHeader {
	return &protocol.StreamHeader{
		Magic:        protocol.MagicStreamHeader,
		Version:      1,
		SampleRate:   2_000_000,
		SampleFormat: protocol.FormatS16,
		CenterFreqLo: 693_000,
	}
}

func dataFrame(seq uint32, pairs int) []byte {
	samples := make([]int16, pairs*2)
	for i := 0; i < pairs; i++ {
		samples[i*2] = 1000 // constant I, zero Q
	}
	header := protocol.FrameHeader{
		Magic:    protocol.MagicData,
		Sequence: seq,
		Count:    uint32(pairs),
	}
	return append(header.Encode(), protocol.EncodeIQPayload(samples)...)
}

func TestRunRejectsUnsupportedFormat(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {
		header := validHeader()
		header.SampleFormat = 2
		conn.Write(header.Encode())
	})

	sess := New(testConfig(addr), testSink(t, nil), nil, testLogger())
	err := sess.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should reject an unsupported sample format")
	}
	if !strings.Contains(err.Error(), "sample format") {
		t.Errorf("error %q does not mention the sample format", err)
	}
	if sess.State() != StateClosed {
		t.Errorf("state = %v, want closed", sess.State())
	}
}

func TestRunRejectsBadStreamMagic(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {
		header := validHeader()
		header.Magic = 0xDEADBEEF
		conn.Write(header.Encode())
	})

	sess := New(testConfig(addr), testSink(t, nil), nil, testLogger())
	if err := sess.Run(context.Background()); err == nil {
		t.Fatal("Run() should reject a bad stream header magic")
	}
}

func TestRunDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close() // nothing listens here any more

	sess := New(testConfig(addr), testSink(t, nil), nil, testLogger())
	if err := sess.Run(context.Background()); err == nil {
		t.Fatal("Run() should fail when the server is unreachable")
	}
}

func TestRunDemodulatesStream(t *testing.T) {
	meta := protocol.MetadataUpdate{
		SampleRate:    2_000_000,
		SampleFormat:  protocol.FormatS16,
		CenterFreqLo:  810_000,
		GainReduction: 40,
		LNAState:      1,
	}

	addr := startServer(t, func(conn net.Conn) {
		conn.Write(validHeader().Encode())
		conn.Write(dataFrame(1, 1000))
		conn.Write(meta.Encode())
	})

	var raw bytes.Buffer
	sess := New(testConfig(addr), testSink(t, &raw), nil, testLogger())

	// The server closes after the last frame, so the read loop ends with
	// a connection loss.
	err := sess.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should report connection loss when the server closes")
	}
	if !strings.Contains(err.Error(), "connection lost") {
		t.Errorf("error %q does not report connection loss", err)
	}

	stats := sess.Stats()
	if stats.DataFrames != 1 {
		t.Errorf("data frames = %d, want 1", stats.DataFrames)
	}
	if stats.MetadataFrames != 1 {
		t.Errorf("metadata frames = %d, want 1", stats.MetadataFrames)
	}
	if stats.SequenceGaps != 0 {
		t.Errorf("sequence gaps = %d, want 0", stats.SequenceGaps)
	}
	if stats.SampleRate != 2_000_000 {
		t.Errorf("sample rate = %d, want 2000000", stats.SampleRate)
	}
	if stats.CenterFrequency != 810_000 {
		t.Errorf("center frequency = %f, want metadata value 810000", stats.CenterFrequency)
	}
	if stats.Chain == nil || stats.Chain.SamplesIn != 1000 {
		t.Errorf("chain stats = %+v, want 1000 samples in", stats.Chain)
	}

	// 1000 input pairs at ratio 42 decimate to 23 audio samples, all
	// flushed to the raw stream when the session winds down.
	if stats.Chain.SamplesOut != 23 {
		t.Errorf("samples out = %d, want 23", stats.Chain.SamplesOut)
	}
	if raw.Len() != 23*2 {
		t.Errorf("raw output = %d bytes, want 46", raw.Len())
	}
}

func TestRunCountsSequenceGaps(t *testing.T) {
	addr := startServer(t, func(conn net.Conn) {
		conn.Write(validHeader().Encode())
		conn.Write(dataFrame(1, 10))
		conn.Write(dataFrame(2, 10))
		conn.Write(dataFrame(5, 10)) // frames 3 and 4 never sent
	})

	sess := New(testConfig(addr), testSink(t, nil), nil, testLogger())
	if err := sess.Run(context.Background()); err == nil {
		t.Fatal("Run() should report connection loss when the server closes")
	}

	stats := sess.Stats()
	if stats.DataFrames != 3 {
		t.Errorf("data frames = %d, want 3", stats.DataFrames)
	}
	if stats.SequenceGaps != 1 {
		t.Errorf("sequence gaps = %d, want 1", stats.SequenceGaps)
	}
}

// Stats must be safe to call from other goroutines while the session
// is streaming; the race detector flags any unsynchronized access.
func TestStatsConcurrentWithStreaming(t *testing.T) {
	const frames = 200

	addr := startServer(t, func(conn net.Conn) {
		conn.Write(validHeader().Encode())
		for i := 1; i <= frames; i++ {
			if _, err := conn.Write(dataFrame(uint32(i), 100)); err != nil {
				return
			}
		}
	})

	sess := New(testConfig(addr), testSink(t, nil), nil, testLogger())

	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background()) }()

	stop := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		for {
			select {
			case <-stop:
				return
			default:
			}
			stats := sess.Stats()
			if stats.DataFrames > frames {
				t.Errorf("data frames = %d, exceeds %d sent", stats.DataFrames, frames)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not finish")
	}
	close(stop)
	<-polled

	stats := sess.Stats()
	if stats.DataFrames != frames {
		t.Errorf("data frames = %d, want %d", stats.DataFrames, frames)
	}
	if stats.Chain == nil || stats.Chain.SamplesIn != frames*100 {
		t.Errorf("chain stats = %+v, want %d samples in", stats.Chain, frames*100)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	release := make(chan struct{})
	addr := startServer(t, func(conn net.Conn) {
		conn.Write(validHeader().Encode())
		<-release // hold the connection open, send nothing
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	sess := New(testConfig(addr), testSink(t, nil), nil, testLogger())

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}

	if sess.State() != StateClosed {
		t.Errorf("state = %v, want closed", sess.State())
	}
}
