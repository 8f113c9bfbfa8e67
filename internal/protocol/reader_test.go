package protocol

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestFrameReaderAssemblesSplitReads(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.Write([]byte{1, 2, 3})
		time.Sleep(10 * time.Millisecond)
		server.Write([]byte{4, 5, 6, 7, 8})
	}()

	reader := NewFrameReader(client, 0)
	buf := make([]byte, 8)
	if err := reader.ReadFull(context.Background(), buf); err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}

	for i := range buf {
		if buf[i] != byte(i+1) {
			t.Errorf("buf[%d] = %d, want %d", i, buf[i], i+1)
		}
	}
}

func TestFrameReaderShortReadIsConnectionLoss(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		server.Write([]byte{1, 2, 3})
		server.Close()
	}()

	reader := NewFrameReader(client, 0)
	err := reader.ReadFull(context.Background(), make([]byte, 8))
	if err == nil {
		t.Fatal("expected error for short read before close")
	}
}

func TestFrameReaderCancellation(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewFrameReader(client, 0)
	err := reader.ReadFull(ctx, make([]byte, 8))
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFrameReaderTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	reader := NewFrameReader(client, 50*time.Millisecond)
	start := time.Now()
	err := reader.ReadFull(context.Background(), make([]byte, 8))
	if err == nil {
		t.Fatal("expected timeout error on a stalled connection")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v, configured 50ms", elapsed)
	}
}
