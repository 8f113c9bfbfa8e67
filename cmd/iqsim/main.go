// Command iqsim serves a synthetic PHXI I/Q stream: an AM carrier
// modulated with a pure audio tone, paced at the native sample rate.
// It stands in for the SDR stream server during receiver development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/discovery"
	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/protocol"
)

const (
	defaultSampleRate   = 2_000_000
	defaultFrameSamples = 16384
	defaultToneHz       = 800.0
	defaultCenterFreq   = 693_000

	carrierAmplitude = 8000.0
	modulationDepth  = 0.5

	metadataInterval = 64 // data frames between metadata frames
	announcePeriod   = 1 * time.Second
)

func main() {
	listen := flag.String("listen", fmt.Sprintf(":%d", protocol.DefaultDataPort), "TCP listen address")
	sampleRate := flag.Int("sample-rate", defaultSampleRate, "I/Q sample rate in Hz")
	toneHz := flag.Float64("tone", defaultToneHz, "Modulating audio tone in Hz")
	frameSamples := flag.Int("frame-samples", defaultFrameSamples, "Sample pairs per data frame")
	centerFreq := flag.Uint64("center-freq", defaultCenterFreq, "Announced center frequency in Hz")
	announce := flag.Bool("announce", false, "Broadcast UDP discovery announcements")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Error("Failed to listen", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer ln.Close()

	logger.Info("Simulator listening",
		slog.String("addr", ln.Addr().String()),
		slog.Int("sample_rate", *sampleRate),
		slog.Float64("tone_hz", *toneHz),
		slog.Int("frame_samples", *frameSamples),
	)

	if *announce {
		port := ln.Addr().(*net.TCPAddr).Port
		go announceLoop(ctx, logger, port)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Simulator stopped")
				return
			}
			logger.Error("Accept failed", slog.String("error", err.Error()))
			continue
		}

		logger.Info("Client connected", slog.String("remote_addr", conn.RemoteAddr().String()))
		go serveStream(ctx, logger, conn, streamParams{
			sampleRate:   *sampleRate,
			toneHz:       *toneHz,
			frameSamples: *frameSamples,
			centerFreq:   *centerFreq,
		})
	}
}

type streamParams struct {
	sampleRate   int
	toneHz       float64
	frameSamples int
	centerFreq   uint64
}

// serveStream sends the stream header and then paced data frames until
// the client disconnects or the context is cancelled.
func serveStream(ctx context.Context, logger *slog.Logger, conn net.Conn, p streamParams) {
	defer conn.Close()

	header := protocol.StreamHeader{
		Magic:        protocol.MagicStreamHeader,
		Version:      1,
		SampleRate:   uint32(p.sampleRate),
		SampleFormat: protocol.FormatS16,
		CenterFreqLo: uint32(p.centerFreq),
		CenterFreqHi: uint32(p.centerFreq >> 32),
	}
	if _, err := conn.Write(header.Encode()); err != nil {
		logger.Warn("Header write failed", slog.String("error", err.Error()))
		return
	}

	frameDuration := time.Duration(float64(p.frameSamples) / float64(p.sampleRate) * float64(time.Second))
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	samples := make([]int16, p.frameSamples*2)
	phaseStep := 2 * math.Pi * p.toneHz / float64(p.sampleRate)

	var phase float64
	var sequence uint32

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stream closed", slog.String("remote_addr", conn.RemoteAddr().String()))
			return
		case <-ticker.C:
		}

		for i := 0; i < p.frameSamples; i++ {
			envelope := carrierAmplitude * (1 + modulationDepth*math.Sin(phase))
			samples[i*2] = int16(envelope)
			samples[i*2+1] = 0
			phase += phaseStep
			if phase > 2*math.Pi {
				phase -= 2 * math.Pi
			}
		}

		sequence++
		frame := protocol.FrameHeader{
			Magic:    protocol.MagicData,
			Sequence: sequence,
			Count:    uint32(p.frameSamples),
		}

		if _, err := conn.Write(frame.Encode()); err != nil {
			logger.Info("Client disconnected", slog.String("remote_addr", conn.RemoteAddr().String()))
			return
		}
		if _, err := conn.Write(protocol.EncodeIQPayload(samples)); err != nil {
			logger.Info("Client disconnected", slog.String("remote_addr", conn.RemoteAddr().String()))
			return
		}

		if sequence%metadataInterval == 0 {
			meta := protocol.MetadataUpdate{
				SampleRate:   uint32(p.sampleRate),
				SampleFormat: protocol.FormatS16,
				CenterFreqLo: uint32(p.centerFreq),
				CenterFreqHi: uint32(p.centerFreq >> 32),
			}
			if _, err := conn.Write(meta.Encode()); err != nil {
				return
			}
		}
	}
}

// announceLoop broadcasts discovery announcements so receivers on the
// local network can find the simulator without configuration.
func announceLoop(ctx context.Context, logger *slog.Logger, dataPort int) {
	addr := net.JoinHostPort("255.255.255.255", strconv.Itoa(discovery.DefaultAnnouncePort))
	conn, err := net.Dial("udp", addr)
	if err != nil {
		logger.Warn("Announcement socket failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	payload, err := json.Marshal(discovery.Announcement{
		ID:           "iqsim",
		Service:      discovery.DefaultService,
		Addr:         localAddr(conn),
		DataPort:     dataPort,
		Capabilities: "iq_stream",
	})
	if err != nil {
		logger.Warn("Announcement encode failed", slog.String("error", err.Error()))
		return
	}

	ticker := time.NewTicker(announcePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := conn.Write(payload); err != nil {
				logger.Warn("Announcement send failed", slog.String("error", err.Error()))
			}
		}
	}
}

// localAddr reports the local IP the announcement socket is bound to.
func localAddr(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return "127.0.0.1"
	}
	return host
}
