package protocol

import (
	"encoding/binary"
	"strings"
	"testing"
)

func validStreamHeaderBytes() []byte {
	h := StreamHeader{
		Magic:         MagicStreamHeader,
		Version:       1,
		SampleRate:    2000000,
		SampleFormat:  FormatS16,
		CenterFreqLo:  0x0016E360, // 1.5 MHz
		CenterFreqHi:  0,
		GainReduction: 40,
		LNAState:      1,
	}
	return h.Encode()
}

func TestParseStreamHeader(t *testing.T) {
	data := validStreamHeaderBytes()

	header, err := ParseStreamHeader(data)
	if err != nil {
		t.Fatalf("ParseStreamHeader failed: %v", err)
	}

	if header.Magic != MagicStreamHeader {
		t.Errorf("Magic = 0x%08X, want 0x%08X", header.Magic, uint32(MagicStreamHeader))
	}
	if header.SampleRate != 2000000 {
		t.Errorf("SampleRate = %d, want 2000000", header.SampleRate)
	}
	if header.SampleFormat != FormatS16 {
		t.Errorf("SampleFormat = %d, want %d", header.SampleFormat, FormatS16)
	}
	if got := uint64(header.CenterFrequency()); got != 1500000 {
		t.Errorf("CenterFrequency = %d, want 1500000", got)
	}
	if header.GainReduction != 40 {
		t.Errorf("GainReduction = %d, want 40", header.GainReduction)
	}
}

func TestParseStreamHeaderTooShort(t *testing.T) {
	_, err := ParseStreamHeader(make([]byte, StreamHeaderSize-1))
	if err == nil {
		t.Fatal("expected error for short stream header")
	}
}

func TestStreamHeaderValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*StreamHeader)
		expectError string
	}{
		{
			name:   "valid header",
			mutate: func(h *StreamHeader) {},
		},
		{
			name:        "bad magic",
			mutate:      func(h *StreamHeader) { h.Magic = 0xDEADBEEF },
			expectError: "invalid stream header magic",
		},
		{
			name:        "unsupported sample format",
			mutate:      func(h *StreamHeader) { h.SampleFormat = 2 },
			expectError: "unsupported sample format",
		},
		{
			name:        "zero sample rate",
			mutate:      func(h *StreamHeader) { h.SampleRate = 0 },
			expectError: "invalid sample rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, err := ParseStreamHeader(validStreamHeaderBytes())
			if err != nil {
				t.Fatalf("ParseStreamHeader failed: %v", err)
			}
			tt.mutate(header)

			err = header.Validate()
			if tt.expectError == "" {
				if err != nil {
					t.Errorf("Validate failed: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.expectError) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.expectError)
			}
		})
	}
}

func TestParseFrameHeader(t *testing.T) {
	h := FrameHeader{
		Magic:    MagicData,
		Sequence: 31337,
		Count:    1000,
		Flags:    0,
	}

	parsed, err := ParseFrameHeader(h.Encode())
	if err != nil {
		t.Fatalf("ParseFrameHeader failed: %v", err)
	}

	if *parsed != h {
		t.Errorf("parsed = %+v, want %+v", *parsed, h)
	}
	if got := parsed.PayloadSize(); got != 4000 {
		t.Errorf("PayloadSize = %d, want 4000", got)
	}
}

func TestFrameHeaderValidate(t *testing.T) {
	tests := []struct {
		name        string
		header      FrameHeader
		expectError bool
	}{
		{
			name:   "data frame",
			header: FrameHeader{Magic: MagicData, Count: 16384},
		},
		{
			name:   "metadata frame",
			header: FrameHeader{Magic: MagicMetadata},
		},
		{
			name:        "oversized data frame",
			header:      FrameHeader{Magic: MagicData, Count: MaxFrameSamples + 1},
			expectError: true,
		},
		{
			name:        "unknown magic",
			header:      FrameHeader{Magic: 0x41424344},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.header.Validate()
			if tt.expectError && err == nil {
				t.Error("expected validation error")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Validate failed: %v", err)
			}
		})
	}
}

// A metadata frame is read as a common header plus exactly
// MetadataRemainderSize further bytes; the decoded fields must match the
// bytes supplied, aliased fields included.
func TestParseMetadataUpdate(t *testing.T) {
	meta := MetadataUpdate{
		SampleRate:    2000000,
		SampleFormat:  FormatS16,
		CenterFreqLo:  0x3B9ACA00, // low half of 1 GHz + 1 Hz
		CenterFreqHi:  0x00000001,
		GainReduction: 55,
		LNAState:      1,
		Reserved:      0,
	}

	wire := meta.Encode()
	if len(wire) != MetadataFrameSize {
		t.Fatalf("encoded size = %d, want %d", len(wire), MetadataFrameSize)
	}

	header, err := ParseFrameHeader(wire[:FrameHeaderSize])
	if err != nil {
		t.Fatalf("ParseFrameHeader failed: %v", err)
	}
	if header.Magic != MagicMetadata {
		t.Fatalf("Magic = 0x%08X, want META", header.Magic)
	}

	remainder := wire[FrameHeaderSize:]
	if len(remainder) != MetadataRemainderSize {
		t.Fatalf("remainder size = %d, want %d", len(remainder), MetadataRemainderSize)
	}

	parsed, err := ParseMetadataUpdate(header, remainder)
	if err != nil {
		t.Fatalf("ParseMetadataUpdate failed: %v", err)
	}

	if *parsed != meta {
		t.Errorf("parsed = %+v, want %+v", *parsed, meta)
	}
	if got := uint64(parsed.CenterFrequency()); got != (uint64(1)<<32)|0x3B9ACA00 {
		t.Errorf("CenterFrequency = %d, want %d", got, (uint64(1)<<32)|0x3B9ACA00)
	}
}

func TestParseMetadataUpdateRejectsDataHeader(t *testing.T) {
	header := &FrameHeader{Magic: MagicData, Count: 100}
	_, err := ParseMetadataUpdate(header, make([]byte, MetadataRemainderSize))
	if err == nil {
		t.Fatal("expected error for non-metadata header")
	}
}

func TestDecodeIQPayload(t *testing.T) {
	samples := []int16{1000, 0, -1000, 32767, -32768, 42}
	wire := EncodeIQPayload(samples)

	if len(wire) != len(samples)*2 {
		t.Fatalf("wire size = %d, want %d", len(wire), len(samples)*2)
	}
	if got := int16(binary.LittleEndian.Uint16(wire[0:2])); got != 1000 {
		t.Fatalf("first wire value = %d, want 1000", got)
	}

	decoded := make([]int16, len(samples))
	if err := DecodeIQPayload(wire, decoded); err != nil {
		t.Fatalf("DecodeIQPayload failed: %v", err)
	}

	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("decoded[%d] = %d, want %d", i, decoded[i], samples[i])
		}
	}
}

func TestDecodeIQPayloadErrors(t *testing.T) {
	if err := DecodeIQPayload(make([]byte, 6), make([]int16, 4)); err == nil {
		t.Error("expected error for payload not a multiple of the pair size")
	}
	if err := DecodeIQPayload(make([]byte, 8), make([]int16, 2)); err == nil {
		t.Error("expected error for undersized destination")
	}
}

func TestMagicStrings(t *testing.T) {
	h := &FrameHeader{Magic: MagicData, Sequence: 1, Count: 2}
	if !strings.Contains(h.String(), "IQDQ") {
		t.Errorf("String() = %q, want IQDQ tag", h.String())
	}

	m := &MetadataUpdate{SampleFormat: 7}
	if !strings.Contains(m.String(), "Unknown(7)") {
		t.Errorf("String() = %q, want unknown format tag", m.String())
	}
}
