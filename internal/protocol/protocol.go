package protocol

import (
	"encoding/binary"
	"fmt"

	"hz.tools/rf"
)

// Protocol constants for the PHXI I/Q stream.
const (
	// Frame magics
	MagicStreamHeader = 0x50485849 // "PHXI"
	MagicData         = 0x49514451 // "IQDQ"
	MagicMetadata     = 0x4D455441 // "META"

	// Sample formats
	FormatS16 = 1 // interleaved 16-bit signed I/Q pairs

	// Wire sizes
	StreamHeaderSize  = 32 // 8 x uint32
	FrameHeaderSize   = 16 // 4 x uint32
	MetadataFrameSize = 32 // 8 x uint32, includes the common frame header bytes

	// MetadataRemainderSize is the number of bytes still on the wire after
	// the common frame header of a metadata frame has been consumed.
	MetadataRemainderSize = MetadataFrameSize - FrameHeaderSize

	// BytesPerSample is the payload size of one interleaved (I, Q) pair.
	BytesPerSample = 4

	// MaxFrameSamples bounds the declared sample count of a single data
	// frame; counts beyond it are treated as protocol corruption.
	MaxFrameSamples = 1 << 20

	// DefaultDataPort is the I/Q data port the stream server listens on.
	DefaultDataPort = 4536
)

// StreamHeader is the fixed-size header sent once per connection.
// Layout: [Magic:4][Version:4][SampleRate:4][SampleFormat:4]
// [CenterFreqLo:4][CenterFreqHi:4][GainReduction:4][LNAState:4]
type StreamHeader struct {
	Magic         uint32 // MagicStreamHeader
	Version       uint32
	SampleRate    uint32 // Hz
	SampleFormat  uint32 // FormatS16 is the only supported value
	CenterFreqLo  uint32 // low half of the 64-bit center frequency
	CenterFreqHi  uint32 // high half of the 64-bit center frequency
	GainReduction uint32 // IF gain reduction, dB
	LNAState      uint32 // front-end attenuation state
}

// FrameHeader is the common header preceding every frame after the
// stream header. Layout: [Magic:4][Sequence:4][Count:4][Flags:4]
type FrameHeader struct {
	Magic    uint32 // MagicData or MagicMetadata
	Sequence uint32
	Count    uint32 // sample pairs in the data payload
	Flags    uint32
}

// MetadataUpdate is a parameter snapshot delivered between data frames.
// On the wire a metadata frame is 32 bytes total; the first 16 are read
// as a FrameHeader whose Sequence/Count/Flags fields alias the first
// three metadata values.
type MetadataUpdate struct {
	SampleRate    uint32
	SampleFormat  uint32
	CenterFreqLo  uint32
	CenterFreqHi  uint32
	GainReduction uint32
	LNAState      uint32
	Reserved      uint32
}

// ParseStreamHeader parses the 32-byte stream header.
func ParseStreamHeader(data []byte) (*StreamHeader, error) {
	if len(data) < StreamHeaderSize {
		return nil, fmt.Errorf("stream header too short: expected %d bytes, got %d", StreamHeaderSize, len(data))
	}

	return &StreamHeader{
		Magic:         binary.LittleEndian.Uint32(data[0:4]),
		Version:       binary.LittleEndian.Uint32(data[4:8]),
		SampleRate:    binary.LittleEndian.Uint32(data[8:12]),
		SampleFormat:  binary.LittleEndian.Uint32(data[12:16]),
		CenterFreqLo:  binary.LittleEndian.Uint32(data[16:20]),
		CenterFreqHi:  binary.LittleEndian.Uint32(data[20:24]),
		GainReduction: binary.LittleEndian.Uint32(data[24:28]),
		LNAState:      binary.LittleEndian.Uint32(data[28:32]),
	}, nil
}

// Validate checks the stream header magic and sample format. A format
// other than FormatS16 is unrecoverable for this client.
func (h *StreamHeader) Validate() error {
	if h.Magic != MagicStreamHeader {
		return fmt.Errorf("invalid stream header magic: 0x%08X", h.Magic)
	}

	if h.SampleFormat != FormatS16 {
		return fmt.Errorf("unsupported sample format: %d (only S16 is supported)", h.SampleFormat)
	}

	if h.SampleRate == 0 {
		return fmt.Errorf("invalid sample rate: 0")
	}

	return nil
}

// CenterFrequency reassembles the split 64-bit center frequency.
func (h *StreamHeader) CenterFrequency() rf.Hz {
	return rf.Hz(uint64(h.CenterFreqHi)<<32 | uint64(h.CenterFreqLo))
}

// Encode serializes the stream header into its 32-byte wire form.
func (h *StreamHeader) Encode() []byte {
	buf := make([]byte, StreamHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.SampleRate)
	binary.LittleEndian.PutUint32(buf[12:16], h.SampleFormat)
	binary.LittleEndian.PutUint32(buf[16:20], h.CenterFreqLo)
	binary.LittleEndian.PutUint32(buf[20:24], h.CenterFreqHi)
	binary.LittleEndian.PutUint32(buf[24:28], h.GainReduction)
	binary.LittleEndian.PutUint32(buf[28:32], h.LNAState)
	return buf
}

// ParseFrameHeader parses the 16-byte common frame header.
func ParseFrameHeader(data []byte) (*FrameHeader, error) {
	if len(data) < FrameHeaderSize {
		return nil, fmt.Errorf("frame header too short: expected %d bytes, got %d", FrameHeaderSize, len(data))
	}

	return &FrameHeader{
		Magic:    binary.LittleEndian.Uint32(data[0:4]),
		Sequence: binary.LittleEndian.Uint32(data[4:8]),
		Count:    binary.LittleEndian.Uint32(data[8:12]),
		Flags:    binary.LittleEndian.Uint32(data[12:16]),
	}, nil
}

// Validate checks the frame magic and, for data frames, the declared
// sample count.
func (h *FrameHeader) Validate() error {
	switch h.Magic {
	case MagicData:
		if h.Count > MaxFrameSamples {
			return fmt.Errorf("data frame sample count too large: %d (maximum %d)", h.Count, MaxFrameSamples)
		}
	case MagicMetadata:
		// the aliased fields carry metadata values, no count semantics
	default:
		return fmt.Errorf("unknown frame magic: 0x%08X", h.Magic)
	}

	return nil
}

// PayloadSize returns the data payload byte length a data frame header
// declares: Count interleaved (I, Q) int16 pairs.
func (h *FrameHeader) PayloadSize() int {
	return int(h.Count) * BytesPerSample
}

// Encode serializes the frame header into its 16-byte wire form.
func (h *FrameHeader) Encode() []byte {
	buf := make([]byte, FrameHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Sequence)
	binary.LittleEndian.PutUint32(buf[8:12], h.Count)
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)
	return buf
}

// ParseMetadataUpdate reassembles a metadata frame from the already-read
// common header and the remaining 16 wire bytes. The header's
// Sequence/Count/Flags fields alias SampleRate/SampleFormat/CenterFreqLo.
func ParseMetadataUpdate(header *FrameHeader, remainder []byte) (*MetadataUpdate, error) {
	if header.Magic != MagicMetadata {
		return nil, fmt.Errorf("not a metadata frame: magic 0x%08X", header.Magic)
	}

	if len(remainder) < MetadataRemainderSize {
		return nil, fmt.Errorf("metadata remainder too short: expected %d bytes, got %d", MetadataRemainderSize, len(remainder))
	}

	return &MetadataUpdate{
		SampleRate:    header.Sequence,
		SampleFormat:  header.Count,
		CenterFreqLo:  header.Flags,
		CenterFreqHi:  binary.LittleEndian.Uint32(remainder[0:4]),
		GainReduction: binary.LittleEndian.Uint32(remainder[4:8]),
		LNAState:      binary.LittleEndian.Uint32(remainder[8:12]),
		Reserved:      binary.LittleEndian.Uint32(remainder[12:16]),
	}, nil
}

// CenterFrequency reassembles the split 64-bit center frequency.
func (m *MetadataUpdate) CenterFrequency() rf.Hz {
	return rf.Hz(uint64(m.CenterFreqHi)<<32 | uint64(m.CenterFreqLo))
}

// Encode serializes the full 32-byte metadata frame, common header
// included.
func (m *MetadataUpdate) Encode() []byte {
	buf := make([]byte, MetadataFrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], MagicMetadata)
	binary.LittleEndian.PutUint32(buf[4:8], m.SampleRate)
	binary.LittleEndian.PutUint32(buf[8:12], m.SampleFormat)
	binary.LittleEndian.PutUint32(buf[12:16], m.CenterFreqLo)
	binary.LittleEndian.PutUint32(buf[16:20], m.CenterFreqHi)
	binary.LittleEndian.PutUint32(buf[20:24], m.GainReduction)
	binary.LittleEndian.PutUint32(buf[24:28], m.LNAState)
	binary.LittleEndian.PutUint32(buf[28:32], m.Reserved)
	return buf
}

// DecodeIQPayload decodes a data frame payload into interleaved int16
// I/Q values. dst must hold two values per sample pair.
func DecodeIQPayload(data []byte, dst []int16) error {
	if len(data)%BytesPerSample != 0 {
		return fmt.Errorf("payload length %d is not a multiple of %d", len(data), BytesPerSample)
	}

	n := len(data) / 2
	if len(dst) < n {
		return fmt.Errorf("destination too small: need %d values, have %d", n, len(dst))
	}

	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}

	return nil
}

// EncodeIQPayload serializes interleaved int16 I/Q values into wire form.
func EncodeIQPayload(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(s))
	}
	return buf
}

// String returns a human-readable representation of the stream header.
func (h *StreamHeader) String() string {
	return fmt.Sprintf("StreamHeader{Version:%d, SampleRate:%d, Format:%s, CenterFreq:%s, GainReduction:%ddB, LNA:%d}",
		h.Version, h.SampleRate, formatString(h.SampleFormat), h.CenterFrequency(), h.GainReduction, h.LNAState)
}

// String returns a human-readable representation of the frame header.
func (h *FrameHeader) String() string {
	return fmt.Sprintf("FrameHeader{Magic:%s, Seq:%d, Count:%d, Flags:0x%08X}",
		magicString(h.Magic), h.Sequence, h.Count, h.Flags)
}

// String returns a human-readable representation of a metadata update.
func (m *MetadataUpdate) String() string {
	return fmt.Sprintf("MetadataUpdate{SampleRate:%d, Format:%s, CenterFreq:%s, GainReduction:%ddB, LNA:%d}",
		m.SampleRate, formatString(m.SampleFormat), m.CenterFrequency(), m.GainReduction, m.LNAState)
}

// magicString converts a frame magic to a human-readable tag.
func magicString(magic uint32) string {
	switch magic {
	case MagicStreamHeader:
		return "PHXI"
	case MagicData:
		return "IQDQ"
	case MagicMetadata:
		return "META"
	default:
		return fmt.Sprintf("Unknown(0x%08X)", magic)
	}
}

// formatString converts a sample format enumerator to a human-readable tag.
func formatString(format uint32) string {
	if format == FormatS16 {
		return "S16"
	}
	return fmt.Sprintf("Unknown(%d)", format)
}
