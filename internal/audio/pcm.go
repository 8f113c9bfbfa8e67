package audio

import (
	"encoding/binary"
	"fmt"
)

// MarshalPCM encodes mono 16-bit samples as little-endian PCM bytes,
// the format both the playback device and the raw stream consumer take.
func MarshalPCM(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(s))
	}
	return buf
}

// UnmarshalPCM decodes little-endian PCM bytes back into samples.
func UnmarshalPCM(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even, got %d bytes", len(data))
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return samples, nil
}
