// Package audio delivers decimated PCM samples to their destinations.
// It accumulates chain output into a fixed buffer and flushes it to a
// raw byte sink and/or a playback device through rotating buffers that
// are never rewritten while the device holds them in flight.
package audio
