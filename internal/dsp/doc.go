// Package dsp implements the AM demodulation chain: per-channel biquad
// lowpass filtering, envelope detection, DC removal, automatic gain
// control, and decimation down to the audio rate. All filter state lives
// in explicit per-chain values; nothing is shared between chains.
package dsp
