// Package encoder compresses captured PCM for batch upload to the
// transcription backend.
package encoder

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)
