// Package audio abstracts microphone capture behind Context and
// CaptureDevice so the session controller can run against PulseAudio,
// miniaudio, or a fake feeding canned PCM in tests.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// ErrDeviceAccess marks microphone permission or device failures.
// The session controller aborts to idle when it sees this.
var ErrDeviceAccess = errors.New("audio device access")

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// FindDevice resolves a device by name, or nil for the system default.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceAccess, err)
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: device %q not found", ErrDeviceAccess, name)
}

// LoadWAV reads a 16-bit mono PCM WAV file and returns the raw sample
// payload. The chunk list is scanned rather than assuming a fixed
// header, so files with extra chunks (LIST/INFO and friends) load fine.
func LoadWAV(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%q is not a RIFF/WAVE file", path)
	}

	var pcm []byte
	sawFmt := false
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8
		if size < 0 || off+size > len(data) {
			return nil, fmt.Errorf("truncated %q chunk in %q", id, path)
		}
		chunk := data[off : off+size]

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("short fmt chunk in %q", path)
			}
			format := binary.LittleEndian.Uint16(chunk[0:2])
			channels := binary.LittleEndian.Uint16(chunk[2:4])
			bits := binary.LittleEndian.Uint16(chunk[14:16])
			if format != 1 || channels != 1 || bits != 16 {
				return nil, fmt.Errorf("%q: need 16-bit mono PCM, got format=%d channels=%d bits=%d",
					path, format, channels, bits)
			}
			sawFmt = true
		case "data":
			pcm = chunk
		}

		// chunks are word-aligned
		off += size + size%2
	}

	if !sawFmt {
		return nil, fmt.Errorf("%q: no fmt chunk", path)
	}
	if pcm == nil {
		return nil, fmt.Errorf("%q: no data chunk", path)
	}
	return pcm, nil
}
