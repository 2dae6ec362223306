package main

import (
	"math"
	"math/cmplx"
	"sync"
)

const (
	fftSize     = 256
	binCount    = fftSize / 2
	minDecibels = -100.0
	maxDecibels = -30.0
	smoothing   = 0.8
)

// spectrumAnalyzer keeps a rolling window of the most recent capture
// samples and reduces it to byte-valued frequency-bin energies, the
// same shape an analyser node hands to a level meter.
type spectrumAnalyzer struct {
	mu       sync.Mutex
	ring     [fftSize]float64
	pos      int
	filled   bool
	smoothed [binCount]float64
	window   [fftSize]float64
}

func newSpectrumAnalyzer() *spectrumAnalyzer {
	a := &spectrumAnalyzer{}
	for i := range a.window {
		// Hann window
		a.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}
	return a
}

// Feed accepts raw 16-bit little-endian mono PCM from the capture
// callback. Only the newest fftSize samples are retained.
func (a *spectrumAnalyzer) Feed(pcm []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		a.ring[a.pos] = float64(s) / 32768.0
		a.pos++
		if a.pos == fftSize {
			a.pos = 0
			a.filled = true
		}
	}
}

// Bins returns binCount frequency-bin energies scaled to 0..255 with
// exponential smoothing across calls.
func (a *spectrumAnalyzer) Bins() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	var buf [fftSize]complex128
	n := fftSize
	if !a.filled {
		n = a.pos
	}
	for i := 0; i < n; i++ {
		idx := (a.pos - n + i + fftSize) % fftSize
		buf[i] = complex(a.ring[idx]*a.window[i], 0)
	}

	fft(buf[:])

	out := make([]byte, binCount)
	for i := 0; i < binCount; i++ {
		mag := cmplx.Abs(buf[i]) / float64(fftSize)
		a.smoothed[i] = smoothing*a.smoothed[i] + (1-smoothing)*mag
		db := 20 * math.Log10(a.smoothed[i]+1e-40)
		v := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		out[i] = byte(v)
	}
	return out
}

// Reset clears the sample window and the smoothing state.
func (a *spectrumAnalyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ring = [fftSize]float64{}
	a.smoothed = [binCount]float64{}
	a.pos = 0
	a.filled = false
}

// fft computes an in-place radix-2 transform. len(x) must be a power
// of two.
func fft(x []complex128) {
	n := len(x)
	if n <= 1 {
		return
	}

	// bit-reversal permutation
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := -2 * math.Pi / float64(size)
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				w := cmplx.Exp(complex(0, step*float64(k)))
				even := x[start+k]
				odd := x[start+k+half] * w
				x[start+k] = even + odd
				x[start+k+half] = even - odd
			}
		}
	}
}
