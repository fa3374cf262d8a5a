package dsp

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// SpectrumVolume is the coarse loudness estimate used when block-synchronous
// analysis is unavailable. The RMS is recovered from the lower half spectrum
// (Parseval) and scaled by VolumeGain, so it reads like Analyze's volume.
// Unlike Analyze it allocates; it runs on a ticker, not per block.
func SpectrumVolume(samples []float64) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}

	spectrum := fft.FFTReal(samples)
	half := n / 2
	power := 0.0
	for i := 0; i < half; i++ {
		mag := cmplx.Abs(spectrum[i])
		power += mag * mag
	}
	rms := math.Sqrt(2*power) / float64(n)
	return clamp01(rms * VolumeGain)
}

// PCM16ToFloat32 converts little-endian signed 16-bit samples into dst,
// normalized to [-1, 1). It returns the number of samples written.
func PCM16ToFloat32(pcm []byte, dst []float32) int {
	const scale = 1.0 / 32768.0

	n := len(pcm) / 2
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		s := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		dst[i] = float32(float64(s) * scale)
	}
	return n
}
