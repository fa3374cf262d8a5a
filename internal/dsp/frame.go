// Package dsp holds the per-block signal analysis that runs in the capture
// path. Nothing here performs I/O or allocates per block.
package dsp

import (
	"math"

	"voicecheck/internal/domain"
)

const (
	// SampleRate is the fixed analysis rate; pitch lags are derived from it.
	SampleRate = 16000
	// BlockSize is the number of samples per analyzed block.
	BlockSize = 1024
	// HistoryLen bounds the smoothing window.
	HistoryLen = 10

	VolumeGain           = 10.0
	MinPitchHz           = 80
	MaxPitchHz           = 400
	CorrelationThreshold = 0.3
	SpeakingThreshold    = 0.01
)

// History is the caller-owned smoothing state. The zero value is ready to use.
type History struct {
	volumes [HistoryLen]float64
	pitches [HistoryLen]float64
	next    int
	count   int
}

// Reset clears all samples.
func (h *History) Reset() {
	*h = History{}
}

// Len returns the number of samples currently held.
func (h *History) Len() int {
	return h.count
}

func (h *History) push(volume, pitch float64) {
	h.volumes[h.next] = volume
	h.pitches[h.next] = pitch
	h.next = (h.next + 1) % HistoryLen
	if h.count < HistoryLen {
		h.count++
	}
}

// smoothed averages the held volumes and the held voiced pitches. Unvoiced
// entries (pitch 0) are left out of the pitch mean.
func (h *History) smoothed() (float64, float64) {
	if h.count == 0 {
		return 0, 0
	}
	var volSum, pitchSum float64
	voiced := 0
	for i := 0; i < h.count; i++ {
		volSum += h.volumes[i]
		if h.pitches[i] > 0 {
			pitchSum += h.pitches[i]
			voiced++
		}
	}
	pitch := 0.0
	if voiced > 0 {
		pitch = pitchSum / float64(voiced)
	}
	return volSum / float64(h.count), pitch
}

// Analyze computes smoothed volume and pitch for one block of BlockSize
// samples and records the raw values in history. A block of any other length
// yields zero metrics and leaves history untouched. Timestamp is left for the
// caller to stamp.
func Analyze(block []float32, history *History) domain.AudioFrameMetrics {
	if len(block) != BlockSize {
		return domain.AudioFrameMetrics{}
	}

	energy := blockEnergy(block)
	if math.IsNaN(energy) || math.IsInf(energy, 0) {
		return domain.AudioFrameMetrics{}
	}

	volume := clamp01(math.Sqrt(energy/float64(len(block))) * VolumeGain)
	pitch := detectPitch(block, SampleRate, energy)

	var local History
	if history == nil {
		history = &local
	}
	history.push(volume, pitch)
	return metricsFrom(history)
}

// Observe records an externally measured volume with no pitch and returns
// the smoothed metrics. The polling analyzer uses it.
func Observe(volume float64, history *History) domain.AudioFrameMetrics {
	if math.IsNaN(volume) {
		volume = 0
	}
	history.push(clamp01(volume), 0)
	return metricsFrom(history)
}

func metricsFrom(history *History) domain.AudioFrameMetrics {
	volume, pitch := history.smoothed()
	return domain.AudioFrameMetrics{
		Volume:     volume,
		PitchHz:    pitch,
		IsSpeaking: volume > SpeakingThreshold,
	}
}

// DetectPitch estimates the fundamental frequency of block by
// autocorrelation over the [MinPitchHz, MaxPitchHz] band. It returns 0 when
// the best correlation is weaker than CorrelationThreshold of block energy.
func DetectPitch(block []float32, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return detectPitch(block, sampleRate, blockEnergy(block))
}

func detectPitch(block []float32, sampleRate int, energy float64) float64 {
	if energy <= 0 {
		return 0
	}

	n := len(block)
	minLag := sampleRate / MaxPitchHz
	maxLag := sampleRate / MinPitchHz
	if maxLag >= n/2 {
		maxLag = n/2 - 1
	}
	if minLag < 1 {
		minLag = 1
	}

	bestLag := 0
	best := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		corr := 0.0
		for i := 0; i < n-lag; i++ {
			corr += float64(block[i]) * float64(block[i+lag])
		}
		if corr > best {
			best = corr
			bestLag = lag
		}
	}

	if bestLag == 0 || best < CorrelationThreshold*energy {
		return 0
	}
	return float64(sampleRate) / float64(bestLag)
}

func blockEnergy(block []float32) float64 {
	energy := 0.0
	for _, s := range block {
		energy += float64(s) * float64(s)
	}
	return energy
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
