package capture

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"voicecheck/internal/domain"
	"voicecheck/internal/dsp"
)

const readChunkBytes = 4096

// pump drains the recorder, buffers PCM while recording and feeds the
// analyzer. Real-time mode analyzes every full block on the read path;
// polling mode leaves analysis to a ticker over the latest chunk.
type pump struct {
	sampleRate int
	channels   int
	decimation int
	realtime   bool
	emit       func(domain.AudioFrameMetrics)

	recording atomic.Bool

	mu       sync.Mutex
	pcm      bytes.Buffer
	latest   []float64
	recorded int64

	// Owned by the read goroutine.
	block   []byte
	fill    int
	samples []float32
	history dsp.History
	blocks  int
}

func newPump(sampleRate, channels, decimation int, realtime bool, emit func(domain.AudioFrameMetrics)) *pump {
	if decimation < 1 {
		decimation = 1
	}
	return &pump{
		sampleRate: sampleRate,
		channels:   channels,
		decimation: decimation,
		realtime:   realtime,
		emit:       emit,
		block:      make([]byte, 2*dsp.BlockSize),
		samples:    make([]float32, dsp.BlockSize),
	}
}

func (p *pump) run(src io.Reader, onErr func(error), done chan struct{}) {
	defer close(done)

	buf := make([]byte, readChunkBytes)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			p.consume(buf[:n])
		}
		if err != nil {
			// Waiting on the recorder closes its stdout, so a read racing
			// a normal stop may see os.ErrClosed instead of EOF.
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && onErr != nil {
				onErr(err)
			}
			return
		}
	}
}

func (p *pump) consume(chunk []byte) {
	if !p.recording.Load() {
		p.fill = 0
		return
	}

	p.mu.Lock()
	p.pcm.Write(chunk)
	if !p.realtime {
		p.latest = pcmToFloat64(chunk, p.latest)
	}
	p.mu.Unlock()

	if !p.realtime {
		p.addRecorded(len(chunk))
		return
	}

	for len(chunk) > 0 {
		copied := copy(p.block[p.fill:], chunk)
		p.fill += copied
		chunk = chunk[copied:]
		p.addRecorded(copied)
		if p.fill < len(p.block) {
			continue
		}
		p.fill = 0
		dsp.PCM16ToFloat32(p.block, p.samples)
		metrics := dsp.Analyze(p.samples, &p.history)
		p.blocks++
		if p.blocks%p.decimation == 0 {
			metrics.Timestamp = p.elapsed()
			p.emit(metrics)
		}
	}
}

// poll runs the degraded analyzer until stop is closed.
func (p *pump) poll(interval time.Duration, stop <-chan struct{}, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var history dsp.History
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if !p.recording.Load() {
			continue
		}

		p.mu.Lock()
		volume := dsp.SpectrumVolume(p.latest)
		p.mu.Unlock()

		metrics := dsp.Observe(volume, &history)
		metrics.Timestamp = p.elapsed()
		p.emit(metrics)
	}
}

func (p *pump) addRecorded(n int) {
	p.mu.Lock()
	p.recorded += int64(n)
	p.mu.Unlock()
}

func (p *pump) elapsed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(p.recorded) / float64(2*p.channels*p.sampleRate)
}

func (p *pump) snapshot() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, p.pcm.Len())
	copy(out, p.pcm.Bytes())
	return out
}

// reset drops buffered audio and analyzer state. The read goroutine must
// have finished.
func (p *pump) reset() {
	p.mu.Lock()
	p.pcm.Reset()
	p.latest = p.latest[:0]
	p.recorded = 0
	p.mu.Unlock()

	p.fill = 0
	p.blocks = 0
	p.history.Reset()
}

// pcmToFloat64 reuses dst for the s16le samples in chunk.
func pcmToFloat64(chunk []byte, dst []float64) []float64 {
	n := len(chunk) / 2
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	for i := 0; i < n; i++ {
		dst[i] = float64(int16(uint16(chunk[2*i])|uint16(chunk[2*i+1])<<8)) / 32768
	}
	return dst
}
