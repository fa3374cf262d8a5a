package audio

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"lukechampine.com/blake3"

	"voicecheck/internal/domain"
)

const (
	wavMIMEType  = "audio/wav"
	bitDepth     = 16
	pcmFormatTag = 1
)

// Clip is decoded 16-bit PCM audio.
type Clip struct {
	Samples    []int
	SampleRate int
	Channels   int
}

// DurationSec returns the clip length in seconds.
func (c Clip) DurationSec() float64 {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	return float64(len(c.Samples)/c.Channels) / float64(c.SampleRate)
}

// PCM returns the samples as little-endian s16 bytes.
func (c Clip) PCM() []byte {
	out := make([]byte, 2*len(c.Samples))
	for i, s := range c.Samples {
		v := uint16(int16(s))
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

// SealArtifact wraps s16le PCM into a WAV recording artifact.
func SealArtifact(pcm []byte, sampleRate, channels int) (*domain.RecordingArtifact, error) {
	encoded, err := EncodeWAV(pcm, sampleRate, channels)
	if err != nil {
		return nil, err
	}

	frames := len(pcm) / 2 / channels
	return &domain.RecordingArtifact{
		Bytes:       encoded,
		MIMEType:    wavMIMEType,
		DurationSec: float64(frames) / float64(sampleRate),
		SampleRate:  sampleRate,
		Channels:    channels,
		Digest:      Digest(encoded),
	}, nil
}

// ArtifactFromWAV builds an artifact from an existing WAV file body.
func ArtifactFromWAV(data []byte) (*domain.RecordingArtifact, error) {
	clip, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	return &domain.RecordingArtifact{
		Bytes:       data,
		MIMEType:    wavMIMEType,
		DurationSec: clip.DurationSec(),
		SampleRate:  clip.SampleRate,
		Channels:    clip.Channels,
		Digest:      Digest(data),
	}, nil
}

// Digest returns the hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EncodeWAV encodes s16le PCM as a PCM WAV file.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid wav format: rate=%d channels=%d", sampleRate, channels)
	}

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
	}

	out := &memFile{}
	enc := wav.NewEncoder(out, sampleRate, bitDepth, channels, pcmFormatTag)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	// An empty buffer still makes the encoder emit its header.
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encoding wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalizing wav: %w", err)
	}
	return out.Bytes(), nil
}

// DecodeWAV decodes a 16-bit PCM WAV body.
func DecodeWAV(data []byte) (Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Clip{}, errors.New("not a valid WAV file")
	}
	if dec.BitDepth != bitDepth {
		return Clip{}, fmt.Errorf("unsupported bits per sample: %d", dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("decoding wav: %w", err)
	}
	return Clip{
		Samples:    buf.Data,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// memFile is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > cap(m.buf) {
		grown := make([]byte, end, max(end, 2*cap(m.buf)))
		copy(grown, m.buf)
		m.buf = grown
	} else if end > len(m.buf) {
		m.buf = m.buf[:end]
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = int(next)
	return next, nil
}

func (m *memFile) Bytes() []byte {
	return m.buf
}
