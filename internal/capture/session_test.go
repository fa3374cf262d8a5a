package capture

import (
	"context"
	"errors"
	"io"
	"math"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"voicecheck/internal/audio"
	"voicecheck/internal/domain"
	"voicecheck/internal/dsp"
	"voicecheck/internal/ports"
)

type pipeAudioSession struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	once sync.Once
}

func newPipeAudioSession() *pipeAudioSession {
	r, w := io.Pipe()
	return &pipeAudioSession{r: r, w: w}
}

func (s *pipeAudioSession) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *pipeAudioSession) Stop() error {
	s.once.Do(func() {
		_ = s.w.Close()
	})
	return nil
}

func (s *pipeAudioSession) Close() error {
	_ = s.Stop()
	return s.r.Close()
}

type fakeCapture struct {
	mu       sync.Mutex
	sessions []*pipeAudioSession
	err      error
	cfgs     []ports.AudioConfig
}

func (f *fakeCapture) Start(_ context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfgs = append(f.cfgs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	session := newPipeAudioSession()
	f.sessions = append(f.sessions, session)
	return session, nil
}

func (f *fakeCapture) last() *pipeAudioSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[len(f.sessions)-1]
}

type recordingListener struct {
	mu     sync.Mutex
	frames []domain.AudioFrameMetrics
	notify chan struct{}
}

func newRecordingListener() *recordingListener {
	return &recordingListener{notify: make(chan struct{}, 256)}
}

func (l *recordingListener) OnFrame(metrics domain.AudioFrameMetrics) {
	l.mu.Lock()
	l.frames = append(l.frames, metrics)
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *recordingListener) snapshot() []domain.AudioFrameMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.AudioFrameMetrics(nil), l.frames...)
}

func (l *recordingListener) waitFor(t *testing.T, match func(domain.AudioFrameMetrics) bool) domain.AudioFrameMetrics {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, frame := range l.snapshot() {
			if match(frame) {
				return frame
			}
		}
		select {
		case <-l.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for frame; got %v", l.snapshot())
		}
	}
}

// feed writes data and returns once the pump has finished consuming it; the
// empty write only completes on the pump's next Read.
func (s *pipeAudioSession) feed(t *testing.T, data []byte) {
	t.Helper()
	if _, err := s.w.Write(data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := s.w.Write(nil); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
}

func sinePCM(freq, amplitude float64, rate, samples int) []byte {
	out := make([]byte, 2*samples)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		out[2*i] = byte(uint16(v))
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}

func newTestSession(capture ports.AudioCapture, listener ports.FrameListener, device string, rate int) *Session {
	logger, _ := test.NewNullLogger()
	return NewSession(capture, listener, logger, Config{
		Audio:        ports.AudioConfig{SampleRate: rate, Channels: 1, InputFormat: "test", InputDevice: device},
		PollInterval: 5 * time.Millisecond,
	})
}

func TestSessionRecordsAndSeals(t *testing.T) {
	t.Parallel()

	capture := &fakeCapture{}
	listener := newRecordingListener()
	session := newTestSession(capture, listener, "records", dsp.SampleRate)
	defer session.Cleanup()

	if session.ID() == "" {
		t.Fatalf("expected session id")
	}
	if err := session.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if got := session.State(); got != domain.SessionStateArmed {
		t.Fatalf("expected armed, got %s", got)
	}
	if session.Degraded() {
		t.Fatalf("expected real-time analyzer at 16 kHz mono")
	}
	if err := session.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	source := capture.last()
	source.feed(t, sinePCM(200, 0.3, dsp.SampleRate, 20*dsp.BlockSize))

	artifact, err := session.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if got := session.State(); got != domain.SessionStateSealed {
		t.Fatalf("expected sealed, got %s", got)
	}

	want := float64(20*dsp.BlockSize) / dsp.SampleRate
	if math.Abs(artifact.DurationSec-want) > 1e-9 {
		t.Fatalf("expected duration %f, got %f", want, artifact.DurationSec)
	}

	frames := listener.snapshot()
	if len(frames) != 2 {
		t.Fatalf("expected one frame per 10 blocks, got %d", len(frames))
	}
	for _, frame := range frames {
		if !frame.IsSpeaking || math.Abs(frame.PitchHz-200) > 10 {
			t.Fatalf("unexpected frame: %+v", frame)
		}
	}
	if frames[1].Timestamp <= frames[0].Timestamp {
		t.Fatalf("expected increasing timestamps: %+v", frames)
	}
}

func TestSessionPauseDropsAudio(t *testing.T) {
	t.Parallel()

	capture := &fakeCapture{}
	listener := newRecordingListener()
	session := newTestSession(capture, listener, "pause", dsp.SampleRate)
	defer session.Cleanup()

	if err := session.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	// Audio before Start is discarded.
	source := capture.last()
	source.feed(t, sinePCM(200, 0.3, dsp.SampleRate, dsp.BlockSize))

	if err := session.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	source.feed(t, sinePCM(200, 0.3, dsp.SampleRate, dsp.BlockSize))
	if err := session.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	source.feed(t, sinePCM(200, 0.3, dsp.SampleRate, 10*dsp.BlockSize))
	if err := session.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	source.feed(t, sinePCM(200, 0.3, dsp.SampleRate, dsp.BlockSize))

	artifact, err := session.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	want := float64(2*dsp.BlockSize) / dsp.SampleRate
	if math.Abs(artifact.DurationSec-want) > 1e-9 {
		t.Fatalf("expected duration %f, got %f", want, artifact.DurationSec)
	}
	if got := len(listener.snapshot()); got != 0 {
		t.Fatalf("expected no frames for two recorded blocks, got %d", got)
	}
}

func TestSessionRejectsIllegalTransitions(t *testing.T) {
	t.Parallel()

	capture := &fakeCapture{}
	session := newTestSession(capture, nil, "illegal", dsp.SampleRate)
	defer session.Cleanup()

	if err := session.Start(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state for start while idle, got %v", err)
	}
	if _, err := session.Stop(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state for stop while idle, got %v", err)
	}

	if err := session.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if err := session.Initialize(context.Background()); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state for double initialize, got %v", err)
	}
	if err := session.Pause(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state for pause while armed, got %v", err)
	}
	if _, err := session.Stop(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state for stop while armed, got %v", err)
	}
	if err := session.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := session.Resume(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state for resume while recording, got %v", err)
	}
	if got := session.State(); got != domain.SessionStateRecording {
		t.Fatalf("rejected transitions must not change state, got %s", got)
	}

	if _, err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if _, err := session.Stop(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state for second stop, got %v", err)
	}
}

func TestSessionDeviceIsExclusive(t *testing.T) {
	t.Parallel()

	capture := &fakeCapture{}
	first := newTestSession(capture, nil, "exclusive", dsp.SampleRate)
	second := newTestSession(capture, nil, "exclusive", dsp.SampleRate)
	defer first.Cleanup()
	defer second.Cleanup()

	if err := first.Initialize(context.Background()); err != nil {
		t.Fatalf("first initialize failed: %v", err)
	}
	if err := second.Initialize(context.Background()); !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
	if got := second.State(); got != domain.SessionStateIdle {
		t.Fatalf("expected failed session to stay idle, got %s", got)
	}

	first.Cleanup()
	if err := second.Initialize(context.Background()); err != nil {
		t.Fatalf("expected device to be free after cleanup, got %v", err)
	}
}

func TestDeviceKeyResolvesDefaults(t *testing.T) {
	t.Parallel()

	format, device := audio.DefaultInput(runtime.GOOS)
	explicit := ports.AudioConfig{InputFormat: format, InputDevice: device}
	if deviceKey(ports.AudioConfig{}) != deviceKey(explicit) {
		t.Fatalf("expected defaulted and explicit inputs to share a key: %q vs %q",
			deviceKey(ports.AudioConfig{}), deviceKey(explicit))
	}
	if deviceKey(ports.AudioConfig{InputDevice: "other"}) == deviceKey(explicit) {
		t.Fatalf("expected a different device to get its own key")
	}
}

func TestSessionDefaultAndExplicitInputExcludeEachOther(t *testing.T) {
	t.Parallel()

	format, device := audio.DefaultInput(runtime.GOOS)
	logger, _ := test.NewNullLogger()
	capture := &fakeCapture{}
	explicit := NewSession(capture, nil, logger, Config{
		Audio: ports.AudioConfig{SampleRate: dsp.SampleRate, Channels: 1, InputFormat: format, InputDevice: device},
	})
	defaulted := NewSession(capture, nil, logger, Config{
		Audio: ports.AudioConfig{SampleRate: dsp.SampleRate, Channels: 1},
	})
	defer explicit.Cleanup()
	defer defaulted.Cleanup()

	if err := explicit.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if err := defaulted.Initialize(context.Background()); !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
}

func TestSessionCaptureFailureReleasesDevice(t *testing.T) {
	t.Parallel()

	capture := &fakeCapture{err: errors.New("no such device")}
	session := newTestSession(capture, nil, "broken", dsp.SampleRate)
	defer session.Cleanup()

	err := session.Initialize(context.Background())
	if !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
	if got := session.State(); got != domain.SessionStateIdle {
		t.Fatalf("expected idle after failure, got %s", got)
	}

	capture.mu.Lock()
	capture.err = nil
	capture.mu.Unlock()
	if err := session.Initialize(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestSessionPollingAnalyzerAtOtherRates(t *testing.T) {
	t.Parallel()

	capture := &fakeCapture{}
	listener := newRecordingListener()
	session := newTestSession(capture, listener, "polling", 8000)
	defer session.Cleanup()

	if err := session.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if !session.Degraded() {
		t.Fatalf("expected polling analyzer at 8 kHz")
	}
	if err := session.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	capture.last().feed(t, sinePCM(200, 0.3, 8000, 1024))

	frame := listener.waitFor(t, func(m domain.AudioFrameMetrics) bool { return m.Volume > 0 })
	if frame.PitchHz != 0 {
		t.Fatalf("polling analyzer must not report pitch, got %+v", frame)
	}

	if _, err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	count := len(listener.snapshot())
	time.Sleep(30 * time.Millisecond)
	if got := len(listener.snapshot()); got != count {
		t.Fatalf("frames delivered after stop: %d -> %d", count, got)
	}
}

func TestSessionCleanupIsIdempotent(t *testing.T) {
	t.Parallel()

	capture := &fakeCapture{}
	session := newTestSession(capture, nil, "cleanup", dsp.SampleRate)

	session.Cleanup()
	session.Cleanup()
	if got := session.State(); got != domain.SessionStateIdle {
		t.Fatalf("expected idle, got %s", got)
	}

	if err := session.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if err := session.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	session.Cleanup()
	session.Cleanup()
	if got := session.State(); got != domain.SessionStateIdle {
		t.Fatalf("expected idle after cleanup, got %s", got)
	}
}
