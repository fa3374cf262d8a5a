package capture

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"voicecheck/internal/audio"
	"voicecheck/internal/domain"
	"voicecheck/internal/dsp"
	"voicecheck/internal/logging"
	"voicecheck/internal/ports"
)

const (
	DefaultDecimation   = 10
	DefaultPollInterval = 100 * time.Millisecond
	frameQueueSize      = 32
)

// Config controls capture and live analysis.
type Config struct {
	Audio        ports.AudioConfig
	Decimation   int
	ForcePolling bool
	PollInterval time.Duration
}

// Session owns one microphone recording from arming to the sealed artifact.
type Session struct {
	id       string
	capture  ports.AudioCapture
	listener ports.FrameListener
	log      logrus.FieldLogger
	cfg      Config
	device   string

	// lifecycle serializes Initialize/Start/Pause/Resume/Stop/Cleanup.
	lifecycle sync.Mutex

	stateMu  sync.Mutex
	state    domain.SessionState
	degraded bool

	cancel      context.CancelFunc
	audio       ports.AudioSession
	pump        *pump
	frames      chan domain.AudioFrameMetrics
	pollStop    chan struct{}
	pumpDone    chan struct{}
	pollDone    chan struct{}
	deliverDone chan struct{}
	audioErr    error
}

// NewSession builds an idle session. listener may be nil.
func NewSession(capture ports.AudioCapture, listener ports.FrameListener, log logrus.FieldLogger, cfg Config) *Session {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = dsp.SampleRate
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Decimation < 1 {
		cfg.Decimation = DefaultDecimation
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	id := uuid.NewString()
	return &Session{
		id:       id,
		capture:  capture,
		listener: listener,
		log:      logging.OrDiscard(log).WithField("session", id),
		cfg:      cfg,
		device:   deviceKey(cfg.Audio),
		state:    domain.SessionStateIdle,
	}
}

// deviceKey names the physical input, filling unset parts the way the
// recorder does so equivalent configurations share one lock.
func deviceKey(cfg ports.AudioConfig) string {
	format, device := audio.DefaultInput(runtime.GOOS)
	if cfg.InputFormat != "" {
		format = cfg.InputFormat
	}
	if cfg.InputDevice != "" {
		device = cfg.InputDevice
	}
	return format + ":" + device
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() domain.SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Degraded reports whether the polling analyzer is in use.
func (s *Session) Degraded() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.degraded
}

// Initialize acquires the input device and starts capture. The session is
// Armed on success.
func (s *Session) Initialize(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if err := s.expect(domain.SessionStateIdle); err != nil {
		return err
	}
	s.setState(domain.SessionStateInitializing)

	if !devices.acquire(s.device, s.id) {
		s.setState(domain.SessionStateIdle)
		return fmt.Errorf("%w: %s is held by another session", domain.ErrDeviceUnavailable, s.device)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	audioSession, err := s.capture.Start(sessionCtx, s.cfg.Audio)
	if err != nil {
		cancel()
		devices.release(s.device, s.id)
		s.setState(domain.SessionStateIdle)
		if errors.Is(err, domain.ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	realtime := !s.cfg.ForcePolling &&
		s.cfg.Audio.SampleRate == dsp.SampleRate &&
		s.cfg.Audio.Channels == 1
	if !realtime {
		s.log.WithFields(logrus.Fields{
			"sample_rate": s.cfg.Audio.SampleRate,
			"channels":    s.cfg.Audio.Channels,
			"forced":      s.cfg.ForcePolling,
		}).Warn("real-time analyzer unavailable; using polling analyzer without pitch")
	}

	s.cancel = cancel
	s.audio = audioSession
	s.audioErr = nil
	s.frames = make(chan domain.AudioFrameMetrics, frameQueueSize)
	s.pump = newPump(s.cfg.Audio.SampleRate, s.cfg.Audio.Channels, s.cfg.Decimation, realtime, offerTo(s.frames))
	s.pumpDone = make(chan struct{})
	s.deliverDone = make(chan struct{})

	go s.deliver(s.frames, s.deliverDone)
	go s.pump.run(audioSession, s.recordAudioErr, s.pumpDone)
	if !realtime {
		s.pollStop = make(chan struct{})
		s.pollDone = make(chan struct{})
		go s.pump.poll(s.cfg.PollInterval, s.pollStop, s.pollDone)
	}

	s.stateMu.Lock()
	s.degraded = !realtime
	s.state = domain.SessionStateArmed
	s.stateMu.Unlock()
	s.log.Debug("capture armed")
	return nil
}

// Start begins buffering audio and delivering metrics.
func (s *Session) Start() error {
	return s.transition(domain.SessionStateArmed, domain.SessionStateRecording, true)
}

// Pause stops buffering; audio recorded so far is kept.
func (s *Session) Pause() error {
	return s.transition(domain.SessionStateRecording, domain.SessionStatePaused, false)
}

// Resume continues buffering after Pause.
func (s *Session) Resume() error {
	return s.transition(domain.SessionStatePaused, domain.SessionStateRecording, true)
}

// Stop releases the microphone and seals the buffered audio. No frames are
// delivered after Stop returns.
func (s *Session) Stop() (*domain.RecordingArtifact, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if err := s.expect(domain.SessionStateRecording, domain.SessionStatePaused); err != nil {
		return nil, err
	}
	s.setState(domain.SessionStateStopping)
	s.pump.recording.Store(false)

	s.release()
	if s.audioErr != nil {
		s.log.WithError(s.audioErr).Warn("capture ended with error")
	}

	artifact, err := audio.SealArtifact(s.pump.snapshot(), s.cfg.Audio.SampleRate, s.cfg.Audio.Channels)
	s.pump.reset()
	s.setState(domain.SessionStateSealed)
	if err != nil {
		return nil, fmt.Errorf("sealing recording: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"duration_sec": artifact.DurationSec,
		"digest":       artifact.Digest,
	}).Info("recording sealed")
	return artifact, nil
}

// Cleanup releases everything and returns the session to Idle. It is safe
// to call in any state and more than once.
func (s *Session) Cleanup() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.pump != nil {
		s.pump.recording.Store(false)
	}
	s.release()
	if s.pump != nil {
		s.pump.reset()
	}

	s.stateMu.Lock()
	s.state = domain.SessionStateIdle
	s.degraded = false
	s.stateMu.Unlock()
}

func (s *Session) transition(from, to domain.SessionState, recording bool) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if err := s.expect(from); err != nil {
		return err
	}
	s.pump.recording.Store(recording)
	s.setState(to)
	return nil
}

// release stops the recorder and waits for every goroutine it owns. Caller
// holds lifecycle.
func (s *Session) release() {
	if s.audio != nil {
		if err := s.audio.Stop(); err != nil {
			s.log.WithError(err).Warn("failed to stop audio capture cleanly")
		}
		<-s.pumpDone
		_ = s.audio.Close()
		s.audio = nil
	}
	if s.pollStop != nil {
		close(s.pollStop)
		<-s.pollDone
		s.pollStop = nil
		s.pollDone = nil
	}
	if s.frames != nil {
		close(s.frames)
		<-s.deliverDone
		s.frames = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	devices.release(s.device, s.id)
}

func (s *Session) recordAudioErr(err error) {
	s.audioErr = err
}

// offerTo queues metrics for the listener and drops them when the queue is
// full. It only runs on pump goroutines, which finish before frames closes.
func offerTo(frames chan<- domain.AudioFrameMetrics) func(domain.AudioFrameMetrics) {
	return func(metrics domain.AudioFrameMetrics) {
		select {
		case frames <- metrics:
		default:
		}
	}
}

func (s *Session) deliver(frames <-chan domain.AudioFrameMetrics, done chan struct{}) {
	defer close(done)
	for metrics := range frames {
		if s.listener != nil {
			s.listener.OnFrame(metrics)
		}
	}
}

func (s *Session) expect(allowed ...domain.SessionState) error {
	current := s.State()
	for _, state := range allowed {
		if current == state {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidState, current)
}

func (s *Session) setState(state domain.SessionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}
