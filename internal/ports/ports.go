package ports

import (
	"context"
	"io"

	"voicecheck/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session producing s16le PCM.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// FrameListener receives live frame metrics while recording. Delivery is
// advisory: implementations must return quickly and frames may be dropped.
type FrameListener interface {
	OnFrame(metrics domain.AudioFrameMetrics)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// StreamingProvider starts streaming transcription sessions.
type StreamingProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// TranscriptionTier is one ranked transcription attempt. A tier returns
// timings only when its backend produces them.
type TranscriptionTier interface {
	Name() string
	TryTranscribe(ctx context.Context, artifact *domain.RecordingArtifact) (domain.Transcript, error)
}

// PhoneticAssessment is a provider's raw opinion of one word.
type PhoneticAssessment struct {
	Accuracy    float64  `json:"accuracy"`
	Phonemes    []string `json:"phonemes"`
	Errors      []string `json:"errors"`
	Suggestions []string `json:"suggestions"`
}

// PhoneticAssessor rates the pronunciation of a single word.
type PhoneticAssessor interface {
	AssessWord(ctx context.Context, word string) (PhoneticAssessment, error)
}

// ExamRequest carries the transcript and metadata sent to the Examiner.
type ExamRequest struct {
	Transcript  string
	DurationSec float64
	Topic       string
	Part        int
}

// Examiner is the primary band-score provider. Rate limiting is reported
// as domain.ErrRateLimited.
type Examiner interface {
	Assess(ctx context.Context, req ExamRequest) (domain.BandScoreEstimate, error)
}

// Normalizer transforms transcripts using deterministic rules.
type Normalizer interface {
	Apply(text string) (string, error)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	FrameMetrics(metrics domain.AudioFrameMetrics)
	AnalysisReady(report domain.AnalysisReport)
	SessionError(code domain.ErrorCode, detail string)
}
