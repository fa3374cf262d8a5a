package domain

// SessionState models the capture lifecycle.
type SessionState string

const (
	SessionStateIdle         SessionState = "idle"
	SessionStateInitializing SessionState = "initializing"
	SessionStateArmed        SessionState = "armed"
	SessionStateRecording    SessionState = "recording"
	SessionStatePaused       SessionState = "paused"
	SessionStateStopping     SessionState = "stopping"
	SessionStateSealed       SessionState = "sealed"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonMicCold           SessionStateReason = "mic_cold"
	SessionReasonArmed             SessionStateReason = "armed"
	SessionReasonRecordingStarted  SessionStateReason = "recording_started"
	SessionReasonPaused            SessionStateReason = "paused"
	SessionReasonResumed           SessionStateReason = "resumed"
	SessionReasonAnalyzing         SessionStateReason = "analyzing"
	SessionReasonAnalysisReady     SessionStateReason = "analysis_ready"
	SessionReasonRecordingDiscard  SessionStateReason = "recording_discarded"
	SessionReasonDegradedAnalyzer  SessionStateReason = "degraded_analyzer"
	SessionReasonDeviceUnavailable SessionStateReason = "device_unavailable"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeAudioStop     ErrorCode = "audio_stop"
	ErrorCodeAudioStream   ErrorCode = "audio_stream"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeAssessment    ErrorCode = "assessment"
)

// AudioFrameMetrics is the live, advisory analysis of one processed block.
type AudioFrameMetrics struct {
	Volume     float64 `json:"volume"`
	PitchHz    float64 `json:"pitchHz"`
	IsSpeaking bool    `json:"isSpeaking"`
	Timestamp  float64 `json:"timestamp"`
}

// WordTiming attributes a time span in seconds to a single spoken word.
type WordTiming struct {
	Word     string  `json:"word" yaml:"word"`
	StartSec float64 `json:"startSec" yaml:"startSec"`
	EndSec   float64 `json:"endSec" yaml:"endSec"`
}

// PronunciationRecord is the assessment of one spoken word.
type PronunciationRecord struct {
	Word        string   `json:"word" yaml:"word"`
	StartSec    float64  `json:"startSec" yaml:"startSec"`
	EndSec      float64  `json:"endSec" yaml:"endSec"`
	Accuracy    int      `json:"accuracy" yaml:"accuracy"`
	Phonemes    []string `json:"phonemes" yaml:"phonemes"`
	Errors      []string `json:"errors" yaml:"errors"`
	Suggestions []string `json:"suggestions" yaml:"suggestions"`
	Confidence  float64  `json:"confidence" yaml:"confidence"`
	IsFallback  bool     `json:"isFallback" yaml:"isFallback"`
}

// RecordingArtifact is the sealed output of a capture session. It is handed
// between stages by pointer; holders must not retain or mutate Bytes.
type RecordingArtifact struct {
	Bytes       []byte
	MIMEType    string
	DurationSec float64
	SampleRate  int
	Channels    int
	Digest      string
}

// BandScoreEstimate holds band scores on the 0-9 scale in 0.5 steps.
type BandScoreEstimate struct {
	Lexical     float64 `json:"lexical" yaml:"lexical"`
	Grammatical float64 `json:"grammatical" yaml:"grammatical"`
	Overall     float64 `json:"overall" yaml:"overall"`
}

// Transcript is the result of transcription. SourceTier names the tier
// that produced it.
type Transcript struct {
	Text       string       `json:"text" yaml:"text"`
	Timings    []WordTiming `json:"timings,omitempty" yaml:"timings,omitempty"`
	SourceTier string       `json:"sourceTier" yaml:"sourceTier"`
}

// FluencyMetrics are coarse text-derived fluency indicators.
type FluencyMetrics struct {
	SpeechRateWPM int `json:"speechRateWpm" yaml:"speechRateWpm"`
	PauseCount    int `json:"pauseCount" yaml:"pauseCount"`
	FillerWords   int `json:"fillerWords" yaml:"fillerWords"`
	Articulation  int `json:"articulation" yaml:"articulation"`
}

// AnalysisReport is the end-to-end result for one recording.
type AnalysisReport struct {
	SessionID             string                `json:"sessionId" yaml:"sessionId"`
	DurationSec           float64               `json:"durationSec" yaml:"durationSec"`
	Transcript            Transcript            `json:"transcript" yaml:"transcript"`
	NormalizedTranscript  string                `json:"normalizedTranscript" yaml:"normalizedTranscript"`
	Pronunciation         []PronunciationRecord `json:"pronunciation" yaml:"pronunciation"`
	PronunciationAccuracy float64               `json:"pronunciationAccuracy" yaml:"pronunciationAccuracy"`
	PronunciationBand     float64               `json:"pronunciationBand" yaml:"pronunciationBand"`
	Scores                BandScoreEstimate     `json:"scores" yaml:"scores"`
	ScoreSource           string                `json:"scoreSource" yaml:"scoreSource"`
	IsFallback            bool                  `json:"isFallback" yaml:"isFallback"`
	Fluency               FluencyMetrics        `json:"fluency" yaml:"fluency"`
	Warnings              []string              `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a
// streaming provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// Status summarizes the current runtime status.
type Status struct {
	SessionID string       `json:"sessionId,omitempty"`
	State     SessionState `json:"state"`
	Active    bool         `json:"active"`
	Degraded  bool         `json:"degraded"`
	Message   string       `json:"message,omitempty"`
}
