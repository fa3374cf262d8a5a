package main

import (
	"fmt"
	"io"
	"sync"

	"voicecheck/internal/domain"
)

// consoleEvents prints session progress for a terminal user.
type consoleEvents struct {
	mu    sync.Mutex
	w     io.Writer
	meter bool
}

func newConsoleEvents(w io.Writer, meter bool) *consoleEvents {
	return &consoleEvents{w: w, meter: meter}
}

func (c *consoleEvents) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	message := sessionReasonMessage(reason)
	if message == "" {
		return
	}
	c.printf("[%s] %s\n", state, message)
}

func (c *consoleEvents) FrameMetrics(metrics domain.AudioFrameMetrics) {
	if !c.meter {
		return
	}
	marker := " "
	if metrics.IsSpeaking {
		marker = "*"
	}
	c.printf("%s %6.2fs volume=%.2f pitch=%.0fHz\n", marker, metrics.Timestamp, metrics.Volume, metrics.PitchHz)
}

func (c *consoleEvents) AnalysisReady(report domain.AnalysisReport) {
	c.printf("[analysis] overall band %.1f (%s)\n", report.Scores.Overall, report.ScoreSource)
	for _, warning := range report.Warnings {
		c.printf("  warning: %s\n", warning)
	}
}

func (c *consoleEvents) SessionError(code domain.ErrorCode, detail string) {
	c.printf("[error] %s: %s\n", errorMessage(code, detail), detail)
}

func (c *consoleEvents) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonMicCold:
		return "Mic cold"
	case domain.SessionReasonArmed:
		return "Microphone ready"
	case domain.SessionReasonDegradedAnalyzer:
		return "Microphone ready (live pitch unavailable at this sample rate)"
	case domain.SessionReasonRecordingStarted:
		return "Recording started"
	case domain.SessionReasonPaused:
		return "Recording paused"
	case domain.SessionReasonResumed:
		return "Recording resumed"
	case domain.SessionReasonAnalyzing:
		return "Recording stopped. Analyzing..."
	case domain.SessionReasonAnalysisReady:
		return "Analysis ready"
	case domain.SessionReasonRecordingDiscard:
		return "Recording discarded"
	case domain.SessionReasonDeviceUnavailable:
		return "Microphone unavailable"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeAudioStream:
		return "Audio capture issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeAssessment:
		return "Assessment error"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
