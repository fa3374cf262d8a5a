package usecase

import (
	"voicecheck/internal/domain"
	"voicecheck/internal/ports"
)

// sinkListener forwards live frame metrics from a capture session to the
// event sink.
type sinkListener struct {
	events ports.EventSink
}

func (l sinkListener) OnFrame(metrics domain.AudioFrameMetrics) {
	l.events.FrameMetrics(metrics)
}

type discardEvents struct{}

func (discardEvents) SessionStateChanged(domain.SessionState, domain.SessionStateReason) {}
func (discardEvents) FrameMetrics(domain.AudioFrameMetrics)                              {}
func (discardEvents) AnalysisReady(domain.AnalysisReport)                                {}
func (discardEvents) SessionError(domain.ErrorCode, string)                              {}
