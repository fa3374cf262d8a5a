package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"voicecheck/internal/capture"
	"voicecheck/internal/domain"
	"voicecheck/internal/logging"
	"voicecheck/internal/ports"
)

var ErrNoActiveSession = fmt.Errorf("%w: no active recording session", domain.ErrInvalidState)

// RecordingController drives one capture session at a time from arming to
// the finished analysis report.
type RecordingController struct {
	audio    ports.AudioCapture
	analysis *AnalysisController
	events   ports.EventSink
	cfg      capture.Config
	log      logrus.FieldLogger

	mu      sync.Mutex
	current *capture.Session
}

// NewRecordingController builds a controller. events may be nil.
func NewRecordingController(
	audio ports.AudioCapture,
	analysis *AnalysisController,
	events ports.EventSink,
	cfg capture.Config,
	log logrus.FieldLogger,
) *RecordingController {
	if events == nil {
		events = discardEvents{}
	}
	return &RecordingController{
		audio:    audio,
		analysis: analysis,
		events:   events,
		cfg:      cfg,
		log:      logging.OrDiscard(log),
	}
}

// Begin arms a new capture session and starts recording. An unfinished
// previous session is discarded first.
func (c *RecordingController) Begin(ctx context.Context) error {
	c.mu.Lock()
	previous := c.current
	c.current = nil
	c.mu.Unlock()

	if previous != nil {
		previous.Cleanup()
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingDiscard)
	}

	session := capture.NewSession(c.audio, sinkListener{events: c.events}, c.log, c.cfg)
	if err := session.Initialize(ctx); err != nil {
		reason := domain.SessionReasonMicCold
		if errors.Is(err, domain.ErrDeviceUnavailable) {
			reason = domain.SessionReasonDeviceUnavailable
		}
		c.events.SessionError(domain.ErrorCodeStartup, err.Error())
		c.events.SessionStateChanged(domain.SessionStateIdle, reason)
		return err
	}

	reason := domain.SessionReasonArmed
	if session.Degraded() {
		reason = domain.SessionReasonDegradedAnalyzer
	}
	c.events.SessionStateChanged(domain.SessionStateArmed, reason)

	if err := session.Start(); err != nil {
		session.Cleanup()
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingDiscard)
		return err
	}

	c.mu.Lock()
	c.current = session
	c.mu.Unlock()

	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	return nil
}

func (c *RecordingController) Pause() error {
	session, err := c.getCurrent()
	if err != nil {
		return err
	}
	if err := session.Pause(); err != nil {
		return err
	}
	c.events.SessionStateChanged(domain.SessionStatePaused, domain.SessionReasonPaused)
	return nil
}

func (c *RecordingController) Resume() error {
	session, err := c.getCurrent()
	if err != nil {
		return err
	}
	if err := session.Resume(); err != nil {
		return err
	}
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonResumed)
	return nil
}

// Finish seals the recording, analyzes it and returns the report. The
// microphone is released before analysis starts.
func (c *RecordingController) Finish(ctx context.Context, req AnalysisRequest) (domain.AnalysisReport, error) {
	session, err := c.getCurrent()
	if err != nil {
		return domain.AnalysisReport{}, err
	}

	c.events.SessionStateChanged(domain.SessionStateStopping, domain.SessionReasonAnalyzing)
	artifact, err := session.Stop()
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			return domain.AnalysisReport{}, err
		}
		c.events.SessionError(domain.ErrorCodeAudioStop, err.Error())
		c.finish(session, domain.SessionReasonRecordingDiscard)
		return domain.AnalysisReport{}, err
	}
	c.events.SessionStateChanged(domain.SessionStateSealed, domain.SessionReasonAnalyzing)

	req.SessionID = session.ID()
	report, err := c.analysis.Analyze(ctx, artifact, req)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeAssessment, err.Error())
		c.finish(session, domain.SessionReasonRecordingDiscard)
		return domain.AnalysisReport{}, err
	}

	c.events.AnalysisReady(report)
	c.finish(session, domain.SessionReasonAnalysisReady)
	return report, nil
}

// Abort discards the active session without analysis.
func (c *RecordingController) Abort() error {
	session, err := c.getCurrent()
	if err != nil {
		return err
	}
	c.finish(session, domain.SessionReasonRecordingDiscard)
	return nil
}

// Status returns the current backend status.
func (c *RecordingController) Status() domain.Status {
	c.mu.Lock()
	session := c.current
	c.mu.Unlock()

	if session == nil {
		return domain.Status{State: domain.SessionStateIdle}
	}
	state := session.State()
	return domain.Status{
		SessionID: session.ID(),
		State:     state,
		Active:    state != domain.SessionStateIdle,
		Degraded:  session.Degraded(),
	}
}

func (c *RecordingController) getCurrent() (*capture.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNoActiveSession
	}
	return c.current, nil
}

func (c *RecordingController) finish(session *capture.Session, reason domain.SessionStateReason) {
	session.Cleanup()

	c.mu.Lock()
	if c.current == session {
		c.current = nil
	}
	c.mu.Unlock()

	c.events.SessionStateChanged(domain.SessionStateIdle, reason)
}
