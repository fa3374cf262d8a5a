package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"voicecheck/internal/domain"
	"voicecheck/internal/logging"
	"voicecheck/internal/ports"
	"voicecheck/internal/pronunciation"
	"voicecheck/internal/scoring"
	"voicecheck/internal/transcription"
)

const (
	ScoreSourceExaminer = "examiner"
	ScoreSourceFallback = "fallback"
)

// AnalysisRequest describes the prompt a recording answered. An empty
// SessionID gets a fresh one.
type AnalysisRequest struct {
	SessionID string
	Part      int
	Topic     string
}

// AnalysisController turns a sealed recording into an AnalysisReport.
type AnalysisController struct {
	transcriber   *transcription.Orchestrator
	pronunciation *pronunciation.Pipeline
	examiner      ports.Examiner
	finalizer     transcriptFinalizer
	log           logrus.FieldLogger
}

// NewAnalysisController wires the analysis stages. examiner and normalizer
// may be nil.
func NewAnalysisController(
	transcriber *transcription.Orchestrator,
	pipeline *pronunciation.Pipeline,
	examiner ports.Examiner,
	normalizer ports.Normalizer,
	log logrus.FieldLogger,
) *AnalysisController {
	log = logging.OrDiscard(log)
	return &AnalysisController{
		transcriber:   transcriber,
		pronunciation: pipeline,
		examiner:      examiner,
		finalizer:     newTranscriptFinalizer(normalizer, log),
		log:           log,
	}
}

// Analyze transcribes the recording, then assesses pronunciation and band
// scores side by side. Provider failures degrade the report and add a
// warning; a missing artifact or an examiner failure outside the provider
// errors is returned.
func (c *AnalysisController) Analyze(ctx context.Context, artifact *domain.RecordingArtifact, req AnalysisRequest) (domain.AnalysisReport, error) {
	if artifact == nil {
		return domain.AnalysisReport{}, fmt.Errorf("%w: no recording to analyze", domain.ErrInvalidState)
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	log := c.log.WithFields(logrus.Fields{"session": req.SessionID, "digest": artifact.Digest})

	report := domain.AnalysisReport{
		SessionID:   req.SessionID,
		DurationSec: artifact.DurationSec,
	}

	transcript := c.transcriber.Transcribe(ctx, artifact)
	report.Transcript = transcript
	placeholder := transcript.SourceTier == transcription.PlaceholderTier
	if placeholder {
		report.Warnings = append(report.Warnings, "transcription providers unavailable; transcript is a placeholder")
	}

	text, warning := c.finalizer.Finalize(transcript.Text)
	report.NormalizedTranscript = text
	if warning != "" {
		report.Warnings = append(report.Warnings, warning)
	}

	var (
		wg      sync.WaitGroup
		records []domain.PronunciationRecord
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		records = c.pronunciation.Analyze(ctx, transcript.Timings)
	}()

	exam := ports.ExamRequest{
		Transcript:  text,
		DurationSec: artifact.DurationSec,
		Topic:       req.Topic,
		Part:        req.Part,
	}
	scores, fallback, warning, err := c.score(ctx, log, exam, placeholder)
	wg.Wait()
	if err != nil {
		return domain.AnalysisReport{}, err
	}

	report.Scores = scores
	report.IsFallback = fallback
	report.ScoreSource = ScoreSourceExaminer
	if fallback {
		report.ScoreSource = ScoreSourceFallback
	}
	if warning != "" {
		report.Warnings = append(report.Warnings, warning)
	}

	report.Pronunciation = records
	report.PronunciationAccuracy = pronunciation.Aggregate(records)
	report.PronunciationBand = pronunciation.Band(report.PronunciationAccuracy)
	if estimated := lo.CountBy(records, func(r domain.PronunciationRecord) bool { return r.IsFallback }); estimated > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("pronunciation estimated without a provider for %d of %d words", estimated, len(records)))
	}
	report.Fluency = scoring.Fluency(text, artifact.DurationSec)

	log.WithFields(logrus.Fields{
		"tier":         transcript.SourceTier,
		"score_source": report.ScoreSource,
		"overall":      report.Scores.Overall,
		"words":        len(records),
	}).Info("analysis complete")
	return report, nil
}

// score asks the examiner and falls back to the deterministic estimate when
// it is missing or fails with a provider error. A placeholder transcript is
// never sent out.
func (c *AnalysisController) score(ctx context.Context, log logrus.FieldLogger, req ports.ExamRequest, placeholder bool) (domain.BandScoreEstimate, bool, string, error) {
	estimate := func() domain.BandScoreEstimate {
		return scoring.Estimate(req.Transcript, req.DurationSec, req.Part)
	}

	switch {
	case c.examiner == nil:
		return estimate(), true, "examiner not configured; band scores are estimated", nil
	case placeholder:
		return estimate(), true, "", nil
	}

	scores, err := c.examiner.Assess(ctx, req)
	if err == nil {
		return scores, false, "", nil
	}
	if !domain.IsRecoverable(err) {
		return domain.BandScoreEstimate{}, false, "", fmt.Errorf("examiner: %w", err)
	}

	log.WithError(err).WithField("cause", examinerCause(err)).Warn("examiner failed; using fallback scores")
	if errors.Is(err, domain.ErrRateLimited) {
		return estimate(), true, "examiner rate limited; band scores are estimated", nil
	}
	return estimate(), true, "examiner unavailable; band scores are estimated", nil
}

func examinerCause(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}
