package transcription

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"voicecheck/internal/domain"
	"voicecheck/internal/logging"
	"voicecheck/internal/ports"
)

const (
	DefaultTierTimeout = 30 * time.Second
	fallbackWordSec    = 0.5
)

// Orchestrator runs transcription tiers strictly in order until one yields
// text. The placeholder tier always runs last, so Transcribe cannot fail.
type Orchestrator struct {
	tiers   []ports.TranscriptionTier
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewOrchestrator(tiers []ports.TranscriptionTier, timeout time.Duration, log logrus.FieldLogger) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultTierTimeout
	}
	return &Orchestrator{
		tiers:   lo.Filter(tiers, func(tier ports.TranscriptionTier, _ int) bool { return tier != nil }),
		timeout: timeout,
		log:     logging.OrDiscard(log),
	}
}

// Transcribe returns the first non-empty transcript. Timings are always
// present; tiers without word timing get uniform ones.
func (o *Orchestrator) Transcribe(ctx context.Context, artifact *domain.RecordingArtifact) domain.Transcript {
	duration := 0.0
	fields := logrus.Fields{}
	if artifact != nil {
		duration = artifact.DurationSec
		fields["digest"] = artifact.Digest
	}

	for _, tier := range o.tiers {
		log := o.log.WithFields(fields).WithField("tier", tier.Name())
		if artifact == nil {
			break
		}

		transcript, err := o.try(ctx, tier, artifact)
		if err != nil {
			log.WithError(err).WithField("cause", failureCause(err)).Warn("transcription tier failed")
			continue
		}

		transcript.SourceTier = tier.Name()
		if len(transcript.Timings) == 0 {
			transcript.Timings = UniformTimings(transcript.Text, duration)
		}
		log.WithField("words", len(transcript.Timings)).Info("transcription complete")
		return transcript
	}

	transcript := Placeholder(duration)
	o.log.WithFields(fields).WithField("tier", transcript.SourceTier).Warn("all transcription providers failed; using placeholder")
	return transcript
}

func (o *Orchestrator) try(ctx context.Context, tier ports.TranscriptionTier, artifact *domain.RecordingArtifact) (domain.Transcript, error) {
	tierCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	transcript, err := tier.TryTranscribe(tierCtx, artifact)
	if err != nil {
		return domain.Transcript{}, err
	}
	transcript.Text = strings.TrimSpace(transcript.Text)
	if transcript.Text == "" {
		return domain.Transcript{}, fmt.Errorf("%w: empty transcript", domain.ErrMalformedResponse)
	}
	return transcript, nil
}

// PlaceholderTier is the deterministic last resort.
const PlaceholderTier = "C"

// Placeholder builds the labeled stand-in transcript for a recording of
// durationSec seconds.
func Placeholder(durationSec float64) domain.Transcript {
	if durationSec < 0 || math.IsNaN(durationSec) || math.IsInf(durationSec, 0) {
		durationSec = 0
	}
	text := fmt.Sprintf("user provided a spoken response for %d seconds", int(math.Round(durationSec)))
	return domain.Transcript{
		Text:       text,
		Timings:    UniformTimings(text, durationSec),
		SourceTier: PlaceholderTier,
	}
}

// UniformTimings spreads durationSec evenly across the words of text. A
// non-positive duration gives every word half a second.
func UniformTimings(text string, durationSec float64) []domain.WordTiming {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	per := fallbackWordSec
	if durationSec > 0 && !math.IsInf(durationSec, 0) {
		per = durationSec / float64(len(words))
	}
	return lo.Map(words, func(word string, i int) domain.WordTiming {
		return domain.WordTiming{
			Word:     word,
			StartSec: float64(i) * per,
			EndSec:   float64(i+1) * per,
		}
	})
}

func failureCause(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "provider_unavailable"
	default:
		return "unknown"
	}
}
