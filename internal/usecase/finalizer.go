package usecase

import (
	"strings"

	"github.com/sirupsen/logrus"

	"voicecheck/internal/ports"
)

// transcriptFinalizer prepares transcript text for scoring. Normalization
// problems never fail an analysis; the raw text is used instead.
type transcriptFinalizer struct {
	normalizer ports.Normalizer
	log        logrus.FieldLogger
}

func newTranscriptFinalizer(normalizer ports.Normalizer, log logrus.FieldLogger) transcriptFinalizer {
	return transcriptFinalizer{normalizer: normalizer, log: log}
}

// Finalize returns the text to score and a warning when the normalized text
// could not be used.
func (f transcriptFinalizer) Finalize(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	if f.normalizer == nil {
		return raw, ""
	}

	normalized, err := f.normalizer.Apply(raw)
	if err != nil {
		f.log.WithError(err).Warn("transcript normalization failed; scoring raw text")
		return raw, "transcript normalization failed; raw transcript scored"
	}
	if strings.TrimSpace(normalized) == "" && raw != "" {
		f.log.Warn("transcript normalization removed all text; scoring raw text")
		return raw, "transcript normalization produced no text; raw transcript scored"
	}
	return normalized, ""
}
