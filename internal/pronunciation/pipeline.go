package pronunciation

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"voicecheck/internal/audio"
	"voicecheck/internal/domain"
	"voicecheck/internal/logging"
	"voicecheck/internal/phoneme"
	"voicecheck/internal/ports"
	"voicecheck/internal/transcription"
)

const (
	errorThreshold      = 75
	suggestionThreshold = 85
	providerConfidence  = 0.8
)

// RandomSource drives the local heuristic. *rand.Rand satisfies it.
type RandomSource interface {
	Intn(n int) int
	Float64() float64
}

// Pipeline assesses every word of a transcript, concurrently and in order.
type Pipeline struct {
	assessor ports.PhoneticAssessor
	log      logrus.FieldLogger

	randMu sync.Mutex
	rand   RandomSource
}

// NewPipeline builds a pipeline. assessor may be nil, in which case every
// word is scored by the local heuristic.
func NewPipeline(assessor ports.PhoneticAssessor, random RandomSource, log logrus.FieldLogger) *Pipeline {
	if random == nil {
		random = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Pipeline{
		assessor: assessor,
		rand:     random,
		log:      logging.OrDiscard(log),
	}
}

// Analyze returns one record per timing, in input order.
func (p *Pipeline) Analyze(ctx context.Context, timings []domain.WordTiming) []domain.PronunciationRecord {
	records := make([]domain.PronunciationRecord, len(timings))

	var wg sync.WaitGroup
	for i, timing := range timings {
		wg.Add(1)
		go func(i int, timing domain.WordTiming) {
			defer wg.Done()
			records[i] = p.assess(ctx, timing)
		}(i, timing)
	}
	wg.Wait()
	return records
}

// AnalyzeFromAudio assesses text spread uniformly over the artifact. With no
// text, the placeholder transcript for the recording's duration is used.
func (p *Pipeline) AnalyzeFromAudio(ctx context.Context, artifact *domain.RecordingArtifact, text string) []domain.PronunciationRecord {
	duration := 0.0
	if artifact != nil {
		duration = artifact.DurationSec
		if duration <= 0 && len(artifact.Bytes) > 0 {
			if clip, err := audio.DecodeWAV(artifact.Bytes); err == nil {
				duration = clip.DurationSec()
			} else {
				p.log.WithError(err).Debug("could not decode artifact for duration")
			}
		}
	}

	if strings.TrimSpace(text) == "" {
		return p.Analyze(ctx, transcription.Placeholder(duration).Timings)
	}
	return p.Analyze(ctx, transcription.UniformTimings(text, duration))
}

func (p *Pipeline) assess(ctx context.Context, timing domain.WordTiming) domain.PronunciationRecord {
	word := NormalizeWord(timing.Word)
	if word == "" {
		word = timing.Word
	}

	record := domain.PronunciationRecord{
		Word:     word,
		StartSec: timing.StartSec,
		EndSec:   timing.EndSec,
	}

	if p.assessor != nil {
		assessment, err := p.assessor.AssessWord(ctx, word)
		if err == nil && !math.IsNaN(assessment.Accuracy) {
			fromProvider(&record, assessment)
			return record
		}
		p.log.WithError(err).WithField("word", word).Debug("phonetic assessment failed; using heuristic")
	}

	p.heuristic(&record)
	return record
}

func fromProvider(record *domain.PronunciationRecord, assessment ports.PhoneticAssessment) {
	accuracy := int(math.Round(lo.Clamp(assessment.Accuracy, 0, 100)))

	record.Accuracy = accuracy
	record.Phonemes = assessment.Phonemes
	if len(record.Phonemes) == 0 {
		record.Phonemes = phoneme.Approximate(record.Word)
	}
	record.Errors = []string{}
	if accuracy < errorThreshold {
		record.Errors = nonEmpty(assessment.Errors)
	}
	record.Suggestions = []string{}
	if accuracy < suggestionThreshold {
		record.Suggestions = nonEmpty(assessment.Suggestions)
	}
	record.Confidence = providerConfidence
}

func (p *Pipeline) heuristic(record *domain.PronunciationRecord) {
	p.randMu.Lock()
	defer p.randMu.Unlock()

	record.Accuracy = 70 + p.rand.Intn(26)
	record.Phonemes = phoneme.Approximate(record.Word)
	record.Errors = []string{}
	if record.Accuracy < errorThreshold {
		record.Errors = []string{errorCatalogue[p.rand.Intn(len(errorCatalogue))]}
	}
	record.Suggestions = []string{}
	if record.Accuracy < suggestionThreshold {
		record.Suggestions = []string{suggestionFor(record.Word, p.rand.Intn(suggestionCount))}
	}
	record.Confidence = 0.8 + 0.2*p.rand.Float64()
	record.IsFallback = true
}

// Aggregate is the mean accuracy of records, or 0 when there are none.
func Aggregate(records []domain.PronunciationRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	total := lo.SumBy(records, func(record domain.PronunciationRecord) int { return record.Accuracy })
	return float64(total) / float64(len(records))
}

// Band maps a 0-100 accuracy onto the 0-9 band scale in half steps.
func Band(accuracy float64) float64 {
	if math.IsNaN(accuracy) {
		return 0
	}
	return lo.Clamp(math.Round(accuracy/10*2)/2, 0, 9)
}

// NormalizeWord lowercases word and drops every rune that is not a letter,
// digit or underscore.
func NormalizeWord(word string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return unicode.ToLower(r)
		}
		return -1
	}, word)
}

func nonEmpty(items []string) []string {
	return lo.Filter(items, func(item string, _ int) bool { return strings.TrimSpace(item) != "" })
}
