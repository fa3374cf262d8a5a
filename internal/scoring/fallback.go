package scoring

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"voicecheck/internal/domain"
)

const (
	baseline  = 5.0
	minBand   = 4.0
	maxBand   = 8.5
	minWPM    = 100
	maxWPM    = 180
	vocabGain = 1.0
	stepGain  = 0.5
)

var (
	sophisticated  = regexp.MustCompile(`(?i)\b(consequently|furthermore|nevertheless|substantial|demonstrate|comprehensive|significant)\b`)
	sentenceBreaks = regexp.MustCompile(`[.!?]+`)
	pauseMarks     = regexp.MustCompile(`[.,!?;]`)
	youKnow        = regexp.MustCompile(`(?i)\byou know\b`)
)

var fillers = map[string]struct{}{
	"um": {}, "uh": {}, "er": {}, "ah": {}, "like": {}, "so": {},
}

// Estimate scores transcript without any provider. It never fails and keeps
// both axes within [4.0, 8.5].
func Estimate(transcript string, durationSec float64, part int) domain.BandScoreEstimate {
	words := len(strings.Fields(transcript))
	longEnough := words > minimumWords(part)

	lexical, grammatical := baseline, baseline
	if sophisticated.MatchString(transcript) {
		lexical += vocabGain
	}
	if sentenceCount(transcript) > 2 {
		lexical += stepGain
		grammatical += stepGain
	}
	if longEnough {
		lexical += stepGain
		grammatical += stepGain
	}
	if wpm := wordsPerMinute(words, durationSec); longEnough && wpm >= minWPM && wpm <= maxWPM {
		lexical += stepGain
		grammatical += stepGain
	}

	lexical = halfStep(lo.Clamp(lexical, minBand, maxBand))
	grammatical = halfStep(lo.Clamp(grammatical, minBand, maxBand))
	return domain.BandScoreEstimate{
		Lexical:     lexical,
		Grammatical: grammatical,
		Overall:     halfStep((lexical + grammatical) / 2),
	}
}

// Fluency derives coarse fluency indicators from the transcript text.
func Fluency(transcript string, durationSec float64) domain.FluencyMetrics {
	words := strings.Fields(transcript)

	fillerCount := lo.CountBy(words, func(word string) bool {
		_, ok := fillers[strings.ToLower(strings.Trim(word, ".,!?;:\"'"))]
		return ok
	})
	fillerCount += len(youKnow.FindAllStringIndex(transcript, -1))

	articulation := 0.0
	if len(words) > 0 {
		letters := lo.SumBy(words, func(word string) int { return utf8.RuneCountInString(word) })
		avg := float64(letters) / float64(len(words))
		articulation = lo.Clamp((avg-2)*20, 0, 100)
	}

	return domain.FluencyMetrics{
		SpeechRateWPM: wordsPerMinute(len(words), durationSec),
		PauseCount:    len(pauseMarks.FindAllStringIndex(transcript, -1)),
		FillerWords:   fillerCount,
		Articulation:  int(math.Round(articulation)),
	}
}

func minimumWords(part int) int {
	switch part {
	case 1:
		return 10
	case 2:
		return 50
	default:
		return 30
	}
}

func sentenceCount(transcript string) int {
	return lo.CountBy(sentenceBreaks.Split(transcript, -1), func(segment string) bool {
		return strings.TrimSpace(segment) != ""
	})
}

func wordsPerMinute(words int, durationSec float64) int {
	if durationSec <= 0 || math.IsNaN(durationSec) || math.IsInf(durationSec, 0) {
		return 0
	}
	return int(math.Round(float64(words) / durationSec * 60))
}

func halfStep(v float64) float64 {
	return math.Round(v*2) / 2
}
