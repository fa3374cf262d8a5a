package deepgram

import (
	"strings"
	"sync"

	"voicecheck/internal/domain"
)

// transcriptAggregator joins final segments, falling back to the last
// partial when the stream ended before anything was finalized.
type transcriptAggregator struct {
	mu         sync.Mutex
	finals     []string
	lastSpoken string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

func (a *transcriptAggregator) Add(event domain.TranscriptEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}
	a.lastSpoken = text
	if event.Kind == domain.TranscriptKindFinal {
		a.finals = append(a.finals, text)
	}
}

func (a *transcriptAggregator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	switch {
	case joined == "":
		return a.lastSpoken
	case a.lastSpoken == "", strings.HasSuffix(joined, a.lastSpoken):
		return joined
	case len(a.lastSpoken) > len(joined):
		// A trailing partial that outgrew the finals was never finalized.
		return strings.TrimSpace(joined + " " + a.lastSpoken)
	default:
		return joined
	}
}

// consume drains session events into the aggregator until the session
// closes its event channel.
func (a *transcriptAggregator) consume(events <-chan domain.TranscriptEvent, done chan struct{}) {
	defer close(done)
	for event := range events {
		a.Add(event)
	}
}
