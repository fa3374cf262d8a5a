package deepgram

import (
	"testing"

	"voicecheck/internal/domain"
)

func TestTranscriptAggregatorUsesFinalsAndLastSpokenFallback(t *testing.T) {
	t.Parallel()

	agg := newTranscriptAggregator()
	agg.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "hello"})
	agg.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "hello world"})
	agg.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "hello world again"})

	got := agg.Text()
	if got != "hello world hello world again" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestTranscriptAggregatorPartialOnly(t *testing.T) {
	t.Parallel()

	agg := newTranscriptAggregator()
	agg.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "I think"})
	agg.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "I think so"})
	if got := agg.Text(); got != "I think so" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestTranscriptAggregatorIgnoresEmpty(t *testing.T) {
	t.Parallel()

	agg := newTranscriptAggregator()
	agg.Add(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "   "})
	if got := agg.Text(); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestTranscriptAggregatorConsumeClosesDone(t *testing.T) {
	t.Parallel()

	events := make(chan domain.TranscriptEvent, 2)
	events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "first"}
	events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "second"}
	close(events)

	agg := newTranscriptAggregator()
	done := make(chan struct{})
	agg.consume(events, done)
	<-done
	if got := agg.Text(); got != "first second" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}
