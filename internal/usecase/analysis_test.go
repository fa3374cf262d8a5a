package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"voicecheck/internal/domain"
	"voicecheck/internal/ports"
	"voicecheck/internal/pronunciation"
	"voicecheck/internal/scoring"
	"voicecheck/internal/transcription"
)

type fakeTier struct {
	name string
	text string
	err  error
}

func (f fakeTier) Name() string { return f.name }

func (f fakeTier) TryTranscribe(context.Context, *domain.RecordingArtifact) (domain.Transcript, error) {
	if f.err != nil {
		return domain.Transcript{}, f.err
	}
	return domain.Transcript{Text: f.text}, nil
}

type fakeExaminer struct {
	mu     sync.Mutex
	scores domain.BandScoreEstimate
	err    error
	calls  []ports.ExamRequest
}

func (f *fakeExaminer) Assess(_ context.Context, req ports.ExamRequest) (domain.BandScoreEstimate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.scores, f.err
}

func (f *fakeExaminer) requests() []ports.ExamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.ExamRequest(nil), f.calls...)
}

type fixedAssessor struct {
	accuracy float64
	calls    atomic.Int32
}

func (f *fixedAssessor) AssessWord(context.Context, string) (ports.PhoneticAssessment, error) {
	f.calls.Add(1)
	return ports.PhoneticAssessment{Accuracy: f.accuracy}, nil
}

type fakeNormalizer struct {
	out string
	err error
}

func (f fakeNormalizer) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.out != "" {
		return f.out, nil
	}
	return text, nil
}

type fixedRandom struct{}

func (fixedRandom) Intn(n int) int   { return min(20, n-1) }
func (fixedRandom) Float64() float64 { return 0.5 }

type analysisDeps struct {
	tiers      []ports.TranscriptionTier
	assessor   ports.PhoneticAssessor
	examiner   ports.Examiner
	normalizer ports.Normalizer
}

func newTestAnalysis(deps analysisDeps) (*AnalysisController, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewAnalysisController(
		transcription.NewOrchestrator(deps.tiers, 0, logger),
		pronunciation.NewPipeline(deps.assessor, fixedRandom{}, logger),
		deps.examiner,
		deps.normalizer,
		logger,
	), hook
}

func testRecording() *domain.RecordingArtifact {
	return &domain.RecordingArtifact{Bytes: []byte("wav"), DurationSec: 4, SampleRate: 16000, Channels: 1, Digest: "abc"}
}

func TestAnalyzeUsesExaminerScores(t *testing.T) {
	t.Parallel()

	examiner := &fakeExaminer{scores: domain.BandScoreEstimate{Lexical: 7, Grammatical: 6.5, Overall: 7}}
	assessor := &fixedAssessor{accuracy: 80}
	controller, _ := newTestAnalysis(analysisDeps{
		tiers:      []ports.TranscriptionTier{fakeTier{name: "A", text: "umm I like my job"}},
		assessor:   assessor,
		examiner:   examiner,
		normalizer: fakeNormalizer{out: "um I like my job"},
	})

	report, err := controller.Analyze(context.Background(), testRecording(), AnalysisRequest{SessionID: "s1", Part: 1, Topic: "Work"})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	if report.SessionID != "s1" || report.DurationSec != 4 {
		t.Fatalf("unexpected report header: %+v", report)
	}
	if report.Transcript.SourceTier != "A" || report.Transcript.Text != "umm I like my job" {
		t.Fatalf("unexpected transcript: %+v", report.Transcript)
	}
	if report.NormalizedTranscript != "um I like my job" {
		t.Fatalf("unexpected normalized transcript: %q", report.NormalizedTranscript)
	}
	if report.Scores != examiner.scores || report.ScoreSource != ScoreSourceExaminer || report.IsFallback {
		t.Fatalf("expected examiner scores, got %+v from %s", report.Scores, report.ScoreSource)
	}
	if len(report.Pronunciation) != 5 || assessor.calls.Load() != 5 {
		t.Fatalf("expected 5 assessed words, got %d records and %d calls", len(report.Pronunciation), assessor.calls.Load())
	}
	if report.PronunciationAccuracy != 80 || report.PronunciationBand != 8 {
		t.Fatalf("unexpected pronunciation summary: %v / %v", report.PronunciationAccuracy, report.PronunciationBand)
	}
	if report.Fluency != scoring.Fluency("um I like my job", 4) {
		t.Fatalf("unexpected fluency: %+v", report.Fluency)
	}
	if len(report.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", report.Warnings)
	}

	reqs := examiner.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one examiner call, got %d", len(reqs))
	}
	want := ports.ExamRequest{Transcript: "um I like my job", DurationSec: 4, Topic: "Work", Part: 1}
	if reqs[0] != want {
		t.Fatalf("unexpected examiner request: %+v", reqs[0])
	}
}

func TestAnalyzeFallsBackWhenExaminerRateLimited(t *testing.T) {
	t.Parallel()

	text := "I really enjoy my job because it is challenging"
	controller, hook := newTestAnalysis(analysisDeps{
		tiers:    []ports.TranscriptionTier{fakeTier{name: "A", text: text}},
		assessor: &fixedAssessor{accuracy: 90},
		examiner: &fakeExaminer{err: domain.ErrRateLimited},
	})

	report, err := controller.Analyze(context.Background(), testRecording(), AnalysisRequest{Part: 2})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if report.SessionID == "" {
		t.Fatalf("expected generated session id")
	}
	if !report.IsFallback || report.ScoreSource != ScoreSourceFallback {
		t.Fatalf("expected fallback scores, got %+v", report)
	}
	if report.Scores != scoring.Estimate(text, 4, 2) {
		t.Fatalf("unexpected fallback scores: %+v", report.Scores)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "rate limited") {
		t.Fatalf("expected rate limit warning, got %v", report.Warnings)
	}

	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Message == "examiner failed; using fallback scores" && entry.Data["cause"] == "rate_limited" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected examiner failure log entry")
	}
}

func TestAnalyzeWithPlaceholderTranscript(t *testing.T) {
	t.Parallel()

	examiner := &fakeExaminer{scores: domain.BandScoreEstimate{Lexical: 9, Grammatical: 9, Overall: 9}}
	controller, _ := newTestAnalysis(analysisDeps{
		tiers: []ports.TranscriptionTier{
			fakeTier{name: "A", err: domain.ErrProviderUnavailable},
			fakeTier{name: "B", err: domain.ErrMalformedResponse},
		},
		examiner: examiner,
	})

	artifact := testRecording()
	artifact.DurationSec = 3
	report, err := controller.Analyze(context.Background(), artifact, AnalysisRequest{Part: 1})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	if report.Transcript.SourceTier != transcription.PlaceholderTier {
		t.Fatalf("expected placeholder tier, got %q", report.Transcript.SourceTier)
	}
	if report.Transcript.Text != "user provided a spoken response for 3 seconds" {
		t.Fatalf("unexpected placeholder text: %q", report.Transcript.Text)
	}
	if len(examiner.requests()) != 0 {
		t.Fatalf("placeholder transcript must not reach the examiner")
	}
	if !report.IsFallback {
		t.Fatalf("expected fallback scores")
	}
	if len(report.Pronunciation) != 8 {
		t.Fatalf("expected a record per placeholder word, got %d", len(report.Pronunciation))
	}
	for _, record := range report.Pronunciation {
		if !record.IsFallback || record.Accuracy != 90 {
			t.Fatalf("expected heuristic record, got %+v", record)
		}
	}
	if len(report.Warnings) != 2 ||
		!strings.Contains(report.Warnings[0], "placeholder") ||
		!strings.Contains(report.Warnings[1], "8 of 8 words") {
		t.Fatalf("unexpected warnings: %v", report.Warnings)
	}
}

func TestAnalyzeWithoutExaminer(t *testing.T) {
	t.Parallel()

	controller, _ := newTestAnalysis(analysisDeps{
		tiers:    []ports.TranscriptionTier{fakeTier{name: "A", text: "hello there"}},
		assessor: &fixedAssessor{accuracy: 70},
	})

	report, err := controller.Analyze(context.Background(), testRecording(), AnalysisRequest{Part: 3})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if !report.IsFallback || len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "not configured") {
		t.Fatalf("expected not configured fallback, got %+v", report)
	}
}

func TestAnalyzeScoresRawTextWhenNormalizationFails(t *testing.T) {
	t.Parallel()

	examiner := &fakeExaminer{scores: domain.BandScoreEstimate{Lexical: 6, Grammatical: 6, Overall: 6}}
	controller, _ := newTestAnalysis(analysisDeps{
		tiers:      []ports.TranscriptionTier{fakeTier{name: "A", text: "  raw words  "}},
		assessor:   &fixedAssessor{accuracy: 80},
		examiner:   examiner,
		normalizer: fakeNormalizer{err: errors.New("rules loop")},
	})

	report, err := controller.Analyze(context.Background(), testRecording(), AnalysisRequest{Part: 1})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if report.NormalizedTranscript != "raw words" {
		t.Fatalf("expected raw text, got %q", report.NormalizedTranscript)
	}
	if got := examiner.requests()[0].Transcript; got != "raw words" {
		t.Fatalf("expected raw text sent to examiner, got %q", got)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "normalization") {
		t.Fatalf("expected normalization warning, got %v", report.Warnings)
	}
}

func TestAnalyzeReturnsNonProviderExaminerErrors(t *testing.T) {
	t.Parallel()

	controller, hook := newTestAnalysis(analysisDeps{
		tiers:    []ports.TranscriptionTier{fakeTier{name: "A", text: "hello there"}},
		assessor: &fixedAssessor{accuracy: 80},
		examiner: &fakeExaminer{err: fmt.Errorf("%w: session reset", domain.ErrInvalidState)},
	})

	_, err := controller.Analyze(context.Background(), testRecording(), AnalysisRequest{Part: 1})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	for _, entry := range hook.AllEntries() {
		if entry.Message == "examiner failed; using fallback scores" {
			t.Fatalf("expected no fallback for a state error")
		}
	}
}

func TestAnalyzeRequiresArtifact(t *testing.T) {
	t.Parallel()

	controller, _ := newTestAnalysis(analysisDeps{})
	if _, err := controller.Analyze(context.Background(), nil, AnalysisRequest{}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}
