package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voicecheck/internal/audio"
	"voicecheck/internal/domain"
	"voicecheck/internal/usecase"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{"VOICECHECK_CONFIG", "OPENAI_API_KEY", "GITHUB_TOKEN", "DEEPGRAM_API_KEY", "VOICECHECK_NORMALIZE_RULES_FILE"} {
		t.Setenv(key, "")
	}
}

func TestBuildSuccess(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	services, err := Build(nil, io.Discard)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Recorder == nil || services.Analysis == nil || services.Log == nil {
		t.Fatalf("expected wired services, got %+v", services)
	}
	if services.Config.Deepgram.APIKey != "test-key" {
		t.Fatalf("expected loaded config, got %+v", services.Config.Deepgram)
	}
	if status := services.Recorder.Status(); status.Active {
		t.Fatalf("expected idle recorder, got %+v", status)
	}
}

func TestBuildFailsOnInvalidRules(t *testing.T) {
	isolateEnv(t)
	rules := filepath.Join(t.TempDir(), "bad.rules")
	if err := os.WriteFile(rules, []byte("not a valid rule\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("VOICECHECK_NORMALIZE_RULES_FILE", rules)

	if _, err := Build(nil, io.Discard); err == nil {
		t.Fatalf("expected build error due to invalid rules")
	}
}

func TestBuildWithoutProvidersStillAnalyzes(t *testing.T) {
	isolateEnv(t)

	var logs bytes.Buffer
	services, err := Build(nil, &logs)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !strings.Contains(logs.String(), "examiner disabled") {
		t.Fatalf("expected disabled examiner to be logged, got %q", logs.String())
	}

	artifact, err := audio.SealArtifact(make([]byte, 2*16000*2), 16000, 1)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	report, err := services.Analysis.Analyze(context.Background(), artifact, usecase.AnalysisRequest{Part: 1})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if report.Transcript.Text != "user provided a spoken response for 2 seconds" {
		t.Fatalf("expected placeholder transcript, got %q", report.Transcript.Text)
	}
	if !report.IsFallback {
		t.Fatalf("expected fallback scores without an examiner")
	}

	if _, err := services.Analysis.Analyze(context.Background(), nil, usecase.AnalysisRequest{Part: 1}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}
