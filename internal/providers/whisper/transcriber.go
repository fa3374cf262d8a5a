package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"voicecheck/internal/domain"
	"voicecheck/internal/providers"
)

const (
	TierName       = "A"
	providerName   = "whisper"
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "whisper-1"
)

// Config selects the Whisper-compatible endpoint.
type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
}

type (
	verboseResult struct {
		Text  string `json:"text"`
		Words []word `json:"words"`
	}

	word struct {
		Text  string           `json:"word"`
		Start *decimal.Decimal `json:"start"`
		End   *decimal.Decimal `json:"end"`
	}
)

// Transcriber is the word-timed transcription tier.
type Transcriber struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config, client *http.Client) *Transcriber {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if client == nil {
		client = providers.NewHTTPClient(0)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Transcriber{cfg: cfg, http: client}
}

func (t *Transcriber) Name() string {
	return TierName
}

// TryTranscribe uploads the artifact and returns text with per-word timings
// when every word carries both offsets.
func (t *Transcriber) TryTranscribe(ctx context.Context, artifact *domain.RecordingArtifact) (domain.Transcript, error) {
	if t.cfg.APIKey == "" {
		return domain.Transcript{}, fmt.Errorf("%s: %w: no api key configured", providerName, domain.ErrProviderUnavailable)
	}
	if artifact == nil || len(artifact.Bytes) == 0 {
		return domain.Transcript{}, fmt.Errorf("%s: %w: empty recording", providerName, domain.ErrProviderUnavailable)
	}

	body, contentType, err := t.form(artifact)
	if err != nil {
		return domain.Transcript{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return domain.Transcript{}, providers.Unavailable(providerName, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.http.Do(req)
	if err != nil {
		return domain.Transcript{}, providers.Unavailable(providerName, err)
	}
	defer resp.Body.Close()

	if err := providers.CheckResponse(providerName, resp); err != nil {
		return domain.Transcript{}, err
	}

	var out verboseResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Transcript{}, providers.Malformed(providerName, "decode: %v", err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return domain.Transcript{}, providers.Malformed(providerName, "empty text")
	}
	return domain.Transcript{Text: text, Timings: timings(out.Words)}, nil
}

func (t *Transcriber) form(artifact *domain.RecordingArtifact) (*bytes.Buffer, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", "recording.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(artifact.Bytes); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"model", t.cfg.Model},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "word"},
	}
	if t.cfg.Language != "" {
		fields = append(fields, [2]string{"language", t.cfg.Language})
	}
	for _, field := range fields {
		if err := w.WriteField(field[0], field[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &b, w.FormDataContentType(), nil
}

// timings converts provider words, or returns nil when any word lacks a
// usable span so the caller can synthesize uniform ones instead. A span
// must end strictly after it starts.
func timings(words []word) []domain.WordTiming {
	if len(words) == 0 {
		return nil
	}
	out := make([]domain.WordTiming, 0, len(words))
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		if w.Start == nil || w.End == nil || !w.End.GreaterThan(*w.Start) {
			return nil
		}
		out = append(out, domain.WordTiming{
			Word:     text,
			StartSec: w.Start.InexactFloat64(),
			EndSec:   w.End.InexactFloat64(),
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
