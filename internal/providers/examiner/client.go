package examiner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strings"

	"voicecheck/internal/domain"
	"voicecheck/internal/ports"
	"voicecheck/internal/providers"
)

const (
	providerName   = "examiner"
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
)

// Config selects an OpenAI-compatible chat completions endpoint.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// Client scores transcripts and rates single words through chat completions.
type Client struct {
	cfg  Config
	http *http.Client
}

var (
	_ ports.Examiner         = (*Client)(nil)
	_ ports.PhoneticAssessor = (*Client)(nil)
)

func New(cfg Config, client *http.Client) *Client {
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
	return &Client{cfg: cfg, http: client}
}

type (
	chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	chatRequest struct {
		Model       string        `json:"model"`
		Messages    []chatMessage `json:"messages"`
		Temperature float64       `json:"temperature"`
		MaxTokens   int           `json:"max_tokens"`
	}

	chatResponse struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}

	examResult struct {
		Scores struct {
			Lexical     *float64 `json:"lexicalResource"`
			Grammatical *float64 `json:"grammaticalRange"`
			Overall     *float64 `json:"overall"`
		} `json:"scores"`
	}
)

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// Assess asks the model for lexical and grammatical band scores.
func (c *Client) Assess(ctx context.Context, req ports.ExamRequest) (domain.BandScoreEstimate, error) {
	content, err := c.complete(ctx, examinerSystemPrompt, examPrompt(req), 800)
	if err != nil {
		return domain.BandScoreEstimate{}, err
	}

	var out examResult
	if err := decodeObject(content, &out); err != nil {
		return domain.BandScoreEstimate{}, err
	}
	scores := out.Scores
	if scores.Lexical == nil || scores.Grammatical == nil {
		return domain.BandScoreEstimate{}, providers.Malformed(providerName, "missing scores")
	}
	lexical, grammatical := *scores.Lexical, *scores.Grammatical
	if !validBand(lexical) || !validBand(grammatical) {
		return domain.BandScoreEstimate{}, providers.Malformed(providerName, "scores out of range: %v/%v", lexical, grammatical)
	}

	overall := (lexical + grammatical) / 2
	if scores.Overall != nil && validBand(*scores.Overall) {
		overall = *scores.Overall
	}
	return domain.BandScoreEstimate{
		Lexical:     halfStep(lexical),
		Grammatical: halfStep(grammatical),
		Overall:     halfStep(overall),
	}, nil
}

// AssessWord asks the model for an accuracy rating and IPA breakdown of one
// word.
func (c *Client) AssessWord(ctx context.Context, word string) (ports.PhoneticAssessment, error) {
	content, err := c.complete(ctx, phoneticSystemPrompt, wordPrompt(word), 300)
	if err != nil {
		return ports.PhoneticAssessment{}, err
	}

	var raw struct {
		Accuracy    *float64 `json:"accuracy"`
		Phonemes    []string `json:"phonemes"`
		Errors      []string `json:"errors"`
		Suggestions []string `json:"suggestions"`
	}
	if err := decodeObject(content, &raw); err != nil {
		return ports.PhoneticAssessment{}, err
	}
	if raw.Accuracy == nil || math.IsNaN(*raw.Accuracy) {
		return ports.PhoneticAssessment{}, providers.Malformed(providerName, "missing accuracy for %q", word)
	}
	return ports.PhoneticAssessment{
		Accuracy:    *raw.Accuracy,
		Phonemes:    raw.Phonemes,
		Errors:      raw.Errors,
		Suggestions: raw.Suggestions,
	}, nil
}

func (c *Client) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("%s: %w: no api key configured", providerName, domain.ErrProviderUnavailable)
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", providerName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", providers.Unavailable(providerName, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", providers.Unavailable(providerName, err)
	}
	defer resp.Body.Close()

	if err := providers.CheckResponse(providerName, resp); err != nil {
		return "", err
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", providers.Malformed(providerName, "decode: %v", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", providers.Malformed(providerName, "no completion content")
	}
	return out.Choices[0].Message.Content, nil
}

// decodeObject parses the outermost JSON object in content; models often
// wrap it in prose or code fences.
func decodeObject(content string, out any) error {
	match := jsonObject.FindString(content)
	if match == "" {
		return providers.Malformed(providerName, "no json object in completion")
	}
	if err := json.Unmarshal([]byte(match), out); err != nil {
		return providers.Malformed(providerName, "decode completion: %v", err)
	}
	return nil
}

func validBand(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 9
}

func halfStep(v float64) float64 {
	return math.Round(v*2) / 2
}
