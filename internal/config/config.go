package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "VOICECHECK"
	envFileKey = "VOICECHECK_CONFIG"

	// GitHubModelsBaseURL serves OpenAI-compatible chat completions for
	// GITHUB_TOKEN holders.
	GitHubModelsBaseURL = "https://models.inference.ai.azure.com"
	openAIBaseURL       = "https://api.openai.com/v1"
)

// Config stores runtime configuration.
type Config struct {
	Audio         AudioConfig
	Analyzer      AnalyzerConfig
	Whisper       WhisperConfig
	Deepgram      DeepgramConfig
	Examiner      ExaminerConfig
	Transcription TranscriptionConfig
	Normalize     NormalizeConfig
	Log           LogConfig
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type AnalyzerConfig struct {
	Decimation   int
	ForcePolling bool
	PollInterval time.Duration
}

type WhisperConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

type ExaminerConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	// Phonetic routes per-word pronunciation through the examiner's model.
	Phonetic bool
}

type TranscriptionConfig struct {
	TierTimeout time.Duration
	HTTPTimeout time.Duration
}

type NormalizeConfig struct {
	RulesFile string
	Rules     []string
	MaxPasses int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load resolves configuration from defaults, an optional YAML file named by
// VOICECHECK_CONFIG, and environment variables, in increasing precedence.
// Invalid numbers fall back to their defaults.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range providerEnv {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path := strings.TrimSpace(os.Getenv(envFileKey)); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	cfg := Config{
		Audio: AudioConfig{
			RecorderCommand: stringOr(v, "audio.recorder_command", "ffmpeg"),
			InputFormat:     stringOr(v, "audio.input_format", ""),
			InputDevice:     stringOr(v, "audio.input_device", ""),
			SampleRate:      intOr(v, "audio.sample_rate", 16000, positive),
			Channels:        intOr(v, "audio.channels", 1, positive),
		},
		Analyzer: AnalyzerConfig{
			Decimation:   intOr(v, "analyzer.decimation", 10, positive),
			ForcePolling: boolOr(v, "analyzer.force_polling", false),
			PollInterval: time.Duration(intOr(v, "analyzer.poll_interval_ms", 100, positive)) * time.Millisecond,
		},
		Whisper: WhisperConfig{
			APIKey:   strings.TrimSpace(v.GetString("whisper.api_key")),
			BaseURL:  stringOr(v, "whisper.base_url", openAIBaseURL),
			Model:    stringOr(v, "whisper.model", "whisper-1"),
			Language: strings.TrimSpace(v.GetString("whisper.language")),
		},
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(v.GetString("deepgram.api_key")),
			APIBaseURL:  stringOr(v, "deepgram.api_base", "https://api.deepgram.com/v1"),
			Model:       stringOr(v, "deepgram.model", "nova-2"),
			Language:    strings.TrimSpace(v.GetString("deepgram.language")),
			SmartFormat: boolOr(v, "deepgram.smart_format", true),
		},
		Examiner: ExaminerConfig{
			APIKey:      strings.TrimSpace(v.GetString("examiner.api_key")),
			BaseURL:     strings.TrimSpace(v.GetString("examiner.base_url")),
			Model:       stringOr(v, "examiner.model", "gpt-4o-mini"),
			Temperature: floatOr(v, "examiner.temperature", 0.3),
			Phonetic:    boolOr(v, "examiner.phonetic", true),
		},
		Transcription: TranscriptionConfig{
			TierTimeout: time.Duration(intOr(v, "transcription.tier_timeout_sec", 30, positive)) * time.Second,
			HTTPTimeout: time.Duration(intOr(v, "transcription.http_timeout_sec", 60, positive)) * time.Second,
		},
		Normalize: NormalizeConfig{
			RulesFile: strings.TrimSpace(v.GetString("normalize.rules_file")),
			Rules:     stringList(v, "normalize.rules"),
			MaxPasses: intOr(v, "normalize.max_passes", 30, positive),
		},
		Log: LogConfig{
			Level:  stringOr(v, "log.level", "info"),
			Format: stringOr(v, "log.format", "text"),
		},
	}

	if cfg.Examiner.BaseURL == "" {
		cfg.Examiner.BaseURL = openAIBaseURL
		if token := strings.TrimSpace(os.Getenv("GITHUB_TOKEN")); token != "" && token == cfg.Examiner.APIKey {
			cfg.Examiner.BaseURL = GitHubModelsBaseURL
		}
	}

	return cfg, nil
}

// providerEnv lists the provider-native variables accepted for a key, in
// priority order after the VOICECHECK_ name.
var providerEnv = map[string][]string{
	"whisper.api_key":  {"VOICECHECK_WHISPER_API_KEY", "OPENAI_API_KEY"},
	"deepgram.api_key": {"VOICECHECK_DEEPGRAM_API_KEY", "DEEPGRAM_API_KEY"},
	"examiner.api_key": {"VOICECHECK_EXAMINER_API_KEY", "GITHUB_TOKEN", "OPENAI_API_KEY"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("audio.recorder_command", "ffmpeg")
	v.SetDefault("audio.input_format", "")
	v.SetDefault("audio.input_device", "")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("analyzer.decimation", 10)
	v.SetDefault("analyzer.force_polling", false)
	v.SetDefault("analyzer.poll_interval_ms", 100)
	v.SetDefault("whisper.base_url", openAIBaseURL)
	v.SetDefault("whisper.model", "whisper-1")
	v.SetDefault("whisper.language", "")
	v.SetDefault("deepgram.api_base", "https://api.deepgram.com/v1")
	v.SetDefault("deepgram.model", "nova-2")
	v.SetDefault("deepgram.language", "")
	v.SetDefault("deepgram.smart_format", true)
	v.SetDefault("examiner.base_url", "")
	v.SetDefault("examiner.model", "gpt-4o-mini")
	v.SetDefault("examiner.temperature", 0.3)
	v.SetDefault("examiner.phonetic", true)
	v.SetDefault("transcription.tier_timeout_sec", 30)
	v.SetDefault("transcription.http_timeout_sec", 60)
	v.SetDefault("normalize.rules_file", defaultRulesFile())
	v.SetDefault("normalize.max_passes", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func defaultRulesFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voicecheck", "transcript.rules")
}

func positive(n int) bool { return n > 0 }

func stringOr(v *viper.Viper, key string, fallback string) string {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return fallback
	}
	return value
}

func intOr(v *viper.Viper, key string, fallback int, valid func(int) bool) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil || !valid(parsed) {
		return fallback
	}
	return parsed
}

func floatOr(v *viper.Viper, key string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func boolOr(v *viper.Viper, key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v.GetString(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// stringList reads a YAML list, or a ';'-separated string from the
// environment.
func stringList(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).(string); ok {
		return lo.Compact(lo.Map(strings.Split(raw, ";"), func(item string, _ int) string {
			return strings.TrimSpace(item)
		}))
	}
	return v.GetStringSlice(key)
}
