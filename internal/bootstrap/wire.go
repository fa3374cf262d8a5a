package bootstrap

import (
	"io"

	"github.com/sirupsen/logrus"

	"voicecheck/internal/audio"
	"voicecheck/internal/capture"
	"voicecheck/internal/config"
	"voicecheck/internal/logging"
	"voicecheck/internal/normalize"
	"voicecheck/internal/ports"
	"voicecheck/internal/pronunciation"
	"voicecheck/internal/providers"
	"voicecheck/internal/providers/deepgram"
	"voicecheck/internal/providers/examiner"
	"voicecheck/internal/providers/whisper"
	"voicecheck/internal/transcription"
	"voicecheck/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Recorder *usecase.RecordingController
	Analysis *usecase.AnalysisController
	Config   config.Config
	Log      *logrus.Logger
}

// Build loads configuration and wires all backend dependencies. Logs go to
// logOutput; events may be nil.
func Build(events ports.EventSink, logOutput io.Writer) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return Assemble(cfg, events, logOutput)
}

// Assemble wires dependencies from an already loaded configuration.
// Providers without credentials are left out.
func Assemble(cfg config.Config, events ports.EventSink, logOutput io.Writer) (Services, error) {
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: logOutput})

	normalizer, err := normalize.New(normalize.Config{
		RulesFile: cfg.Normalize.RulesFile,
		Rules:     cfg.Normalize.Rules,
		MaxPasses: cfg.Normalize.MaxPasses,
	})
	if err != nil {
		return Services{}, err
	}

	httpClient := providers.NewHTTPClient(cfg.Transcription.HTTPTimeout)

	var tiers []ports.TranscriptionTier
	if cfg.Whisper.APIKey != "" {
		tiers = append(tiers, whisper.New(whisper.Config{
			BaseURL:  cfg.Whisper.BaseURL,
			APIKey:   cfg.Whisper.APIKey,
			Model:    cfg.Whisper.Model,
			Language: cfg.Whisper.Language,
		}, httpClient))
	} else {
		log.WithField("tier", whisper.TierName).Info("transcription tier disabled: no api key")
	}
	if cfg.Deepgram.APIKey != "" {
		tiers = append(tiers, deepgram.NewTier(deepgram.NewStreamer(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
		})))
	} else {
		log.WithField("tier", deepgram.TierName).Info("transcription tier disabled: no api key")
	}

	var (
		scorer   ports.Examiner
		assessor ports.PhoneticAssessor
	)
	if cfg.Examiner.APIKey != "" {
		client := examiner.New(examiner.Config{
			BaseURL:     cfg.Examiner.BaseURL,
			APIKey:      cfg.Examiner.APIKey,
			Model:       cfg.Examiner.Model,
			Temperature: cfg.Examiner.Temperature,
		}, httpClient)
		scorer = client
		if cfg.Examiner.Phonetic {
			assessor = client
		}
	} else {
		log.Info("examiner disabled: band scores will be estimated locally")
	}

	analysis := usecase.NewAnalysisController(
		transcription.NewOrchestrator(tiers, cfg.Transcription.TierTimeout, log),
		pronunciation.NewPipeline(assessor, nil, log),
		scorer,
		normalizer,
		log,
	)

	recorder := usecase.NewRecordingController(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		analysis,
		events,
		capture.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Decimation:   cfg.Analyzer.Decimation,
			ForcePolling: cfg.Analyzer.ForcePolling,
			PollInterval: cfg.Analyzer.PollInterval,
		},
		log,
	)

	return Services{Recorder: recorder, Analysis: analysis, Config: cfg, Log: log}, nil
}
