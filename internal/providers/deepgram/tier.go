package deepgram

import (
	"context"
	"fmt"

	"voicecheck/internal/audio"
	"voicecheck/internal/domain"
	"voicecheck/internal/ports"
	"voicecheck/internal/providers"
)

const (
	TierName   = "B"
	chunkBytes = 8192
)

// Tier replays a sealed recording through a streaming session and returns
// the aggregated text. It produces no word timings.
type Tier struct {
	streamer ports.StreamingProvider
}

func NewTier(streamer ports.StreamingProvider) *Tier {
	return &Tier{streamer: streamer}
}

func (t *Tier) Name() string {
	return TierName
}

func (t *Tier) TryTranscribe(ctx context.Context, artifact *domain.RecordingArtifact) (domain.Transcript, error) {
	if artifact == nil || len(artifact.Bytes) == 0 {
		return domain.Transcript{}, fmt.Errorf("%s: %w: empty recording", providerName, domain.ErrProviderUnavailable)
	}
	clip, err := audio.DecodeWAV(artifact.Bytes)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("%s: %w: %v", providerName, domain.ErrProviderUnavailable, err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	session, err := t.streamer.StartStreaming(streamCtx, ports.StreamingConfig{
		SampleRate: clip.SampleRate,
		Channels:   clip.Channels,
		Encoding:   "linear16",
	})
	if err != nil {
		return domain.Transcript{}, err
	}

	aggregator := newTranscriptAggregator()
	eventsDone := make(chan struct{})
	go aggregator.consume(session.Events(), eventsDone)

	pcm := clip.PCM()
	for off := 0; off < len(pcm); off += chunkBytes {
		end := min(off+chunkBytes, len(pcm))
		if err := session.SendAudio(pcm[off:end]); err != nil {
			_ = session.Close()
			<-eventsDone
			return domain.Transcript{}, providers.Unavailable(providerName, err)
		}
	}

	_ = session.CloseSend()
	streamErr := waitForStream(ctx, session)
	<-eventsDone

	text := aggregator.Text()
	if text == "" {
		if streamErr != nil {
			return domain.Transcript{}, streamErr
		}
		return domain.Transcript{}, providers.Malformed(providerName, "no transcript in stream")
	}
	return domain.Transcript{Text: text}, nil
}

// waitForStream waits for the provider to flush its results, closing the
// session early when ctx ends.
func waitForStream(ctx context.Context, session ports.StreamingSession) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = session.Close()
		<-done
		return ctx.Err()
	}
}
