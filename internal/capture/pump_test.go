package capture

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"

	"voicecheck/internal/domain"
	"voicecheck/internal/dsp"
)

type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) {
	return 0, r.err
}

func runPump(t *testing.T, p *pump, src io.Reader) []error {
	t.Helper()
	var errs []error
	done := make(chan struct{})
	p.run(src, func(err error) { errs = append(errs, err) }, done)
	<-done
	return errs
}

func TestPumpTreatsClosedPipeAsEndOfStream(t *testing.T) {
	t.Parallel()

	p := newPump(dsp.SampleRate, 1, 1, true, func(domain.AudioFrameMetrics) {})
	p.recording.Store(true)
	pcm := sinePCM(220, 0.5, dsp.SampleRate, dsp.BlockSize)

	errs := runPump(t, p, io.MultiReader(bytes.NewReader(pcm), errReader{err: os.ErrClosed}))
	if len(errs) != 0 {
		t.Fatalf("expected no capture error, got %v", errs)
	}
	if got := len(p.snapshot()); got != len(pcm) {
		t.Fatalf("expected %d buffered bytes, got %d", len(pcm), got)
	}
}

func TestPumpReportsReadErrors(t *testing.T) {
	t.Parallel()

	p := newPump(dsp.SampleRate, 1, 1, true, func(domain.AudioFrameMetrics) {})
	boom := errors.New("device lost")

	errs := runPump(t, p, errReader{err: boom})
	if len(errs) != 1 || !errors.Is(errs[0], boom) {
		t.Fatalf("expected device error, got %v", errs)
	}
}

func TestPumpResetClearsAnalyzerState(t *testing.T) {
	t.Parallel()

	var frames int
	p := newPump(dsp.SampleRate, 1, 1, true, func(domain.AudioFrameMetrics) { frames++ })
	p.recording.Store(true)
	runPump(t, p, bytes.NewReader(sinePCM(220, 0.5, dsp.SampleRate, dsp.BlockSize+100)))

	if frames != 1 || p.history.Len() != 1 || p.fill != 200 {
		t.Fatalf("unexpected pump state: frames=%d history=%d fill=%d", frames, p.history.Len(), p.fill)
	}

	p.reset()
	if p.history.Len() != 0 || p.fill != 0 || p.blocks != 0 || len(p.snapshot()) != 0 {
		t.Fatalf("expected cleared pump, got history=%d fill=%d blocks=%d", p.history.Len(), p.fill, p.blocks)
	}
}
