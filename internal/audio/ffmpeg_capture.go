package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"voicecheck/internal/domain"
	"voicecheck/internal/ports"
)

const (
	// DefaultSampleRate matches the fixed analysis rate of the frame analyzer.
	DefaultSampleRate = 16000

	// StartupProbe is how long a freshly started recorder must stay alive
	// before the device counts as acquired.
	StartupProbe = 250 * time.Millisecond

	killGrace   = 1200 * time.Millisecond
	stderrLimit = 4096
)

// FFMPEGCapture records the microphone as raw s16le PCM through an external
// ffmpeg-compatible command.
type FFMPEGCapture struct {
	command string
	goos    string
	probe   time.Duration
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command, goos: runtime.GOOS, probe: StartupProbe}
}

// Start launches the recorder. Any failure to acquire the input is reported
// as domain.ErrDeviceUnavailable.
func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cmd := exec.CommandContext(ctx, c.command, c.args(cfg)...)
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: recorder stdout pipe: %v", domain.ErrDeviceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %v", domain.ErrDeviceUnavailable, c.command, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// A recorder that cannot open its input exits almost immediately.
	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("%w: recorder exited before capture started: %v: %s", domain.ErrDeviceUnavailable, err, stderr)
		}
		return nil, fmt.Errorf("%w: recorder exited before capture started", domain.ErrDeviceUnavailable)
	case <-time.After(c.probe):
	}

	return &ffmpegSession{
		stdout:    stdout,
		stderr:    stderr,
		process:   cmd.Process,
		waitErr:   waitErr,
		killAfter: killGrace,
	}, nil
}

func (c *FFMPEGCapture) args(cfg ports.AudioConfig) []string {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	format, device := DefaultInput(c.goos)
	if cfg.InputFormat != "" {
		format = cfg.InputFormat
	}
	if cfg.InputDevice != "" {
		device = cfg.InputDevice
	}

	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", format,
		"-i", device,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// DefaultInput returns the ffmpeg input format and device used when none is
// configured.
func DefaultInput(goos string) (format, device string) {
	if goos == "darwin" {
		return "avfoundation", ":0"
	}
	return "pulse", "default"
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *tailBuffer

	process   *os.Process
	waitErr   <-chan error
	killAfter time.Duration

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

// Stop interrupts the recorder so it can flush, then kills it if it has not
// exited within killAfter.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		var (
			err error
			ok  bool
		)
		select {
		case err, ok = <-s.waitErr:
		case <-time.After(s.killAfter):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok = <-s.waitErr
		}
		if ok {
			s.stopErr = ignoreExitStatus(err)
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = closeErr
		}
		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, s.stderr)
		}
	})

	return s.stopErr
}

// ignoreExitStatus drops the non-zero exit an interrupted recorder reports.
func ignoreExitStatus(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// tailBuffer keeps the last limit bytes written to it. exec copies stderr
// into it and Wait returns only after the copy ends, so reads after Wait
// need no lock.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) Len() int {
	return len(b.buf)
}

func (b *tailBuffer) String() string {
	return strings.TrimSpace(string(b.buf))
}
