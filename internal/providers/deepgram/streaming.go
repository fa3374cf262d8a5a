package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"voicecheck/internal/audio"
	"voicecheck/internal/domain"
	"voicecheck/internal/ports"
	"voicecheck/internal/providers"
)

const (
	providerName   = "deepgram"
	DefaultBaseURL = "https://api.deepgram.com/v1"
	DefaultModel   = "nova-2"
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

// Streamer opens Deepgram live transcription sessions.
type Streamer struct {
	cfg Config
}

var _ ports.StreamingProvider = (*Streamer)(nil)

func NewStreamer(cfg Config) *Streamer {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Streamer{cfg: cfg}
}

// StartStreaming dials the listen endpoint. The session closes itself when
// ctx is done.
func (p *Streamer) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: %w: no api key configured", providerName, domain.ErrProviderUnavailable)
	}

	wsURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", providerName, domain.ErrProviderUnavailable, err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%s: %w: %v", providerName, domain.ErrRateLimited, err)
		}
		return nil, providers.Unavailable(providerName, err)
	}

	session := &streamingSession{
		conn:   conn,
		events: make(chan domain.TranscriptEvent, 64),
		audio:  make(chan []byte, 32),
		done:   make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		<-ctx.Done()
		_ = session.Close()
	}()

	return session, nil
}

var (
	errSendClosed    = errors.New("audio stream is already closed")
	errSessionClosed = errors.New("session closed")
)

// streamingSession pumps audio out and transcript events in over one
// socket. audio is closed exactly once, under sendMu, so a SendAudio that
// passed the closed check can never race the close.
type streamingSession struct {
	conn *websocket.Conn

	events chan domain.TranscriptEvent
	audio  chan []byte
	done   chan struct{}

	wg sync.WaitGroup

	errMu     sync.Mutex
	err       error
	requestID string

	closeOnce  sync.Once
	sendMu     sync.RWMutex
	sendClosed bool
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errSendClosed
	}

	select {
	case s.audio <- append([]byte(nil), chunk...):
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errSessionClosed
	}
}

// CloseSend ends the audio stream; the write loop then asks the server to
// flush with CloseStream.
func (s *streamingSession) CloseSend() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if !s.sendClosed {
		s.sendClosed = true
		close(s.audio)
	}
	return nil
}

func (s *streamingSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

// Close drops the connection first so a sender blocked on a full queue is
// released before the stream is closed.
func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		_ = s.CloseSend()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil {
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return
		}
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamingSession) setRequestID(id string) {
	if id == "" {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.requestID = id
}

func (s *streamingSession) providerErr(reason string) error {
	s.errMu.Lock()
	id := s.requestID
	s.errMu.Unlock()
	if id != "" {
		return fmt.Errorf("%s: %w: %s (request %s)", providerName, domain.ErrProviderUnavailable, reason, id)
	}
	return fmt.Errorf("%s: %w: %s", providerName, domain.ErrProviderUnavailable, reason)
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	for chunk := range s.audio {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			s.setErr(providers.Unavailable(providerName, fmt.Errorf("send audio: %w", err)))
			return
		}
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		s.setErr(providers.Unavailable(providerName, fmt.Errorf("close stream: %w", err)))
	}
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(providers.Unavailable(providerName, fmt.Errorf("read event: %w", err)))
			return
		}

		var msg listenMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		s.setRequestID(msg.requestID())

		switch {
		case strings.EqualFold(msg.Type, "Error"):
			s.setErr(s.providerErr(msg.failure()))
			return
		case strings.EqualFold(msg.Type, "Metadata"):
			continue
		}

		if event, ok := msg.event(); ok {
			s.emit(event)
		}
	}
}

func (s *streamingSession) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	case <-s.done:
	default:
	}
}

// listenMessage is one server message on the listen socket. Live results
// carry the transcript under channel; prerecorded-style payloads nest it
// under results.channels.
type listenMessage struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	RequestID   string `json:"request_id"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel listenChannel `json:"channel"`
	Results struct {
		Channels []listenChannel `json:"channels"`
	} `json:"results"`
	Metadata struct {
		RequestID string `json:"request_id"`
	} `json:"metadata"`
}

type listenChannel struct {
	Alternatives []struct {
		Transcript string `json:"transcript"`
	} `json:"alternatives"`
}

func (c listenChannel) transcript() string {
	if len(c.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(c.Alternatives[0].Transcript)
}

func (m listenMessage) transcript() string {
	if text := m.Channel.transcript(); text != "" {
		return text
	}
	if len(m.Results.Channels) > 0 {
		return m.Results.Channels[0].transcript()
	}
	return ""
}

func (m listenMessage) requestID() string {
	if m.RequestID != "" {
		return m.RequestID
	}
	return m.Metadata.RequestID
}

func (m listenMessage) failure() string {
	for _, text := range []string{m.Description, m.Message} {
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return "unknown error"
}

func (m listenMessage) event() (domain.TranscriptEvent, bool) {
	text := m.transcript()
	if text == "" {
		return domain.TranscriptEvent{}, false
	}
	kind := domain.TranscriptKindPartial
	if m.IsFinal || m.SpeechFinal {
		kind = domain.TranscriptKindFinal
	}
	return domain.TranscriptEvent{Kind: kind, Text: text, IsSpeechFinal: m.SpeechFinal}, true
}

func buildListenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := providerCfg.APIBaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	base = strings.TrimSpace(base)

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	query := listenURL.Query()
	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = audio.DefaultSampleRate
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}
	query.Set("model", providerCfg.Model)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
	query.Set("channels", strconv.Itoa(streamCfg.Channels))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	if providerCfg.Language != "" {
		query.Set("language", providerCfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
