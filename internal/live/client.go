// Package live implements the client side of the bidirectional streaming
// session: websocket transport, setup handshake, and a read loop that
// decodes inbound frames into typed events.
package live

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const defaultConnectTimeout = 15 * time.Second

// Config describes one session open attempt.
type Config struct {
	// Endpoint is the websocket URL of the live service.
	Endpoint string
	// APIKey authenticates the connection; passed as a query parameter.
	APIKey string
	// Model names the conversational model to bind the session to.
	Model string
	// SystemInstruction primes the remote for the interview persona.
	SystemInstruction string
	// Voice is the prebuilt voice identity for synthesized speech.
	Voice string
	// ConnectTimeout bounds the dial + handshake when the context has no
	// deadline of its own.
	ConnectTimeout time.Duration
}

// TransportError represents websocket-level failures while talking to the
// live endpoint. Use errors.As to distinguish transport failures from
// protocol errors.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactKey(e.URL), e.Err)
	default:
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func redactKey(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	q := parsed.Query()
	if q.Has("key") {
		q.Set("key", "redacted")
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}

// Session is an open live websocket session. Send methods are safe for
// concurrent use; events are consumed from a single Events() channel that
// closes when the connection ends.
type Session struct {
	conn *websocket.Conn

	events chan Event
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// Dial opens the websocket, sends the setup payload, and waits for the
// setup acknowledgement before returning an open session.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("live endpoint must not be empty")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("live model must not be empty")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid live endpoint: %w", err)
	}
	if cfg.APIKey != "" {
		q := u.Query()
		q.Set("key", cfg.APIKey)
		u.RawQuery = q.Encode()
	}
	wsURL := u.String()

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}
	conn, resp, err := dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, &TransportError{Op: "dial", URL: endpoint, Err: fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)}
		}
		return nil, &TransportError{Op: "dial", URL: endpoint, Err: err}
	}

	setup := buildSetup(cfg)
	if err := conn.WriteJSON(clientSetupMessage{Setup: &setup}); err != nil {
		_ = conn.Close()
		return nil, &TransportError{Op: "setup", URL: endpoint, Err: err}
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, &TransportError{Op: "setup ack", URL: endpoint, Err: err}
	}
	_ = conn.SetReadDeadline(time.Time{})

	first, err := decodeServerMessage(payload)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	opened := false
	for _, event := range first {
		if _, ok := event.(OpenEvent); ok {
			opened = true
		}
	}
	if !opened {
		_ = conn.Close()
		return nil, fmt.Errorf("live session was not acknowledged")
	}

	s := &Session{
		conn:   conn,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	// Surface the open acknowledgement (and anything piggybacked on the
	// same frame) to the consumer too.
	for _, event := range first {
		s.emit(event)
	}
	go s.readLoop()
	return s, nil
}

func buildSetup(cfg Config) Setup {
	setup := Setup{
		Model: strings.TrimSpace(cfg.Model),
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if voice := strings.TrimSpace(cfg.Voice); voice != "" {
		setup.GenerationConfig.SpeechConfig = &SpeechConfig{
			VoiceConfig: VoiceConfig{
				PrebuiltVoiceConfig: PrebuiltVoiceConfig{VoiceName: voice},
			},
		}
	}
	if instruction := strings.TrimSpace(cfg.SystemInstruction); instruction != "" {
		setup.SystemInstruction = &Content{Parts: []Part{{Text: instruction}}}
	}
	return setup
}

// Events yields decoded inbound events. The channel closes when the
// connection ends; check Err for the terminal error.
func (s *Session) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.events
}

// SendMedia transmits one framed capture chunk as a realtime media input.
func (s *Session) SendMedia(mimeType, data string) error {
	return s.sendJSON(clientMediaMessage{
		RealtimeInput: &realtimeInput{
			MediaChunks: []MediaChunk{{MIMEType: mimeType, Data: data}},
		},
	})
}

// SendText transmits a user text turn (nudge or regeneration request); the
// remote treats it the same as a spoken utterance.
func (s *Session) SendText(text string) error {
	return s.sendJSON(clientTextMessage{
		ClientContent: &clientContent{
			Turns:        []Content{{Role: "user", Parts: []Part{{Text: text}}}},
			TurnComplete: true,
		},
	})
}

func (s *Session) sendJSON(v any) error {
	if s == nil {
		return fmt.Errorf("session must not be nil")
	}
	if s.closed.Load() {
		return fmt.Errorf("live session is closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// Close closes the websocket session and waits for the read loop to drain.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

// Err returns the terminal session error, if any, after the session ends.
func (s *Session) Err() error {
	if s == nil {
		return nil
	}
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.setErr(&TransportError{Op: "read", Err: err})
			return
		}
		events, decodeErr := decodeServerMessage(data)
		if decodeErr != nil {
			s.setErr(decodeErr)
			return
		}
		for _, event := range events {
			s.emit(event)
		}
	}
}

func (s *Session) emit(event Event) {
	if event == nil {
		return
	}
	select {
	case s.events <- event:
	default:
		// Avoid deadlocking the read loop if the consumer stops draining.
	}
}
