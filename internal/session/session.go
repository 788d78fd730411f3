// Package session owns the interview session lifecycle: connection state,
// routing of inbound live events to playback and transcript assembly, and
// the outbound intents (audio, nudge, regeneration, disconnect).
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wqc3241/mock-interviewer/internal/audio"
	"github.com/wqc3241/mock-interviewer/internal/live"
	"github.com/wqc3241/mock-interviewer/internal/metrics"
	"github.com/wqc3241/mock-interviewer/internal/pcm"
	"github.com/wqc3241/mock-interviewer/internal/transcript"
)

// Phase is the connection lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseOpen
	PhaseClosed
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseOpen:
		return "open"
	case PhaseClosed:
		return "closed"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrNotConnectable is returned by guarded operations that require an open
// session.
var ErrNotConnectable = errors.New("session is not open")

// ErrNoCredential is returned when Connect is called without an API key.
var ErrNoCredential = errors.New("no API key configured")

// Conn is the live connection surface the session drives. *live.Session
// satisfies it; tests substitute a synthetic feed.
type Conn interface {
	Events() <-chan live.Event
	SendMedia(mimeType, data string) error
	SendText(text string) error
	Close() error
	Err() error
}

// Dialer opens a live connection.
type Dialer func(ctx context.Context, cfg live.Config) (Conn, error)

// Player is the playback scheduler surface. *audio.Scheduler satisfies it.
type Player interface {
	Schedule(buf *pcm.Buffer) error
	StopAll()
	Speaking() bool
}

// Microphone is an acquired capture stream.
type Microphone interface {
	Start() error
	Close()
}

// MicFactory acquires the microphone with the per-block callback bound.
// Acquisition failure aborts the connection attempt.
type MicFactory func(emit audio.BlockFunc) (Microphone, error)

// AudioContexts is the shared output/input context pair owned by one
// session. *audio.Engine satisfies it.
type AudioContexts interface {
	Suspended() bool
	Resume() error
	Close()
}

// Config tunes one interview session.
type Config struct {
	Live live.Config

	// SilenceThreshold gates outbound blocks when VoiceGate is set.
	SilenceThreshold float64
	VoiceGate        bool

	// NudgeText is sent once per connection to make the interviewer speak
	// first. RegenerateText asks for a different question.
	NudgeText      string
	RegenerateText string
}

// Deps are the injected collaborators.
type Deps struct {
	Dial    Dialer
	OpenMic MicFactory
	Player  Player
	Audio   AudioContexts
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Notifications are optional read-only observers for the surrounding UI.
type Notifications struct {
	OnPhase      func(Phase)
	OnAmplitude  func(float64)
	OnPreview    func(string)
	OnTranscript func(transcript.Item)
	OnDisconnect func()
}

const (
	defaultNudgeText      = "Please greet the candidate briefly and ask your first interview question."
	defaultRegenerateText = "Please discard your last question and ask a different one instead."
)

// Session is one interview attempt. Construct per attempt; Disconnect tears
// down every resource on every exit path.
type Session struct {
	cfg   Config
	deps  Deps
	notif Notifications
	asm   *transcript.Assembler

	mu        sync.Mutex
	phase     Phase
	lastErr   string
	conn      Conn
	mic       Microphone
	nudgeSent bool

	amplitude atomic.Uint64 // float64 bits of the latest RMS
}

// New builds an idle session.
func New(cfg Config, deps Deps, notif Notifications) (*Session, error) {
	if deps.Dial == nil {
		return nil, fmt.Errorf("session dialer must not be nil")
	}
	if deps.OpenMic == nil {
		return nil, fmt.Errorf("session microphone factory must not be nil")
	}
	if deps.Player == nil {
		return nil, fmt.Errorf("session player must not be nil")
	}
	if deps.Audio == nil {
		return nil, fmt.Errorf("session audio contexts must not be nil")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.NudgeText == "" {
		cfg.NudgeText = defaultNudgeText
	}
	if cfg.RegenerateText == "" {
		cfg.RegenerateText = defaultRegenerateText
	}

	s := &Session{cfg: cfg, deps: deps, notif: notif, phase: PhaseIdle}
	s.asm = transcript.New(
		func(preview string) {
			if notif.OnPreview != nil {
				notif.OnPreview(preview)
			}
		},
		func(item transcript.Item) {
			deps.Metrics.TranscriptItems.WithLabelValues(string(item.Role)).Inc()
			if notif.OnTranscript != nil {
				notif.OnTranscript(item)
			}
		},
	)
	return s, nil
}

// Connect acquires the microphone and opens the live session. Guarded: a
// no-op while already connecting or open. Acquisition and connect failures
// surface once and move the session to the error phase without automatic
// retries.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.phase == PhaseConnecting || s.phase == PhaseOpen {
		s.mu.Unlock()
		return nil
	}
	if s.cfg.Live.APIKey == "" {
		s.mu.Unlock()
		return ErrNoCredential
	}
	s.phase = PhaseConnecting
	s.lastErr = ""
	s.mu.Unlock()
	s.notifyPhase(PhaseConnecting)

	mic, err := s.deps.OpenMic(s.handleBlock)
	if err != nil {
		s.fail("could not access the microphone", err)
		return err
	}

	conn, err := s.deps.Dial(ctx, s.cfg.Live)
	if err != nil {
		mic.Close()
		s.fail("could not connect to the interview service", err)
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mic = mic
	s.nudgeSent = false
	s.phase = PhaseOpen
	s.mu.Unlock()
	s.notifyPhase(PhaseOpen)
	s.deps.Metrics.Connects.Inc()

	if err := mic.Start(); err != nil {
		_ = conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.mic = nil
		s.mu.Unlock()
		mic.Close()
		s.fail("could not start the microphone", err)
		return err
	}

	s.maybeNudge()
	go s.run(conn)
	return nil
}

// run consumes inbound events until the connection ends, then settles the
// terminal phase.
func (s *Session) run(conn Conn) {
	for event := range conn.Events() {
		s.dispatch(event)
	}

	err := conn.Err()

	s.mu.Lock()
	if s.conn != conn {
		// Superseded by an explicit disconnect or a fresh connection.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	mic := s.mic
	s.mic = nil
	if err != nil {
		s.phase = PhaseError
		s.lastErr = err.Error()
	} else {
		s.phase = PhaseClosed
	}
	phase := s.phase
	s.mu.Unlock()

	if mic != nil {
		mic.Close()
	}
	s.deps.Player.StopAll()
	if err != nil {
		s.deps.Metrics.SessionErrors.Inc()
		s.deps.Logger.Error("live session ended with error", slog.String("error", err.Error()))
	} else {
		s.deps.Logger.Info("live session closed")
	}
	s.notifyPhase(phase)
	if s.notif.OnDisconnect != nil {
		s.notif.OnDisconnect()
	}
}

// dispatch routes one inbound event. Hot path: must not block on I/O.
func (s *Session) dispatch(event live.Event) {
	switch e := event.(type) {
	case live.OpenEvent:
		s.maybeNudge()
	case live.AudioEvent:
		s.deps.Metrics.ChunksReceived.Inc()
		buf, err := pcm.DecodeBase64(e.Data, pcm.OutputSampleRate, 1)
		if err != nil {
			// Non-fatal: drop the part, keep the session.
			s.deps.Metrics.DecodeErrors.Inc()
			s.deps.Logger.Warn("dropping undecodable audio part", slog.String("error", err.Error()))
			return
		}
		if err := s.deps.Player.Schedule(buf); err != nil {
			s.deps.Metrics.DecodeErrors.Inc()
			s.deps.Logger.Warn("dropping unplayable audio part", slog.String("error", err.Error()))
		}
	case live.OutputTextEvent:
		s.asm.AppendModel(e.Text)
	case live.InputTextEvent:
		s.asm.AppendUser(e.Text)
	case live.TurnCompleteEvent:
		s.asm.CommitTurn(s.deps.Now())
	case live.InterruptedEvent:
		s.interrupt()
	}
}

// interrupt hard-stops scheduled playback and discards the model's
// in-flight transcript fragments.
func (s *Session) interrupt() {
	s.deps.Player.StopAll()
	s.asm.DiscardModel()
	s.deps.Metrics.Interruptions.Inc()
}

// handleBlock runs on the capture callback thread for every block.
func (s *Session) handleBlock(block []float32) {
	rms := pcm.RMS(block)
	s.amplitude.Store(math.Float64bits(rms))
	s.deps.Metrics.BlocksCaptured.Inc()
	s.deps.Metrics.InputAmplitude.Set(rms)
	if s.notif.OnAmplitude != nil {
		s.notif.OnAmplitude(rms)
	}

	s.mu.Lock()
	conn := s.conn
	open := s.phase == PhaseOpen
	s.mu.Unlock()
	if !open || conn == nil {
		return
	}
	if s.deps.Audio.Suspended() {
		return
	}
	if s.cfg.VoiceGate && rms < s.cfg.SilenceThreshold {
		s.deps.Metrics.BlocksGated.Inc()
		return
	}

	chunk := pcm.FrameBlock(block)
	if err := conn.SendMedia(chunk.MIMEType, chunk.Data); err != nil {
		// Transport failures also surface through the read loop.
		s.deps.Logger.Warn("media send failed", slog.String("error", err.Error()))
		return
	}
	s.deps.Metrics.BlocksSent.Inc()
}

// maybeNudge sends the first-turn nudge at most once per connection, and
// only once output audio is no longer suspended.
func (s *Session) maybeNudge() {
	if s.deps.Audio.Suspended() {
		return
	}
	s.mu.Lock()
	conn := s.conn
	send := s.phase == PhaseOpen && conn != nil && !s.nudgeSent
	if send {
		s.nudgeSent = true
	}
	s.mu.Unlock()
	if !send {
		return
	}
	if err := conn.SendText(s.cfg.NudgeText); err != nil {
		s.deps.Logger.Warn("nudge send failed", slog.String("error", err.Error()))
	}
}

// ResumeAudio lifts the gesture gate on output audio and, if the first-turn
// nudge is still pending, sends it.
func (s *Session) ResumeAudio() error {
	if err := s.deps.Audio.Resume(); err != nil {
		return err
	}
	s.maybeNudge()
	return nil
}

// RequestNewQuestion force-stops current playback for responsiveness,
// discards the interviewer's in-flight text, and asks the remote for a
// different question. Only available while open.
func (s *Session) RequestNewQuestion() error {
	s.mu.Lock()
	conn := s.conn
	open := s.phase == PhaseOpen
	s.mu.Unlock()
	if !open || conn == nil {
		return ErrNotConnectable
	}

	s.deps.Player.StopAll()
	s.asm.DiscardModel()
	s.deps.Metrics.Interruptions.Inc()
	return conn.SendText(s.cfg.RegenerateText)
}

// Disconnect releases the microphone, stops playback, closes the live
// connection and both audio contexts, and returns to idle. Safe to call
// from any state, any number of times.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	mic := s.mic
	s.conn = nil
	s.mic = nil
	s.nudgeSent = false
	changed := s.phase != PhaseIdle
	s.phase = PhaseIdle
	s.mu.Unlock()

	if mic != nil {
		mic.Close()
	}
	s.deps.Player.StopAll()
	if conn != nil {
		_ = conn.Close()
	}
	s.deps.Audio.Close()

	if changed {
		s.notifyPhase(PhaseIdle)
	}
	if s.notif.OnDisconnect != nil {
		s.notif.OnDisconnect()
	}
}

// fail records a terminal connection error. Partial transcripts are never
// discarded by an error.
func (s *Session) fail(message string, err error) {
	s.mu.Lock()
	s.phase = PhaseError
	s.lastErr = fmt.Sprintf("%s: %v", message, err)
	s.mu.Unlock()

	s.deps.Metrics.SessionErrors.Inc()
	s.deps.Logger.Error(message, slog.String("error", err.Error()))
	s.notifyPhase(PhaseError)
}

func (s *Session) notifyPhase(phase Phase) {
	if s.notif.OnPhase != nil {
		s.notif.OnPhase(phase)
	}
}

// Phase returns the connection lifecycle state.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// LastError returns the most recent user-facing error message.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Speaking reports whether synthesized speech is currently scheduled.
func (s *Session) Speaking() bool {
	return s.deps.Player.Speaking()
}

// Amplitude returns the RMS of the most recent capture block.
func (s *Session) Amplitude() float64 {
	return math.Float64frombits(s.amplitude.Load())
}

// AudioSuspended reports whether output audio is still gesture-gated.
func (s *Session) AudioSuspended() bool {
	return s.deps.Audio.Suspended()
}

// Transcript returns the committed transcript so far.
func (s *Session) Transcript() []transcript.Item {
	return s.asm.Items()
}

// Preview returns the interviewer's in-progress utterance text.
func (s *Session) Preview() string {
	return s.asm.Preview()
}
