// Command mock-interviewer runs a voice mock interview against a live
// conversational service: microphone audio streams up, synthesized speech
// streams back, and the transcript prints as turns complete.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/wqc3241/mock-interviewer/internal/audio"
	"github.com/wqc3241/mock-interviewer/internal/config"
	"github.com/wqc3241/mock-interviewer/internal/dotenv"
	"github.com/wqc3241/mock-interviewer/internal/live"
	"github.com/wqc3241/mock-interviewer/internal/logging"
	"github.com/wqc3241/mock-interviewer/internal/metrics"
	"github.com/wqc3241/mock-interviewer/internal/session"
	"github.com/wqc3241/mock-interviewer/internal/transcript"
	"github.com/wqc3241/mock-interviewer/internal/voice"
)

func main() {
	os.Exit(runMain())
}

func runMain() int {
	var (
		configPath string
		envPath    string
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML config file (optional; built-in defaults apply)")
	flag.StringVar(&envPath, "env", ".env", "Path to dotenv file loaded before config (missing file is ignored)")
	flag.Parse()

	if err := dotenv.LoadFile(envPath); err != nil {
		fmt.Fprintf(os.Stderr, "load env file: %v\n", err)
		return 1
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			return 1
		}
		cfg = loaded
	}

	logger := logging.New(cfg.Logging, os.Stderr)
	m := metrics.New()
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		go func() {
			logger.Info("metrics listener started", "address", cfg.Metrics.Address)
			if err := http.ListenAndServe(cfg.Metrics.Address, mux); err != nil {
				logger.Error("metrics listener failed", "error", err.Error())
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One interview attempt owns its audio contexts; "retry" tears the
	// whole stack down and rebuilds it.
	var (
		mu   sync.Mutex
		sess *session.Session
	)
	current := func() *session.Session {
		mu.Lock()
		defer mu.Unlock()
		return sess
	}
	rebuild := func() error {
		mu.Lock()
		defer mu.Unlock()
		if sess != nil {
			sess.Disconnect()
		}
		next, err := buildSession(cfg, logger, m)
		if err != nil {
			return err
		}
		sess = next
		return nil
	}
	defer func() {
		if s := current(); s != nil {
			s.Disconnect()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nshutting down")
		if s := current(); s != nil {
			s.Disconnect()
		}
		cancel()
		// Second signal exits immediately.
		<-sigCh
		os.Exit(1)
	}()

	if err := rebuild(); err != nil {
		logger.Error("audio initialization failed", "error", err.Error())
		return 1
	}
	if err := current().Connect(ctx); err != nil {
		logger.Error("connect failed", "error", err.Error())
		return 1
	}
	if current().AudioSuspended() {
		fmt.Println("audio is paused; press Enter to start the interview")
	} else {
		fmt.Println("connected; the interviewer will speak first")
	}
	printHelp()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		s := current()
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "":
			if s.AudioSuspended() {
				if err := s.ResumeAudio(); err != nil {
					fmt.Fprintf(os.Stderr, "resume audio: %v\n", err)
				}
			}
		case "next", "n":
			if err := s.RequestNewQuestion(); err != nil {
				fmt.Fprintf(os.Stderr, "new question: %v\n", err)
			}
		case "retry", "r":
			if err := rebuild(); err != nil {
				fmt.Fprintf(os.Stderr, "reconnect: %v\n", err)
				continue
			}
			if err := current().Connect(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "reconnect: %v\n", err)
			}
		case "transcript", "t":
			printTranscript(s.Transcript())
		case "status":
			fmt.Printf("phase=%s speaking=%v amplitude=%.4f\n", s.Phase(), s.Speaking(), s.Amplitude())
			if msg := s.LastError(); msg != "" {
				fmt.Printf("last error: %s\n", msg)
			}
		case "help", "h", "?":
			printHelp()
		case "quit", "q", "exit":
			s.Disconnect()
			printTranscript(s.Transcript())
			return 0
		default:
			fmt.Println("unknown command; type 'help'")
		}
	}
	return 0
}

// buildSession wires one interview attempt: audio engine, playback
// scheduler, and the session state machine around them.
func buildSession(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*session.Session, error) {
	engine, err := audio.NewEngine(cfg.Audio.GestureGated)
	if err != nil {
		return nil, err
	}

	scheduler := audio.NewScheduler(engine.Clock(), engine.Sink(), func(speaking bool) {
		if speaking {
			fmt.Println("… interviewer is speaking")
		}
	})

	persona := voice.Persona{
		Name:       cfg.Interview.Persona.Name,
		Role:       cfg.Interview.Persona.Role,
		Style:      cfg.Interview.Persona.Style,
		Background: cfg.Interview.Persona.Background,
	}
	liveCfg := live.Config{
		Endpoint:          cfg.Session.Endpoint,
		APIKey:            cfg.Session.APIKey(),
		Model:             cfg.Session.Model,
		SystemInstruction: voice.SystemInstruction(cfg.Interview.JobTitle, cfg.Interview.JobDescription, persona),
		Voice:             string(voice.For(cfg.Interview.Persona.Style)),
		ConnectTimeout:    cfg.Session.ConnectTimeout(),
	}

	sess, err := session.New(
		session.Config{
			Live:             liveCfg,
			SilenceThreshold: cfg.Audio.SilenceThreshold,
			VoiceGate:        cfg.Audio.VoiceGateEnabled(),
		},
		session.Deps{
			Dial: func(ctx context.Context, lc live.Config) (session.Conn, error) {
				return live.Dial(ctx, lc)
			},
			OpenMic: func(emit audio.BlockFunc) (session.Microphone, error) {
				return audio.NewCapture(engine, audio.CaptureConfig{
					SampleRate: cfg.Audio.InputSampleRate,
					BlockSize:  cfg.Audio.BlockSize,
				}, emit)
			},
			Player:  scheduler,
			Audio:   engine,
			Logger:  logger,
			Metrics: m,
		},
		session.Notifications{
			OnPhase: func(phase session.Phase) {
				fmt.Printf("-- session %s\n", phase)
			},
			OnTranscript: func(item transcript.Item) {
				fmt.Printf("%s: %s\n", speakerLabel(item.Role), item.Text)
			},
		},
	)
	if err != nil {
		engine.Close()
		return nil, err
	}
	return sess, nil
}

func printHelp() {
	fmt.Println("commands: next (new question), retry (reconnect), transcript, status, quit; Enter resumes paused audio")
}

func speakerLabel(role transcript.Role) string {
	if role == transcript.RoleModel {
		return "Interviewer"
	}
	return "You"
}

func printTranscript(items []transcript.Item) {
	if len(items) == 0 {
		fmt.Println("(transcript is empty)")
		return
	}
	fmt.Println("--- transcript ---")
	for _, item := range items {
		fmt.Printf("[%s] %s: %s\n", item.Timestamp.Format(time.Kitchen), speakerLabel(item.Role), item.Text)
	}
}
