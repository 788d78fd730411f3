package live

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wqc3241/mock-interviewer/internal/pcm"
)

// Wire shapes for the bidirectional live endpoint. One inbound message may
// carry several orthogonal facets (audio parts, transcription fragments,
// turn-complete, interrupted); decode fans each facet out as its own event
// so the session can dispatch them independently.

// Part is one piece of content inside a turn: text or inline binary data.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Blob carries base64 payloads tagged with a MIME type.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Content is a role-attributed sequence of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// SpeechConfig selects the synthesized voice identity.
type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// GenerationConfig is the session-wide generation settings sent at setup.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// Setup is the one-shot session open configuration.
type Setup struct {
	Model                    string            `json:"model"`
	GenerationConfig         *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *Content          `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

type clientSetupMessage struct {
	Setup *Setup `json:"setup"`
}

// MediaChunk is one framed capture block inside a realtimeInput message.
type MediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInput struct {
	MediaChunks []MediaChunk `json:"mediaChunks"`
}

type clientMediaMessage struct {
	RealtimeInput *realtimeInput `json:"realtimeInput"`
}

type clientContent struct {
	Turns        []Content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

type clientTextMessage struct {
	ClientContent *clientContent `json:"clientContent"`
}

// Transcription is an incremental text fragment of one speaker's utterance.
type Transcription struct {
	Text string `json:"text"`
}

// ServerContent is the model-turn facet bundle of an inbound message.
type ServerContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
}

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
}

// Event is a decoded inbound session event.
type Event interface {
	eventType() string
}

// OpenEvent acknowledges the setup payload; the session is ready.
type OpenEvent struct{}

func (OpenEvent) eventType() string { return "open" }

// AudioEvent carries one base64 audio part of the model's speech.
type AudioEvent struct {
	MIMEType string
	Data     string // base64 raw PCM at the output rate
}

func (AudioEvent) eventType() string { return "audio" }

// OutputTextEvent is a fragment of the model's current utterance.
type OutputTextEvent struct{ Text string }

func (OutputTextEvent) eventType() string { return "output_text" }

// InputTextEvent is a fragment of the service's transcription of the user.
type InputTextEvent struct{ Text string }

func (InputTextEvent) eventType() string { return "input_text" }

// TurnCompleteEvent signals a conversational turn boundary.
type TurnCompleteEvent struct{}

func (TurnCompleteEvent) eventType() string { return "turn_complete" }

// InterruptedEvent signals the model's turn was cut short upstream.
type InterruptedEvent struct{}

func (InterruptedEvent) eventType() string { return "interrupted" }

// decodeServerMessage fans one inbound frame out into facet events, in the
// dispatch order the session expects: audio parts, output transcription,
// input transcription, turn-complete, interrupted.
func decodeServerMessage(data []byte) ([]Event, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode live frame: %w", err)
	}

	var events []Event
	if msg.SetupComplete != nil {
		events = append(events, OpenEvent{})
	}
	sc := msg.ServerContent
	if sc == nil {
		return events, nil
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData == nil || strings.TrimSpace(part.InlineData.Data) == "" {
				continue
			}
			events = append(events, AudioEvent{
				MIMEType: part.InlineData.MIMEType,
				Data:     part.InlineData.Data,
			})
		}
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		events = append(events, OutputTextEvent{Text: sc.OutputTranscription.Text})
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		events = append(events, InputTextEvent{Text: sc.InputTranscription.Text})
	}
	if sc.TurnComplete {
		events = append(events, TurnCompleteEvent{})
	}
	if sc.Interrupted {
		events = append(events, InterruptedEvent{})
	}
	return events, nil
}

// OutputMIMEType tags inbound model speech parts.
var OutputMIMEType = fmt.Sprintf("audio/pcm;rate=%d", pcm.OutputSampleRate)
