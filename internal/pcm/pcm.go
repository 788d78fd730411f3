// Package pcm converts between float sample blocks and the 16-bit
// little-endian PCM wire framing used by the live session, in both
// directions: outbound capture blocks become base64 media chunks, inbound
// base64 payloads become playable buffers.
package pcm

import (
	"encoding/base64"
	"fmt"
	"math"
)

const (
	// InputSampleRate is the capture rate expected by the remote service.
	InputSampleRate = 16000
	// OutputSampleRate is the rate of synthesized speech sent back to us.
	OutputSampleRate = 24000

	bytesPerSample = 2
)

// InputMIMEType tags outbound chunks as raw PCM at the capture rate.
const InputMIMEType = "audio/pcm;rate=16000"

// Chunk is one framed capture block ready for transmission.
type Chunk struct {
	MIMEType string
	Data     string // base64 of int16 little-endian samples
}

// FrameBlock converts a block of mono float samples in [-1, 1] into a wire
// chunk. Samples outside the range are clamped. Always succeeds.
func FrameBlock(samples []float32) Chunk {
	raw := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		v := int32(s * 32768)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		}
		if v < math.MinInt16 {
			v = math.MinInt16
		}
		raw[i*2] = byte(v)
		raw[i*2+1] = byte(v >> 8)
	}
	return Chunk{
		MIMEType: InputMIMEType,
		Data:     base64.StdEncoding.EncodeToString(raw),
	}
}

// RMS returns the root-mean-square amplitude of a block, a scalar in [0, ~1].
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Buffer is a decoded in-memory waveform ready for playback scheduling.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration returns the playback length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate*b.Channels)
}

// DecodeError reports a single inbound audio part that could not be turned
// into a playable buffer. The part is dropped; the session continues.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("decode audio part: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode audio part: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Decode converts raw interleaved 16-bit little-endian PCM bytes into a
// Buffer at the given rate and channel layout.
func Decode(raw []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid sample rate %d", sampleRate)}
	}
	if channels <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid channel count %d", channels)}
	}
	if len(raw)%bytesPerSample != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("pcm payload length %d is not sample-aligned", len(raw))}
	}
	samples := make([]float32, len(raw)/bytesPerSample)
	for i := range samples {
		v := int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
		samples[i] = float32(v) / 32768
	}
	return &Buffer{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// DecodeBase64 decodes a base64 text payload and then the PCM bytes inside it.
func DecodeBase64(data string, sampleRate, channels int) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64 payload", Err: err}
	}
	return Decode(raw, sampleRate, channels)
}
