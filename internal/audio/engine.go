// Package audio owns the audio device layer (microphone capture, speaker
// output) and the playback scheduler that turns decoded buffers into
// gapless, interruptible speech.
package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/wqc3241/mock-interviewer/internal/pcm"
)

// AcquisitionError reports a failure to acquire an audio device or context.
// Surfaced to the user once; the connection attempt aborts and is not
// retried automatically.
type AcquisitionError struct {
	Device string
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("acquire %s: %v", e.Device, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Clock is the audio clock the scheduler positions buffers against,
// in seconds.
type Clock interface {
	Now() float64
}

type monotonicClock struct {
	epoch time.Time
}

func (c *monotonicClock) Now() float64 {
	return time.Since(c.epoch).Seconds()
}

// Engine owns the capture context and the speaker output context for one
// interview session. Both are acquired together at fixed rates (16 kHz in,
// 24 kHz out) and released together on teardown.
type Engine struct {
	malgoCtx *malgo.AllocatedContext
	otoCtx   *oto.Context
	clock    *monotonicClock

	mu        sync.Mutex
	suspended bool
	closed    bool
}

// NewEngine acquires both audio contexts. The speaker context starts
// suspended when gestureGated is set, modeling platforms that block output
// until an explicit resume.
func NewEngine(gestureGated bool) (*Engine, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, &AcquisitionError{Device: "capture context", Err: err}
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   pcm.OutputSampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, &AcquisitionError{Device: "output context", Err: err}
	}
	<-ready

	e := &Engine{
		malgoCtx: malgoCtx,
		otoCtx:   otoCtx,
		clock:    &monotonicClock{epoch: time.Now()},
	}
	if gestureGated {
		if err := otoCtx.Suspend(); err == nil {
			e.suspended = true
		}
	}
	return e, nil
}

// Clock returns the engine's monotonic audio clock.
func (e *Engine) Clock() Clock {
	return e.clock
}

// Suspended reports whether speaker output is currently gated.
func (e *Engine) Suspended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suspended
}

// Resume lifts the output gate. Idempotent.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.suspended || e.closed {
		return nil
	}
	if err := e.otoCtx.Resume(); err != nil {
		return err
	}
	e.suspended = false
	return nil
}

// Sink returns the speaker-backed playback sink positioned on the
// engine's clock.
func (e *Engine) Sink() Sink {
	return &otoSink{ctx: e.otoCtx, clock: e.clock}
}

// Close releases the capture context and gates the speaker output. Safe to
// call more than once and from any state.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	// The speaker context lives for the process; suspending it is the
	// closest equivalent of closing it.
	_ = e.otoCtx.Suspend()
	_ = e.malgoCtx.Uninit()
	e.malgoCtx.Free()
}
