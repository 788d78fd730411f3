package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/wqc3241/mock-interviewer/internal/pcm"
)

type fakeClock struct {
	now float64
}

func (c *fakeClock) Now() float64 { return c.now }

type fakeSource struct {
	start    float64
	duration float64
	done     func()
	stops    int
}

func (f *fakeSource) Stop() { f.stops++ }

type fakeSink struct {
	sources []*fakeSource
}

func (s *fakeSink) Start(buf *pcm.Buffer, at float64, done func()) (Handle, error) {
	src := &fakeSource{start: at, duration: buf.Duration(), done: done}
	s.sources = append(s.sources, src)
	return src, nil
}

func outBuffer(seconds float64) *pcm.Buffer {
	n := int(seconds * float64(pcm.OutputSampleRate))
	return &pcm.Buffer{Samples: make([]float32, n), SampleRate: pcm.OutputSampleRate, Channels: 1}
}

func TestScheduler_GaplessBackToBackStarts(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	s := NewScheduler(clock, sink, nil)

	durations := []float64{0.5, 0.25, 1.0, 0.1}
	for _, d := range durations {
		if err := s.Schedule(outBuffer(d)); err != nil {
			t.Fatalf("Schedule() error = %v", err)
		}
	}

	if len(sink.sources) != len(durations) {
		t.Fatalf("scheduled %d sources, want %d", len(sink.sources), len(durations))
	}
	for k := 0; k+1 < len(sink.sources); k++ {
		want := sink.sources[k].start + sink.sources[k].duration
		if got := sink.sources[k+1].start; math.Abs(got-want) > 1e-9 {
			t.Fatalf("source %d starts at %v, want %v (end of source %d)", k+1, got, want, k)
		}
	}
	if got := s.NextStartTime(); math.Abs(got-1.85) > 1e-9 {
		t.Fatalf("cursor = %v, want 1.85", got)
	}
}

func TestScheduler_StartsAtClockWhenCursorIsBehind(t *testing.T) {
	clock := &fakeClock{now: 3.0}
	sink := &fakeSink{}
	s := NewScheduler(clock, sink, nil)

	if err := s.Schedule(outBuffer(0.5)); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if got := sink.sources[0].start; got != 3.0 {
		t.Fatalf("start = %v, want clock time 3.0", got)
	}
	if got := s.NextStartTime(); math.Abs(got-3.5) > 1e-9 {
		t.Fatalf("cursor = %v, want 3.5", got)
	}
}

func TestScheduler_InterruptionClearsFutureAudio(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	var transitions []bool
	s := NewScheduler(clock, sink, func(speaking bool) { transitions = append(transitions, speaking) })

	for i := 0; i < 3; i++ {
		if err := s.Schedule(outBuffer(1.0)); err != nil {
			t.Fatalf("Schedule() error = %v", err)
		}
	}
	if !s.Speaking() {
		t.Fatalf("expected speaking while sources are active")
	}

	s.StopAll()

	if got := s.ActiveCount(); got != 0 {
		t.Fatalf("active sources after interruption = %d, want 0", got)
	}
	if got := s.NextStartTime(); got != 0 {
		t.Fatalf("cursor after interruption = %v, want 0", got)
	}
	if s.Speaking() {
		t.Fatalf("expected not speaking after interruption")
	}
	for i, src := range sink.sources {
		if src.stops != 1 {
			t.Fatalf("source %d stopped %d times, want 1", i, src.stops)
		}
	}
	if len(transitions) != 2 || transitions[0] != true || transitions[1] != false {
		t.Fatalf("speaking transitions = %v, want [true false]", transitions)
	}

	// The next buffer starts immediately rather than behind stale audio.
	clock.now = 5.0
	if err := s.Schedule(outBuffer(0.5)); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if got := sink.sources[len(sink.sources)-1].start; got != 5.0 {
		t.Fatalf("post-interruption start = %v, want 5.0", got)
	}
}

func TestScheduler_NaturalCompletionSignalsFinishedSpeaking(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	var transitions []bool
	s := NewScheduler(clock, sink, func(speaking bool) { transitions = append(transitions, speaking) })

	_ = s.Schedule(outBuffer(0.5))
	_ = s.Schedule(outBuffer(0.5))

	sink.sources[0].done()
	if !s.Speaking() {
		t.Fatalf("still one source active, should be speaking")
	}
	sink.sources[1].done()
	if s.Speaking() {
		t.Fatalf("all sources finished, should not be speaking")
	}
	if len(transitions) != 2 || transitions[1] != false {
		t.Fatalf("speaking transitions = %v, want [true false]", transitions)
	}

	// A finish racing a prior StopAll must be ignored.
	sink.sources[0].done()
	if len(transitions) != 2 {
		t.Fatalf("duplicate finish changed transitions: %v", transitions)
	}
}

func TestScheduler_StopAllOnIdleSchedulerIsSafe(t *testing.T) {
	s := NewScheduler(&fakeClock{}, &fakeSink{}, func(bool) { t.Fatal("no transition expected") })
	s.StopAll()
	s.StopAll()
}

func TestScheduler_IgnoresEmptyBuffers(t *testing.T) {
	sink := &fakeSink{}
	s := NewScheduler(&fakeClock{}, sink, nil)
	if err := s.Schedule(nil); err != nil {
		t.Fatalf("Schedule(nil) error = %v", err)
	}
	if err := s.Schedule(&pcm.Buffer{SampleRate: pcm.OutputSampleRate, Channels: 1}); err != nil {
		t.Fatalf("Schedule(empty) error = %v", err)
	}
	if len(sink.sources) != 0 {
		t.Fatalf("empty buffers were scheduled: %d", len(sink.sources))
	}
}

func TestCapture_IngestReWindowsIntoFixedBlocks(t *testing.T) {
	var blocks [][]float32
	c := &Capture{
		cfg:  CaptureConfig{SampleRate: pcm.InputSampleRate, BlockSize: 4},
		emit: func(block []float32) { blocks = append(blocks, block) },
	}

	// Feed 6 samples, then 3 more: expect blocks of 4 at [0..3] and [4..7],
	// with one sample left pending.
	c.ingest(floatBytes([]float32{0, 1, 2, 3, 4, 5}))
	c.ingest(floatBytes([]float32{6, 7, 8}))

	if len(blocks) != 2 {
		t.Fatalf("emitted %d blocks, want 2", len(blocks))
	}
	for i, want := range []float32{0, 1, 2, 3} {
		if blocks[0][i] != want {
			t.Fatalf("block 0 sample %d = %v, want %v", i, blocks[0][i], want)
		}
	}
	for i, want := range []float32{4, 5, 6, 7} {
		if blocks[1][i] != want {
			t.Fatalf("block 1 sample %d = %v, want %v", i, blocks[1][i], want)
		}
	}
	if len(c.pending) != 1 || c.pending[0] != 8 {
		t.Fatalf("pending = %v, want [8]", c.pending)
	}
}

func floatBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}
