package audio

import (
	"sync"

	"github.com/wqc3241/mock-interviewer/internal/pcm"
)

// Handle is a scheduled-but-not-necessarily-finished playback source.
// Stop must tolerate a source that has already finished or been stopped;
// that race is expected and never an error.
type Handle interface {
	Stop()
}

// Sink starts playback of a buffer at a given audio-clock time. The done
// callback must fire exactly once when the buffer finishes naturally, and
// must never fire synchronously from within Start or after Stop.
type Sink interface {
	Start(buf *pcm.Buffer, at float64, done func()) (Handle, error)
}

// Scheduler plays decoded speech buffers back-to-back with no gaps or
// overlaps: each buffer starts at max(cursor, now) and advances the cursor
// by its duration. An interruption hard-stops every active source and
// resets the cursor so the next buffer starts immediately.
type Scheduler struct {
	clock Clock
	sink  Sink

	// onSpeaking observes transitions of the "model is speaking" flag,
	// which is true iff at least one source is active.
	onSpeaking func(bool)

	mu     sync.Mutex
	next   float64
	active map[uint64]Handle
	seq    uint64
}

// NewScheduler builds a scheduler over the given clock and sink. onSpeaking
// may be nil.
func NewScheduler(clock Clock, sink Sink, onSpeaking func(bool)) *Scheduler {
	return &Scheduler{
		clock:      clock,
		sink:       sink,
		onSpeaking: onSpeaking,
		active:     make(map[uint64]Handle),
	}
}

// Schedule queues one buffer strictly after everything scheduled before it.
func (s *Scheduler) Schedule(buf *pcm.Buffer) error {
	if buf == nil || len(buf.Samples) == 0 {
		return nil
	}

	s.mu.Lock()
	start := s.next
	if now := s.clock.Now(); now > start {
		start = now
	}
	id := s.seq
	s.seq++

	handle, err := s.sink.Start(buf, start, func() { s.finish(id) })
	if err != nil {
		s.mu.Unlock()
		return err
	}
	wasIdle := len(s.active) == 0
	s.active[id] = handle
	s.next = start + buf.Duration()
	s.mu.Unlock()

	if wasIdle && s.onSpeaking != nil {
		s.onSpeaking(true)
	}
	return nil
}

// finish removes a naturally completed source. Sources removed by StopAll
// are ignored here.
func (s *Scheduler) finish(id uint64) {
	s.mu.Lock()
	if _, ok := s.active[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	idle := len(s.active) == 0
	s.mu.Unlock()

	if idle && s.onSpeaking != nil {
		s.onSpeaking(false)
	}
}

// StopAll hard-stops every active source and resets the cursor to zero
// offset so the next scheduled buffer starts immediately instead of queuing
// behind stale audio. Buffers already scheduled in the future must be
// cancelled explicitly: look-ahead scheduling means merely stopping new
// sends would leave stale speech playing.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	handles := make([]Handle, 0, len(s.active))
	for _, h := range s.active {
		handles = append(handles, h)
	}
	hadActive := len(s.active) > 0
	s.active = make(map[uint64]Handle)
	s.next = 0
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	if hadActive && s.onSpeaking != nil {
		s.onSpeaking(false)
	}
}

// Speaking reports whether any source is still active.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) > 0
}

// ActiveCount reports the number of scheduled-but-unfinished sources.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStartTime exposes the cursor for inspection.
func (s *Scheduler) NextStartTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
