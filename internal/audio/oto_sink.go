package audio

import (
	"bytes"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/wqc3241/mock-interviewer/internal/pcm"
)

// otoSink plays each scheduled buffer through its own oto player, started
// by a timer positioned on the engine clock.
type otoSink struct {
	ctx   *oto.Context
	clock Clock
}

func (s *otoSink) Start(buf *pcm.Buffer, at float64, done func()) (Handle, error) {
	data := s16leBytes(buf.Samples)
	player := s.ctx.NewPlayer(bytes.NewReader(data))

	h := &otoHandle{player: player}

	startDelay := time.Duration((at - s.clock.Now()) * float64(time.Second))
	if startDelay < 0 {
		startDelay = 0
	}
	endDelay := startDelay + time.Duration(buf.Duration()*float64(time.Second))

	h.startTimer = time.AfterFunc(startDelay, func() {
		h.mu.Lock()
		stopped := h.stopped
		h.mu.Unlock()
		if !stopped {
			player.Play()
		}
	})
	h.doneTimer = time.AfterFunc(endDelay, func() {
		h.mu.Lock()
		stopped := h.stopped
		h.finished = true
		h.mu.Unlock()
		if !stopped {
			// Let oto drain its device buffer before releasing the player.
			_ = player.Close()
			done()
		}
	})
	return h, nil
}

type otoHandle struct {
	player *oto.Player

	mu         sync.Mutex
	stopped    bool
	finished   bool
	startTimer *time.Timer
	doneTimer  *time.Timer
}

// Stop cancels pending start/done timers and tears the player down.
// Stopping an already-finished source is a no-op.
func (h *otoHandle) Stop() {
	h.mu.Lock()
	if h.stopped || h.finished {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	h.startTimer.Stop()
	h.doneTimer.Stop()
	h.player.Pause()
	_ = h.player.Close()
}

func s16leBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32768)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		}
		if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
