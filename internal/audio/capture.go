package audio

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/wqc3241/mock-interviewer/internal/pcm"
)

// DefaultBlockSize is the capture window handed to the block callback,
// in samples.
const DefaultBlockSize = 4096

// BlockFunc receives one fixed-size window of mono float samples in
// [-1, 1] per capture callback. It runs on the device callback thread and
// must not block on I/O beyond the outbound send.
type BlockFunc func(block []float32)

// CaptureConfig sizes the microphone stream.
type CaptureConfig struct {
	SampleRate int // capture rate, 16 kHz for the live wire format
	BlockSize  int // samples per emitted block
}

// Capture owns the microphone device and re-windows the hardware callback
// payloads into fixed-size blocks.
type Capture struct {
	device *malgo.Device
	cfg    CaptureConfig
	emit   BlockFunc

	mu      sync.Mutex
	pending []float32
	closed  bool
}

// NewCapture acquires the microphone stream. The device is initialized but
// not delivering callbacks until Start.
func NewCapture(engine *Engine, cfg CaptureConfig, emit BlockFunc) (*Capture, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = pcm.InputSampleRate
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}

	c := &Capture{
		cfg:     cfg,
		emit:    emit,
		pending: make([]float32, 0, cfg.BlockSize*2),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.ingest(input)
		},
	}

	device, err := malgo.InitDevice(engine.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, &AcquisitionError{Device: "microphone", Err: err}
	}
	c.device = device
	return c, nil
}

// Start begins delivering capture callbacks.
func (c *Capture) Start() error {
	if err := c.device.Start(); err != nil {
		return &AcquisitionError{Device: "microphone", Err: err}
	}
	return nil
}

// ingest appends raw float32 LE bytes and emits full blocks.
func (c *Capture) ingest(input []byte) {
	var blocks [][]float32

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	for i := 0; i+4 <= len(input); i += 4 {
		c.pending = append(c.pending, math.Float32frombits(binary.LittleEndian.Uint32(input[i:])))
	}
	for len(c.pending) >= c.cfg.BlockSize {
		block := make([]float32, c.cfg.BlockSize)
		copy(block, c.pending[:c.cfg.BlockSize])
		c.pending = c.pending[c.cfg.BlockSize:]
		blocks = append(blocks, block)
	}
	c.mu.Unlock()

	if c.emit == nil {
		return
	}
	for _, block := range blocks {
		c.emit(block)
	}
}

// Close stops the device and releases the microphone. Idempotent.
func (c *Capture) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
	}
}
