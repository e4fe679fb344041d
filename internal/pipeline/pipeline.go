// SPDX-License-Identifier: MIT
/*
Package pipeline turns captured audio frames into colour commands.

Data Flow:
 1. The capture callback hands each frame to Offer, which copies it into a
    pooled buffer and posts it on a bounded channel without blocking
 2. Run drains the channel on its own goroutine: analyze, map, rate-limit
 3. Colours that pass the limiter are enqueued as SetColor commands

Only Run's goroutine touches the analyzer and colour state. Sensitivity and
algorithm may be changed from any goroutine.
*/
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"lantern/internal/analysis"
	"lantern/internal/color"
	"lantern/internal/dispatch"
	applog "lantern/internal/log"
	"lantern/internal/metrics"
	"lantern/internal/protocol"
)

// Enqueuer accepts commands for the device.
type Enqueuer interface {
	Enqueue(cmd dispatch.Command)
}

// FrameWriter receives every frame the pipeline consumes, e.g. a WAV recorder.
type FrameWriter interface {
	Write(samples []float32) error
}

// Options configures a Pipeline.
type Options struct {
	SampleRate  float64
	BlockSize   int
	FrameQueue  int           // capacity of the frame channel
	ColorRate   time.Duration // minimum interval between colour commands
	Sensitivity int
	Algorithm   color.Algorithm

	// Connected, if set, gates colour output: frames are still analyzed
	// but nothing is mapped or sent while it reports false.
	Connected func() bool
	// Recorder, if set, receives each frame before analysis.
	Recorder FrameWriter
}

// Pipeline is one music-mode session. Create a new one per session so colour
// state starts fresh.
type Pipeline struct {
	out      Enqueuer
	analyzer *analysis.Analyzer
	engine   *color.Engine
	limiter  *color.RateLimiter
	opts     Options

	frames chan []float32
	free   chan []float32

	sensitivity atomic.Int32
	algorithm   atomic.Int32
	last        atomic.Uint32 // last colour sent, packed 0x00RRGGBB

	now func() time.Time
}

// New creates a Pipeline that enqueues onto out.
func New(out Enqueuer, opts Options) (*Pipeline, error) {
	if opts.BlockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", opts.BlockSize)
	}
	if opts.FrameQueue <= 0 {
		opts.FrameQueue = 1
	}
	analyzer, err := analysis.NewAnalyzer(analysis.Config{SampleRate: opts.SampleRate})
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		out:      out,
		analyzer: analyzer,
		engine:   color.NewEngine(),
		limiter:  color.NewRateLimiter(opts.ColorRate),
		opts:     opts,
		frames:   make(chan []float32, opts.FrameQueue),
		// One buffer per queued frame, one being processed, one being filled.
		free: make(chan []float32, opts.FrameQueue+2),
		now:  time.Now,
	}
	for i := 0; i < cap(p.free); i++ {
		p.free <- make([]float32, opts.BlockSize)
	}
	p.SetSensitivity(opts.Sensitivity)
	p.SetAlgorithm(opts.Algorithm)
	return p, nil
}

// Offer copies samples and queues them for Run. It never blocks; when the
// queue is full the frame is dropped and Offer returns false. Safe to call
// from the audio callback.
func (p *Pipeline) Offer(samples []float32) bool {
	var buf []float32
	select {
	case buf = <-p.free:
	default:
		metrics.FramesDropped.Inc()
		return false
	}
	if cap(buf) < len(samples) {
		buf = make([]float32, len(samples))
	}
	buf = buf[:len(samples)]
	copy(buf, samples)

	select {
	case p.frames <- buf:
		return true
	default:
		p.free <- buf
		metrics.FramesDropped.Inc()
		return false
	}
}

// Run consumes frames until ctx is done.
func (p *Pipeline) Run(ctx context.Context) {
	applog.Infof("Pipeline: Started (algorithm %s, sensitivity %d)", p.Algorithm(), p.Sensitivity())
	defer applog.Infof("Pipeline: Stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-p.frames:
			p.Process(frame)
			p.free <- frame
		}
	}
}

// Process runs one frame through analysis and colour mapping and enqueues the
// result if the rate limiter allows. It reports the colour and whether a
// command was enqueued. Process must only be called from one goroutine.
func (p *Pipeline) Process(frame []float32) (color.RGB, bool) {
	if p.opts.Recorder != nil {
		if err := p.opts.Recorder.Write(frame); err != nil {
			applog.Warnf("Pipeline: Recording failed, disabling: %v", err)
			p.opts.Recorder = nil
		}
	}

	bands, ok := p.analyzer.Analyze(frame)
	if !ok {
		metrics.FramesSkipped.Inc()
		return color.RGB{}, false
	}
	if p.opts.Connected != nil && !p.opts.Connected() {
		return color.RGB{}, false
	}

	c := p.engine.Map(bands, p.Sensitivity(), p.Algorithm())
	metrics.ColorsMapped.Inc()

	if !p.limiter.Allow(p.now()) {
		metrics.ColorsThrottled.Inc()
		return c, false
	}
	p.out.Enqueue(dispatch.Send(protocol.SetColor(c)))
	p.last.Store(uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B))
	applog.Debugf("Pipeline: %s low=%.2f mid=%.2f high=%.2f", c, bands.Low, bands.Mid, bands.High)
	return c, true
}

// SetSensitivity changes the gain used for subsequent frames. Values are
// clamped to [color.MinSensitivity, color.MaxSensitivity].
func (p *Pipeline) SetSensitivity(s int) {
	if s < color.MinSensitivity {
		s = color.MinSensitivity
	} else if s > color.MaxSensitivity {
		s = color.MaxSensitivity
	}
	p.sensitivity.Store(int32(s))
}

// Sensitivity returns the current sensitivity.
func (p *Pipeline) Sensitivity() int {
	return int(p.sensitivity.Load())
}

// SetAlgorithm switches the colour algorithm for subsequent frames. Colour
// state carries over.
func (p *Pipeline) SetAlgorithm(a color.Algorithm) {
	p.algorithm.Store(int32(a))
}

// Algorithm returns the current colour algorithm.
func (p *Pipeline) Algorithm() color.Algorithm {
	return color.Algorithm(p.algorithm.Load())
}

// LastColor returns the most recent colour enqueued.
func (p *Pipeline) LastColor() color.RGB {
	v := p.last.Load()
	return color.RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}
}
