// Package control holds the light's user-facing settings and turns user
// actions into queued device commands. It owns the music-mode session.
package control

import (
	"context"
	"fmt"
	"sync"

	"lantern/internal/audio"
	"lantern/internal/color"
	"lantern/internal/config"
	"lantern/internal/dispatch"
	"lantern/internal/events"
	applog "lantern/internal/log"
	"lantern/internal/pipeline"
	"lantern/internal/protocol"
	"lantern/internal/transport"
)

// MusicBaseColor is the colour sent when music mode starts, before the first
// colour derived from audio.
var MusicBaseColor = color.RGB{R: 100, G: 100, B: 100}

// Queue is the part of the dispatch queue the controller uses.
type Queue interface {
	Enqueue(cmd dispatch.Command)
	State() dispatch.ConnectionState
}

// Capture is a running audio capture.
type Capture interface {
	Stop() error
}

// CaptureFunc starts delivering audio frames to onFrame.
type CaptureFunc func(onFrame audio.FrameFunc) (Capture, error)

// Settings is the controller's view of the light.
type Settings struct {
	Color       color.RGB       `json:"color"`
	Brightness  int             `json:"brightness"`
	Mode        protocol.Mode   `json:"mode"`
	EffectSpeed int             `json:"effect_speed"`
	Sensitivity int             `json:"sensitivity"`
	Algorithm   color.Algorithm `json:"algorithm"`
	Music       bool            `json:"music"` // music mode is capturing
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		Color:       color.RGB{R: 255, G: 255, B: 255},
		Brightness:  config.DefaultBrightness,
		Mode:        protocol.ModeStatic,
		EffectSpeed: config.DefaultEffectSpeed,
		Sensitivity: config.DefaultSensitivity,
		Algorithm:   color.EnergyBased,
	}
}

// Options configures a Controller.
type Options struct {
	Initial      Settings
	Pipeline     pipeline.Options // Sensitivity, Algorithm and Connected are filled in per session
	StartCapture CaptureFunc
	AutoMusic    bool // enter music mode after every successful connect
}

// Controller serializes user actions. All methods are safe for concurrent use.
type Controller struct {
	queue Queue
	sink  events.Sink
	opts  Options

	mu       sync.Mutex
	settings Settings
	music    *musicSession
}

type musicSession struct {
	pipe    *pipeline.Pipeline
	capture Capture
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Controller that enqueues onto q and reports capture failures to sink.
func New(q Queue, sink events.Sink, opts Options) *Controller {
	if sink == nil {
		sink = events.Discard
	}
	return &Controller{
		queue:    q,
		sink:     sink,
		opts:     opts,
		settings: opts.Initial,
	}
}

// Settings returns a snapshot of the current settings.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.settings
	s.Music = c.music != nil
	if c.music != nil {
		s.Color = c.music.pipe.LastColor()
	}
	return s
}

// State returns the connection state.
func (c *Controller) State() dispatch.ConnectionState {
	return c.queue.State()
}

// Connect queues a connection to d.
func (c *Controller) Connect(d transport.Descriptor) {
	c.queue.Enqueue(dispatch.Connect(d, c.onConnected))
}

func (c *Controller) onConnected() {
	if !c.opts.AutoMusic {
		return
	}
	// Runs on the queue consumer; capture start must not hold it up.
	go func() {
		if err := c.SetMode(protocol.ModeMusic); err != nil {
			applog.Warnf("Control: Auto music mode failed: %v", err)
		}
	}()
}

// Disconnect stops music mode and queues a disconnect.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.stopMusicLocked()
	c.mu.Unlock()
	c.queue.Enqueue(dispatch.Disconnect())
}

// SetMode switches the light mode. Music mode starts audio capture; every
// other mode stops it and sends the mode to the device. A capture failure is
// returned and also reported as a capture event.
func (c *Controller) SetMode(m protocol.Mode) error {
	if _, err := m.Effect(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.Mode = m
	if m == protocol.ModeMusic {
		return c.startMusicLocked()
	}
	c.stopMusicLocked()
	c.queue.Enqueue(dispatch.Send(protocol.SetMode(m)))
	return nil
}

func (c *Controller) startMusicLocked() error {
	if c.music != nil {
		return nil
	}

	c.queue.Enqueue(dispatch.Send(protocol.TurnOn()))
	c.queue.Enqueue(dispatch.Send(protocol.SetMode(protocol.ModeStatic)))
	c.queue.Enqueue(dispatch.Send(protocol.SetColor(MusicBaseColor)))

	if c.opts.StartCapture == nil {
		return c.captureFailed(fmt.Errorf("no audio source configured"))
	}

	popts := c.opts.Pipeline
	popts.Sensitivity = c.settings.Sensitivity
	popts.Algorithm = c.settings.Algorithm
	popts.Connected = func() bool { return c.queue.State().IsConnected() }
	pipe, err := pipeline.New(c.queue, popts)
	if err != nil {
		return c.captureFailed(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		pipe.Run(ctx)
	}()

	capture, err := c.opts.StartCapture(func(in []float32) { pipe.Offer(in) })
	if err != nil {
		cancel()
		<-done
		return c.captureFailed(err)
	}

	c.music = &musicSession{pipe: pipe, capture: capture, cancel: cancel, done: done}
	applog.Infof("Control: Music mode started (%s, sensitivity %d)", c.settings.Algorithm, c.settings.Sensitivity)
	return nil
}

func (c *Controller) captureFailed(err error) error {
	applog.Errorf("Control: Music mode could not start: %v", err)
	c.sink.Notify(events.NewError(events.SourceCapture, err))
	return err
}

// stopMusicLocked stops capture synchronously, then the pipeline.
func (c *Controller) stopMusicLocked() {
	m := c.music
	if m == nil {
		return
	}
	c.music = nil

	if err := m.capture.Stop(); err != nil {
		applog.Warnf("Control: Stopping capture: %v", err)
	}
	m.cancel()
	<-m.done
	c.settings.Color = m.pipe.LastColor()
	applog.Infof("Control: Music mode stopped")
}

// TurnOn queues a power-on.
func (c *Controller) TurnOn() {
	c.queue.Enqueue(dispatch.Send(protocol.TurnOn()))
}

// TurnOff queues a power-off.
func (c *Controller) TurnOff() {
	c.queue.Enqueue(dispatch.Send(protocol.TurnOff()))
}

// SetColor queues a manual colour.
func (c *Controller) SetColor(rgb color.RGB) {
	c.mu.Lock()
	c.settings.Color = rgb
	c.mu.Unlock()
	c.queue.Enqueue(dispatch.Send(protocol.SetColor(rgb)))
}

// SetBrightness queues a brightness change. v must be in [0, 255].
func (c *Controller) SetBrightness(v int) error {
	if v < 0 || v > 255 {
		return fmt.Errorf("brightness %d: %w", v, protocol.ErrOutOfRange)
	}
	c.mu.Lock()
	c.settings.Brightness = v
	c.mu.Unlock()
	c.queue.Enqueue(dispatch.Send(protocol.SetBrightness(v)))
	return nil
}

// SetEffectSpeed queues an effect speed change. v must be in [1, 100].
func (c *Controller) SetEffectSpeed(v int) error {
	if v < 1 || v > 100 {
		return fmt.Errorf("effect speed %d: %w", v, protocol.ErrOutOfRange)
	}
	c.mu.Lock()
	c.settings.EffectSpeed = v
	c.mu.Unlock()
	c.queue.Enqueue(dispatch.Send(protocol.SetEffectSpeed(v)))
	return nil
}

// SetSensitivity changes the music gain, clamped to [10, 100]. It takes
// effect on the next frame.
func (c *Controller) SetSensitivity(s int) {
	if s < color.MinSensitivity {
		s = color.MinSensitivity
	} else if s > color.MaxSensitivity {
		s = color.MaxSensitivity
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.Sensitivity = s
	if c.music != nil {
		c.music.pipe.SetSensitivity(s)
	}
}

// SetAlgorithm switches the music colour algorithm. It takes effect on the
// next frame.
func (c *Controller) SetAlgorithm(a color.Algorithm) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.Algorithm = a
	if c.music != nil {
		c.music.pipe.SetAlgorithm(a)
	}
}

// Close stops music mode. The queue is left to its owner.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopMusicLocked()
}
