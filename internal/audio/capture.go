// SPDX-License-Identifier: MIT
/*
Package audio captures system audio and hands it out as fixed-size mono frames.

Thread Safety:
  - Frames are delivered on the capture-owned callback context
  - The callback must not block and must not retain the frame slice
  - Stop halts the callback and releases the stream before returning
*/
package audio

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	applog "lantern/internal/log"
	"lantern/internal/metrics"

	"github.com/gordonklaus/portaudio"
)

// ErrNoLoopbackDevice means no input-capable device looked like a system loopback.
var ErrNoLoopbackDevice = errors.New("no loopback-capable input device found")

// CaptureError reports that capture could not start. It is never retried.
type CaptureError struct {
	Device string // empty when no device was selected
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("audio capture: %v", e.Err)
	}
	return fmt.Sprintf("audio capture on %q: %v", e.Device, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// FrameFunc receives one block of mono samples. The slice is only valid for
// the duration of the call.
type FrameFunc func(samples []float32)

// StreamConfig controls the capture stream.
type StreamConfig struct {
	SampleRate float64
	BlockSize  int
	DeviceName string // substring match; empty selects a loopback device
	LowLatency bool
}

func (c StreamConfig) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %.0f", c.SampleRate)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("block size must be positive, got %d", c.BlockSize)
	}
	return nil
}

// stream is the part of *portaudio.Stream that Capture drives.
type stream interface {
	Start() error
	Stop() error
	Close() error
}

// paOpenStream opens a PortAudio stream, replaced in tests.
var paOpenStream = func(p portaudio.StreamParameters, cb func(in []float32)) (stream, error) {
	return portaudio.OpenStream(p, cb)
}

// Capture is a running capture stream.
type Capture struct {
	device     Device
	sampleRate float64
	blockSize  int
	onFrame    FrameFunc

	stream  stream
	stopped atomic.Bool
	frames  atomic.Uint64
	done    chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func newCapture(dev Device, cfg StreamConfig, onFrame FrameFunc) *Capture {
	return &Capture{
		device:     dev,
		sampleRate: cfg.SampleRate,
		blockSize:  cfg.BlockSize,
		onFrame:    onFrame,
		done:       make(chan struct{}),
	}
}

// Start opens a mono input stream on dev and begins delivering frames.
func Start(dev Device, cfg StreamConfig, onFrame FrameFunc) (*Capture, error) {
	if err := cfg.validate(); err != nil {
		return nil, &CaptureError{Device: dev.Name, Err: err}
	}
	if !dev.IsInput() {
		return nil, &CaptureError{Device: dev.Name, Err: errors.New("device has no input channels")}
	}

	c := newCapture(dev, cfg, onFrame)

	var latency time.Duration
	if dev.info != nil {
		latency = dev.info.DefaultHighInputLatency
		if cfg.LowLatency {
			latency = dev.info.DefaultLowInputLatency
		}
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev.info,
			Channels: 1,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: cfg.BlockSize,
		SampleRate:      cfg.SampleRate,
	}

	s, err := paOpenStream(params, c.process)
	if err != nil {
		return nil, &CaptureError{Device: dev.Name, Err: fmt.Errorf("open stream: %w", err)}
	}
	c.stream = s

	if err := s.Start(); err != nil {
		_ = s.Close()
		return nil, &CaptureError{Device: dev.Name, Err: fmt.Errorf("start stream: %w", err)}
	}

	applog.Infof("Audio: Capturing from [%d] %s at %.0f Hz, %d samples per block",
		dev.Index, dev.Name, cfg.SampleRate, cfg.BlockSize)
	return c, nil
}

// StartLoopback enumerates devices, selects one (by cfg.DeviceName when set,
// otherwise with SelectLoopbackDevice), and starts capturing from it. When no
// device qualifies it returns a *CaptureError wrapping ErrNoLoopbackDevice and
// onFrame is never called.
func StartLoopback(cfg StreamConfig, onFrame FrameFunc) (*Capture, error) {
	devices, err := HostDevices()
	if err != nil {
		return nil, &CaptureError{Err: err}
	}

	var (
		idx int
		ok  bool
	)
	if cfg.DeviceName != "" {
		idx, ok = FindDevice(devices, cfg.DeviceName)
		if !ok {
			return nil, &CaptureError{Err: fmt.Errorf("audio device %q not found: %w", cfg.DeviceName, ErrNoLoopbackDevice)}
		}
	} else {
		idx, ok = SelectLoopbackDevice(devices)
		if !ok {
			return nil, &CaptureError{Err: ErrNoLoopbackDevice}
		}
	}
	return Start(devices[idx], cfg, onFrame)
}

// process is the stream callback.
func (c *Capture) process(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if c.stopped.Load() {
		return
	}
	c.deliver(in)
}

func (c *Capture) deliver(in []float32) {
	c.frames.Add(1)
	metrics.FramesCaptured.Inc()
	c.onFrame(in)
}

// Stop halts the stream and releases it. Safe to call more than once and on a
// nil Capture.
func (c *Capture) Stop() error {
	if c == nil {
		return nil
	}
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		if c.stream != nil {
			if err := c.stream.Stop(); err != nil && !errorsIsInvalidStreamState(err) {
				c.stopErr = fmt.Errorf("stop stream: %w", err)
			}
			if err := c.stream.Close(); err != nil && c.stopErr == nil {
				c.stopErr = fmt.Errorf("close stream: %w", err)
			}
		}
		close(c.done)
		applog.Infof("Audio: Capture stopped after %d frames", c.frames.Load())
	})
	return c.stopErr
}

// Done is closed once the capture has stopped, either through Stop or, for
// file replay, at end of file.
func (c *Capture) Done() <-chan struct{} {
	return c.done
}

// Device returns the device being captured.
func (c *Capture) Device() Device { return c.device }

// SampleRate returns the stream sample rate in Hz.
func (c *Capture) SampleRate() float64 { return c.sampleRate }

// Frames returns how many frames have been delivered.
func (c *Capture) Frames() uint64 { return c.frames.Load() }

// errorsIsInvalidStreamState checks if the provided error stems from stopping an already stopped stream.
func errorsIsInvalidStreamState(err error) bool {
	if err == nil {
		return false
	}
	const invalidStateMsg = "PaErrorCode -9986"
	return strings.Contains(err.Error(), invalidStateMsg)
}
