package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	applog "lantern/internal/log"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// StartFile replays a PCM WAV or AIFF file as if it were being captured, one block per
// block duration. Multi-channel files are mixed down to mono. The file's
// sample rate must match cfg.SampleRate. Done is closed at end of file.
func StartFile(path string, cfg StreamConfig, onFrame FrameFunc) (*Capture, error) {
	if err := cfg.validate(); err != nil {
		return nil, &CaptureError{Device: path, Err: err}
	}
	samples, rate, err := readMono(path)
	if err != nil {
		return nil, &CaptureError{Device: path, Err: err}
	}
	if float64(rate) != cfg.SampleRate {
		return nil, &CaptureError{Device: path, Err: fmt.Errorf("file sample rate %d Hz does not match %.0f Hz", rate, cfg.SampleRate)}
	}

	dev := Device{Index: -1, Name: path, MaxInputChannels: 1, DefaultSampleRate: float64(rate)}
	c := newCapture(dev, cfg, onFrame)
	fs := &fileStream{
		capture:  c,
		samples:  samples,
		block:    cfg.BlockSize,
		interval: time.Duration(float64(time.Second) * float64(cfg.BlockSize) / cfg.SampleRate),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	c.stream = fs
	if err := fs.Start(); err != nil {
		return nil, &CaptureError{Device: path, Err: err}
	}

	applog.Infof("Audio: Replaying %s (%d samples, %.1fs)", path, len(samples), float64(len(samples))/cfg.SampleRate)
	return c, nil
}

// readMono decodes a WAV or AIFF file into mono float samples in [-1, 1].
func readMono(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var (
		buf      *audio.IntBuffer
		channels int
		bitDepth int
		rate     int
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".aif", ".aiff":
		dec := aiff.NewDecoder(f)
		if !dec.IsValidFile() {
			return nil, 0, errors.New("not a valid AIFF file")
		}
		dec.ReadInfo()
		if buf, err = dec.FullPCMBuffer(); err != nil {
			return nil, 0, fmt.Errorf("decode AIFF: %w", err)
		}
		format := dec.Format()
		channels, bitDepth, rate = format.NumChannels, int(dec.BitDepth), format.SampleRate
	default:
		dec := wav.NewDecoder(f)
		if !dec.IsValidFile() {
			return nil, 0, errors.New("not a valid WAV file")
		}
		if buf, err = dec.FullPCMBuffer(); err != nil {
			return nil, 0, fmt.Errorf("decode WAV: %w", err)
		}
		channels, bitDepth, rate = int(dec.NumChans), int(dec.BitDepth), int(dec.SampleRate)
	}

	if channels < 1 {
		channels = 1
	}
	if bitDepth < 8 || bitDepth > 32 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	scale := float32(int64(1) << (bitDepth - 1))

	out := make([]float32, len(buf.Data)/channels)
	for i := range out {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(buf.Data[i*channels+ch])
		}
		out[i] = sum / float32(channels) / scale
	}
	return out, rate, nil
}

// fileStream paces a decoded file through the capture callback.
type fileStream struct {
	capture  *Capture
	samples  []float32
	block    int
	interval time.Duration

	quit     chan struct{}
	finished chan struct{}
	quitOnce sync.Once
}

func (s *fileStream) Start() error {
	go s.run()
	return nil
}

func (s *fileStream) run() {
	defer close(s.finished)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	frame := make([]float32, s.block)
	for pos := 0; pos+s.block <= len(s.samples); pos += s.block {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
		}
		copy(frame, s.samples[pos:pos+s.block])
		s.capture.process(frame)
	}
	// End of file. Stop waits on finished, so it has to run elsewhere.
	go s.capture.Stop()
}

func (s *fileStream) Stop() error {
	s.quitOnce.Do(func() { close(s.quit) })
	<-s.finished
	return nil
}

func (s *fileStream) Close() error { return nil }
