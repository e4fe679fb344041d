// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"

	applog "lantern/internal/log"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	// MinFrameLen is the shortest frame that is analyzed. Shorter frames are skipped.
	MinFrameLen = 11

	// HistoryLen is the number of band observations averaged together.
	HistoryLen = 5

	// LowGain compensates for the low band's smaller share of the magnitude spectrum.
	LowGain = 3.0

	// emptyBand stands in for a band with no FFT bins so later ratios never divide by zero.
	emptyBand = 0.001
)

// Bands holds the mean FFT magnitude of the three frequency ranges. All values are >= 0.
type Bands struct {
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
}

// Sum returns Low + Mid + High.
func (b Bands) Sum() float64 {
	return b.Low + b.Mid + b.High
}

// BandRange is a half-open frequency interval [LowHz, HighHz).
type BandRange struct {
	LowHz  float64
	HighHz float64
}

func (r BandRange) contains(freq float64) bool {
	return freq >= r.LowHz && freq < r.HighHz
}

// Default band layout.
var (
	LowRange  = BandRange{LowHz: 20, HighHz: 200}
	MidRange  = BandRange{LowHz: 200, HighHz: 1500}
	HighRange = BandRange{LowHz: 1500, HighHz: 6000}
)

// Config controls Analyzer behaviour.
type Config struct {
	SampleRate float64
	Low        BandRange
	Mid        BandRange
	High       BandRange
}

// workspace holds the per-frame-length buffers. It is rebuilt only when the
// incoming frame length changes.
type workspace struct {
	size      int
	fft       *fourier.FFT
	window    []float64
	input     []float64
	fftOutput []complex128
}

// Analyzer reduces audio frames to smoothed low/mid/high band energy. It is
// not safe for concurrent use; one goroutine owns it.
type Analyzer struct {
	cfg Config
	ws  workspace

	history [HistoryLen]Bands
	count   int // observations held in history, up to HistoryLen
	next    int // slot the next observation overwrites
}

// NewAnalyzer creates an Analyzer. Zero band ranges fall back to the default layout.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", cfg.SampleRate)
	}
	if cfg.Low == (BandRange{}) {
		cfg.Low = LowRange
	}
	if cfg.Mid == (BandRange{}) {
		cfg.Mid = MidRange
	}
	if cfg.High == (BandRange{}) {
		cfg.High = HighRange
	}
	for _, r := range []BandRange{cfg.Low, cfg.Mid, cfg.High} {
		if r.LowHz < 0 || r.HighHz <= r.LowHz {
			return nil, fmt.Errorf("invalid band range [%.1f, %.1f)", r.LowHz, r.HighHz)
		}
	}

	applog.Debugf("Analysis: Initializing Analyzer (SampleRate: %.1f Hz)", cfg.SampleRate)
	return &Analyzer{cfg: cfg}, nil
}

// Analyze windows and transforms one frame and returns the smoothed bands.
// The second result is false when the frame is too short to analyze, in which
// case the history is left untouched.
func (a *Analyzer) Analyze(samples []float32) (Bands, bool) {
	if len(samples) < MinFrameLen {
		return Bands{}, false
	}
	a.ensureWorkspace(len(samples))

	// --- 1. Windowing ---
	for i, s := range samples {
		a.ws.input[i] = float64(s) * a.ws.window[i]
	}

	// --- 2. FFT ---
	a.ws.fft.Coefficients(a.ws.fftOutput, a.ws.input)

	// --- 3. Bucket magnitudes ---
	var sum [3]float64
	var bins [3]int
	for i, c := range a.ws.fftOutput {
		freq := a.ws.fft.Freq(i) * a.cfg.SampleRate
		mag := cmplx.Abs(c)
		switch {
		case a.cfg.Low.contains(freq):
			sum[0] += mag
			bins[0]++
		case a.cfg.Mid.contains(freq):
			sum[1] += mag
			bins[1]++
		case a.cfg.High.contains(freq):
			sum[2] += mag
			bins[2]++
		}
	}

	raw := Bands{
		Low:  bandMean(sum[0], bins[0]) * LowGain,
		Mid:  bandMean(sum[1], bins[1]),
		High: bandMean(sum[2], bins[2]),
	}

	// --- 4. Smooth ---
	a.push(raw)
	return a.mean(), true
}

// Reset drops the smoothing history.
func (a *Analyzer) Reset() {
	a.count = 0
	a.next = 0
}

func (a *Analyzer) push(b Bands) {
	a.history[a.next] = b
	a.next = (a.next + 1) % HistoryLen
	if a.count < HistoryLen {
		a.count++
	}
}

func (a *Analyzer) mean() Bands {
	var out Bands
	for i := 0; i < a.count; i++ {
		out.Low += a.history[i].Low
		out.Mid += a.history[i].Mid
		out.High += a.history[i].High
	}
	n := float64(a.count)
	out.Low /= n
	out.Mid /= n
	out.High /= n
	return out
}

func (a *Analyzer) ensureWorkspace(size int) {
	if a.ws.size == size {
		return
	}
	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	window.Hann(coeffs)

	a.ws = workspace{
		size:      size,
		fft:       fourier.NewFFT(size),
		window:    coeffs,
		input:     make([]float64, size),
		fftOutput: make([]complex128, size/2+1),
	}
}

func bandMean(sum float64, bins int) float64 {
	if bins == 0 {
		return emptyBand
	}
	return sum / float64(bins)
}
