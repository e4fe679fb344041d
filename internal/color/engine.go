// Package color maps band energy onto RGB colours for music mode.
package color

import (
	"math"

	"lantern/internal/analysis"
)

// Sensitivity bounds. NeutralSensitivity yields unit gain.
const (
	MinSensitivity     = 10
	MaxSensitivity     = 100
	NeutralSensitivity = 50.0
)

const ratioEpsilon = 0.001

// firePalette runs from dark red to bright orange.
var firePalette = [7]RGB{
	{20, 0, 0},
	{50, 0, 0},
	{100, 10, 0},
	{150, 30, 0},
	{200, 60, 0},
	{255, 100, 0},
	{255, 150, 50},
}

// State is the mutable state shared by the mapping algorithms.
type State struct {
	HuePhase   float64 // degrees, [0, 360)
	PulsePhase float64 // degrees, [0, 360)
	LastEnergy float64
}

// Engine turns bands into smoothed colours. An Engine belongs to one music
// session and must only be used from the goroutine that owns it.
type Engine struct {
	state    State
	smoother Smoother
}

// NewEngine returns an Engine with zeroed state.
func NewEngine() *Engine {
	return &Engine{}
}

// State returns a copy of the current algorithm state.
func (e *Engine) State() State {
	return e.state
}

// Map runs alg over bands and returns the 3-colour moving average.
// sensitivity is clamped to [MinSensitivity, MaxSensitivity].
func (e *Engine) Map(bands analysis.Bands, sensitivity int, alg Algorithm) RGB {
	return e.smoother.Push(e.Raw(bands, sensitivity, alg))
}

// Raw runs alg without the smoothing stage. The algorithm state still advances.
func (e *Engine) Raw(bands analysis.Bands, sensitivity int, alg Algorithm) RGB {
	s := gain(sensitivity)
	switch alg {
	case FrequencyRGB:
		return frequencyRGB(bands, s)
	case MusicSpectrum:
		return musicSpectrum(bands, s)
	case PulseWaves:
		return e.pulseWaves(bands, s)
	case FireEqualizer:
		return fireEqualizer(bands, s)
	default:
		return e.energyBased(bands, s)
	}
}

func gain(sensitivity int) float64 {
	if sensitivity < MinSensitivity {
		sensitivity = MinSensitivity
	}
	if sensitivity > MaxSensitivity {
		sensitivity = MaxSensitivity
	}
	return float64(sensitivity) / NeutralSensitivity
}

func frequencyRGB(b analysis.Bands, s float64) RGB {
	r := clip(b.Low * s * 15)
	g := clip(b.Mid * s * 12)
	bl := clip(b.High * s * 10)

	peak := max(r, g, bl)
	if peak > 0 && peak < 100 {
		scale := 200 / float64(peak)
		r = clip(float64(r) * scale)
		g = clip(float64(g) * scale)
		bl = clip(float64(bl) * scale)
	}
	return RGB{R: r, G: g, B: bl}
}

func (e *Engine) energyBased(b analysis.Bands, s float64) RGB {
	energy := b.Sum() * s
	total := b.Sum() + ratioEpsilon
	lowRatio := b.Low / total
	midRatio := b.Mid / total
	highRatio := b.High / total

	var baseHue float64
	switch {
	case lowRatio > 0.6:
		baseHue = 0
	case midRatio > 0.6:
		baseHue = 120
	case highRatio > 0.6:
		baseHue = 240
	default:
		baseHue = wrapDegrees(midRatio*120 + highRatio*240)
	}

	e.state.HuePhase = wrapDegrees(e.state.HuePhase + energy*0.1)
	hue := wrapDegrees(baseHue + e.state.HuePhase)
	return HSVToRGB(hue, math.Min(1, energy*0.02), math.Min(1, energy*0.01))
}

func musicSpectrum(b analysis.Bands, s float64) RGB {
	bass := b.Low * s * 20
	melody := b.Mid * s * 15
	treble := b.High * s * 10

	var r, g, bl float64
	switch {
	case bass > melody*1.5:
		r, g, bl = bass*2, melody, treble*0.5
	case treble > melody*1.5:
		r, g, bl = bass*0.5, melody, treble*2
	default:
		r, g, bl = bass*1.2, melody*1.5, treble*1.2
	}
	return RGB{
		R: gamma(r, 0.8),
		G: gamma(g, 0.7),
		B: gamma(bl, 0.9),
	}
}

// gamma applies 255 * (v/255)^exp on v clamped to [0, 255].
func gamma(v, exp float64) uint8 {
	ratio := clamp01(v / 255)
	return clip(255 * math.Pow(ratio, exp))
}

func (e *Engine) pulseWaves(b analysis.Bands, s float64) RGB {
	energy := b.Sum() * s
	change := math.Abs(energy - e.state.LastEnergy)
	e.state.LastEnergy = energy

	if change > 5 {
		e.state.PulsePhase = wrapDegrees(e.state.PulsePhase + 30)
	}
	e.state.PulsePhase = wrapDegrees(e.state.PulsePhase + 0.5)

	hue := wrapDegrees(e.state.PulsePhase + b.Low*2)
	sat := math.Min(1, 0.7+b.Mid*0.01)
	val := math.Min(1, 0.3+energy*0.015)
	if change > 10 {
		val = math.Min(1, val*1.5)
	}
	return HSVToRGB(hue, sat, val)
}

func fireEqualizer(b analysis.Bands, s float64) RGB {
	energy := (b.Low*0.5 + b.Mid*0.3 + b.High*0.2) * s
	idx := len(firePalette) - 1
	if t := energy * 0.5; t < float64(idx) {
		idx = int(t)
	}
	base := firePalette[idx]
	flicker := b.High * 20
	return RGB{
		R: clip(float64(base.R) + math.Trunc(flicker)),
		G: clip(float64(base.G) + math.Trunc(flicker*0.5)),
		B: clip(float64(base.B) + math.Trunc(flicker*0.2)),
	}
}
