package color

import (
	"math"
	"testing"
	"time"

	"lantern/internal/analysis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHSVToRGB(t *testing.T) {
	tests := []struct {
		name    string
		h, s, v float64
		want    RGB
	}{
		{"red", 0, 1, 1, RGB{255, 0, 0}},
		{"yellow", 60, 1, 1, RGB{255, 255, 0}},
		{"green", 120, 1, 1, RGB{0, 255, 0}},
		{"blue", 240, 1, 1, RGB{0, 0, 255}},
		{"hue wraps at 360", 360, 1, 1, RGB{255, 0, 0}},
		{"negative hue wraps", -120, 1, 1, RGB{0, 0, 255}},
		{"white", 0, 0, 1, RGB{255, 255, 255}},
		{"half grey truncates", 0, 0, 0.5, RGB{127, 127, 127}},
		{"value clamped", 0, 1, 2, RGB{255, 0, 0}},
		{"saturation clamped", 0, -1, 1, RGB{255, 255, 255}},
		{"black", 200, 1, 0, RGB{0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HSVToRGB(tt.h, tt.s, tt.v))
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"frequency-rgb", FrequencyRGB, false},
		{"ENERGY", EnergyBased, false},
		{" spectrum ", MusicSpectrum, false},
		{"pulse", PulseWaves, false},
		{"fire", FireEqualizer, false},
		{"disco", EnergyBased, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	for _, alg := range Algorithms() {
		parsed, err := ParseAlgorithm(alg.String())
		require.NoError(t, err)
		assert.Equal(t, alg, parsed)
	}
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#0a141e")
	require.NoError(t, err)
	assert.Equal(t, RGB{10, 20, 30}, c)
	assert.Equal(t, "#0a141e", c.String())

	_, err = ParseHex("12345")
	assert.Error(t, err)
	_, err = ParseHex("zzzzzz")
	assert.Error(t, err)
}

func TestSensitivityIsClamped(t *testing.T) {
	assert.Equal(t, 0.2, gain(0))
	assert.Equal(t, 1.0, gain(50))
	assert.Equal(t, 2.0, gain(500))
}

func TestFrequencyRGB(t *testing.T) {
	t.Run("silence stays black", func(t *testing.T) {
		assert.Equal(t, RGB{}, frequencyRGB(analysis.Bands{}, 1))
	})
	t.Run("bright frame is not boosted", func(t *testing.T) {
		assert.Equal(t, RGB{150, 0, 0}, frequencyRGB(analysis.Bands{Low: 10}, 1))
	})
	t.Run("dim frame is boosted to 200", func(t *testing.T) {
		got := frequencyRGB(analysis.Bands{Low: 4, Mid: 2.5}, 1)
		assert.InDelta(t, 200, int(got.R), 1)
		assert.InDelta(t, 100, int(got.G), 1)
		assert.Zero(t, got.B)
	})
	t.Run("loud frame saturates", func(t *testing.T) {
		assert.Equal(t, RGB{255, 255, 255}, frequencyRGB(analysis.Bands{Low: 1e6, Mid: 1e6, High: 1e6}, 2))
	})
}

func TestEnergyBasedHuePhase(t *testing.T) {
	tests := []struct {
		name  string
		bands analysis.Bands
		calls int
	}{
		{"slow", analysis.Bands{Low: 1, Mid: 1, High: 1}, 10},
		{"wrapping", analysis.Bands{Low: 100, Mid: 50, High: 50}, 25},
		{"silence", analysis.Bands{}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine()
			for i := 0; i < tt.calls; i++ {
				e.Raw(tt.bands, 50, EnergyBased)
			}
			energy := tt.bands.Sum()
			want := math.Mod(float64(tt.calls)*energy*0.1, 360)
			assert.InDelta(t, want, e.State().HuePhase, 1e-6)
		})
	}
}

func TestEnergyBasedDominantBand(t *testing.T) {
	// Low dominates so the base hue is 0 and only the phase moves it.
	e := NewEngine()
	bands := analysis.Bands{Low: 70, Mid: 5, High: 5}
	got := e.Raw(bands, 50, EnergyBased)
	energy := bands.Sum()
	assert.Equal(t, HSVToRGB(energy*0.1, 1, energy*0.01), got)
}

func TestMusicSpectrum(t *testing.T) {
	t.Run("silence", func(t *testing.T) {
		assert.Equal(t, RGB{}, musicSpectrum(analysis.Bands{}, 1))
	})
	t.Run("bass heavy is red only", func(t *testing.T) {
		got := musicSpectrum(analysis.Bands{Low: 1}, 1)
		assert.Positive(t, got.R)
		assert.Zero(t, got.G)
		assert.Zero(t, got.B)
	})
	t.Run("treble heavy favours blue", func(t *testing.T) {
		got := musicSpectrum(analysis.Bands{High: 5}, 1)
		assert.Zero(t, got.R)
		assert.Zero(t, got.G)
		assert.Equal(t, uint8(255*math.Pow(100.0/255, 0.9)), got.B)
	})
	t.Run("balanced saturates", func(t *testing.T) {
		assert.Equal(t, RGB{255, 255, 255}, musicSpectrum(analysis.Bands{Low: 100, Mid: 100, High: 100}, 1))
	})
}

func TestPulseWaves(t *testing.T) {
	e := NewEngine()
	bands := analysis.Bands{Low: 4, Mid: 3, High: 3}

	e.Raw(bands, 50, PulseWaves)
	assert.InDelta(t, 30.5, e.State().PulsePhase, 1e-9, "energy jump of 10 advances the pulse by 30")
	assert.InDelta(t, 10, e.State().LastEnergy, 1e-9)

	e.Raw(bands, 50, PulseWaves)
	assert.InDelta(t, 31, e.State().PulsePhase, 1e-9, "steady energy only drifts by 0.5")

	for i := 0; i < 1000; i++ {
		e.Raw(bands, 50, PulseWaves)
	}
	assert.GreaterOrEqual(t, e.State().PulsePhase, 0.0)
	assert.Less(t, e.State().PulsePhase, 360.0)
}

func TestFireEqualizer(t *testing.T) {
	t.Run("hottest palette entry", func(t *testing.T) {
		assert.Equal(t, RGB{255, 150, 50}, fireEqualizer(analysis.Bands{Low: 100}, 1))
	})
	t.Run("coolest palette entry", func(t *testing.T) {
		assert.Equal(t, RGB{20, 0, 0}, fireEqualizer(analysis.Bands{Low: 2}, 1))
	})
	t.Run("flicker is monotonic in high within one palette index", func(t *testing.T) {
		base := firePalette[0]
		var prev RGB
		for i, high := range []float64{0, 1, 2, 3, 4} {
			got := fireEqualizer(analysis.Bands{High: high}, 1)
			flicker := high * 20
			assert.Equal(t, RGB{
				R: base.R + uint8(flicker),
				G: base.G + uint8(flicker*0.5),
				B: base.B + uint8(flicker*0.2),
			}, got)
			if i > 0 {
				assert.GreaterOrEqual(t, got.R, prev.R)
				assert.GreaterOrEqual(t, got.G, prev.G)
				assert.GreaterOrEqual(t, got.B, prev.B)
			}
			prev = got
		}
	})
}

func TestEveryAlgorithmStaysInRange(t *testing.T) {
	inputs := []analysis.Bands{
		{},
		{Low: 0.001, Mid: 0.001, High: 0.001},
		{Low: 3, Mid: 1, High: 0.5},
		{Low: 1e9, Mid: 0, High: 0},
		{Low: 0, Mid: 1e9, High: 1e9},
	}
	for _, alg := range Algorithms() {
		t.Run(alg.String(), func(t *testing.T) {
			e := NewEngine()
			for _, sens := range []int{MinSensitivity, 50, MaxSensitivity} {
				for _, b := range inputs {
					assert.NotPanics(t, func() { e.Map(b, sens, alg) })
				}
			}
			st := e.State()
			assert.False(t, math.IsNaN(st.HuePhase))
			assert.False(t, math.IsNaN(st.PulsePhase))
		})
	}
}

func TestMapSmoothsOutput(t *testing.T) {
	e := NewEngine()
	assert.Equal(t, RGB{150, 0, 0}, e.Map(analysis.Bands{Low: 10}, 50, FrequencyRGB))
	assert.Equal(t, RGB{75, 0, 0}, e.Map(analysis.Bands{}, 50, FrequencyRGB))
}

func TestSmoother(t *testing.T) {
	var s Smoother
	assert.Equal(t, RGB{30, 0, 0}, s.Push(RGB{30, 0, 0}))
	assert.Equal(t, RGB{15, 15, 0}, s.Push(RGB{0, 30, 0}))
	assert.Equal(t, RGB{10, 10, 10}, s.Push(RGB{0, 0, 31}))
	assert.Equal(t, RGB{30, 40, 40}, s.Push(RGB{90, 90, 90}), "oldest colour is dropped first")

	s.Reset()
	assert.Equal(t, RGB{1, 2, 3}, s.Push(RGB{1, 2, 3}))
}

func TestRateLimiter(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("t0, +10ms, +60ms", func(t *testing.T) {
		l := NewRateLimiter(50 * time.Millisecond)
		assert.True(t, l.Allow(t0))
		assert.False(t, l.Allow(t0.Add(10*time.Millisecond)))
		assert.True(t, l.Allow(t0.Add(60*time.Millisecond)))
	})

	t.Run("interval is strict", func(t *testing.T) {
		l := NewRateLimiter(50 * time.Millisecond)
		assert.True(t, l.Allow(t0))
		assert.False(t, l.Allow(t0.Add(50*time.Millisecond)))
		assert.True(t, l.Allow(t0.Add(51*time.Millisecond)))
	})
}

func TestMapHotPath(t *testing.T) {
	e := NewEngine()
	b := analysis.Bands{Low: 3, Mid: 2, High: 1}
	allocs := testing.AllocsPerRun(100, func() {
		for _, alg := range Algorithms() {
			e.Map(b, 50, alg)
		}
	})
	// Algorithms() builds one slice per run.
	assert.LessOrEqual(t, allocs, 1.0)
}
