package color

import (
	"fmt"
	"strings"
)

// Algorithm selects how band energy is turned into a colour.
type Algorithm int

// Enum for available mapping algorithms.
const (
	FrequencyRGB Algorithm = iota
	EnergyBased
	MusicSpectrum
	PulseWaves
	FireEqualizer
)

var algorithmNames = map[Algorithm]string{
	FrequencyRGB:  "frequency-rgb",
	EnergyBased:   "energy",
	MusicSpectrum: "spectrum",
	PulseWaves:    "pulse",
	FireEqualizer: "fire",
}

// Algorithms lists every algorithm in declaration order.
func Algorithms() []Algorithm {
	return []Algorithm{FrequencyRGB, EnergyBased, MusicSpectrum, PulseWaves, FireEqualizer}
}

// String returns the configuration name of the algorithm.
func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return "unknown"
}

// ParseAlgorithm converts a configuration name (case-insensitive) to an Algorithm,
// returns EnergyBased and an error if the name is unknown.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "frequency-rgb", "frequency", "rgb":
		return FrequencyRGB, nil
	case "energy", "vibe":
		return EnergyBased, nil
	case "spectrum", "music-spectrum":
		return MusicSpectrum, nil
	case "pulse", "pulse-waves":
		return PulseWaves, nil
	case "fire", "fire-equalizer":
		return FireEqualizer, nil
	default:
		return EnergyBased, fmt.Errorf("unknown colour algorithm: '%s'", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
