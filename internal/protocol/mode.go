package protocol

import (
	"fmt"
	"strings"
)

// Mode is a user-facing light mode.
type Mode int

const (
	ModeStatic Mode = iota
	ModeCrossfade
	ModeBlink
	ModeRainbow
	ModeStrobe
	ModeWave
	ModeMusic
)

// Effect is a controller built-in effect program.
type Effect byte

const (
	JumpRGB            Effect = 0x87
	JumpRGBYCMW        Effect = 0x88
	CrossfadeRGB       Effect = 0x89
	CrossfadeRGBYCMW   Effect = 0x8a
	CrossfadeRed       Effect = 0x8b
	CrossfadeGreen     Effect = 0x8c
	CrossfadeBlue      Effect = 0x8d
	CrossfadeYellow    Effect = 0x8e
	CrossfadeCyan      Effect = 0x8f
	CrossfadeMagenta   Effect = 0x90
	CrossfadeWhite     Effect = 0x91
	CrossfadeRedGreen  Effect = 0x92
	CrossfadeRedBlue   Effect = 0x93
	CrossfadeGreenBlue Effect = 0x94
	BlinkRGBYCMW       Effect = 0x95
	BlinkRed           Effect = 0x96
	BlinkGreen         Effect = 0x97
	BlinkBlue          Effect = 0x98
	BlinkYellow        Effect = 0x99
	BlinkCyan          Effect = 0x9a
	BlinkMagenta       Effect = 0x9b
	BlinkWhite         Effect = 0x9c
)

var modeNames = [...]string{"static", "crossfade", "blink", "rainbow", "strobe", "wave", "music"}

// modeEffects is the only place modes meet effect codes.
var modeEffects = map[Mode]Effect{
	ModeStatic:    CrossfadeWhite,
	ModeCrossfade: CrossfadeRGBYCMW,
	ModeBlink:     BlinkRGBYCMW,
	ModeRainbow:   JumpRGBYCMW,
	ModeStrobe:    BlinkWhite,
	ModeWave:      CrossfadeRGB,
	ModeMusic:     CrossfadeRGB,
}

// Modes lists every mode in declaration order.
func Modes() []Mode {
	out := make([]Mode, len(modeNames))
	for i := range out {
		out[i] = Mode(i)
	}
	return out
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// Effect returns the effect code for m, or ErrUnknownMode.
func (m Mode) Effect() (Effect, error) {
	e, ok := modeEffects[m]
	if !ok {
		return 0, fmt.Errorf("%s: %w", m, ErrUnknownMode)
	}
	return e, nil
}

// ParseMode converts a mode name (case-insensitive) to a Mode.
func ParseMode(name string) (Mode, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range modeNames {
		if s == n {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownMode)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
