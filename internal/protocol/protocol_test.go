package protocol

import (
	"errors"
	"testing"

	"lantern/internal/color"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		want []byte
	}{
		{"turn on", TurnOn(), []byte{0x7e, 0x00, 0x04, 0xf0, 0x00, 0x01, 0xff, 0x00, 0xef}},
		{"turn off", TurnOff(), []byte{0x7e, 0x00, 0x04, 0x00, 0x00, 0x00, 0xff, 0x00, 0xef}},
		{"colour", SetColor(color.RGB{R: 10, G: 20, B: 30}), []byte{0x7e, 0x00, 0x05, 0x03, 10, 20, 30, 0x00, 0xef}},
		{"full brightness", SetBrightness(255), []byte{0x7e, 0x00, 0x01, 100, 0x00, 0x00, 0x00, 0x00, 0xef}},
		{"half brightness", SetBrightness(128), []byte{0x7e, 0x00, 0x01, 50, 0x00, 0x00, 0x00, 0x00, 0xef}},
		{"static mode", SetMode(ModeStatic), []byte{0x7e, 0x00, 0x03, 0x91, 0x03, 0x00, 0x00, 0x00, 0xef}},
		{"rainbow mode", SetMode(ModeRainbow), []byte{0x7e, 0x00, 0x03, 0x88, 0x03, 0x00, 0x00, 0x00, 0xef}},
		{"effect speed", SetEffectSpeed(42), []byte{0x7e, 0x00, 0x02, 42, 0x00, 0x00, 0x00, 0x00, 0xef}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, frameLen)
		})
	}
}

func TestEncodeTurnOffMatchesRawOff(t *testing.T) {
	got, err := Encode(TurnOff())
	require.NoError(t, err)
	assert.Equal(t, RawOff, got)
}

func TestEncodeRejects(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		want error
	}{
		{"negative brightness", SetBrightness(-1), ErrOutOfRange},
		{"brightness above 255", SetBrightness(256), ErrOutOfRange},
		{"zero speed", SetEffectSpeed(0), ErrOutOfRange},
		{"speed above 100", SetEffectSpeed(101), ErrOutOfRange},
		{"unmapped mode", SetMode(Mode(42)), ErrUnknownMode},
		{"unknown op", Operation{Op: Op(99)}, ErrUnknownOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Encode(tt.op)
			assert.Nil(t, payload)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestModeTable(t *testing.T) {
	want := map[Mode]Effect{
		ModeStatic:    0x91,
		ModeCrossfade: 0x8a,
		ModeBlink:     0x95,
		ModeRainbow:   0x88,
		ModeStrobe:    0x9c,
		ModeWave:      0x89,
		ModeMusic:     0x89,
	}
	for _, m := range Modes() {
		t.Run(m.String(), func(t *testing.T) {
			got, err := m.Effect()
			require.NoError(t, err)
			assert.Equal(t, want[m], got)

			parsed, err := ParseMode(m.String())
			require.NoError(t, err)
			assert.Equal(t, m, parsed)
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("  Strobe ")
	require.NoError(t, err)
	assert.Equal(t, ModeStrobe, m)

	_, err = ParseMode("disco")
	assert.ErrorIs(t, err, ErrUnknownMode)

	var text Mode
	require.NoError(t, text.UnmarshalText([]byte("wave")))
	assert.Equal(t, ModeWave, text)
	assert.Error(t, text.UnmarshalText([]byte("nope")))
}

func TestCharacteristic(t *testing.T) {
	assert.Equal(t, CharacteristicUUID, Characteristic.String())
}

func TestOperationString(t *testing.T) {
	assert.Equal(t, "set_color(1,2,3)", SetColor(color.RGB{R: 1, G: 2, B: 3}).String())
	assert.Equal(t, "set_mode(music)", SetMode(ModeMusic).String())
	assert.Equal(t, "set_brightness(7)", SetBrightness(7).String())
	assert.Equal(t, "turn_on", TurnOn().String())
}
