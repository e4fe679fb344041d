// Package protocol encodes light operations into ELK-BLEDOM style 9-byte frames.
// Encoders are pure; callers write the payload to Characteristic.
package protocol

import (
	"errors"
	"fmt"

	"lantern/internal/color"

	"github.com/google/uuid"
)

// CharacteristicUUID is the writable characteristic the controller listens on.
const CharacteristicUUID = "0000fff3-0000-1000-8000-00805f9b34fb"

// Characteristic is CharacteristicUUID in parsed form.
var Characteristic = uuid.MustParse(CharacteristicUUID)

const (
	frameStart = 0x7e
	frameEnd   = 0xef
	frameLen   = 9
)

// Frame kinds, third byte of each frame.
const (
	kindBrightness = 0x01
	kindSpeed      = 0x02
	kindEffect     = 0x03
	kindPower      = 0x04
	kindColor      = 0x05
)

var (
	// ErrUnknownMode is returned when a mode has no effect mapping.
	ErrUnknownMode = errors.New("unknown mode")
	// ErrOutOfRange is returned when an operation argument is outside its domain.
	ErrOutOfRange = errors.New("value out of range")
	// ErrUnknownOperation is returned for an operation kind the encoder does not know.
	ErrUnknownOperation = errors.New("unknown operation")
)

// RawOff is the fixed power-off frame, written as-is by the emergency path.
var RawOff = []byte{0x7e, 0x00, 0x04, 0x00, 0x00, 0x00, 0xff, 0x00, 0xef}

// Op identifies an operation kind.
type Op int

const (
	OpTurnOn Op = iota
	OpTurnOff
	OpSetColor
	OpSetBrightness
	OpSetMode
	OpSetEffectSpeed
)

var opNames = [...]string{"turn_on", "turn_off", "set_color", "set_brightness", "set_mode", "set_effect_speed"}

func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return fmt.Sprintf("op(%d)", int(o))
	}
	return opNames[o]
}

// Operation is a semantic device operation. Only the field matching Op is read.
type Operation struct {
	Op    Op
	Color color.RGB
	Value int
	Mode  Mode
}

func (o Operation) String() string {
	switch o.Op {
	case OpSetColor:
		return fmt.Sprintf("%s(%d,%d,%d)", o.Op, o.Color.R, o.Color.G, o.Color.B)
	case OpSetBrightness, OpSetEffectSpeed:
		return fmt.Sprintf("%s(%d)", o.Op, o.Value)
	case OpSetMode:
		return fmt.Sprintf("%s(%s)", o.Op, o.Mode)
	default:
		return o.Op.String()
	}
}

// Operation constructors.

func TurnOn() Operation { return Operation{Op: OpTurnOn} }
func TurnOff() Operation { return Operation{Op: OpTurnOff} }
func SetColor(c color.RGB) Operation { return Operation{Op: OpSetColor, Color: c} }
func SetBrightness(v int) Operation { return Operation{Op: OpSetBrightness, Value: v} }
func SetMode(m Mode) Operation { return Operation{Op: OpSetMode, Mode: m} }
func SetEffectSpeed(speed int) Operation { return Operation{Op: OpSetEffectSpeed, Value: speed} }

// Encode returns the payload for op.
func Encode(op Operation) ([]byte, error) {
	switch op.Op {
	case OpTurnOn:
		return frame(kindPower, 0xf0, 0x00, 0x01, 0xff, 0x00), nil
	case OpTurnOff:
		return frame(kindPower, 0x00, 0x00, 0x00, 0xff, 0x00), nil
	case OpSetColor:
		return frame(kindColor, 0x03, op.Color.R, op.Color.G, op.Color.B, 0x00), nil
	case OpSetBrightness:
		if op.Value < 0 || op.Value > 255 {
			return nil, fmt.Errorf("brightness %d: %w", op.Value, ErrOutOfRange)
		}
		return frame(kindBrightness, uint8(op.Value*100/255), 0x00, 0x00, 0x00, 0x00), nil
	case OpSetMode:
		code, err := op.Mode.Effect()
		if err != nil {
			return nil, err
		}
		return frame(kindEffect, uint8(code), 0x03, 0x00, 0x00, 0x00), nil
	case OpSetEffectSpeed:
		if op.Value < 1 || op.Value > 100 {
			return nil, fmt.Errorf("effect speed %d: %w", op.Value, ErrOutOfRange)
		}
		return frame(kindSpeed, uint8(op.Value), 0x00, 0x00, 0x00, 0x00), nil
	default:
		return nil, fmt.Errorf("%s: %w", op.Op, ErrUnknownOperation)
	}
}

func frame(kind byte, payload ...byte) []byte {
	out := make([]byte, 0, frameLen)
	out = append(out, frameStart, 0x00, kind)
	out = append(out, payload...)
	return append(out, frameEnd)
}
