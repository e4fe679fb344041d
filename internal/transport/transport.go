// Package transport defines how the controller reaches a light. A Transport
// opens Sessions; a Session writes opaque payloads to characteristics.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrClosed is returned by Session methods after Disconnect.
var ErrClosed = errors.New("session closed")

// Descriptor identifies a device to connect to. Either field may be empty,
// but not both.
type Descriptor struct {
	Address string `json:"address,omitempty"`
	Name    string `json:"name,omitempty"`
}

// ID is the name used for the device in events: the name if known, otherwise the address.
func (d Descriptor) ID() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Address
}

func (d Descriptor) String() string {
	if d.Name != "" && d.Address != "" {
		return fmt.Sprintf("%s (%s)", d.Name, d.Address)
	}
	return d.ID()
}

// Transport opens sessions. Implementations must be safe for concurrent use.
type Transport interface {
	Connect(ctx context.Context, d Descriptor) (Session, error)
}

// Session is one open connection to a device. Callers serialize access.
type Session interface {
	// ID returns the device identifier reported in connected events.
	ID() string
	// Write sends payload to the characteristic.
	Write(ctx context.Context, char uuid.UUID, payload []byte) error
	// Characteristics lists the writable characteristics of the device.
	Characteristics(ctx context.Context) ([]uuid.UUID, error)
	// Disconnect closes the session. Further calls return ErrClosed.
	Disconnect(ctx context.Context) error
}

// Scanner discovers nearby devices.
type Scanner interface {
	Scan(ctx context.Context) ([]Descriptor, error)
}

// Error is a failed transport operation.
type Error struct {
	Op     string // connect, write, disconnect, discover
	Device string
	Err    error
}

func (e *Error) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Device, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns err as an *Error unless it is nil or already one.
func Wrap(op, device string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Op: op, Device: device, Err: err}
}
