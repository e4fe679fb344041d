// Package ble connects to lights over Bluetooth Low Energy.
package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	applog "lantern/internal/log"
	"lantern/internal/transport"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

// ErrNotFound is returned when a scan ends without seeing the requested device.
var ErrNotFound = errors.New("device not found")

// Transport talks to lights through the host Bluetooth adapter.
type Transport struct {
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error

	// scanMu serializes scans; the adapter supports one at a time.
	scanMu sync.Mutex
}

// NewTransport wraps the default host adapter.
func NewTransport() *Transport {
	return &Transport{adapter: bluetooth.DefaultAdapter}
}

func (t *Transport) enable() error {
	t.enableOnce.Do(func() {
		applog.Infof("BLE: Enabling adapter")
		t.enableErr = t.adapter.Enable()
	})
	return t.enableErr
}

// Scan collects advertising devices until ctx is done.
func (t *Transport) Scan(ctx context.Context) ([]transport.Descriptor, error) {
	if err := t.enable(); err != nil {
		return nil, transport.Wrap("scan", "", err)
	}

	var (
		mu   sync.Mutex
		seen = map[string]transport.Descriptor{}
		list []transport.Descriptor
	)
	err := t.scan(ctx, func(r bluetooth.ScanResult) bool {
		d := transport.Descriptor{Address: r.Address.String(), Name: r.LocalName()}
		mu.Lock()
		defer mu.Unlock()
		if _, ok := seen[d.Address]; !ok {
			seen[d.Address] = d
			list = append(list, d)
		}
		return false
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, transport.Wrap("scan", "", err)
	}
	mu.Lock()
	defer mu.Unlock()
	return list, nil
}

// scan runs the adapter scan until match returns true or ctx is done.
func (t *Transport) scan(ctx context.Context, match func(bluetooth.ScanResult) bool) error {
	t.scanMu.Lock()
	defer t.scanMu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- t.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			if match(r) {
				if err := a.StopScan(); err != nil {
					applog.Warnf("BLE: StopScan failed: %v", err)
				}
			}
		})
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if err := t.adapter.StopScan(); err != nil {
			applog.Warnf("BLE: StopScan failed: %v", err)
		}
		<-done
		return ctx.Err()
	}
}

// Connect finds d by address or name and opens a GATT connection.
func (t *Transport) Connect(ctx context.Context, d transport.Descriptor) (transport.Session, error) {
	if d.Address == "" && d.Name == "" {
		return nil, transport.Wrap("connect", "", errors.New("descriptor has neither address nor name"))
	}
	if err := t.enable(); err != nil {
		return nil, transport.Wrap("connect", d.ID(), err)
	}

	var (
		mu    sync.Mutex
		found *bluetooth.ScanResult
	)
	err := t.scan(ctx, func(r bluetooth.ScanResult) bool {
		if !matches(d, r.Address.String(), r.LocalName()) {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		if found == nil {
			found = &r
		}
		return true
	})
	mu.Lock()
	result := found
	mu.Unlock()
	if result == nil {
		if err == nil {
			err = ErrNotFound
		}
		return nil, transport.Wrap("connect", d.ID(), fmt.Errorf("%w: %v", ErrNotFound, err))
	}

	type connected struct {
		dev bluetooth.Device
		err error
	}
	ch := make(chan connected, 1)
	go func() {
		dev, err := t.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
		ch <- connected{dev, err}
	}()

	var c connected
	select {
	case c = <-ch:
	case <-ctx.Done():
		// Release the device if the connect lands after we gave up.
		go func() {
			if late := <-ch; late.err == nil {
				_ = late.dev.Disconnect()
			}
		}()
		return nil, transport.Wrap("connect", d.ID(), ctx.Err())
	}
	if c.err != nil {
		return nil, transport.Wrap("connect", d.ID(), c.err)
	}

	id := d.Name
	if id == "" {
		id = result.LocalName()
	}
	if id == "" {
		id = result.Address.String()
	}
	applog.Infof("BLE: Connected to %s (%s)", id, result.Address.String())
	return &session{id: id, dev: c.dev}, nil
}

// matches compares the address exactly (case-insensitive) when one is given,
// otherwise looks for d.Name as a case-insensitive substring of the advertised name.
func matches(d transport.Descriptor, address, name string) bool {
	if d.Address != "" {
		return strings.EqualFold(d.Address, address)
	}
	want := strings.ToLower(strings.TrimSpace(d.Name))
	return want != "" && strings.Contains(strings.ToLower(name), want)
}

type session struct {
	id  string
	dev bluetooth.Device

	mu     sync.Mutex
	closed bool
	chars  map[uuid.UUID]bluetooth.DeviceCharacteristic
	order  []uuid.UUID
}

func (s *session) ID() string { return s.id }

// discover caches every characteristic of every service. Caller holds mu.
func (s *session) discover() error {
	if s.chars != nil {
		return nil
	}
	services, err := s.dev.DiscoverServices(nil)
	if err != nil {
		return err
	}
	chars := make(map[uuid.UUID]bluetooth.DeviceCharacteristic)
	var order []uuid.UUID
	for _, svc := range services {
		list, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			applog.Debugf("BLE: Skipping service %s: %v", svc.UUID().String(), err)
			continue
		}
		for _, c := range list {
			id, err := uuid.Parse(c.UUID().String())
			if err != nil {
				continue
			}
			if _, dup := chars[id]; !dup {
				order = append(order, id)
			}
			chars[id] = c
		}
	}
	s.chars = chars
	s.order = order
	return nil
}

// Write sends payload without response. The tinygo API is synchronous, so ctx is
// only checked before the write. The session lock covers the lookup but not the
// radio call, so a slow write does not block an emergency write behind it.
func (s *session) Write(ctx context.Context, char uuid.UUID, payload []byte) error {
	c, err := s.characteristic(ctx, char)
	if err != nil {
		return err
	}
	if _, err := c.WriteWithoutResponse(payload); err != nil {
		return transport.Wrap("write", s.id, err)
	}
	return nil
}

func (s *session) characteristic(ctx context.Context, char uuid.UUID) (bluetooth.DeviceCharacteristic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bluetooth.DeviceCharacteristic{}, transport.Wrap("write", s.id, transport.ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return bluetooth.DeviceCharacteristic{}, transport.Wrap("write", s.id, err)
	}
	if err := s.discover(); err != nil {
		return bluetooth.DeviceCharacteristic{}, transport.Wrap("discover", s.id, err)
	}
	c, ok := s.chars[char]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, transport.Wrap("write", s.id, fmt.Errorf("characteristic %s not present", char))
	}
	return c, nil
}

func (s *session) Characteristics(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, transport.Wrap("discover", s.id, transport.ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, transport.Wrap("discover", s.id, err)
	}
	if err := s.discover(); err != nil {
		return nil, transport.Wrap("discover", s.id, err)
	}
	return append([]uuid.UUID(nil), s.order...), nil
}

func (s *session) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transport.Wrap("disconnect", s.id, transport.ErrClosed)
	}
	s.closed = true
	applog.Infof("BLE: Disconnecting from %s", s.id)
	return transport.Wrap("disconnect", s.id, s.dev.Disconnect())
}

var (
	_ transport.Transport = (*Transport)(nil)
	_ transport.Scanner   = (*Transport)(nil)
)
