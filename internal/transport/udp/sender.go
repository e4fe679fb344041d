// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	applog "lantern/internal/log"
	"lantern/internal/transport"

	"github.com/google/uuid"
)

// UDPSender handles sending data packets over UDP.
type UDPSender struct {
	conn   *net.UDPConn
	mu     sync.Mutex // Protects conn during Close
	closed bool
}

// NewUDPSender creates a new UDPSender targeting the specified address.
// The address should be in the format "host:port", e.g., "127.0.0.1:9090".
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}

	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}

	applog.Infof("UDP Sender: Connection established to %s", conn.RemoteAddr().String())
	return &UDPSender{conn: conn}, nil
}

// Send transmits the given byte slice as a UDP packet. The deadline bounds the write.
func (s *UDPSender) Send(data []byte, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transport.ErrClosed
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if _, err := s.conn.Write(data); err != nil {
		applog.Debugf("UDP Sender: Error sending packet: %v", err)
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	return nil
}

// Close closes the underlying UDP connection. Safe to call more than once.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	applog.Infof("UDP Sender: Closing connection to %s", s.conn.RemoteAddr().String())
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}

const defaultWriteTimeout = 2 * time.Second

// Transport reaches a light through a UDP-to-BLE bridge.
type Transport struct {
	target       string
	writeTimeout time.Duration
	chars        []uuid.UUID
}

// NewTransport returns a Transport that sends to target ("host:port") when the
// descriptor carries no address of its own. chars are reported as the
// session's writable characteristics.
func NewTransport(target string, writeTimeout time.Duration, chars ...uuid.UUID) *Transport {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Transport{target: target, writeTimeout: writeTimeout, chars: chars}
}

// Connect dials the bridge. UDP is connectionless, so this only fails on
// resolution or socket errors.
func (t *Transport) Connect(ctx context.Context, d transport.Descriptor) (transport.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, transport.Wrap("connect", d.ID(), err)
	}
	target := t.target
	if d.Address != "" {
		target = d.Address
	}
	sender, err := NewUDPSender(target)
	if err != nil {
		return nil, transport.Wrap("connect", d.ID(), err)
	}
	id := d.ID()
	if id == "" {
		id = target
	}
	return &session{id: id, sender: sender, writeTimeout: t.writeTimeout, chars: t.chars}, nil
}

type session struct {
	id           string
	sender       *UDPSender
	writeTimeout time.Duration
	chars        []uuid.UUID

	mu          sync.Mutex
	closed      bool
	sequenceNum uint32
	buf         bytes.Buffer
}

func (s *session) ID() string { return s.id }

func (s *session) Write(ctx context.Context, char uuid.UUID, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transport.Wrap("write", s.id, transport.ErrClosed)
	}

	s.sequenceNum++
	s.buf.Reset()
	p := Packet{Sequence: s.sequenceNum, Timestamp: time.Now(), Characteristic: char, Payload: payload}
	if err := p.AppendTo(&s.buf); err != nil {
		return transport.Wrap("write", s.id, err)
	}

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.sender.Send(s.buf.Bytes(), deadline); err != nil {
		return transport.Wrap("write", s.id, err)
	}
	applog.Debugf("UDP Sender: Sent packet %d (%d bytes)", s.sequenceNum, s.buf.Len())
	return nil
}

func (s *session) Characteristics(context.Context) ([]uuid.UUID, error) {
	return append([]uuid.UUID(nil), s.chars...), nil
}

func (s *session) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transport.Wrap("disconnect", s.id, transport.ErrClosed)
	}
	s.closed = true
	return transport.Wrap("disconnect", s.id, s.sender.Close())
}

var _ transport.Transport = (*Transport)(nil)
