package testutil

import (
	"context"
	"errors"
	"sync"

	"lantern/internal/transport"

	"github.com/google/uuid"
)

// Write is one payload a FakeTransport session received.
type Write struct {
	Session string
	Char    uuid.UUID
	Payload []byte
}

// FakeTransport is an in-memory transport that records everything it is asked
// to do. Failure hooks may be set before or during a test.
type FakeTransport struct {
	mu sync.Mutex

	// ConnectErr, if set, is returned by Connect.
	ConnectErr error
	// WriteErr, if set, decides the result of each write.
	WriteErr func(char uuid.UUID, payload []byte) error
	// DisconnectErr, if set, is returned by Disconnect after the session closes.
	DisconnectErr error
	// CharsErr, if set, is returned by Characteristics.
	CharsErr error
	// Chars are reported by every session.
	Chars []uuid.UUID
	// BeforeWrite, if set, runs before each write without the transport lock held.
	BeforeWrite func(ctx context.Context, char uuid.UUID, payload []byte)
	// SerializeWrites makes each session hold one lock across Write, hooks
	// included, and across Characteristics, as a radio with a single link does.
	SerializeWrites bool

	connects    []transport.Descriptor
	writes      []Write
	disconnects int
	open        int
}

// Connect opens a fake session named after d.
func (f *FakeTransport) Connect(ctx context.Context, d transport.Descriptor) (transport.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, d)
	if err := ctx.Err(); err != nil {
		return nil, transport.Wrap("connect", d.ID(), err)
	}
	if f.ConnectErr != nil {
		return nil, transport.Wrap("connect", d.ID(), f.ConnectErr)
	}
	f.open++
	return &fakeSession{t: f, id: d.ID()}, nil
}

// Connects returns every descriptor passed to Connect.
func (f *FakeTransport) Connects() []transport.Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Descriptor(nil), f.connects...)
}

// Writes returns every write attempted, successful or not.
func (f *FakeTransport) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// Disconnects returns how many sessions were closed.
func (f *FakeTransport) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// Open returns how many sessions are open.
func (f *FakeTransport) Open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// SetWriteErr replaces the write hook.
func (f *FakeTransport) SetWriteErr(fn func(uuid.UUID, []byte) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WriteErr = fn
}

// SetBeforeWrite replaces the pre-write hook.
func (f *FakeTransport) SetBeforeWrite(fn func(context.Context, uuid.UUID, []byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BeforeWrite = fn
}

type fakeSession struct {
	t      *FakeTransport
	id     string
	closed bool

	link sync.Mutex // held across device calls when SerializeWrites is set
}

func (s *fakeSession) lockLink() func() {
	s.t.mu.Lock()
	serialize := s.t.SerializeWrites
	s.t.mu.Unlock()
	if !serialize {
		return func() {}
	}
	s.link.Lock()
	return s.link.Unlock
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Write(ctx context.Context, char uuid.UUID, payload []byte) error {
	defer s.lockLink()()

	s.t.mu.Lock()
	before := s.t.BeforeWrite
	s.t.mu.Unlock()
	if before != nil {
		before(ctx, char, payload)
	}

	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if s.closed {
		return transport.Wrap("write", s.id, transport.ErrClosed)
	}
	s.t.writes = append(s.t.writes, Write{Session: s.id, Char: char, Payload: append([]byte(nil), payload...)})
	if err := ctx.Err(); err != nil {
		return transport.Wrap("write", s.id, err)
	}
	if s.t.WriteErr != nil {
		if err := s.t.WriteErr(char, payload); err != nil {
			return transport.Wrap("write", s.id, err)
		}
	}
	return nil
}

func (s *fakeSession) Characteristics(context.Context) ([]uuid.UUID, error) {
	defer s.lockLink()()

	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if s.t.CharsErr != nil {
		return nil, s.t.CharsErr
	}
	return append([]uuid.UUID(nil), s.t.Chars...), nil
}

func (s *fakeSession) Disconnect(context.Context) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if s.closed {
		return transport.Wrap("disconnect", s.id, transport.ErrClosed)
	}
	s.closed = true
	s.t.open--
	s.t.disconnects++
	return s.t.DisconnectErr
}

// ErrInjected is a generic failure for hooks.
var ErrInjected = errors.New("injected failure")

var _ transport.Transport = (*FakeTransport)(nil)
