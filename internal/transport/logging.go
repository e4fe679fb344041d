package transport

import (
	"context"
	"encoding/hex"
	"sync"

	applog "lantern/internal/log"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LoggingTransport is a dry-run transport: every session logs its payloads
// instead of sending them anywhere.
type LoggingTransport struct {
	chars []uuid.UUID
}

// NewLoggingTransport creates a LoggingTransport whose sessions report chars
// as their writable characteristics.
func NewLoggingTransport(chars ...uuid.UUID) *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{chars: chars}
}

// Connect always succeeds.
func (lt *LoggingTransport) Connect(_ context.Context, d Descriptor) (Session, error) {
	id := d.ID()
	if id == "" {
		id = "dry-run"
	}
	s := &loggingSession{
		id:    id,
		chars: lt.chars,
		log:   applog.Component("transport").With().Str("device", id).Logger(),
	}
	s.log.Info().Msg("connected")
	return s, nil
}

type loggingSession struct {
	id    string
	chars []uuid.UUID
	log   zerolog.Logger

	mu     sync.Mutex
	closed bool
	writes int
}

func (s *loggingSession) ID() string { return s.id }

func (s *loggingSession) Write(_ context.Context, char uuid.UUID, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Wrap("write", s.id, ErrClosed)
	}
	s.writes++
	s.log.Debug().
		Str("char", char.String()).
		Str("payload", hex.EncodeToString(payload)).
		Int("seq", s.writes).
		Msg("write")
	return nil
}

func (s *loggingSession) Characteristics(context.Context) ([]uuid.UUID, error) {
	return append([]uuid.UUID(nil), s.chars...), nil
}

func (s *loggingSession) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Wrap("disconnect", s.id, ErrClosed)
	}
	s.closed = true
	s.log.Info().Int("writes", s.writes).Msg("disconnected")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
