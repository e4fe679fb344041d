// Package events carries connection outcomes from the dispatch queue to
// whoever is watching: the CLI log, the websocket hub, tests.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	applog "lantern/internal/log"
)

// Kind is the event type.
type Kind string

const (
	Connected    Kind = "connected"
	Disconnected Kind = "disconnected"
	Error        Kind = "error"
)

// Source says which subsystem an error came from so callers can choose
// between re-selecting the audio device and reconnecting the light.
type Source string

const (
	SourceCapture   Source = "capture"
	SourceTransport Source = "transport"
	SourceProtocol  Source = "protocol"
)

// Event is one notification.
type Event struct {
	Kind     Kind      `json:"kind"`
	DeviceID string    `json:"device_id,omitempty"`
	Source   Source    `json:"source,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
	Err      error     `json:"-"`
}

// NewConnected returns a connected event for deviceID.
func NewConnected(deviceID string) Event {
	return Event{Kind: Connected, DeviceID: deviceID, Time: time.Now()}
}

// NewDisconnected returns a disconnected event.
func NewDisconnected() Event {
	return Event{Kind: Disconnected, Time: time.Now()}
}

// NewError returns an error event. err must not be nil.
func NewError(src Source, err error) Event {
	return Event{Kind: Error, Source: src, Message: err.Error(), Err: err, Time: time.Now()}
}

func (e Event) String() string {
	switch e.Kind {
	case Connected:
		return fmt.Sprintf("connected(%s)", e.DeviceID)
	case Error:
		return fmt.Sprintf("error[%s](%s)", e.Source, e.Message)
	default:
		return string(e.Kind)
	}
}

// MarshalJSON adds a type discriminator for websocket clients.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{Type: "event", plain: plain(e)})
}

// Sink receives events. Notify must not block for long; it is called from the
// dispatch consumer.
type Sink interface {
	Notify(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Notify(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Fanout delivers each event to every registered sink in registration order.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout returns a Fanout over sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Add registers s.
func (f *Fanout) Add(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

func (f *Fanout) Notify(e Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.sinks {
		s.Notify(e)
	}
}

// LogSink writes events to the application log.
type LogSink struct{}

func (LogSink) Notify(e Event) {
	switch e.Kind {
	case Error:
		applog.Errorf("Event: %s error: %s", e.Source, e.Message)
	case Connected:
		applog.Infof("Event: Connected to %s", e.DeviceID)
	default:
		applog.Infof("Event: %s", e.Kind)
	}
}

// Recorder keeps every event in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of what has been recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the recorded kinds in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

var (
	_ Sink = (*Fanout)(nil)
	_ Sink = LogSink{}
	_ Sink = (*Recorder)(nil)
)
