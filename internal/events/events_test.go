package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutDeliversInOrder(t *testing.T) {
	var a, b Recorder
	f := NewFanout(&a)
	f.Add(&b)

	f.Notify(NewConnected("strip"))
	f.Notify(NewDisconnected())

	for _, r := range []*Recorder{&a, &b} {
		assert.Equal(t, []Kind{Connected, Disconnected}, r.Kinds())
	}
	assert.Equal(t, "strip", a.Events()[0].DeviceID)
}

func TestErrorEvent(t *testing.T) {
	cause := errors.New("boom")
	e := NewError(SourceTransport, cause)
	assert.Equal(t, Error, e.Kind)
	assert.Equal(t, "boom", e.Message)
	assert.ErrorIs(t, e.Err, cause)
	assert.Equal(t, "error[transport](boom)", e.String())
}

func TestEventJSON(t *testing.T) {
	data, err := json.Marshal(NewConnected("strip"))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "event", got["type"])
	assert.Equal(t, "connected", got["kind"])
	assert.Equal(t, "strip", got["device_id"])
	assert.NotContains(t, got, "source")
}

func TestSinkFunc(t *testing.T) {
	var n int
	s := SinkFunc(func(Event) { n++ })
	s.Notify(NewDisconnected())
	Discard.Notify(NewDisconnected())
	assert.Equal(t, 1, n)
}
