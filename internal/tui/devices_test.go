package tui

import (
	"testing"

	"lantern/internal/audio"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDevices = []audio.Device{
	{Index: 0, Name: "Speakers", MaxOutputChannels: 2},
	{Index: 1, Name: "Microphone", MaxInputChannels: 1},
	{Index: 2, Name: "HDMI Out", MaxOutputChannels: 2},
	{Index: 3, Name: "Stereo Mix", MaxInputChannels: 2},
}

func send(t *testing.T, m PickerModel, msgs ...tea.Msg) PickerModel {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(PickerModel)
		require.True(t, ok)
	}
	return m
}

func TestPickerStartsOnLoopback(t *testing.T) {
	m := NewPickerModel(testDevices)
	assert.Equal(t, 3, m.selected)

	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	d, ok := m.Choice()
	require.True(t, ok)
	assert.Equal(t, "Stereo Mix", d.Name)
}

func TestPickerSkipsOutputOnlyDevices(t *testing.T) {
	m := NewPickerModel(testDevices)

	m = send(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 1, m.selected)
	m = send(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 1, m.selected, "no input device above")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 3, m.selected)

	m = send(t, m, tea.KeyMsg{Type: tea.KeyUp}, tea.KeyMsg{Type: tea.KeyEnter})
	d, ok := m.Choice()
	require.True(t, ok)
	assert.Equal(t, "Microphone", d.Name)
}

func TestPickerQuitHasNoChoice(t *testing.T) {
	m := send(t, NewPickerModel(testDevices), tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	_, ok := m.Choice()
	assert.False(t, ok)
}

func TestPickerWithoutInputs(t *testing.T) {
	m := NewPickerModel(testDevices[:1])
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	_, ok := m.Choice()
	assert.False(t, ok)
}

func TestPickerView(t *testing.T) {
	m := NewPickerModel(testDevices)
	assert.Equal(t, "Initializing...", m.View())

	m = send(t, m, tea.WindowSizeMsg{Width: 80, Height: 30}, tea.KeyMsg{Type: tea.KeyDown})
	view := m.View()
	assert.Contains(t, view, "Capture Device")
	assert.Contains(t, view, "Stereo Mix [loopback]")

	empty := send(t, NewPickerModel(nil), tea.WindowSizeMsg{Width: 80, Height: 30})
	assert.Contains(t, empty.View(), "No audio devices found.")
}
