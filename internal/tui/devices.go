// Package tui is the interactive audio device picker behind `lantern devices --pick`.
package tui

import (
	"fmt"
	"strings"

	"lantern/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))
)

var keys = struct {
	quit, up, down, pick key.Binding
}{
	quit: key.NewBinding(key.WithKeys("q", "ctrl+c", "esc")),
	up:   key.NewBinding(key.WithKeys("up", "k")),
	down: key.NewBinding(key.WithKeys("down", "j")),
	pick: key.NewBinding(key.WithKeys("enter")),
}

// PickerModel lists capture devices and lets the user choose one. Only
// input-capable devices can be picked.
type PickerModel struct {
	devices   []audio.Device
	loopback  int // SelectLoopbackDevice's choice, -1 if none
	selected  int
	picked    bool
	viewport  viewport.Model
	ready     bool
	cancelled bool
}

// NewPickerModel starts with the cursor on the device automatic selection
// would use.
func NewPickerModel(devices []audio.Device) PickerModel {
	m := PickerModel{devices: devices, loopback: -1}
	if idx, ok := audio.SelectLoopbackDevice(devices); ok {
		m.loopback = idx
		m.selected = idx
	} else {
		m.selected = m.nextInput(-1, 1)
	}
	return m
}

func (m PickerModel) Init() tea.Cmd {
	return nil
}

// nextInput returns the next input-capable device from i in direction dir,
// or i when there is none.
func (m PickerModel) nextInput(i, dir int) int {
	for j := i + dir; j >= 0 && j < len(m.devices); j += dir {
		if m.devices[j].IsInput() {
			return j
		}
	}
	if i < 0 {
		return 0
	}
	return i
}

func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.quit):
			m.cancelled = true
			return m, tea.Quit
		case key.Matches(msg, keys.up):
			m.selected = m.nextInput(m.selected, -1)
		case key.Matches(msg, keys.down):
			m.selected = m.nextInput(m.selected, 1)
		case key.Matches(msg, keys.pick):
			if m.selected < len(m.devices) && m.devices[m.selected].IsInput() {
				m.picked = true
				return m, tea.Quit
			}
		}
	}

	if m.ready {
		m.viewport.SetContent(m.renderDevices())
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m PickerModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	title := titleStyle.Render("Capture Device")
	help := infoStyle.Render("↑/↓: Navigate • Enter: Select • q: Quit")
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m PickerModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	var sb strings.Builder
	for i, d := range m.devices {
		cursor := " "
		if i == m.selected {
			cursor = "▶"
		}
		tag := ""
		if i == m.loopback {
			tag = " [loopback]"
		}
		line := fmt.Sprintf("%s [%d] %s%s\n", cursor, d.Index, d.Name, tag)
		line += fmt.Sprintf("    Input channels: %d, Default sample rate: %.0f Hz\n",
			d.MaxInputChannels, d.DefaultSampleRate)

		switch {
		case i == m.selected:
			line = highlightStyle.Render(line)
		case !d.IsInput():
			line = dimStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// Choice returns the picked device. ok is false if the user quit.
func (m PickerModel) Choice() (audio.Device, bool) {
	if !m.picked || m.cancelled {
		return audio.Device{}, false
	}
	return m.devices[m.selected], true
}

// PickDevice runs the picker full-screen and returns the chosen device.
func PickDevice(devices []audio.Device) (audio.Device, bool, error) {
	p := tea.NewProgram(NewPickerModel(devices), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return audio.Device{}, false, err
	}
	d, ok := final.(PickerModel).Choice()
	return d, ok, nil
}
