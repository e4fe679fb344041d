package audio

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudio entry points, replaced in tests.
var (
	paInitialize  = portaudio.Initialize
	paTerminate   = portaudio.Terminate
	paDevicesFunc = portaudio.Devices
)

var (
	initOnce sync.Once
	termOnce sync.Once
	initErr  error
)

// Initialize sets up the PortAudio subsystem. Safe to call more than once;
// pair it with Terminate.
func Initialize() error {
	initOnce.Do(func() {
		if err := paInitialize(); err != nil {
			initErr = fmt.Errorf("failed to initialize PortAudio: %w", err)
		}
	})
	return initErr
}

// Terminate shuts down the PortAudio subsystem once.
func Terminate() error {
	if initErr != nil {
		return nil
	}
	var err error
	termOnce.Do(func() {
		if terr := paTerminate(); terr != nil {
			err = fmt.Errorf("failed to terminate PortAudio: %w", terr)
		}
	})
	return err
}

// Device describes one audio endpoint.
type Device struct {
	Index             int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64

	info *portaudio.DeviceInfo
}

// IsInput reports whether the device can capture.
func (d Device) IsInput() bool {
	return d.MaxInputChannels > 0
}

// HostDevices returns all PortAudio devices. PortAudio must be initialized.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for i, info := range infos {
		if info == nil {
			continue
		}
		d := Device{
			Index:             i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			info:              info,
		}
		if info.HostApi != nil {
			d.HostAPI = info.HostApi.Name
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// Name fragments that suggest a device mirrors system output. Matched
// case-insensitively as substrings.
var loopbackKeywords = []string{
	"stereo mix", "loopback", "what u hear", "monitor",
	"stereo микшер", "mix", "микшер",
	"выход", "output", "system", "speakers", "динамики",
}

// Name fragments that rule a device out of the fallback pass.
var (
	micKeywords   = []string{"microphone", "mic", "микрофон"}
	inputKeywords = []string{"input", "вход"}
)

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// SelectLoopbackDevice picks the device to capture system audio from and
// returns its position in devices. The first input-capable device whose name
// carries a loopback keyword wins; failing that, the first input-capable
// device that is neither a microphone nor explicitly an input. The second
// result is false when nothing qualifies.
func SelectLoopbackDevice(devices []Device) (int, bool) {
	for i, d := range devices {
		if d.IsInput() && containsAny(strings.ToLower(d.Name), loopbackKeywords) {
			return i, true
		}
	}
	for i, d := range devices {
		name := strings.ToLower(d.Name)
		if !d.IsInput() || containsAny(name, micKeywords) || containsAny(name, inputKeywords) {
			continue
		}
		return i, true
	}
	return -1, false
}

// FindDevice returns the first input-capable device whose name contains name
// (case-insensitive).
func FindDevice(devices []Device, name string) (int, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, d := range devices {
		if d.IsInput() && strings.Contains(strings.ToLower(d.Name), name) {
			return i, true
		}
	}
	return -1, false
}

// ListDevices writes a description of every device to w and marks the one
// SelectLoopbackDevice would choose.
func ListDevices(w io.Writer, devices []Device) {
	chosen, ok := SelectLoopbackDevice(devices)

	fmt.Fprintf(w, "\nAvailable Audio Devices\n\n")
	for i, d := range devices {
		deviceType := ""
		switch {
		case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
			deviceType = "Input/Output"
		case d.MaxInputChannels > 0:
			deviceType = "Input"
		case d.MaxOutputChannels > 0:
			deviceType = "Output"
		}
		marker := " "
		if ok && i == chosen {
			marker = "*"
		}

		fmt.Fprintf(w, "%s[%d] %s (%s)\n", marker, d.Index, d.Name, deviceType)
		if d.HostAPI != "" {
			fmt.Fprintf(w, "    Host API: %s\n", d.HostAPI)
		}
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", d.MaxInputChannels, d.MaxOutputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", d.DefaultSampleRate)
		if d.info != nil {
			fmt.Fprintf(w, "    Latency: Low=%.2fms, High=%.2fms\n",
				d.info.DefaultLowInputLatency.Seconds()*1000,
				d.info.DefaultHighInputLatency.Seconds()*1000)
		}
		fmt.Fprintln(w)
	}
	if !ok {
		fmt.Fprintln(w, "No loopback-capable input device found.")
	}
}
