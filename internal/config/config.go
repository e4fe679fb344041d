package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the lantern session.
const (
	// Audio capture defaults
	DefaultSampleRate = 44100 // CD-quality audio
	DefaultBlockSize  = 2048  // ~46ms per block at 44.1kHz
	DefaultFrameQueue = 8     // Frames buffered between capture and pipeline

	// Music mode defaults
	DefaultSensitivity = 50       // Neutral gain
	DefaultAlgorithm   = "energy" // Blended hue driven by overall energy
	DefaultColorRate   = 50 * time.Millisecond

	// Device defaults
	DefaultTransport       = "ble"
	DefaultConnectTimeout  = 10 * time.Second
	DefaultWriteTimeout    = 2 * time.Second
	DefaultEmergencyBudget = 300 * time.Millisecond
	DefaultBrightness      = 128
	DefaultEffectSpeed     = 50
	DefaultMode            = "static"

	// Server defaults
	DefaultServerAddr = "127.0.0.1:8765"

	// Hardware and processing limits
	MinSampleRate      = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate      = 192000 // Maximum supported sample rate (Hz)
	MinBlockSize       = 64
	MaxBlockSize       = 16384
	MinSensitivity     = 10
	MaxSensitivity     = 100
	MaxEmergencyBudget = time.Second
)

// Config is the complete runtime configuration, loaded from YAML and then
// overridden by environment variables and command line flags.
type Config struct {
	LogLevel string `yaml:"log_level"` // Logging level (debug, info, warn, error).
	LogJSON  bool   `yaml:"log_json"`  // Emit logs as JSON instead of console text.

	Audio  AudioConfig  `yaml:"audio"`
	Music  MusicConfig  `yaml:"music"`
	Device DeviceConfig `yaml:"device"`
	Server ServerConfig `yaml:"server"`
}

// AudioConfig holds settings related to audio capture.
type AudioConfig struct {
	DeviceName string `yaml:"device_name"` // Substring of the capture device name; empty selects a loopback device.
	SampleRate int    `yaml:"sample_rate"` // Sample rate in Hz.
	BlockSize  int    `yaml:"block_size"`  // Samples per frame handed to the analyzer.
	FrameQueue int    `yaml:"frame_queue"` // Capacity of the capture-to-pipeline channel.
	InputFile  string `yaml:"input_file"`  // Replay this WAV or AIFF file instead of capturing.
	RecordFile string `yaml:"record_file"` // Record captured frames to this WAV file.
}

// MusicConfig holds settings for the audio-reactive colour pipeline.
type MusicConfig struct {
	Sensitivity int           `yaml:"sensitivity"` // 10..100, 50 is neutral.
	Algorithm   string        `yaml:"algorithm"`   // frequency-rgb, energy, spectrum, pulse, fire.
	ColorRate   time.Duration `yaml:"color_rate"`  // Minimum interval between colour commands.
	AutoStart   bool          `yaml:"auto_start"`  // Enter music mode once connected.
}

// DeviceConfig holds settings for the lighting device and its transport.
type DeviceConfig struct {
	Transport       string        `yaml:"transport"`        // ble, udp or log.
	Address         string        `yaml:"address"`          // Device address (BLE MAC/UUID).
	Name            string        `yaml:"name"`             // Advertised name substring, used when no address is set.
	UDPTarget       string        `yaml:"udp_target"`       // host:port of the UDP bridge.
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`  // Upper bound for scan + connect.
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // Upper bound for a single write.
	EmergencyBudget time.Duration `yaml:"emergency_budget"` // Upper bound for the emergency off path.
	Brightness      int           `yaml:"brightness"`       // Initial brightness 0..255.
	EffectSpeed     int           `yaml:"effect_speed"`     // Initial effect speed 1..100.
	Mode            string        `yaml:"mode"`             // Initial mode.
}

// ServerConfig holds settings for the websocket control endpoint.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			SampleRate: DefaultSampleRate,
			BlockSize:  DefaultBlockSize,
			FrameQueue: DefaultFrameQueue,
		},
		Music: MusicConfig{
			Sensitivity: DefaultSensitivity,
			Algorithm:   DefaultAlgorithm,
			ColorRate:   DefaultColorRate,
		},
		Device: DeviceConfig{
			Transport:       DefaultTransport,
			ConnectTimeout:  DefaultConnectTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			EmergencyBudget: DefaultEmergencyBudget,
			Brightness:      DefaultBrightness,
			EffectSpeed:     DefaultEffectSpeed,
			Mode:            DefaultMode,
		},
		Server: ServerConfig{
			Enabled: false,
			Addr:    DefaultServerAddr,
		},
	}
}
