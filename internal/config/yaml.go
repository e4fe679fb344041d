// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// searchPaths are tried in order when LoadConfig is given an empty path.
var searchPaths = []string{
	"lantern.yaml",
	"config.yaml",
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches the default locations. If no file is found, it uses built-in defaults.
// After loading defaults or from file, it applies environment variable overrides and
// validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range searchPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks ranges and enumerations that do not need any other package.
// Algorithm and mode names are parsed by their owning packages.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %d out of range [%d, %d]", c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.BlockSize < MinBlockSize || c.Audio.BlockSize > MaxBlockSize {
		return fmt.Errorf("audio.block_size %d out of range [%d, %d]", c.Audio.BlockSize, MinBlockSize, MaxBlockSize)
	}
	if c.Audio.FrameQueue <= 0 {
		return fmt.Errorf("audio.frame_queue must be positive, got %d", c.Audio.FrameQueue)
	}
	if c.Music.Sensitivity < MinSensitivity || c.Music.Sensitivity > MaxSensitivity {
		return fmt.Errorf("music.sensitivity %d out of range [%d, %d]", c.Music.Sensitivity, MinSensitivity, MaxSensitivity)
	}
	if c.Music.ColorRate < 0 {
		return fmt.Errorf("music.color_rate must not be negative")
	}

	switch c.Device.Transport {
	case "ble", "log":
		// The ble target (address or name) can still arrive from flags.
	case "udp":
		if !strings.Contains(c.Device.UDPTarget, ":") {
			return fmt.Errorf("device.udp_target '%s' appears invalid (missing port?)", c.Device.UDPTarget)
		}
	default:
		return fmt.Errorf("unknown device.transport '%s'", c.Device.Transport)
	}

	if c.Device.ConnectTimeout <= 0 || c.Device.WriteTimeout <= 0 {
		return fmt.Errorf("device timeouts must be positive")
	}
	if c.Device.EmergencyBudget <= 0 || c.Device.EmergencyBudget >= MaxEmergencyBudget {
		return fmt.Errorf("device.emergency_budget must be in (0, %s), got %s", MaxEmergencyBudget, c.Device.EmergencyBudget)
	}
	if c.Device.Brightness < 0 || c.Device.Brightness > 255 {
		return fmt.Errorf("device.brightness %d out of range [0, 255]", c.Device.Brightness)
	}
	if c.Device.EffectSpeed < 1 || c.Device.EffectSpeed > 100 {
		return fmt.Errorf("device.effect_speed %d out of range [1, 100]", c.Device.EffectSpeed)
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be set when the server is enabled")
	}
	return nil
}

// applyEnvOverrides applies LANTERN_* variables on top of the loaded values.
// Unparseable values are ignored.
func (cfg *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("LANTERN_LOG_LEVEL"); ok {
		cfg.LogLevel = val
	}

	// LANTERN_DEVICE_{...}
	if val, ok := os.LookupEnv("LANTERN_DEVICE_TRANSPORT"); ok {
		cfg.Device.Transport = val
	}
	if val, ok := os.LookupEnv("LANTERN_DEVICE_ADDRESS"); ok {
		cfg.Device.Address = val
	}
	if val, ok := os.LookupEnv("LANTERN_DEVICE_NAME"); ok {
		cfg.Device.Name = val
	}
	if val, ok := os.LookupEnv("LANTERN_DEVICE_UDP_TARGET"); ok {
		cfg.Device.UDPTarget = val
	}
	if val, ok := os.LookupEnv("LANTERN_DEVICE_EMERGENCY_BUDGET"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Device.EmergencyBudget = dur
		}
	}

	// LANTERN_AUDIO_{...}
	if val, ok := os.LookupEnv("LANTERN_AUDIO_DEVICE_NAME"); ok {
		cfg.Audio.DeviceName = val
	}

	// LANTERN_MUSIC_{...}
	if val, ok := os.LookupEnv("LANTERN_MUSIC_SENSITIVITY"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			cfg.Music.Sensitivity = iVal
		}
	}
	if val, ok := os.LookupEnv("LANTERN_MUSIC_ALGORITHM"); ok {
		cfg.Music.Algorithm = val
	}

	// LANTERN_SERVER_{...}
	if val, ok := os.LookupEnv("LANTERN_SERVER_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Server.Enabled = bVal
		}
	}
	if val, ok := os.LookupEnv("LANTERN_SERVER_ADDR"); ok {
		cfg.Server.Addr = val
	}
}
