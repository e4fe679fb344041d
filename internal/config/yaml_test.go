// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "lantern.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultBlockSize, cfg.Audio.BlockSize)
	assert.Equal(t, DefaultColorRate, cfg.Music.ColorRate)
	assert.Equal(t, DefaultEmergencyBudget, cfg.Device.EmergencyBudget)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("nonexistent.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeTempConfig(t, `
log_level: debug
audio:
  block_size: 1024
music:
  sensitivity: 80
  algorithm: fire
  color_rate: 100ms
device:
  transport: udp
  udp_target: 127.0.0.1:9999
  emergency_budget: 250ms
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 1024, cfg.Audio.BlockSize)
	assert.Equal(t, DefaultSampleRate, cfg.Audio.SampleRate, "unset keys keep defaults")
	assert.Equal(t, 80, cfg.Music.Sensitivity)
	assert.Equal(t, "fire", cfg.Music.Algorithm)
	assert.Equal(t, 100*time.Millisecond, cfg.Music.ColorRate)
	assert.Equal(t, "udp", cfg.Device.Transport)
	assert.Equal(t, 250*time.Millisecond, cfg.Device.EmergencyBudget)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("LANTERN_DEVICE_TRANSPORT", "log")
	t.Setenv("LANTERN_MUSIC_SENSITIVITY", "20")
	t.Setenv("LANTERN_SERVER_ENABLED", "true")
	t.Setenv("LANTERN_DEVICE_EMERGENCY_BUDGET", "not-a-duration")

	path := writeTempConfig(t, "device:\n  transport: ble\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "log", cfg.Device.Transport)
	assert.Equal(t, 20, cfg.Music.Sensitivity)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, DefaultEmergencyBudget, cfg.Device.EmergencyBudget, "bad values are ignored")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		substr string
	}{
		{"sample rate low", func(c *Config) { c.Audio.SampleRate = 100 }, "audio.sample_rate"},
		{"block size high", func(c *Config) { c.Audio.BlockSize = 1 << 20 }, "audio.block_size"},
		{"frame queue", func(c *Config) { c.Audio.FrameQueue = 0 }, "audio.frame_queue"},
		{"sensitivity", func(c *Config) { c.Music.Sensitivity = 5 }, "music.sensitivity"},
		{"transport", func(c *Config) { c.Device.Transport = "zigbee" }, "unknown device.transport"},
		{"udp target", func(c *Config) { c.Device.Transport = "udp" }, "device.udp_target"},
		{"emergency budget", func(c *Config) { c.Device.EmergencyBudget = 2 * time.Second }, "device.emergency_budget"},
		{"brightness", func(c *Config) { c.Device.Brightness = 300 }, "device.brightness"},
		{"effect speed", func(c *Config) { c.Device.EffectSpeed = 0 }, "device.effect_speed"},
		{"server addr", func(c *Config) { c.Server.Enabled = true; c.Server.Addr = "" }, "server.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.substr)
		})
	}

	assert.NoError(t, Default().Validate())
}
