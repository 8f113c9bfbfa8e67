package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/audio"
	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/discovery"
	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/dsp"
	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/protocol"
)

// Config represents the complete receiver configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	DSP       DSPConfig       `yaml:"dsp"`
	Audio     AudioConfig     `yaml:"audio"`
	Output    OutputConfig    `yaml:"output"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains the I/Q stream server endpoint
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	ReadTimeout int    `yaml:"read_timeout"` // seconds, 0 disables
}

// DiscoveryConfig contains UDP server discovery configuration
type DiscoveryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Service       string `yaml:"service"`
	ListenAddress string `yaml:"listen_address"`
	ListenPort    int    `yaml:"listen_port"`
	Timeout       int    `yaml:"timeout"` // seconds
}

// DSPConfig contains demodulation chain parameters
type DSPConfig struct {
	CutoffHz        float64 `yaml:"cutoff_hz"`
	DecimationRatio int     `yaml:"decimation_ratio"`
	DCAlpha         float64 `yaml:"dc_alpha"`
	AGCTarget       float64 `yaml:"agc_target"`
	Volume          float64 `yaml:"volume"`
}

// AudioConfig contains audio playback configuration
type AudioConfig struct {
	Enabled       bool `yaml:"enabled"`
	SampleRate    int  `yaml:"sample_rate"`
	BufferSize    int  `yaml:"buffer_size"` // samples per flush
	DeviceBuffers int  `yaml:"device_buffers"`
}

// OutputConfig contains raw PCM output configuration
type OutputConfig struct {
	PCMStdout bool `yaml:"pcm_stdout"`
}

// HTTPConfig contains HTTP status API configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration with working defaults for a local server.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        protocol.DefaultDataPort,
			ReadTimeout: 0,
		},
		Discovery: DiscoveryConfig{
			Enabled:       false,
			Service:       discovery.DefaultService,
			ListenAddress: "0.0.0.0",
			ListenPort:    discovery.DefaultAnnouncePort,
			Timeout:       5,
		},
		DSP: DSPConfig{
			CutoffHz:        dsp.DefaultCutoffHz,
			DecimationRatio: dsp.DefaultDecimationRatio,
			DCAlpha:         dsp.DefaultDCAlpha,
			AGCTarget:       dsp.DefaultAGCTarget,
			Volume:          dsp.DefaultVolume,
		},
		Audio: AudioConfig{
			Enabled:       true,
			SampleRate:    48000,
			BufferSize:    audio.DefaultFlushThreshold,
			DeviceBuffers: audio.DefaultDeviceBuffers,
		},
		Output: OutputConfig{
			PCMStdout: false,
		},
		HTTP: HTTPConfig{
			Port:    8090,
			Address: "0.0.0.0",
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery config: %w", err)
	}

	if err := c.DSP.Validate(); err != nil {
		return fmt.Errorf("dsp config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.ReadTimeout < 0 {
		return fmt.Errorf("read_timeout cannot be negative, got %d", s.ReadTimeout)
	}

	return nil
}

// Validate validates discovery configuration
func (d *DiscoveryConfig) Validate() error {
	if !d.Enabled {
		return nil
	}

	if d.Service == "" {
		return fmt.Errorf("service cannot be empty when discovery is enabled")
	}

	if d.ListenPort < 1 || d.ListenPort > 65535 {
		return fmt.Errorf("listen_port must be between 1 and 65535, got %d", d.ListenPort)
	}

	if d.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", d.Timeout)
	}

	return nil
}

// Validate validates DSP configuration
func (d *DSPConfig) Validate() error {
	if d.CutoffHz <= 0 {
		return fmt.Errorf("cutoff_hz must be positive, got %f", d.CutoffHz)
	}

	if d.DecimationRatio < 1 {
		return fmt.Errorf("decimation_ratio must be at least 1, got %d", d.DecimationRatio)
	}

	if d.DCAlpha <= 0 || d.DCAlpha >= 1 {
		return fmt.Errorf("dc_alpha must be between 0 and 1 (exclusive), got %f", d.DCAlpha)
	}

	if d.AGCTarget <= 0 {
		return fmt.Errorf("agc_target must be positive, got %f", d.AGCTarget)
	}

	if d.Volume < 0 {
		return fmt.Errorf("volume cannot be negative, got %f", d.Volume)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 {
		return fmt.Errorf("sample_rate must be at least 8000 Hz, got %d", a.SampleRate)
	}

	if a.BufferSize < 1 {
		return fmt.Errorf("buffer_size must be at least 1 sample, got %d", a.BufferSize)
	}

	if a.Enabled && a.DeviceBuffers < 2 {
		return fmt.Errorf("device_buffers must be at least 2, got %d", a.DeviceBuffers)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadTimeout returns the stream read timeout as a time.Duration.
// A zero value disables the timeout.
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetTimeoutDuration returns the discovery wait timeout as a time.Duration
func (d *DiscoveryConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}
