package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
	if cfg.Server.Port != 4536 {
		t.Errorf("default server port = %d, want 4536", cfg.Server.Port)
	}
	if cfg.DSP.DecimationRatio != 42 {
		t.Errorf("default decimation ratio = %d, want 42", cfg.DSP.DecimationRatio)
	}
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, `
server:
  host: 192.168.1.50
  port: 4536
  read_timeout: 30
dsp:
  volume: 75
audio:
  enabled: false
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "192.168.1.50" {
		t.Errorf("host = %q, want 192.168.1.50", cfg.Server.Host)
	}
	if got := cfg.Server.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("read timeout = %v, want 30s", got)
	}
	if cfg.DSP.Volume != 75 {
		t.Errorf("volume = %f, want 75", cfg.DSP.Volume)
	}
	if cfg.Audio.Enabled {
		t.Error("audio should be disabled")
	}

	// Fields not present in the file keep their defaults.
	if cfg.DSP.CutoffHz != 3000 {
		t.Errorf("cutoff = %f, want default 3000", cfg.DSP.CutoffHz)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [not a map")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() should fail for malformed YAML")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty host",
			mutate:  func(c *Config) { c.Server.Host = "" },
			wantErr: "host",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "port",
		},
		{
			name:    "negative read timeout",
			mutate:  func(c *Config) { c.Server.ReadTimeout = -1 },
			wantErr: "read_timeout",
		},
		{
			name:    "zero cutoff",
			mutate:  func(c *Config) { c.DSP.CutoffHz = 0 },
			wantErr: "cutoff_hz",
		},
		{
			name:    "zero decimation",
			mutate:  func(c *Config) { c.DSP.DecimationRatio = 0 },
			wantErr: "decimation_ratio",
		},
		{
			name:    "dc alpha at one",
			mutate:  func(c *Config) { c.DSP.DCAlpha = 1 },
			wantErr: "dc_alpha",
		},
		{
			name:    "negative volume",
			mutate:  func(c *Config) { c.DSP.Volume = -1 },
			wantErr: "volume",
		},
		{
			name:    "single device buffer",
			mutate:  func(c *Config) { c.Audio.DeviceBuffers = 1 },
			wantErr: "device_buffers",
		},
		{
			name: "discovery enabled without service",
			mutate: func(c *Config) {
				c.Discovery.Enabled = true
				c.Discovery.Service = ""
			},
			wantErr: "service",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "level",
		},
		{
			name: "http enabled without address",
			mutate: func(c *Config) {
				c.HTTP.Enabled = true
				c.HTTP.Address = ""
			},
			wantErr: "address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should have failed")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDiscoveryDisabledSkipsValidation(t *testing.T) {
	cfg := Default()
	cfg.Discovery.Enabled = false
	cfg.Discovery.Service = ""
	cfg.Discovery.ListenPort = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled discovery should not be validated: %v", err)
	}
}
