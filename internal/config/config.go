package config

// Configuration loading and validation for spinnman

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spinnaker-go/spinnman/internal/errors"
)

// BMPConfig describes one BMP connection: a cabinet/frame pair and the
// boards it controls.
type BMPConfig struct {
	Host    string `yaml:"host"`
	Cabinet int    `yaml:"cabinet"`
	Frame   int    `yaml:"frame"`
	Boards  []int  `yaml:"boards"`
}

// IPTagConfig declares an IP tag to install on startup.
type IPTagConfig struct {
	Tag      uint8  `yaml:"tag"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Chip     [2]int `yaml:"chip,omitempty"` // (x, y) that owns the tag; defaults to the ethernet chip
	Strip    bool   `yaml:"strip_sdp,omitempty"`
	Reverse  bool   `yaml:"reverse,omitempty"`
	SDPPort  int    `yaml:"sdp_port,omitempty"`
}

// PipelineConfig controls the per-endpoint request pipeline window and
// retry policy (spec §4.4).
type PipelineConfig struct {
	NChannels           int     `yaml:"n_channels,omitempty"`            // 0 = auto-calibrate
	NRetries            int     `yaml:"n_retries,omitempty"`             // default 3; used by memory reads/writes and flood data blocks, other facade commands pass their own count (10 for GetScampVersion)
	PacketTimeoutMs     int     `yaml:"packet_timeout_ms,omitempty"`     // default 500
	RetryCodes          []string `yaml:"retry_codes,omitempty"`          // default {RC_TIMEOUT, RC_P2P_TIMEOUT, RC_LEN, RC_P2P_NOREPLY}
}

// MachineConfig describes how to reach one SpiNNaker machine.
type MachineConfig struct {
	Host      string      `yaml:"host"`
	SCPPort   int         `yaml:"scp_port,omitempty"`
	BootPort  int         `yaml:"boot_port,omitempty"`
	Version   string      `yaml:"version,omitempty"` // board version, e.g. "5"
	Width     int         `yaml:"width,omitempty"`
	Height    int         `yaml:"height,omitempty"`
	NBoards   int         `yaml:"n_boards,omitempty"`
	BMPs      []BMPConfig `yaml:"bmps,omitempty"`
	IPTags    []IPTagConfig `yaml:"ip_tags,omitempty"`
	IgnoreChips []([2]int) `yaml:"ignore_chips,omitempty"`
	IgnoreCores []([3]int) `yaml:"ignore_cores,omitempty"` // (x, y, p)
	MaxCoreID int         `yaml:"max_core_id,omitempty"`
}

// LoggingConfig controls log level/format/destination.
type LoggingConfig struct {
	Level   string `yaml:"level,omitempty"` // "silent","error","info","verbose","debug"
	LogFile string `yaml:"log_file,omitempty"`
}

// MetricsConfig controls the optional Prometheus metrics endpoint.
type MetricsConfig struct {
	Enable   bool   `yaml:"enable,omitempty"`
	ListenIP string `yaml:"listen_ip,omitempty"`
	Port     int    `yaml:"port,omitempty"`
}

// Config is the top-level spinnman configuration file.
type Config struct {
	Machine  MachineConfig  `yaml:"machine"`
	Pipeline PipelineConfig `yaml:"pipeline,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty"`
}

// CreateDefaultConfig creates a default configuration suitable as a starting
// point for a single 1-board machine.
func CreateDefaultConfig() *Config {
	return &Config{
		Machine: MachineConfig{
			Host:     "192.168.240.1",
			SCPPort:  17893,
			BootPort: 54321,
			Version:  "5",
			Width:    8,
			Height:   8,
			NBoards:  1,
		},
		Pipeline: PipelineConfig{
			NRetries:        3,
			PacketTimeoutMs: 500,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// WriteDefaultConfig writes a default configuration to a file.
func WriteDefaultConfig(path string) error {
	cfg := CreateDefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Load loads a configuration from a YAML file. If the file doesn't exist
// and autoCreate is true, a default config file is written and re-read.
func Load(path string, autoCreate bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if autoCreate {
				if err := WriteDefaultConfig(path); err != nil {
					return nil, fmt.Errorf("create default config: %w", err)
				}
				data, err = os.ReadFile(path)
				if err != nil {
					return nil, errors.WrapConfigError(fmt.Errorf("read created config file: %w", err), path)
				}
			} else {
				return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
			}
		} else {
			return nil, errors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Machine.SCPPort == 0 {
		cfg.Machine.SCPPort = 17893
	}
	if cfg.Machine.BootPort == 0 {
		cfg.Machine.BootPort = 54321
	}
	if cfg.Pipeline.NRetries == 0 {
		cfg.Pipeline.NRetries = 3
	}
	if cfg.Pipeline.PacketTimeoutMs == 0 {
		cfg.Pipeline.PacketTimeoutMs = 500
	}
	if len(cfg.Pipeline.RetryCodes) == 0 {
		cfg.Pipeline.RetryCodes = []string{"RC_TIMEOUT", "RC_P2P_TIMEOUT", "RC_LEN", "RC_P2P_NOREPLY"}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Metrics.Enable {
		if cfg.Metrics.ListenIP == "" {
			cfg.Metrics.ListenIP = "127.0.0.1"
		}
		if cfg.Metrics.Port == 0 {
			cfg.Metrics.Port = 9109
		}
	}
}

// Validate validates a loaded configuration.
func Validate(cfg *Config) error {
	if cfg.Machine.Host == "" {
		return fmt.Errorf("machine.host is required")
	}
	if cfg.Machine.SCPPort <= 0 || cfg.Machine.SCPPort > 65535 {
		return fmt.Errorf("machine.scp_port must be 1..65535, got %d", cfg.Machine.SCPPort)
	}
	if cfg.Machine.BootPort <= 0 || cfg.Machine.BootPort > 65535 {
		return fmt.Errorf("machine.boot_port must be 1..65535, got %d", cfg.Machine.BootPort)
	}
	if cfg.Pipeline.NChannels < 0 {
		return fmt.Errorf("pipeline.n_channels must be >= 0 (0 means auto-calibrate)")
	}
	if cfg.Pipeline.NRetries < 0 {
		return fmt.Errorf("pipeline.n_retries must be >= 0")
	}
	if cfg.Pipeline.PacketTimeoutMs <= 0 {
		return fmt.Errorf("pipeline.packet_timeout_ms must be > 0")
	}
	for i, bmp := range cfg.Machine.BMPs {
		if bmp.Host == "" {
			return fmt.Errorf("machine.bmps[%d]: host is required", i)
		}
		if len(bmp.Boards) == 0 {
			return fmt.Errorf("machine.bmps[%d]: boards must not be empty", i)
		}
	}
	for i, tag := range cfg.Machine.IPTags {
		if tag.Host == "" {
			return fmt.Errorf("machine.ip_tags[%d]: host is required", i)
		}
		if tag.Port <= 0 || tag.Port > 65535 {
			return fmt.Errorf("machine.ip_tags[%d]: port must be 1..65535", i)
		}
		if tag.Reverse {
			if tag.SDPPort == cfg.Machine.SCPPort || tag.SDPPort == cfg.Machine.BootPort {
				return fmt.Errorf("machine.ip_tags[%d]: sdp_port must not equal the scamp or boot port", i)
			}
		}
	}
	if cfg.Logging.Level != "" {
		switch strings.ToLower(cfg.Logging.Level) {
		case "silent", "error", "info", "verbose", "debug":
		default:
			return fmt.Errorf("logging.level must be silent, error, info, verbose, or debug")
		}
	}
	if cfg.Metrics.Port < 0 {
		return fmt.Errorf("metrics.port must be >= 0")
	}
	return nil
}
