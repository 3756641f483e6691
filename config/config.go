package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the overall device-agent configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Device   DeviceConfig   `yaml:"device"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the agent HTTP listener configuration.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds the SQLite store configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DeviceConfig holds device-identity persistence settings.
type DeviceConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logger output settings.
type LoggingConfig struct {
	FilePath      string `yaml:"file_path"`
	Console       bool   `yaml:"console"`
	DebugRingSize int    `yaml:"debug_ring_size"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: "127.0.0.1:8390"},
		Database: DatabaseConfig{Path: "drumtrack.db"},
		Device:   DeviceConfig{DataDir: "data"},
		Logging:  LoggingConfig{Console: true, DebugRingSize: 256},
	}
}

// Load reads the YAML config file at path, falling back to defaults for
// anything unset. A missing file is not an error; env vars override the
// listener address and database path last.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("DRUMTRACK_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DRUMTRACK_SQLITE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if cfg.Server.Addr == "" {
		return cfg, fmt.Errorf("server addr is required")
	}
	if cfg.Database.Path == "" {
		return cfg, fmt.Errorf("database path is required")
	}
	if cfg.Logging.DebugRingSize <= 0 {
		cfg.Logging.DebugRingSize = Default().Logging.DebugRingSize
	}
	return cfg, nil
}
