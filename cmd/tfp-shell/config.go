package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the shell settings. Values come from an optional YAML file
// and are overridden by flags that were set explicitly.
type Config struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Secret        string        `yaml:"secret"`
	Timeout       time.Duration `yaml:"timeout"`
	AutoReconnect bool          `yaml:"auto_reconnect"`
	LogLevel      string        `yaml:"log_level"`
	ProtocolLog   string        `yaml:"protocol_log"`

	// Devices are registered on startup so they can be addressed by name.
	Devices []DeviceEntry `yaml:"devices"`
}

// DeviceEntry names one Bricklet.
type DeviceEntry struct {
	Name string `yaml:"name"`
	UID  string `yaml:"uid"`
	Type string `yaml:"type"`
}

// Supported device types.
const (
	DeviceTypeTemperature = "temperature"
	DeviceTypeRS485       = "rs485"
)

func defaultConfig() Config {
	return Config{
		Host:          "localhost",
		Port:          4223,
		Timeout:       2500 * time.Millisecond,
		AutoReconnect: true,
		LogLevel:      "info",
	}
}

// loadConfig reads path over the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", c.Port)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, d := range c.Devices {
		if d.Name == "" || d.UID == "" {
			return fmt.Errorf("device entries need a name and a uid")
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate device name %q", d.Name)
		}
		seen[d.Name] = true
		switch d.Type {
		case DeviceTypeTemperature, DeviceTypeRS485:
		default:
			return fmt.Errorf("device %q: unknown type %q", d.Name, d.Type)
		}
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
