package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/mixerctl/internal/link/protocol"
)

// Config holds all application configuration.
type Config struct {
	Device       DeviceConfig    `yaml:"device"`
	Bluetooth    BluetoothConfig `yaml:"bluetooth"`
	PollInterval time.Duration   `yaml:"poll_interval"`
	Control      ControlConfig   `yaml:"control"`
	Monitor      MonitorConfig   `yaml:"monitor"`
	LogLevel     string          `yaml:"log_level"`
}

// DeviceConfig selects the mixer among the paired devices.
type DeviceConfig struct {
	Pattern     string `yaml:"pattern"`      // case-insensitive substring of the device name
	DefaultName string `yaml:"default_name"` // exact name accepted in addition to Pattern
	Address     string `yaml:"address"`      // optional MAC; wins over name matching

	// ProfileLabels picks the automatic profile literals sent to the
	// firmware: "short" (Ramp, Sinusoidal) or "app" (the mobile app's texts).
	ProfileLabels string `yaml:"profile_labels"`
}

// BluetoothConfig holds adapter and transport settings.
type BluetoothConfig struct {
	Adapter        string        `yaml:"adapter"`   // BlueZ adapter, e.g. "hci0"
	Transport      string        `yaml:"transport"` // "profile" or "rfcomm"
	Channel        uint8         `yaml:"channel"`   // RFCOMM channel for transport=rfcomm
	ServiceUUID    string        `yaml:"service_uuid"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// ControlConfig holds the HTTP control API settings.
type ControlConfig struct {
	Listen string `yaml:"listen"`
}

// MonitorConfig holds the USB serial telemetry console settings.
type MonitorConfig struct {
	Port     string `yaml:"port"` // empty disables telemetry in the daemon
	Baud     int    `yaml:"baud"`
	LineSkip int    `yaml:"line_skip"`
	History  int    `yaml:"history"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "mixerctl")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Pattern:       "ESP32",
			DefaultName:   "ESP32_Device",
			ProfileLabels: "short",
		},
		Bluetooth: BluetoothConfig{
			Adapter:        "hci0",
			Transport:      "profile",
			Channel:        1,
			ServiceUUID:    "00001101-0000-1000-8000-00805f9b34fb",
			ConnectTimeout: 15 * time.Second,
			WriteTimeout:   5 * time.Second,
		},
		PollInterval: 3 * time.Second,
		Control: ControlConfig{
			Listen: "127.0.0.1:8765",
		},
		Monitor: MonitorConfig{
			Baud:     115200,
			LineSkip: 3,
			History:  200,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in monitor.port is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Monitor.Port = expandTilde(cfg.Monitor.Port)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Pattern == "" && c.Device.DefaultName == "" && c.Device.Address == "" {
		return errors.New("device: one of pattern, default_name or address must be set")
	}
	if c.Device.Address != "" {
		if _, err := net.ParseMAC(c.Device.Address); err != nil {
			return fmt.Errorf("device.address %q is not a MAC address: %w", c.Device.Address, err)
		}
	}

	if _, err := protocol.ParseLabels(c.Device.ProfileLabels); err != nil {
		return fmt.Errorf("device.profile_labels: %w", err)
	}

	if c.Bluetooth.Adapter == "" {
		return errors.New("bluetooth.adapter must not be empty")
	}

	switch c.Bluetooth.Transport {
	case "profile":
	case "rfcomm":
		if c.Bluetooth.Channel < 1 || c.Bluetooth.Channel > 30 {
			return fmt.Errorf("bluetooth.channel must be 1..30 for rfcomm transport, got %d", c.Bluetooth.Channel)
		}
	default:
		return fmt.Errorf("bluetooth.transport must be \"profile\" or \"rfcomm\", got %q", c.Bluetooth.Transport)
	}

	if _, err := c.Bluetooth.Service(); err != nil {
		return err
	}

	if c.Bluetooth.ConnectTimeout <= 0 {
		return errors.New("bluetooth.connect_timeout must be > 0")
	}
	if c.Bluetooth.WriteTimeout < 0 {
		return errors.New("bluetooth.write_timeout must be >= 0")
	}

	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be > 0")
	}

	if c.Control.Listen == "" {
		return errors.New("control.listen must not be empty")
	}
	if _, _, err := net.SplitHostPort(c.Control.Listen); err != nil {
		return fmt.Errorf("control.listen %q: %w", c.Control.Listen, err)
	}

	if c.Monitor.Baud <= 0 {
		return errors.New("monitor.baud must be > 0")
	}
	if c.Monitor.LineSkip < 1 {
		return errors.New("monitor.line_skip must be >= 1")
	}
	if c.Monitor.History < 1 {
		return errors.New("monitor.history must be >= 1")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// Service parses the configured serial-port service UUID.
func (b BluetoothConfig) Service() (bluetooth.UUID, error) {
	uuid, err := bluetooth.ParseUUID(b.ServiceUUID)
	if err != nil {
		return bluetooth.UUID{}, fmt.Errorf("bluetooth.service_uuid %q: %w", b.ServiceUUID, err)
	}
	return uuid, nil
}

// ParseLogLevel maps a config log level to a slog.Level. Unknown values
// fall back to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# mixerctl configuration
# device.pattern matches paired device names case-insensitively.
# device.profile_labels: "short" sends Ramp/Sinusoidal, "app" sends the
# mobile app's "Water-Based (Rampa)"/"Oil (Sinusoidal)".
# bluetooth.transport: "profile" lets BlueZ resolve the serial port service,
# "rfcomm" dials bluetooth.channel directly.
`

// WriteDefault writes the default config to DefaultConfigPath. If a file
// already exists it is left untouched and ("", nil) is returned.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
