// Package config loads the gateway configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mbocsi/athub/server"
)

type Config struct {
	Log       LogConfig      `yaml:"log"`
	Web       WebConfig      `yaml:"web"`
	TCP       ListenerConfig `yaml:"tcp"`
	WebSocket ListenerConfig `yaml:"websocket"`
	Serial    SerialConfig   `yaml:"serial"`
	LoRa      LoRaConfig     `yaml:"lora"`
	MDNS      MDNSConfig     `yaml:"mdns"`
	MCP       MCPConfig      `yaml:"mcp"`
	State     StateConfig    `yaml:"state"`
	Poll      PollConfig     `yaml:"poll"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type ListenerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Name       string `yaml:"name"`
	MaxClients int    `yaml:"max_clients"` // 0 keeps the transport default
}

type SerialConfig struct {
	Enabled bool   `yaml:"enabled"`
	Device  string `yaml:"device"`
	Baud    int    `yaml:"baud"`
}

// LoRaConfig drives an SX1276 behind a serial modem.
type LoRaConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Modem           string `yaml:"modem"` // serial device of the modem
	Baud            int    `yaml:"baud"`
	Frequency       uint32 `yaml:"frequency"`
	Bandwidth       uint32 `yaml:"bandwidth"`
	SpreadingFactor uint8  `yaml:"spreading_factor"`
	CodingRate      uint8  `yaml:"coding_rate"`
	Power           uint8  `yaml:"power"`
	SyncByte        uint8  `yaml:"sync_byte"`
	QueueSize       int    `yaml:"queue_size"`
}

type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
}

type StateConfig struct {
	Path         string        `yaml:"path"` // empty disables persistence
	SaveInterval time.Duration `yaml:"save_interval"`
}

type PollConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LoadError describes a config file that could not be used.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.File, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Default returns the configuration used when no file is given: TCP,
// WebSocket and the web UI on their usual ports, nothing else.
func Default() *Config {
	radio := server.DefaultSX1276Config()
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Web: WebConfig{Enabled: true, Addr: ":8080"},
		TCP: ListenerConfig{
			Enabled: true,
			Addr:    ":8888",
			Name:    "TCP Server",
		},
		WebSocket: ListenerConfig{
			Enabled: true,
			Addr:    ":8889",
			Name:    "WebSocket Server",
		},
		Serial: SerialConfig{Baud: 115200},
		LoRa: LoRaConfig{
			Baud:            115200,
			Frequency:       radio.Frequency,
			Bandwidth:       radio.Bandwidth,
			SpreadingFactor: radio.SpreadingFactor,
			CodingRate:      radio.CodingRate,
			Power:           radio.Power,
			SyncByte:        radio.SyncByte,
			QueueSize:       radio.QueueSize,
		},
		MDNS:  MDNSConfig{Instance: "athub"},
		MCP:   MCPConfig{Name: "athub"},
		State: StateConfig{SaveInterval: time.Minute},
		Poll:  PollConfig{Timeout: 5 * time.Second},
	}
}

// Load reads and validates a YAML config file. Keys missing from the file
// keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, &LoadError{File: path, Message: "invalid config", Cause: err}
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if c.Web.Enabled && c.Web.Addr == "" {
		errs = append(errs, errors.New("web.addr: required when enabled"))
	}
	if c.TCP.Enabled && c.TCP.Addr == "" {
		errs = append(errs, errors.New("tcp.addr: required when enabled"))
	}
	if c.WebSocket.Enabled && c.WebSocket.Addr == "" {
		errs = append(errs, errors.New("websocket.addr: required when enabled"))
	}
	if c.Serial.Enabled {
		if c.Serial.Device == "" {
			errs = append(errs, errors.New("serial.device: required when enabled"))
		}
		if c.Serial.Baud <= 0 {
			errs = append(errs, fmt.Errorf("serial.baud: must be positive, got %d", c.Serial.Baud))
		}
	}
	if c.LoRa.Enabled {
		if c.LoRa.Modem == "" {
			errs = append(errs, errors.New("lora.modem: required when enabled"))
		}
		if err := c.LoRa.Radio().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("lora: %w", err))
		}
	}
	if c.MDNS.Enabled && c.MDNS.Instance == "" {
		errs = append(errs, errors.New("mdns.instance: required when enabled"))
	}
	if c.State.SaveInterval < 0 {
		errs = append(errs, errors.New("state.save_interval: must not be negative"))
	}
	if c.Poll.Timeout <= 0 {
		errs = append(errs, errors.New("poll.timeout: must be positive"))
	}
	return errors.Join(errs...)
}

// Radio returns the SX1276 settings. Pin assignments keep their defaults
// since the modem owns the radio.
func (c LoRaConfig) Radio() server.SX1276Config {
	radio := server.DefaultSX1276Config()
	radio.Frequency = c.Frequency
	radio.Bandwidth = c.Bandwidth
	radio.SpreadingFactor = c.SpreadingFactor
	radio.CodingRate = c.CodingRate
	radio.Power = c.Power
	radio.SyncByte = c.SyncByte
	radio.QueueSize = c.QueueSize
	return radio
}

func (c LoRaConfig) Port() server.SerialConfig {
	return server.SerialConfig{Device: c.Modem, Baud: c.Baud}
}

func (c SerialConfig) Port() server.SerialConfig {
	return server.SerialConfig{Device: c.Device, Baud: c.Baud}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: unknown level %q", s)
	}
	return level, nil
}

// NewLogger builds the process logger. The MCP server owns stdout, so
// callers normally pass os.Stderr.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("log.format: unknown format %q", cfg.Format)
}
