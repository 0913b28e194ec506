// Package config loads the YAML configuration for a bus controller
// process: which strategy to use, addressing, persistence, and the
// optional monitor bridges.
package config

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/denisbrodbeck/machineid"
	"gopkg.in/yaml.v3"

	"github.com/pjon-go/pjon/pkg/protocol"
)

// Config is the top-level configuration file schema.
type Config struct {
	Bus struct {
		ID          string `yaml:"id"`
		Shared      bool   `yaml:"shared"`
		Router      bool   `yaml:"router"`
		Acknowledge *bool  `yaml:"acknowledge"`
		SenderInfo  bool   `yaml:"sender_info"`
		AutoDelete  *bool  `yaml:"auto_delete"`
	} `yaml:"bus"`

	Strategy struct {
		Type     string `yaml:"type"` // "loopback" or "serial"
		Port     string `yaml:"port"`
		BaudRate int    `yaml:"baud_rate"`
	} `yaml:"strategy"`

	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`

	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`

	Websocket struct {
		Enabled bool   `yaml:"enabled"`
		Listen  string `yaml:"listen"`
	} `yaml:"websocket"`

	Log struct {
		Verbosity int `yaml:"verbosity"`
	} `yaml:"log"`
}

// validate checks the fields Load cannot safely default.
func (c *Config) validate() error {
	switch c.Strategy.Type {
	case "loopback", "":
	case "serial":
		if c.Strategy.Port == "" {
			return fmt.Errorf("strategy.port is required for strategy.type: serial")
		}
	default:
		return fmt.Errorf("unknown strategy.type: %q (supported: loopback, serial)", c.Strategy.Type)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enabled is true")
	}
	return nil
}

// applyDefaults fills in fields Load leaves zero.
func (c *Config) applyDefaults() {
	if c.Strategy.Type == "" {
		c.Strategy.Type = "loopback"
	}
	if c.Strategy.BaudRate == 0 {
		c.Strategy.BaudRate = 115200
	}
	if c.Store.Path == "" {
		c.Store.Path = "pjon.db"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "pjon"
	}
	if c.Websocket.Listen == "" {
		c.Websocket.Listen = "127.0.0.1:8790"
	}
	if c.Bus.Acknowledge == nil {
		enabled := true
		c.Bus.Acknowledge = &enabled
	}
	if c.Bus.AutoDelete == nil {
		enabled := true
		c.Bus.AutoDelete = &enabled
	}
}

// Load reads and validates a Config from a YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// BusID resolves the configured Bus.ID (4 dot-separated decimal bytes,
// e.g. "10.0.0.1") or, when unset, derives a stable per-host id from the
// machine's hardware identity so devices on the same host keep the same
// bus id across restarts without manual configuration.
func (c *Config) BusID() (protocol.BusID, error) {
	if c.Bus.ID != "" {
		var a, b, cc, d int
		if _, err := fmt.Sscanf(c.Bus.ID, "%d.%d.%d.%d", &a, &b, &cc, &d); err != nil {
			return protocol.BusID{}, fmt.Errorf("config: bus.id %q must be 4 dot-separated bytes: %w", c.Bus.ID, err)
		}
		return protocol.BusID{byte(a), byte(b), byte(cc), byte(d)}, nil
	}

	id, err := machineid.ProtectedID("pjon")
	if err != nil {
		return protocol.BusID{}, fmt.Errorf("config: derive bus id from machine id: %w", err)
	}
	var h uint32
	for i := 0; i < len(id); i++ {
		h = h*31 + uint32(id[i])
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], h)
	return protocol.BusID(buf), nil
}
