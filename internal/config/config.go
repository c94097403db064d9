package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration parses YAML values like "15s" or "5m" into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Device is one configured Hikvision device or NVR.
type Device struct {
	Host      string `yaml:"host" validate:"required,url"`
	Username  string `yaml:"username" validate:"required"`
	Password  string `yaml:"password" validate:"required"`
	VerifySSL bool   `yaml:"verify_ssl"`
	// RTSPPort forces the stream port; 0 discovers it from the device.
	RTSPPort int `yaml:"rtsp_port" validate:"min=0,max=65535"`
}

type NATS struct {
	// URL empty disables publishing; alerts still reach the websocket stream.
	URL        string `yaml:"url"`
	Subject    string `yaml:"subject"`
	MaxRetries int    `yaml:"max_retries" validate:"min=0"`
}

type Dedup struct {
	Window Duration `yaml:"window"`
	Size   int      `yaml:"size" validate:"min=0"`
}

type Poll struct {
	Events     Duration `yaml:"events"`
	Infrequent Duration `yaml:"infrequent"`
}

type Config struct {
	Listen   string `yaml:"listen" validate:"required"`
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	// ExternalURL is the address devices can reach this daemon on; it gets
	// pushed to each device as its notification target. Empty skips the push.
	ExternalURL string   `yaml:"external_url" validate:"omitempty,url"`
	NATS        NATS     `yaml:"nats"`
	Dedup       Dedup    `yaml:"dedup"`
	Poll        Poll     `yaml:"poll"`
	Devices     []Device `yaml:"devices" validate:"required,min=1,dive"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Environment wins over the file for the deployment-facing scalars.
func (c *Config) applyEnv() {
	if v := os.Getenv("HIKVISIOND_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("HIKVISIOND_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("HIKVISIOND_EXTERNAL_URL"); v != "" {
		c.ExternalURL = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8214"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "hikvision.alerts"
	}
	if c.NATS.MaxRetries == 0 {
		c.NATS.MaxRetries = 5
	}
	if c.Dedup.Window == 0 {
		c.Dedup.Window = Duration(15 * time.Second)
	}
	if c.Dedup.Size == 0 {
		c.Dedup.Size = 4096
	}
	if c.Poll.Events == 0 {
		c.Poll.Events = Duration(5 * time.Minute)
	}
	if c.Poll.Infrequent == 0 {
		c.Poll.Infrequent = Duration(60 * time.Minute)
	}
}
