// Package config loads the healthmon configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/jandubois/healthmon/internal/registry"
)

// Defaults applied by Load.
const (
	DefaultAddr         = ":5002"
	DefaultInterval     = 30 * time.Second
	DefaultErrorBackoff = 60 * time.Second
	DefaultMaxBody      = "64KiB"
	DefaultTimeout      = 5 * time.Second
	DefaultRedisKey     = "healthmon:snapshot"
	DefaultRedisChannel = "healthmon:snapshots"
)

// Config is the complete configuration file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Database string         `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Notify   NotifyConfig   `yaml:"notify"`
	Targets  []TargetConfig `yaml:"targets"`
}

// ServerConfig holds the query API settings.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	AuthToken   string   `yaml:"auth_token"`   // Bearer token for /health/check; empty disables auth
	CORSOrigins []string `yaml:"cors_origins"` // Allowed origins; "*" allows any
}

// MonitorConfig holds the refresh scheduler settings.
type MonitorConfig struct {
	Interval     time.Duration `yaml:"interval"`
	ErrorBackoff time.Duration `yaml:"error_backoff"`
	MaxBody      string        `yaml:"max_body"` // e.g. "64KiB"
}

// MaxBodyBytes parses MaxBody.
func (m MonitorConfig) MaxBodyBytes() (int64, error) {
	return units.RAMInBytes(m.MaxBody)
}

// RedisConfig enables snapshot publishing when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	Channel  string `yaml:"channel"`
}

// NotifyConfig lists notification channels for status changes.
type NotifyConfig struct {
	// LinkBase is the public URL of this server; messages link to /health/{id} under it.
	LinkBase string           `yaml:"link_base"`
	Ntfy     []NtfyConfig     `yaml:"ntfy"`
	Pushover []PushoverConfig `yaml:"pushover"`
}

// NtfyConfig configures one ntfy topic.
type NtfyConfig struct {
	ServerURL string `yaml:"server_url"`
	Topic     string `yaml:"topic"`
	Token     string `yaml:"token"`
}

// PushoverConfig configures one Pushover recipient.
type PushoverConfig struct {
	APIToken string `yaml:"api_token"`
	UserKey  string `yaml:"user_key"`
}

// TargetConfig describes one monitored service.
type TargetConfig struct {
	ID                 string            `yaml:"id"`
	Name               string            `yaml:"name"`
	URL                string            `yaml:"url"`
	HealthEndpoint     string            `yaml:"health_endpoint"`
	Timeout            time.Duration     `yaml:"timeout"`
	ExpectedStatus     []int             `yaml:"expected_status"`
	Headers            map[string]string `yaml:"headers"`
	InsecureSkipVerify bool              `yaml:"insecure_skip_verify"`
}

// Load reads, expands, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data, then applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.expandEnv()
	cfg.applyDefaults()
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnv substitutes ${VAR} in the fields that usually carry secrets.
func (c *Config) expandEnv() {
	c.Server.AuthToken = os.ExpandEnv(c.Server.AuthToken)
	c.Redis.Password = os.ExpandEnv(c.Redis.Password)
	for i := range c.Notify.Ntfy {
		c.Notify.Ntfy[i].Token = os.ExpandEnv(c.Notify.Ntfy[i].Token)
	}
	for i := range c.Notify.Pushover {
		c.Notify.Pushover[i].APIToken = os.ExpandEnv(c.Notify.Pushover[i].APIToken)
		c.Notify.Pushover[i].UserKey = os.ExpandEnv(c.Notify.Pushover[i].UserKey)
	}
	for i := range c.Targets {
		t := &c.Targets[i]
		t.URL = os.ExpandEnv(t.URL)
		t.HealthEndpoint = os.ExpandEnv(t.HealthEndpoint)
		for k, v := range t.Headers {
			t.Headers[k] = os.ExpandEnv(v)
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = DefaultInterval
	}
	if c.Monitor.ErrorBackoff == 0 {
		c.Monitor.ErrorBackoff = DefaultErrorBackoff
	}
	if c.Monitor.MaxBody == "" {
		c.Monitor.MaxBody = DefaultMaxBody
	}
	if c.Redis.Key == "" {
		c.Redis.Key = DefaultRedisKey
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = DefaultRedisChannel
	}
	for i := range c.Targets {
		t := &c.Targets[i]
		if t.Name == "" {
			t.Name = t.ID
		}
		if t.Timeout == 0 {
			t.Timeout = DefaultTimeout
		}
		if len(t.ExpectedStatus) == 0 {
			t.ExpectedStatus = []int{200}
		}
	}
}

// reservedIDs collide with fixed routes under /health/.
var reservedIDs = map[string]bool{"all": true, "check": true}

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Monitor.Interval < 0 {
		errs = append(errs, errors.New("monitor.interval must be positive"))
	}
	if cfg.Monitor.ErrorBackoff < 0 {
		errs = append(errs, errors.New("monitor.error_backoff must be positive"))
	}
	if cfg.Monitor.MaxBody != "" {
		if _, err := cfg.Monitor.MaxBodyBytes(); err != nil {
			errs = append(errs, fmt.Errorf("monitor.max_body: %w", err))
		}
	}
	if len(cfg.Targets) == 0 {
		errs = append(errs, errors.New("no targets configured"))
	}

	seen := make(map[string]bool, len(cfg.Targets))
	for i, t := range cfg.Targets {
		if t.ID == "" {
			errs = append(errs, fmt.Errorf("targets[%d]: id is required", i))
			continue
		}
		if seen[t.ID] {
			errs = append(errs, fmt.Errorf("target %q: duplicate id", t.ID))
		}
		if reservedIDs[t.ID] || strings.Contains(t.ID, "/") {
			errs = append(errs, fmt.Errorf("target %q: id is reserved or contains '/'", t.ID))
		}
		seen[t.ID] = true

		u, err := url.Parse(t.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("target %q: url must be an absolute http(s) URL", t.ID))
		}
		if t.Timeout < 0 {
			errs = append(errs, fmt.Errorf("target %q: timeout must be positive", t.ID))
		}
		for _, code := range t.ExpectedStatus {
			if code < 100 || code > 599 {
				errs = append(errs, fmt.Errorf("target %q: invalid expected status %d", t.ID, code))
			}
		}
	}

	if cfg.Notify.LinkBase != "" {
		u, err := url.Parse(cfg.Notify.LinkBase)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, errors.New("notify.link_base must be an absolute http(s) URL"))
		}
	}
	for i, n := range cfg.Notify.Ntfy {
		if n.Topic == "" {
			errs = append(errs, fmt.Errorf("notify.ntfy[%d]: topic is required", i))
		}
	}
	for i, p := range cfg.Notify.Pushover {
		if p.APIToken == "" || p.UserKey == "" {
			errs = append(errs, fmt.Errorf("notify.pushover[%d]: api_token and user_key are required", i))
		}
	}

	return errors.Join(errs...)
}

// RegistryTargets converts the configured targets for registry.New.
func (c *Config) RegistryTargets() []registry.Target {
	targets := make([]registry.Target, 0, len(c.Targets))
	for _, t := range c.Targets {
		targets = append(targets, registry.Target{
			ID:                 t.ID,
			Name:               t.Name,
			BaseURL:            t.URL,
			Path:               t.HealthEndpoint,
			Timeout:            t.Timeout,
			Accepted:           t.ExpectedStatus,
			Headers:            t.Headers,
			InsecureSkipVerify: t.InsecureSkipVerify,
		})
	}
	return targets
}
