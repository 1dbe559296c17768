// Package config loads the bridge configuration from a TOML file,
// filling omitted fields with defaults.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath         = "config.toml"
	DefaultHTTPAddr           = ":8080"
	DefaultProviderTimeout    = 30
	DefaultDeskTimeout        = 30
	DefaultChannelTTLSeconds  = 300
	DefaultContactTTLSeconds  = 600
	DefaultDedupTTLSeconds    = 300
	DefaultDedupSweepSeconds  = 60
	DefaultRetryMaxAttempts   = 3
	DefaultRetryBaseDelayMs   = 1000
	DefaultRetryMaxDelayMs    = 30000
	DefaultMediaPollAttempts  = 2
	DefaultMediaPollDelayMs   = 3000
	DefaultCountryCode        = "55"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Provider ProviderConfig `toml:"provider"`
	Desk     DeskConfig     `toml:"desk"`
	Cache    CacheConfig    `toml:"cache"`
	Dedup    DedupConfig    `toml:"dedup"`
	Retry    RetryConfig    `toml:"retry"`
	Media    MediaConfig    `toml:"media"`
	Contact  ContactConfig  `toml:"contact"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// ProviderConfig points at the upstream WhatsApp provider API.
type ProviderConfig struct {
	BaseURL        string `toml:"base_url"`
	InstanceID     string `toml:"instance_id"`
	InstanceToken  string `toml:"instance_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// DeskConfig points at the downstream conversation-desk platform.
type DeskConfig struct {
	BaseURL        string `toml:"base_url"`
	AccountToken   string `toml:"account_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type CacheConfig struct {
	ChannelTTLSeconds int `toml:"channel_ttl_seconds"`
	ContactTTLSeconds int `toml:"contact_ttl_seconds"`
}

type DedupConfig struct {
	TTLSeconds          int `toml:"ttl_seconds"`
	SweepIntervalSecond int `toml:"sweep_interval_seconds"`
}

// RetryConfig tunes the retry executor. Delays and attempt counts are
// deployment-specific, so they are configuration rather than constants.
type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts"`
	BaseDelayMs int `toml:"base_delay_ms"`
	MaxDelayMs  int `toml:"max_delay_ms"`
}

type MediaConfig struct {
	PollAttempts int `toml:"poll_attempts"`
	PollDelayMs  int `toml:"poll_delay_ms"`
}

type ContactConfig struct {
	DefaultCountryCode string `toml:"default_country_code"`
}

func (c ProviderConfig) Timeout() time.Duration {
	return secondsOrDefault(c.TimeoutSeconds, DefaultProviderTimeout)
}

func (c DeskConfig) Timeout() time.Duration {
	return secondsOrDefault(c.TimeoutSeconds, DefaultDeskTimeout)
}

func (c CacheConfig) ChannelTTL() time.Duration {
	return secondsOrDefault(c.ChannelTTLSeconds, DefaultChannelTTLSeconds)
}

func (c CacheConfig) ContactTTL() time.Duration {
	return secondsOrDefault(c.ContactTTLSeconds, DefaultContactTTLSeconds)
}

func (c DedupConfig) TTL() time.Duration {
	return secondsOrDefault(c.TTLSeconds, DefaultDedupTTLSeconds)
}

func (c DedupConfig) SweepInterval() time.Duration {
	return secondsOrDefault(c.SweepIntervalSecond, DefaultDedupSweepSeconds)
}

func (c RetryConfig) BaseDelay() time.Duration {
	return millisOrDefault(c.BaseDelayMs, DefaultRetryBaseDelayMs)
}

func (c RetryConfig) MaxDelay() time.Duration {
	return millisOrDefault(c.MaxDelayMs, DefaultRetryMaxDelayMs)
}

func (c RetryConfig) Attempts() int {
	if c.MaxAttempts <= 0 {
		return DefaultRetryMaxAttempts
	}
	return c.MaxAttempts
}

func (c MediaConfig) Attempts() int {
	if c.PollAttempts <= 0 {
		return DefaultMediaPollAttempts
	}
	return c.PollAttempts
}

func (c MediaConfig) PollDelay() time.Duration {
	return millisOrDefault(c.PollDelayMs, DefaultMediaPollDelayMs)
}

func (c ContactConfig) CountryCode() string {
	if c.DefaultCountryCode == "" {
		return DefaultCountryCode
	}
	return c.DefaultCountryCode
}

func secondsOrDefault(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func millisOrDefault(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Millisecond
}

// Load reads the config file at path, or DefaultConfigPath when empty.
// A missing file yields the default configuration.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
