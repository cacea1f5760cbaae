// Package config loads the relay configuration from a JSON5 file with
// environment overrides for secrets.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/titanous/json5"
)

// DefaultConfigPath is used when neither --config nor UPSRELAY_CONFIG is set.
const DefaultConfigPath = "~/.upsrelay/config.json"

// Config is the root configuration.
type Config struct {
	System    SystemConfig    `json:"system"`
	Telegram  TelegramConfig  `json:"telegram"`
	Database  DatabaseConfig  `json:"database"`
	Gateway   GatewayConfig   `json:"gateway"`
	IMAP      IMAPConfig      `json:"imap"`
	Digest    DigestConfig    `json:"digest"`
	Telemetry TelemetryConfig `json:"telemetry"`

	mu sync.RWMutex
}

type SystemConfig struct {
	InitialStatus string `json:"initialStatus"`         // running | idle
	Timezone      string `json:"timezone,omitempty"`    // IANA name used for timestamps in chat
	MaxParallel   int    `json:"maxParallel,omitempty"` // concurrent sends per event, 0 = unlimited
}

type TelegramConfig struct {
	Token      string  `json:"token"`
	CreatorIDs []int64 `json:"creatorIds"`         // super admins; may add the bot to groups
	AdminIDs   []int64 `json:"adminIds,omitempty"` // extra admins, hot reloadable
	Proxy      string  `json:"proxy,omitempty"`
}

type DatabaseConfig struct {
	Mode        string `json:"mode"`                  // standalone (sqlite) | managed (postgres)
	PostgresDSN string `json:"postgresDsn,omitempty"` // from DATABASE_URL when unset
	SQLitePath  string `json:"sqlitePath,omitempty"`
}

type GatewayConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	WebhookSecret string `json:"webhookSecret"`
	RateLimitRPM  int    `json:"rateLimitRpm"` // per client IP, 0 disables
}

type IMAPConfig struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	TLS          bool   `json:"tls"`
	User         string `json:"user"`
	Password     string `json:"password,omitempty"`
	Mailbox      string `json:"mailbox"`
	Sender       string `json:"sender"`       // only mails from this address are parsed
	PollInterval int    `json:"pollInterval"` // seconds
}

// PollEvery returns the poll interval as a duration.
func (c IMAPConfig) PollEvery() time.Duration {
	if c.PollInterval <= 0 {
		return time.Minute
	}
	return time.Duration(c.PollInterval) * time.Second
}

type DigestConfig struct {
	Schedule string `json:"schedule,omitempty"` // cron expression, empty disables
}

type TelemetryConfig struct {
	Enabled     bool              `json:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"`
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"serviceName,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	SampleRatio float64           `json:"sampleRatio,omitempty"` // 0 or unset samples every dispatch
}

// Default returns a config with every optional field filled in.
func Default() *Config {
	return &Config{
		System: SystemConfig{
			InitialStatus: "running",
		},
		Database: DatabaseConfig{
			Mode:       "standalone",
			SQLitePath: "~/.upsrelay/upsrelay.db",
		},
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         3000,
			RateLimitRPM: 60,
		},
		IMAP: IMAPConfig{
			Port:         993,
			TLS:          true,
			Mailbox:      "INBOX",
			PollInterval: 60,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error: defaults plus env are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ExpandHome(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as indented JSON, creating the parent directory.
func Save(path string, cfg *Config) error {
	path = ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	cfg.mu.RLock()
	data, err := json.MarshalIndent(cfg, "", "  ")
	cfg.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// ApplyEnvOverrides copies secrets and deployment settings from the
// environment, matching the variable names of earlier .env based setups.
func (c *Config) ApplyEnvOverrides() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CREATOR_ID"); v != "" {
		ids, err := ParseIDList(v)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CREATOR_ID: %w", err)
		}
		c.Telegram.CreatorIDs = ids
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		c.Gateway.WebhookSecret = v
	}
	if v := os.Getenv("WEBHOOK_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err != nil {
			return fmt.Errorf("WEBHOOK_PORT is not a number: %q", v)
		}
		c.Gateway.Port = port
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.PostgresDSN = v
		c.Database.Mode = "managed"
	}
	if v := os.Getenv("IMAP_PASSWORD"); v != "" {
		c.IMAP.Password = v
	}
	return nil
}

// Validate reports the first configuration problem that prevents serving.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required (or TELEGRAM_BOT_TOKEN)"))
	}
	if len(c.Telegram.CreatorIDs) == 0 {
		errs = append(errs, errors.New("telegram.creatorIds is required (or TELEGRAM_CREATOR_ID)"))
	}
	if c.Gateway.WebhookSecret == "" {
		errs = append(errs, errors.New("gateway.webhookSecret is required (or WEBHOOK_SECRET)"))
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port out of range: %d", c.Gateway.Port))
	}
	switch c.System.InitialStatus {
	case "running", "idle":
	default:
		errs = append(errs, fmt.Errorf("system.initialStatus must be running or idle, got %q", c.System.InitialStatus))
	}
	if c.System.Timezone != "" {
		if _, err := time.LoadLocation(c.System.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("system.timezone: %w", err))
		}
	}
	switch c.Database.Mode {
	case "standalone":
	case "managed":
		if c.Database.PostgresDSN == "" {
			errs = append(errs, errors.New("database.postgresDsn is required in managed mode (or DATABASE_URL)"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.mode must be standalone or managed, got %q", c.Database.Mode))
	}
	if c.IMAP.Enabled {
		if c.IMAP.Host == "" || c.IMAP.User == "" || c.IMAP.Sender == "" {
			errs = append(errs, errors.New("imap.host, imap.user and imap.sender are required when imap is enabled"))
		}
	}
	return errors.Join(errs...)
}

// Location returns the configured timezone, or nil for the process default.
func (c *Config) Location() *time.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.System.Timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(c.System.Timezone)
	if err != nil {
		return nil
	}
	return loc
}

// IsCreator reports whether userID is a super admin.
func (c *Config) IsCreator(userID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.Telegram.CreatorIDs, userID)
}

// IsAdmin reports whether userID is a super admin or a configured admin.
func (c *Config) IsAdmin(userID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.Telegram.CreatorIDs, userID) || slices.Contains(c.Telegram.AdminIDs, userID)
}

// CreatorIDs returns a copy of the super admin list.
func (c *Config) CreatorIDs() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.Telegram.CreatorIDs)
}

// DigestSchedule returns the current digest cron expression.
func (c *Config) DigestSchedule() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Digest.Schedule
}

// ApplyReload copies the hot-reloadable fields of next into c.
// Everything else needs a restart.
func (c *Config) ApplyReload(next *Config) {
	next.mu.RLock()
	admins := slices.Clone(next.Telegram.AdminIDs)
	creators := slices.Clone(next.Telegram.CreatorIDs)
	schedule := next.Digest.Schedule
	next.mu.RUnlock()

	c.mu.Lock()
	c.Telegram.AdminIDs = admins
	if len(creators) > 0 {
		c.Telegram.CreatorIDs = creators
	}
	c.Digest.Schedule = schedule
	c.mu.Unlock()
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
