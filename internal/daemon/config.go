// Package daemon loads configuration and runs the Kromer server process.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/kromer-network/kromer/internal/api"
	"github.com/kromer-network/kromer/internal/app/ledger"
	"github.com/kromer-network/kromer/internal/app/session"
	"github.com/kromer-network/kromer/internal/domain"
	"github.com/kromer-network/kromer/internal/infra/observability"
)

// HomeEnv overrides the Kromer home directory.
const HomeEnv = "KROMER_HOME"

// Config is the full contents of config.toml.
type Config struct {
	API      APIConfig               `toml:"api"`
	Database DatabaseConfig          `toml:"database"`
	Ledger   LedgerConfig            `toml:"ledger"`
	Session  SessionConfig           `toml:"session"`
	Log      observability.LogConfig `toml:"log"`
	Metrics  MetricsConfig           `toml:"metrics"`
	Internal InternalConfig          `toml:"internal"`
}

// APIConfig configures the HTTP listener and the public URLs advertised to clients.
type APIConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	PublicURL      string `toml:"public_url"`
	PublicWSURL    string `toml:"public_ws_url"`
	MOTD           string `toml:"motd"`
	RequestTimeout string `toml:"request_timeout"`
}

// DatabaseConfig locates the SQLite file. Empty Dir means <home>/data.
type DatabaseConfig struct {
	Dir string `toml:"dir"`
}

// LedgerConfig holds the economics.
type LedgerConfig struct {
	AddressPrefix  string  `toml:"address_prefix"`
	NameCost       float64 `toml:"name_cost"`
	InitialBalance float64 `toml:"initial_balance"`
	Work           int     `toml:"work"`
	Rounding       string  `toml:"rounding"` // half_even or truncate
}

// SessionConfig holds websocket session timing.
type SessionConfig struct {
	Expiry        string `toml:"expiry"`
	SweepInterval string `toml:"sweep_interval"`
	SendTimeout   string `toml:"send_timeout"`
	FanOutLimit   int    `toml:"fan_out_limit"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// InternalConfig guards /api/_internal. An empty key disables it.
type InternalConfig struct {
	Key string `toml:"key"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			MOTD:           "Welcome to Kromer!",
			RequestTimeout: "30s",
		},
		Ledger: LedgerConfig{
			AddressPrefix:  domain.DefaultAddressPrefix,
			NameCost:       500,
			InitialBalance: 100,
			Work:           500,
			Rounding:       string(domain.DefaultRounding),
		},
		Session: SessionConfig{
			Expiry:        "30s",
			SweepInterval: "10s",
			SendTimeout:   "10s",
			FanOutLimit:   64,
		},
		Log:     observability.DefaultLogConfig(),
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Home returns the Kromer home directory: $KROMER_HOME, else ~/.kromer.
func Home() string {
	if env := os.Getenv(HomeEnv); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kromer"
	}
	return filepath.Join(home, ".kromer")
}

// DefaultConfigPath is <home>/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// LoadConfig overlays the TOML file at path onto DefaultConfig. A missing
// file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultConfigPath()
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}

	cfg.API.Host = strings.TrimSpace(cfg.API.Host)
	cfg.API.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.API.PublicURL), "/")
	cfg.API.PublicWSURL = strings.TrimRight(strings.TrimSpace(cfg.API.PublicWSURL), "/")
	cfg.Database.Dir = strings.TrimSpace(cfg.Database.Dir)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if !domain.IsValidAddressPrefix(c.Ledger.AddressPrefix) {
		return fmt.Errorf("ledger.address_prefix %q must be one lower-case letter", c.Ledger.AddressPrefix)
	}
	if _, err := domain.ParseRounding(c.Ledger.Rounding); err != nil {
		return fmt.Errorf("ledger.rounding: %w", err)
	}
	if c.Ledger.Work <= 0 {
		return fmt.Errorf("ledger.work must be positive")
	}
	if c.Ledger.NameCost < 0 || c.Ledger.InitialBalance < 0 {
		return fmt.Errorf("ledger amounts must not be negative")
	}
	if c.Session.FanOutLimit <= 0 {
		return fmt.Errorf("session.fan_out_limit must be positive")
	}

	durations := map[string]string{
		"api.request_timeout":    c.API.RequestTimeout,
		"session.expiry":         c.Session.Expiry,
		"session.sweep_interval": c.Session.SweepInterval,
		"session.send_timeout":   c.Session.SendTimeout,
	}
	for key, v := range durations {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

// ─── Converters ─────────────────────────────────────────────────────────────

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// DatabaseDir resolves the database directory.
func (c Config) DatabaseDir() string {
	if c.Database.Dir != "" {
		return c.Database.Dir
	}
	return filepath.Join(Home(), "data")
}

// ToLedger converts the [ledger] section. Validate must have passed.
func (c Config) ToLedger() ledger.Config {
	rounding, _ := domain.ParseRounding(c.Ledger.Rounding)
	return ledger.Config{
		AddressPrefix:  c.Ledger.AddressPrefix,
		NameCost:       decimal.NewFromFloat(c.Ledger.NameCost).Round(domain.AmountPlaces),
		InitialBalance: decimal.NewFromFloat(c.Ledger.InitialBalance).Round(domain.AmountPlaces),
		Rounding:       rounding,
	}
}

// ToSession converts the [session] section.
func (c Config) ToSession() session.Config {
	return session.Config{
		Expiry:        mustDuration(c.Session.Expiry),
		SweepInterval: mustDuration(c.Session.SweepInterval),
		SendTimeout:   mustDuration(c.Session.SendTimeout),
		FanOutLimit:   c.Session.FanOutLimit,
	}
}

// ToAPI converts the [api], [metrics] and [internal] sections.
func (c Config) ToAPI() api.Config {
	return api.Config{
		PublicURL:      c.API.PublicURL,
		PublicWSURL:    c.API.PublicWSURL,
		MOTD:           c.API.MOTD,
		Work:           c.Ledger.Work,
		MetricsEnabled: c.Metrics.Enabled,
		InternalKey:    c.Internal.Key,
		RequestTimeout: mustDuration(c.API.RequestTimeout),
	}
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

// mustDuration returns zero for invalid input; consumers fall back to
// their own defaults.
func mustDuration(s string) time.Duration {
	d, _ := parseDuration(s)
	return d
}
