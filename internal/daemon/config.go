// Package daemon holds the serve-mode configuration.
// Config lives at ~/.axstore/config.toml; every field has a default so a
// missing file just means "run with defaults".
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/axstore/axstore/internal/domain"
)

// Config is the full daemon configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Store   StoreConfig   `toml:"store"`
	Phone   PhoneConfig   `toml:"phone"`
	Session SessionConfig `toml:"session"`
	Admin   AdminConfig   `toml:"admin"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	Path string `toml:"path"` // sqlite file, default ~/.axstore/axstore.db
}

// PhoneConfig bounds identity normalization.
type PhoneConfig struct {
	CountryCode string `toml:"country_code"`
	MinDigits   int    `toml:"min_digits"`
	MaxDigits   int    `toml:"max_digits"`
}

// SessionConfig configures session cookie signing.
type SessionConfig struct {
	Secret string `toml:"secret"`
}

// AdminConfig guards the /admin endpoints.
type AdminConfig struct {
	Password string `toml:"password"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    8085,
			Metrics: true,
		},
		Store: StoreConfig{
			Path: filepath.Join(homeDir(), ".axstore", "axstore.db"),
		},
		Phone: PhoneConfig{
			CountryCode: "62",
			MinDigits:   10,
			MaxDigits:   15,
		},
		Session: SessionConfig{
			Secret: "change-me",
		},
		Admin: AdminConfig{
			Password: "admin123",
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(homeDir(), ".axstore", "config.toml")
}

// Load reads the config at path, falling back to defaults for anything
// unset. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PhoneOptions converts the phone section to domain options.
func (c Config) PhoneOptions() domain.PhoneOptions {
	opts := domain.DefaultPhoneOptions()
	if c.Phone.CountryCode != "" {
		opts.CountryCode = c.Phone.CountryCode
	}
	if c.Phone.MinDigits > 0 {
		opts.MinDigits = c.Phone.MinDigits
	}
	if c.Phone.MaxDigits > 0 {
		opts.MaxDigits = c.Phone.MaxDigits
	}
	return opts
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
