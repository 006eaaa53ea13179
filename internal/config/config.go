// Package config loads the vault configuration from an optional TOML file
// and GENVAULT_* environment variables. The environment wins.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/Hussein-Mazeh/genvault/internal/vault"
	"github.com/Hussein-Mazeh/genvault/krypto"
)

// FileName is the config file looked up inside the vault directory.
const FileName = "genvault.toml"

// Backends accepted in Config.Backend.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Config holds the resolved settings.
type Config struct {
	Dir           string
	Backend       string
	SessionTTL    time.Duration
	KDFIterations int
	LogLevel      zerolog.Level
}

// fileConfig mirrors the TOML layout. Pointers tell unset keys apart.
type fileConfig struct {
	Dir           *string `toml:"dir"`
	Backend       *string `toml:"backend"`
	SessionTTL    *string `toml:"session_ttl"`
	KDFIterations *int    `toml:"kdf_iterations"`
	LogLevel      *string `toml:"log_level"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Dir:           "./vault",
		Backend:       BackendSQLite,
		SessionTTL:    vault.DefaultSessionTTL,
		KDFIterations: krypto.DefaultIterations,
		LogLevel:      zerolog.WarnLevel,
	}
}

// KDFParams returns the key derivation parameters for this config.
func (c *Config) KDFParams() krypto.PBKDF2Params {
	return krypto.PBKDF2Params{Iterations: c.KDFIterations}
}

// Load resolves the configuration. With an empty path it reads FileName
// from the vault directory if present; an explicit path must exist.
// Recognised variables: GENVAULT_DIR, GENVAULT_BACKEND, GENVAULT_SESSION_TTL,
// GENVAULT_KDF_ITERATIONS and GENVAULT_LOG_LEVEL.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		dir := cfg.Dir
		if v, ok := os.LookupEnv("GENVAULT_DIR"); ok && v != "" {
			dir = v
		}
		path = filepath.Join(dir, FileName)
	}

	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if fc.Dir != nil {
		c.Dir = *fc.Dir
	}
	if fc.Backend != nil {
		c.Backend = *fc.Backend
	}
	if fc.SessionTTL != nil {
		d, err := time.ParseDuration(*fc.SessionTTL)
		if err != nil {
			return fmt.Errorf("config %s: session_ttl has invalid duration %q: %w", path, *fc.SessionTTL, err)
		}
		c.SessionTTL = d
	}
	if fc.KDFIterations != nil {
		c.KDFIterations = *fc.KDFIterations
	}
	if fc.LogLevel != nil {
		lvl, err := zerolog.ParseLevel(*fc.LogLevel)
		if err != nil {
			return fmt.Errorf("config %s: log_level: %w", path, err)
		}
		c.LogLevel = lvl
	}
	return nil
}

func (c *Config) loadEnv() error {
	if v, ok := os.LookupEnv("GENVAULT_DIR"); ok && v != "" {
		c.Dir = v
	}
	if v, ok := os.LookupEnv("GENVAULT_BACKEND"); ok && v != "" {
		c.Backend = v
	}
	if v, ok := os.LookupEnv("GENVAULT_SESSION_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GENVAULT_SESSION_TTL has invalid duration %q: %w", v, err)
		}
		c.SessionTTL = d
	}
	if v, ok := os.LookupEnv("GENVAULT_KDF_ITERATIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GENVAULT_KDF_ITERATIONS has invalid value %q: %w", v, err)
		}
		c.KDFIterations = n
	}
	if v, ok := os.LookupEnv("GENVAULT_LOG_LEVEL"); ok {
		lvl, err := zerolog.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("GENVAULT_LOG_LEVEL: %w", err)
		}
		c.LogLevel = lvl
	}
	return nil
}

// Validate rejects settings the vault cannot run with.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return errors.New("dir must not be empty")
	}
	switch c.Backend {
	case BackendSQLite, BackendBolt:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendSQLite, BackendBolt, c.Backend)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %s", c.SessionTTL)
	}
	if err := c.KDFParams().Validate(); err != nil {
		return fmt.Errorf("kdf_iterations: %w", err)
	}
	return nil
}
