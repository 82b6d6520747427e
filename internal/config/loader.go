package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration from the YAML file at path (skipped when
// path is empty), overlays environment variables, fills defaults and
// validates the result.
//
// Callers that want a .env file honoured load it into the process
// environment beforehand (cmd/sumirevox uses godotenv).
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults and validates
// the result. The environment is not consulted, which keeps tests that build
// configs from string literals deterministic.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. Only variables that are
// set replace file values.
func ApplyEnv(cfg *Config) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("config: read env: %w", err)
	}
	return nil
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Voicevox.URL == "" {
		cfg.Voicevox.URL = DefaultVoicevoxURL
	}
	if cfg.Voicevox.Timeout == 0 {
		cfg.Voicevox.Timeout = DefaultVoicevoxTimeout
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverPostgres
	}
	if cfg.Storage.PostgresHost == "" {
		cfg.Storage.PostgresHost = "localhost"
	}
	if cfg.Storage.PostgresPort == 0 {
		cfg.Storage.PostgresPort = DefaultPostgresPort
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = DefaultSQLitePath
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Voicevox
	if cfg.Voicevox.URL != "" && !strings.HasPrefix(cfg.Voicevox.URL, "http://") && !strings.HasPrefix(cfg.Voicevox.URL, "https://") {
		errs = append(errs, fmt.Errorf("voicevox.url %q must be an http or https URL", cfg.Voicevox.URL))
	}
	if cfg.Voicevox.Timeout < 0 {
		errs = append(errs, fmt.Errorf("voicevox.timeout must not be negative, got %s", cfg.Voicevox.Timeout))
	}
	if cfg.Voicevox.AccentType < 0 {
		errs = append(errs, fmt.Errorf("voicevox.accent_type must not be negative, got %d", cfg.Voicevox.AccentType))
	}

	// Storage
	switch {
	case cfg.Storage.Driver == "":
	case !cfg.Storage.Driver.IsValid():
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: postgres, sqlite", cfg.Storage.Driver))
	case cfg.Storage.Driver == DriverPostgres && cfg.Storage.PostgresDSN == "" && cfg.Storage.PostgresDB == "":
		errs = append(errs, errors.New("storage: postgres driver requires postgres_dsn or postgres_db"))
	case cfg.Storage.Driver == DriverSQLite && cfg.Storage.SQLitePath == "":
		errs = append(errs, errors.New("storage: sqlite driver requires sqlite_path"))
	}
	if cfg.Storage.PostgresPort < 0 || cfg.Storage.PostgresPort > 65535 {
		errs = append(errs, fmt.Errorf("storage.postgres_port %d is out of range", cfg.Storage.PostgresPort))
	}

	// Admin
	if (cfg.Admin.User == "") != (cfg.Admin.Password == "") {
		errs = append(errs, errors.New("admin: user and password must be set together"))
	}

	// At least one surface must be reachable.
	if cfg.Discord.Token == "" && !(cfg.Server.HTTPEnabled() && cfg.Admin.Enabled()) {
		errs = append(errs, errors.New("nothing to run: set discord.token or admin credentials"))
	}

	return errors.Join(errs...)
}
