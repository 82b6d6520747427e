// Package config provides the configuration schema and loader for the
// SumireVox bot.
//
// Values come from three layers, lowest first: built-in defaults, an
// optional YAML file and environment variables. See [Load].
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// LogLevel controls log verbosity for the bot.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StorageDriver selects the settings backend.
type StorageDriver string

const (
	// DriverPostgres stores settings in PostgreSQL. Several bot instances
	// serving the same guilds must share one database.
	DriverPostgres StorageDriver = "postgres"

	// DriverSQLite stores settings in a local SQLite file.
	DriverSQLite StorageDriver = "sqlite"
)

// IsValid reports whether d is a recognised storage driver.
func (d StorageDriver) IsValid() bool {
	return d == DriverPostgres || d == DriverSQLite
}

// Defaults applied by [ApplyDefaults] for unset fields.
const (
	DefaultListenAddr      = ":8080"
	DefaultVoicevoxURL     = "http://localhost:50021"
	DefaultVoicevoxTimeout = 10 * time.Second
	DefaultSQLitePath      = "data/sumirevox.db"
	DefaultPostgresPort    = 5432
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  DiscordConfig  `yaml:"discord"`
	Voicevox VoicevoxConfig `yaml:"voicevox"`
	Storage  StorageConfig  `yaml:"storage"`
	Admin    AdminConfig    `yaml:"admin"`
}

// ServerConfig holds the admin HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the admin API, health and metrics
	// endpoints. "-" turns the HTTP server off.
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	LogLevel LogLevel `yaml:"log_level" env:"LOG_LEVEL"`
}

// HTTPEnabled reports whether the admin HTTP server should run.
func (s ServerConfig) HTTPEnabled() bool {
	return s.ListenAddr != "-"
}

// DiscordConfig holds the bot connection settings.
type DiscordConfig struct {
	// Token is the bot token. Without it the Discord gateway is not started
	// and only the admin API runs.
	Token string `yaml:"token" env:"DISCORD_TOKEN"`

	// GuildID registers slash commands to a single guild instead of
	// globally. Guild commands update instantly, which helps development.
	GuildID string `yaml:"guild_id" env:"DISCORD_GUILD_ID"`

	// AdminRoleIDs grants configuration commands to members holding any of
	// these roles in addition to members with the Manage Server permission.
	AdminRoleIDs []string `yaml:"admin_role_ids" env:"DISCORD_ADMIN_ROLE_IDS" env-separator:","`
}

// VoicevoxConfig points at the VOICEVOX engine whose user dictionary the
// bot manages.
type VoicevoxConfig struct {
	URL        string        `yaml:"url" env:"VOICEVOX_URL"`
	Timeout    time.Duration `yaml:"timeout" env:"VOICEVOX_TIMEOUT"`
	AccentType int           `yaml:"accent_type" env:"VOICEVOX_ACCENT_TYPE"`
}

// StorageConfig selects and configures the settings backend.
type StorageConfig struct {
	Driver StorageDriver `yaml:"driver" env:"STORAGE_DRIVER"`

	// PostgresDSN is a complete connection string. When empty the DSN is
	// assembled from the individual Postgres* fields, see [StorageConfig.DSN].
	PostgresDSN      string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	PostgresUser     string `yaml:"postgres_user" env:"POSTGRES_USER"`
	PostgresPassword string `yaml:"postgres_password" env:"POSTGRES_PASSWORD"`
	PostgresDB       string `yaml:"postgres_db" env:"POSTGRES_DB"`
	PostgresHost     string `yaml:"postgres_host" env:"POSTGRES_HOST"`
	PostgresPort     int    `yaml:"postgres_port" env:"POSTGRES_PORT"`

	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
}

// DSN returns the PostgreSQL connection string.
func (s StorageConfig) DSN() string {
	if s.PostgresDSN != "" {
		return s.PostgresDSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(s.PostgresHost, strconv.Itoa(s.PostgresPort)),
		Path:   "/" + s.PostgresDB,
	}
	if s.PostgresUser != "" {
		if s.PostgresPassword != "" {
			u.User = url.UserPassword(s.PostgresUser, s.PostgresPassword)
		} else {
			u.User = url.User(s.PostgresUser)
		}
	}
	return u.String()
}

// AdminConfig guards the admin HTTP API.
type AdminConfig struct {
	// User and Password are the HTTP Basic credentials. Both must be set for
	// the /api routes to be mounted.
	User     string `yaml:"user" env:"ADMIN_USER"`
	Password string `yaml:"password" env:"ADMIN_PASSWORD"`

	// CORSOrigins lists origins allowed to call the admin API from a
	// browser. Empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins" env:"ADMIN_CORS_ORIGINS" env-separator:","`
}

// Enabled reports whether admin credentials are configured.
func (a AdminConfig) Enabled() bool {
	return a.User != "" && a.Password != ""
}

// String redacts the password so the config can be logged.
func (a AdminConfig) String() string {
	pw := ""
	if a.Password != "" {
		pw = "***"
	}
	return fmt.Sprintf("{user:%q password:%q cors_origins:%v}", a.User, pw, a.CORSOrigins)
}
