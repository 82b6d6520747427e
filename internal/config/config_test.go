package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/sumirevox/internal/config"
)

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
discord:
  token: file-token
  admin_role_ids: ["111", "222"]
voicevox:
  url: http://voicevox:50021
  timeout: 3s
  accent_type: 1
storage:
  driver: postgres
  postgres_user: sumire
  postgres_password: "p@ss"
  postgres_db: sumirevox
  postgres_host: db
admin:
  user: admin
  password: secret
  cors_origins: ["https://admin.example"]
`

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if len(cfg.Discord.AdminRoleIDs) != 2 {
		t.Errorf("admin_role_ids = %v, want 2 entries", cfg.Discord.AdminRoleIDs)
	}
	if cfg.Voicevox.Timeout != 3*time.Second || cfg.Voicevox.AccentType != 1 {
		t.Errorf("voicevox = %+v", cfg.Voicevox)
	}
	if cfg.Storage.PostgresPort != config.DefaultPostgresPort {
		t.Errorf("postgres_port = %d, want default %d", cfg.Storage.PostgresPort, config.DefaultPostgresPort)
	}
	if !cfg.Admin.Enabled() {
		t.Error("admin should be enabled")
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("discord:\n  token: t\nstorage:\n  driver: sqlite\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Voicevox.URL != config.DefaultVoicevoxURL || cfg.Voicevox.Timeout != config.DefaultVoicevoxTimeout {
		t.Errorf("voicevox = %+v", cfg.Voicevox)
	}
	if cfg.Storage.SQLitePath != config.DefaultSQLitePath {
		t.Errorf("SQLitePath = %q", cfg.Storage.SQLitePath)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("discord:\n  token: t\n  tokn: typo\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name: "bad log level",
			yaml: "server:\n  log_level: verbose\ndiscord:\n  token: t\nstorage:\n  driver: sqlite\n",
			wantErr: []string{"server.log_level"},
		},
		{
			name: "bad driver",
			yaml: "discord:\n  token: t\nstorage:\n  driver: mysql\n",
			wantErr: []string{"storage.driver"},
		},
		{
			name: "postgres without database",
			yaml: "discord:\n  token: t\n",
			wantErr: []string{"postgres_dsn or postgres_db"},
		},
		{
			name: "voicevox url scheme",
			yaml: "discord:\n  token: t\nvoicevox:\n  url: voicevox:50021\nstorage:\n  driver: sqlite\n",
			wantErr: []string{"voicevox.url"},
		},
		{
			name: "half admin credentials",
			yaml: "discord:\n  token: t\nadmin:\n  user: admin\nstorage:\n  driver: sqlite\n",
			wantErr: []string{"admin: user and password"},
		},
		{
			name: "nothing to run",
			yaml: "storage:\n  driver: sqlite\n",
			wantErr: []string{"nothing to run"},
		},
		{
			name: "admin api only",
			yaml: "admin:\n  user: a\n  password: b\nstorage:\n  driver: sqlite\n",
		},
		{
			name: "multiple errors joined",
			yaml: "server:\n  log_level: loud\nstorage:\n  driver: mysql\n",
			wantErr: []string{"server.log_level", "storage.driver", "nothing to run"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q should mention %q", err, want)
				}
			}
		})
	}
}

func TestStorageConfig_DSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.StorageConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  config.StorageConfig{PostgresDSN: "postgres://x@y/z", PostgresDB: "ignored"},
			want: "postgres://x@y/z",
		},
		{
			name: "assembled with escaped password",
			cfg: config.StorageConfig{
				PostgresUser: "sumire", PostgresPassword: "p@ss",
				PostgresDB: "sumirevox", PostgresHost: "db", PostgresPort: 5432,
			},
			want: "postgres://sumire:p%40ss@db:5432/sumirevox",
		},
		{
			name: "no credentials",
			cfg:  config.StorageConfig{PostgresDB: "sv", PostgresHost: "localhost", PostgresPort: 6543},
			want: "postgres://localhost:6543/sv",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.cfg.DSN(); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAdminConfig_StringRedactsPassword(t *testing.T) {
	t.Parallel()
	s := config.AdminConfig{User: "admin", Password: "hunter2"}.String()
	if strings.Contains(s, "hunter2") {
		t.Errorf("String() leaks password: %s", s)
	}
}

func TestServerConfig_HTTPEnabled(t *testing.T) {
	t.Parallel()
	if (config.ServerConfig{ListenAddr: "-"}).HTTPEnabled() {
		t.Error(`"-" should disable the HTTP server`)
	}
	if !(config.ServerConfig{ListenAddr: ":8080"}).HTTPEnabled() {
		t.Error(":8080 should enable the HTTP server")
	}
}

// Environment tests mutate process state and cannot run in parallel.

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sumirevox.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("VOICEVOX_URL", "http://engine:50021")
	t.Setenv("POSTGRES_PORT", "6432")
	t.Setenv("ADMIN_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "env-token" {
		t.Errorf("Token = %q, want env value", cfg.Discord.Token)
	}
	if cfg.Voicevox.URL != "http://engine:50021" {
		t.Errorf("URL = %q, want env value", cfg.Voicevox.URL)
	}
	if cfg.Storage.PostgresPort != 6432 {
		t.Errorf("PostgresPort = %d, want 6432", cfg.Storage.PostgresPort)
	}
	if len(cfg.Admin.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.Admin.CORSOrigins)
	}
	// Unset variables keep file values.
	if cfg.Admin.User != "admin" || cfg.Storage.PostgresHost != "db" {
		t.Errorf("file values lost: admin=%q host=%q", cfg.Admin.User, cfg.Storage.PostgresHost)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/sv.db")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != config.DriverSQLite || cfg.Storage.SQLitePath != "/tmp/sv.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
