// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, defaults, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/2389/appstream-gateway/internal/audio"
	"github.com/2389/appstream-gateway/internal/ratelimit"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "127.0.0.1:9090"
  read_header_timeout: "3s"
  allowed_origins:
    - "https://app.example.com"

database:
  path: "./test.db"

auth:
  jwt_secret: "secret"
  prid_cookie: "visitor"

sessions:
  surface_run_errors: true
  activation_poll_interval: "50ms"

engine:
  mode: "echo"
  chunk_delay: "0s"

ratelimit:
  strategy: "token_bucket"
  requests_per_second: 2.5
  burst: 4
  monthly_run_quota: 100

voice:
  input_format: "linear16"
  input_sample_rate: 16000
  output_format: "linear16"
  output_sample_rate: 24000

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9090" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:9090")
	}
	if cfg.Server.ReadHeaderTimeout != 3*time.Second {
		t.Errorf("Server.ReadHeaderTimeout = %v, want 3s", cfg.Server.ReadHeaderTimeout)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.JWTSecret != "secret" || cfg.Auth.PridCookie != "visitor" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if !cfg.Sessions.SurfaceRunErrors {
		t.Error("Sessions.SurfaceRunErrors = false, want true")
	}
	if cfg.Sessions.ActivationPollInterval != 50*time.Millisecond {
		t.Errorf("Sessions.ActivationPollInterval = %v, want 50ms", cfg.Sessions.ActivationPollInterval)
	}
	if cfg.Engine.ChunkDelay != 0 {
		t.Errorf("Engine.ChunkDelay = %v, want 0", cfg.Engine.ChunkDelay)
	}

	opts := cfg.RateLimit.Options()
	want := ratelimit.Options{Strategy: "token_bucket", RequestsPerSecond: 2.5, Burst: 4, MonthlyRunQuota: 100}
	if opts != want {
		t.Errorf("RateLimit.Options() = %+v, want %+v", opts, want)
	}

	in, out, err := cfg.Voice.Encodings()
	if err != nil {
		t.Fatalf("Voice.Encodings() error = %v", err)
	}
	if in.SampleRate != 16000 || in.Format != audio.EncodingLinear16 {
		t.Errorf("voice input = %v", in)
	}
	if out.SampleRate != 24000 || out.Format != audio.EncodingLinear16 {
		t.Errorf("voice output = %v", out)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
database:
  path: "/tmp/appstream.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want default", cfg.Server.HTTPAddr)
	}
	if cfg.Server.ReadHeaderTimeout != 10*time.Second {
		t.Errorf("Server.ReadHeaderTimeout = %v, want 10s", cfg.Server.ReadHeaderTimeout)
	}
	if cfg.Engine.Mode != EngineModeEcho || cfg.Engine.ChunkDelay != 20*time.Millisecond {
		t.Errorf("Engine = %+v", cfg.Engine)
	}
	if cfg.Sessions.SurfaceRunErrors {
		t.Error("run errors should be swallowed by default")
	}
	if cfg.Sessions.ActivationPollInterval != 10*time.Millisecond {
		t.Errorf("Sessions.ActivationPollInterval = %v, want 10ms", cfg.Sessions.ActivationPollInterval)
	}
	if cfg.RateLimit.Strategy != ratelimit.StrategyNone {
		t.Errorf("RateLimit.Strategy = %q, want none", cfg.RateLimit.Strategy)
	}
	if cfg.Auth.PridCookie != "prid" {
		t.Errorf("Auth.PridCookie = %q, want prid", cfg.Auth.PridCookie)
	}

	in, out, err := cfg.Voice.Encodings()
	if err != nil {
		t.Fatalf("Voice.Encodings() error = %v", err)
	}
	if in.EngineFormatName() != "pcm16" || out.EngineFormatName() != "g711_ulaw" {
		t.Errorf("default voice formats = %s, %s", in.EngineFormatName(), out.EngineFormatName())
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "gateway.toml", `
[server]
http_addr = "127.0.0.1:7000"

[database]
path = "./toml.db"

[ratelimit]
strategy = "token_bucket"
burst = 3

[logging]
level = "warn"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:7000" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Path != "./toml.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.RateLimit.Strategy != "token_bucket" || cfg.RateLimit.Burst != 3 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.RequestsPerSecond != 5 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want default 5", cfg.RateLimit.RequestsPerSecond)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_APPSTREAM_SECRET", "from-env")
	t.Setenv("TEST_APPSTREAM_ADDR", "127.0.0.1:1234")

	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "${TEST_APPSTREAM_ADDR}"
database:
  path: "./test.db"
auth:
  jwt_secret: "${TEST_APPSTREAM_SECRET}"
  prid_cookie: "${TEST_APPSTREAM_UNSET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("Auth.JWTSecret = %q, want from-env", cfg.Auth.JWTSecret)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:1234" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Auth.PridCookie != "" {
		t.Errorf("unset variables expand to empty, got %q", cfg.Auth.PridCookie)
	}
}

func TestLoad_DatabasePathOverrides(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
database:
  path: "~/appstream/gateway.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, "appstream", "gateway.db"); cfg.Database.Path != want {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, want)
	}

	t.Setenv("APPSTREAM_DB_PATH", "/srv/override.db")
	cfg, err = Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/srv/override.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
}

func TestDefaultDatabasePath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DefaultDatabasePath(); got != "/data/appstream/gateway.db" {
		t.Errorf("DefaultDatabasePath() = %q", got)
	}

	t.Setenv("XDG_DATA_HOME", "")
	if got := DefaultDatabasePath(); !strings.HasPrefix(got, "~") {
		t.Errorf("DefaultDatabasePath() = %q, want a home-relative path", got)
	}
}

func TestLoad_InvalidConfigs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing http addr",
			content: "server:\n  http_addr: \"\"\ndatabase:\n  path: ./x.db\n",
			wantErr: "server.http_addr is required",
		},
		{
			name:    "unknown strategy",
			content: "database:\n  path: ./x.db\nratelimit:\n  strategy: leaky\n",
			wantErr: "ratelimit.strategy",
		},
		{
			name:    "negative quota",
			content: "database:\n  path: ./x.db\nratelimit:\n  monthly_run_quota: -1\n",
			wantErr: "monthly_run_quota",
		},
		{
			name:    "unknown engine",
			content: "database:\n  path: ./x.db\nengine:\n  mode: remote\n",
			wantErr: "engine.mode",
		},
		{
			name:    "mulaw at wideband rate",
			content: "database:\n  path: ./x.db\nvoice:\n  output_format: mulaw\n  output_sample_rate: 16000\n",
			wantErr: "voice output",
		},
		{
			name:    "unknown voice format",
			content: "database:\n  path: ./x.db\nvoice:\n  input_format: opus\n",
			wantErr: "voice input",
		},
		{
			name:    "bad duration",
			content: "database:\n  path: ./x.db\nengine:\n  chunk_delay: soon\n",
			wantErr: "engine.chunk_delay",
		},
		{
			name:    "negative duration",
			content: "database:\n  path: ./x.db\nsessions:\n  activation_poll_interval: -1s\n",
			wantErr: "must not be negative",
		},
		{
			name:    "bad log format",
			content: "database:\n  path: ./x.db\nlogging:\n  format: xml\n",
			wantErr: "logging.format",
		},
		{
			name:    "malformed yaml",
			content: "server: [",
			wantErr: "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.content))
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFromDefaults(t *testing.T) {
	t.Setenv("APPSTREAM_JWT_SECRET", "env-secret")
	t.Setenv("APPSTREAM_DB_PATH", "/tmp/defaults.db")

	cfg, err := FromDefaults()
	if err != nil {
		t.Fatalf("FromDefaults() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("Auth.JWTSecret = %q, want env-secret", cfg.Auth.JWTSecret)
	}
	if cfg.Database.Path != "/tmp/defaults.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Engine.ChunkDelay != 20*time.Millisecond {
		t.Errorf("Engine.ChunkDelay = %v, want parsed default", cfg.Engine.ChunkDelay)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("Load() error = %v, want reading error", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_EXPAND_A", "alpha")
	got := expandEnvVars("a=${TEST_EXPAND_A} b=${TEST_EXPAND_MISSING} c=$PLAIN")
	if want := "a=alpha b= c=$PLAIN"; got != want {
		t.Errorf("expandEnvVars() = %q, want %q", got, want)
	}
}
