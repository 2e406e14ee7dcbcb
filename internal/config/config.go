// ABOUTME: Configuration loading and parsing for appstream-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/appstream-gateway/internal/audio"
	"github.com/2389/appstream-gateway/internal/ratelimit"
)

// EngineModeEcho is the built-in development engine.
const EngineModeEcho = "echo"

// Config represents the complete appstream-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Sessions  SessionsConfig  `yaml:"sessions" toml:"sessions"`
	Engine    EngineConfig    `yaml:"engine" toml:"engine"`
	RateLimit RateLimitConfig `yaml:"ratelimit" toml:"ratelimit"`
	Voice     VoiceConfig     `yaml:"voice" toml:"voice"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`

	// AllowedOrigins restricts websocket upgrades by Origin header. Empty allows all.
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`

	ReadHeaderTimeout    time.Duration `yaml:"-" toml:"-"`
	ReadHeaderTimeoutRaw string        `yaml:"read_header_timeout" toml:"read_header_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// JWTSecret verifies bearer tokens. Empty treats every caller as anonymous.
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`

	// PridCookie names the anonymous visitor id cookie.
	PridCookie string `yaml:"prid_cookie" toml:"prid_cookie"`
}

// SessionsConfig holds session behavior switches
type SessionsConfig struct {
	// SurfaceRunErrors sends run failures to the client instead of only logging them.
	SurfaceRunErrors bool `yaml:"surface_run_errors" toml:"surface_run_errors"`

	ActivationPollInterval    time.Duration `yaml:"-" toml:"-"`
	ActivationPollIntervalRaw string        `yaml:"activation_poll_interval" toml:"activation_poll_interval"`
}

// EngineConfig selects the execution engine
type EngineConfig struct {
	Mode string `yaml:"mode" toml:"mode"`

	ChunkDelay    time.Duration `yaml:"-" toml:"-"`
	ChunkDelayRaw string        `yaml:"chunk_delay" toml:"chunk_delay"`
}

// RateLimitConfig holds request rate and run quota limits
type RateLimitConfig struct {
	Strategy          string  `yaml:"strategy" toml:"strategy"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
	MonthlyRunQuota   int     `yaml:"monthly_run_quota" toml:"monthly_run_quota"`
}

// VoiceConfig holds the audio encodings of voice sessions. Input is what
// the engine reads from its input asset, output is what it writes.
type VoiceConfig struct {
	InputFormat      string `yaml:"input_format" toml:"input_format"`
	InputSampleRate  int    `yaml:"input_sample_rate" toml:"input_sample_rate"`
	OutputFormat     string `yaml:"output_format" toml:"output_format"`
	OutputSampleRate int    `yaml:"output_sample_rate" toml:"output_sample_rate"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:             "0.0.0.0:8080",
			ReadHeaderTimeoutRaw: "10s",
		},
		Database: DatabaseConfig{Path: DefaultDatabasePath()},
		Auth:     AuthConfig{PridCookie: "prid"},
		Sessions: SessionsConfig{
			ActivationPollIntervalRaw: "10ms",
		},
		Engine: EngineConfig{
			Mode:          EngineModeEcho,
			ChunkDelayRaw: "20ms",
		},
		RateLimit: RateLimitConfig{
			Strategy:          ratelimit.StrategyNone,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Voice: VoiceConfig{
			InputFormat:      string(audio.EncodingLinear16),
			InputSampleRate:  audio.DefaultEngineSampleRate,
			OutputFormat:     string(audio.EncodingMulaw),
			OutputSampleRate: audio.TelephonySampleRate,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromDefaults returns the default configuration with environment overrides
// applied, for running without a config file. APPSTREAM_JWT_SECRET sets the
// token secret.
func FromDefaults() (*Config, error) {
	cfg := Default()
	cfg.Auth.JWTSecret = os.Getenv("APPSTREAM_JWT_SECRET")
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies overrides, parses durations and validates.
func (c *Config) finish() error {
	if p := os.Getenv("APPSTREAM_DB_PATH"); p != "" {
		c.Database.Path = p
	}
	c.Database.Path = expandHome(c.Database.Path)

	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// DefaultDatabasePath returns the SQLite path under the XDG data directory.
// Priority: XDG_DATA_HOME/appstream > ~/.local/share/appstream
func DefaultDatabasePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		dataDir = filepath.Join("~", ".local", "share")
	}
	return filepath.Join(dataDir, "appstream", "gateway.db")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.RateLimit.Strategy {
	case ratelimit.StrategyNone, ratelimit.StrategyTokenBucket:
	default:
		return fmt.Errorf("ratelimit.strategy %q is not one of none, token_bucket", c.RateLimit.Strategy)
	}
	if c.RateLimit.MonthlyRunQuota < 0 {
		return fmt.Errorf("ratelimit.monthly_run_quota must not be negative")
	}

	if c.Engine.Mode != EngineModeEcho {
		return fmt.Errorf("engine.mode %q is not supported (use %q)", c.Engine.Mode, EngineModeEcho)
	}

	if _, _, err := c.Voice.Encodings(); err != nil {
		return err
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// Encodings returns the configured voice input and output encodings.
func (v VoiceConfig) Encodings() (in, out audio.EncodingInfo, err error) {
	in, err = audio.ParseEncoding(v.InputFormat, v.InputSampleRate)
	if err != nil {
		return in, out, fmt.Errorf("voice input: %w", err)
	}
	out, err = audio.ParseEncoding(v.OutputFormat, v.OutputSampleRate)
	if err != nil {
		return in, out, fmt.Errorf("voice output: %w", err)
	}
	return in, out, nil
}

// Options maps the rate limit section onto ratelimit.New options.
func (r RateLimitConfig) Options() ratelimit.Options {
	return ratelimit.Options{
		Strategy:          r.Strategy,
		RequestsPerSecond: r.RequestsPerSecond,
		Burst:             r.Burst,
		MonthlyRunQuota:   r.MonthlyRunQuota,
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.read_header_timeout", cfg.Server.ReadHeaderTimeoutRaw, &cfg.Server.ReadHeaderTimeout},
		{"sessions.activation_poll_interval", cfg.Sessions.ActivationPollIntervalRaw, &cfg.Sessions.ActivationPollInterval},
		{"engine.chunk_delay", cfg.Engine.ChunkDelayRaw, &cfg.Engine.ChunkDelay},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %q", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
