// Package config handles configuration loading for appstream-gateway.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Keys a file leaves out keep the values from Default.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from APPSTREAM_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/appstream/gateway.yaml
//  3. ~/.config/appstream/gateway.yaml
//
// Files ending in .toml are decoded as TOML with the same keys.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${APPSTREAM_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. APPSTREAM_DB_PATH overrides database.path.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  read_header_timeout: "10s"
//	sessions:
//	  activation_poll_interval: "10ms"
//	engine:
//	  chunk_delay: "20ms"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  allowed_origins: ["https://app.example.com"]  # empty allows all
//
// Database:
//
//	database:
//	  path: "~/.local/share/appstream/gateway.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${APPSTREAM_JWT_SECRET}"  # empty: every caller is anonymous
//	  prid_cookie: "prid"
//
// Sessions:
//
//	sessions:
//	  surface_run_errors: false  # true sends run failures to the client
//
// Rate limits:
//
//	ratelimit:
//	  strategy: "token_bucket"  # none, token_bucket
//	  requests_per_second: 5
//	  burst: 10
//	  monthly_run_quota: 0      # 0 = unlimited
//
// Voice:
//
//	voice:
//	  input_format: "linear16"
//	  input_sample_rate: 24000
//	  output_format: "mulaw"
//	  output_sample_rate: 8000
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - server.http_addr and database.path are set
//   - Duration format validity
//   - ratelimit.strategy and engine.mode values
//   - Voice encodings the audio bridge can convert
package config
