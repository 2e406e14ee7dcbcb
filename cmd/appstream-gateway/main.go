// ABOUTME: Entry point for appstream-gateway streaming server
// ABOUTME: Serves app, playground, voice, asset and connection sessions over websockets

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/appstream-gateway/internal/auth"
	"github.com/2389/appstream-gateway/internal/config"
	"github.com/2389/appstream-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                         _
  __ _ _ __  _ __  ___| |_ _ __ ___  __ _ _ __ ___
 / _' | '_ \| '_ \/ __| __| '__/ _ \/ _' | '_ ' _ \
| (_| | |_) | |_) \__ \ |_| | |  __/ (_| | | | | | |
 \__,_| .__/| .__/|___/\__|_|  \___|\__,_|_| |_| |_|
      |_|   |_|                          gateway
`

// getConfigPath returns the path to the gateway config file.
// Priority: APPSTREAM_CONFIG env var > XDG_CONFIG_HOME/appstream/gateway.yaml > ~/.config/appstream/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("APPSTREAM_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "appstream", "gateway.yaml")
}

// loadConfig loads the config file, or the defaults when no file exists.
func loadConfig(path string) (*config.Config, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg, err := config.FromDefaults()
		if err != nil {
			return nil, false, fmt.Errorf("loading default config: %w", err)
		}
		return cfg, false, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, false, fmt.Errorf("loading config: %w", err)
	}
	return cfg, true, nil
}

func usage() {
	fmt.Println("Usage: appstream-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                  Start the gateway server")
	fmt.Println("  init                   Create a new config file interactively")
	fmt.Println("  token --user ID        Mint a JWT for a user")
	fmt.Println("  health                 Check gateway health")
	fmt.Println("  ready                  Check gateway readiness")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken(os.Args[2:], os.Stdout)
	case "health":
		err = runCheck(ctx, "/health")
	case "ready":
		err = runCheck(ctx, "/health/ready")
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, fromFile, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	if fromFile {
		fmt.Printf("Config:    %s\n", configPath)
	} else {
		fmt.Print("Config:    ")
		yellow.Println("defaults (no config file)")
	}
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Engine:    %s\n", cfg.Engine.Mode)
	green.Print("    ▶ ")
	fmt.Print("Auth:      ")
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("anonymous only")
	} else {
		fmt.Println("JWT")
	}
	if cfg.RateLimit.Strategy != "" && cfg.RateLimit.Strategy != "none" {
		green.Print("    ▶ ")
		fmt.Printf("Limits:    %s ", cfg.RateLimit.Strategy)
		gray.Printf("(%.1f/s, burst %d)\n", cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	fmt.Println()

	logger.Info("starting appstream-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"engine", cfg.Engine.Mode,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// tokenArgs are the flags of the token command.
type tokenArgs struct {
	user     string
	email    string
	username string
	ttl      time.Duration
	secret   string
}

func parseTokenArgs(args []string) (*tokenArgs, error) {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var ta tokenArgs
	fs.StringVar(&ta.user, "user", "", "User ID (token subject)")
	fs.StringVar(&ta.email, "email", "", "User email")
	fs.StringVar(&ta.username, "username", "", "Username")
	fs.DurationVar(&ta.ttl, "ttl", 24*time.Hour, "Token lifetime")
	fs.StringVar(&ta.secret, "secret", "", "Signing secret (defaults to auth.jwt_secret)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	ta.user = strings.TrimSpace(ta.user)
	if ta.user == "" {
		return nil, fmt.Errorf("--user flag is required")
	}
	if ta.ttl <= 0 {
		return nil, fmt.Errorf("--ttl must be positive")
	}
	return &ta, nil
}

// runToken mints a JWT the gateway will accept for the given user.
func runToken(args []string, out io.Writer) error {
	ta, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	secret := ta.secret
	if secret == "" {
		cfg, _, err := loadConfig(getConfigPath())
		if err != nil {
			return err
		}
		secret = cfg.Auth.JWTSecret
	}
	if secret == "" {
		return fmt.Errorf("no signing secret: set auth.jwt_secret or pass --secret")
	}

	token, err := auth.NewJWTVerifier([]byte(secret)).Generate(&auth.User{
		ID:       ta.user,
		Username: ta.username,
		Email:    ta.email,
	}, ta.ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	_, err = fmt.Fprintln(out, token)
	return err
}

// runCheck requests a health endpoint of the configured server.
func runCheck(ctx context.Context, path string) error {
	cfg, _, err := loadConfig(getConfigPath())
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s%s", checkAddr(cfg.Server.HTTPAddr), path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

// checkAddr swaps a wildcard listen host for loopback so the CLI can dial it.
func checkAddr(addr string) string {
	for _, wildcard := range []string{"0.0.0.0:", "[::]:", ":"} {
		if strings.HasPrefix(addr, wildcard) {
			return "127.0.0.1:" + strings.TrimPrefix(addr, wildcard)
		}
	}
	return addr
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("appstream-gateway configuration setup")
	fmt.Println("=====================================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", config.DefaultDatabasePath())

	fmt.Println("\n--- Auth Configuration ---")
	enableAuth := prompt(reader, "Generate a JWT secret?", "yes")
	var jwtSecret string
	if strings.ToLower(enableAuth) == "yes" || strings.ToLower(enableAuth) == "y" {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret = base64.StdEncoding.EncodeToString(secretBytes)
	}

	fmt.Println("\n--- Rate Limits ---")
	strategy := prompt(reader, "Strategy (none/token_bucket)", "none")
	quota := prompt(reader, "Monthly run quota per user (0 = unlimited)", "0")

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	content := renderConfig(httpAddr, dbPath, jwtSecret, strategy, quota, logLevel, logFormat)

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// The file may hold the JWT secret.
	if err := os.WriteFile(outputFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  appstream-gateway serve\n")

	return nil
}

func renderConfig(httpAddr, dbPath, jwtSecret, strategy, quota, logLevel, logFormat string) string {
	var cfg strings.Builder
	cfg.WriteString("# appstream-gateway configuration\n")
	cfg.WriteString("# Generated by appstream-gateway init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: %q\n", httpAddr)
	cfg.WriteString("  read_header_timeout: \"10s\"\n\n")

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n\n", dbPath)

	cfg.WriteString("auth:\n")
	fmt.Fprintf(&cfg, "  jwt_secret: %q\n", jwtSecret)
	cfg.WriteString("  prid_cookie: \"prid\"\n\n")

	cfg.WriteString("sessions:\n")
	cfg.WriteString("  surface_run_errors: false\n")
	cfg.WriteString("  activation_poll_interval: \"10ms\"\n\n")

	cfg.WriteString("engine:\n")
	cfg.WriteString("  mode: \"echo\"\n")
	cfg.WriteString("  chunk_delay: \"20ms\"\n\n")

	cfg.WriteString("ratelimit:\n")
	fmt.Fprintf(&cfg, "  strategy: %q\n", strategy)
	cfg.WriteString("  requests_per_second: 5\n")
	cfg.WriteString("  burst: 10\n")
	fmt.Fprintf(&cfg, "  monthly_run_quota: %s\n\n", quota)

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", logLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", logFormat)

	return cfg.String()
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
