// ABOUTME: Gateway orchestrator that owns the HTTP server and session collaborators
// ABOUTME: Manages store, engine, rate limits, health endpoints and lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/2389/appstream-gateway/internal/assets"
	"github.com/2389/appstream-gateway/internal/auth"
	"github.com/2389/appstream-gateway/internal/config"
	"github.com/2389/appstream-gateway/internal/connections"
	"github.com/2389/appstream-gateway/internal/engine"
	"github.com/2389/appstream-gateway/internal/ratelimit"
	"github.com/2389/appstream-gateway/internal/runner"
	"github.com/2389/appstream-gateway/internal/session"
	"github.com/2389/appstream-gateway/internal/store"
)

// shutdownTimeout bounds graceful shutdown once Run's context is canceled.
const shutdownTimeout = 5 * time.Second

// Gateway serves websocket sessions and health checks.
type Gateway struct {
	config     *config.Config
	store      store.Store
	assets     *assets.Service
	limits     *ratelimit.Policy
	deps       session.Deps
	verifier   auth.TokenVerifier
	upgrader   websocket.Upgrader
	httpServer *http.Server
	logger     *slog.Logger

	// ctx parents every accepted session; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]session.Session

	shutdownOnce sync.Once
	shutdownErr  error
}

// initStore opens the SQLite database named by the config.
func initStore(cfg *config.Config) (store.Store, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Gateway backed by the configured SQLite database.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	gw, err := NewWithStore(cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// NewWithStore creates a Gateway on an existing store. The gateway owns s
// and closes it on Shutdown.
func NewWithStore(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	limits, err := ratelimit.New(cfg.RateLimit.Options(), s, logger.With("component", "ratelimit"))
	if err != nil {
		return nil, fmt.Errorf("creating rate limiter: %w", err)
	}

	voiceIn, voiceOut, err := cfg.Voice.Encodings()
	if err != nil {
		limits.Close()
		return nil, err
	}

	assetSvc := assets.NewService(s, logger.With("component", "assets"))

	factory, err := newFactory(cfg, assetSvc, logger)
	if err != nil {
		limits.Close()
		assetSvc.Close()
		return nil, err
	}

	policies := session.DefaultPolicies()
	if cfg.Sessions.SurfaceRunErrors {
		policies[session.EventRun] = session.Surface
	}

	ctx, cancel := context.WithCancel(context.Background())
	gw := &Gateway{
		config: cfg,
		store:  s,
		assets: assetSvc,
		limits: limits,
		deps: session.Deps{
			Factory:         factory,
			Assets:          assetSvc,
			Limiter:         limits,
			Runs:            limits,
			Connections:     s,
			Activation:      connections.DefaultRegistry(),
			Policies:        policies,
			Voice:           session.Voice{Input: voiceIn, Output: voiceOut},
			ActivationPause: cfg.Sessions.ActivationPollInterval,
			Logger:          logger,
		},
		logger:   logger.With("component", "gateway"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]session.Session),
	}

	if cfg.Auth.JWTSecret != "" {
		gw.verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		logger.Info("JWT auth enabled")
	} else {
		logger.Warn("auth disabled - no jwt_secret configured, every caller is anonymous")
	}

	gw.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin(cfg.Server.AllowedOrigins),
	}

	mux := http.NewServeMux()
	gw.registerRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           otelhttp.NewHandler(mux, "appstream-gateway"),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	return gw, nil
}

// newFactory builds the engine selected by engine.mode.
func newFactory(cfg *config.Config, assetSvc *assets.Service, logger *slog.Logger) (runner.Factory, error) {
	switch cfg.Engine.Mode {
	case config.EngineModeEcho:
		return engine.NewEcho(engine.Options{
			ChunkDelay: cfg.Engine.ChunkDelay,
			Assets:     assetSvc,
			Logger:     logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Engine.Mode)
	}
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// startServer serves HTTP on ln in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting connections, disconnects every live session and
// releases resources. Later calls return the first call's result.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.shutdownErr = g.shutdown(ctx)
	})
	return g.shutdownErr
}

func (g *Gateway) shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	// Hijacked websocket connections are not tracked by http.Server.
	live := g.liveSessions()
	for _, sess := range live {
		sess.Disconnect(websocket.CloseGoingAway)
	}
	g.cancel()

	// Session tasks may still be writing to the store.
	errs = appendCloseError(errs, "session drain", waitSessions(ctx, live))

	g.assets.Close()
	g.limits.Close()
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// waitSessions blocks until every task of sessions has returned or ctx ends.
func waitSessions(ctx context.Context, sessions []session.Session) error {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for _, sess := range sessions {
			sess.Wait()
		}
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) track(sess session.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[sess.ID()] = sess
}

func (g *Gateway) untrack(sess session.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, sess.ID())
}

func (g *Gateway) liveSessions() []session.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]session.Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		out = append(out, s)
	}
	return out
}

// SessionCount returns the number of accepted sessions that have not ended.
func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the database answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", g.SessionCount())
}
