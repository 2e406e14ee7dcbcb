// ABOUTME: Activation handlers keyed by connection type slug
// ABOUTME: basic_authentication checks stored credentials; oauth2_authentication runs token grants via x/oauth2

package connections

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TerminateInput is the input value that aborts an activation
const TerminateInput = "terminate"

var (
	// ErrTerminated is returned when the client sends the terminate input
	ErrTerminated = errors.New("activation terminated")

	// ErrMissingConfig is returned when a connection lacks a required configuration value
	ErrMissingConfig = errors.New("missing connection configuration")

	// ErrUnknownType is returned when no handler is registered for a connection type
	ErrUnknownType = errors.New("unknown connection type")
)

// Handler runs the activation flow for one connection type. It reports
// progress through emit and finishes by emitting a Completed event or
// returning an error. emit returns false once the actor is stopping.
type Handler interface {
	Slug() string
	Activate(ctx context.Context, conn *Connection, inputs <-chan string, emit func(Event) bool) error
}

// Registry maps connection type slugs to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a registry holding handlers.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// DefaultRegistry returns a registry with the built-in handlers. Token
// requests go through a traced transport.
func DefaultRegistry() *Registry {
	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "oauth2 token " + r.URL.Host
		}),
	)}
	return NewRegistry(BasicAuthHandler{}, &OAuth2Handler{HTTPClient: client})
}

// Register adds or replaces the handler for h.Slug().
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Slug()] = h
}

// Get returns the handler for slug.
func (r *Registry) Get(slug string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[slug]
	return h, ok
}

// BasicAuthHandler activates username/password connections. The credentials
// are already in the configuration, so activation completes immediately.
type BasicAuthHandler struct{}

func (BasicAuthHandler) Slug() string { return "basic_authentication" }

func (BasicAuthHandler) Activate(ctx context.Context, conn *Connection, _ <-chan string, emit func(Event) bool) error {
	if conn.ConfigString("username") == "" || conn.ConfigString("password") == "" {
		return fmt.Errorf("%w: username and password are required", ErrMissingConfig)
	}

	done := conn.Clone()
	done.Status = StatusActive
	if !emit(&Completed{Connection: done}) {
		return ctx.Err()
	}
	return nil
}

// OAuth2Handler obtains tokens from the connection's token_url. Supported
// grant types are authorization_code, refresh_token and client_credentials.
// An authorization_code grant without a code emits the authorization URL as
// output and waits for the client to send the code as input.
type OAuth2Handler struct {
	// HTTPClient is used for token requests when set.
	HTTPClient *http.Client
}

func (*OAuth2Handler) Slug() string { return "oauth2_authentication" }

func (h *OAuth2Handler) Activate(ctx context.Context, conn *Connection, inputs <-chan string, emit func(Event) bool) error {
	tokenURL := conn.ConfigString("token_url")
	if tokenURL == "" {
		return fmt.Errorf("%w: token_url", ErrMissingConfig)
	}
	if h.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, h.HTTPClient)
	}

	grant, _ := conn.Configuration["grant_type"].(map[string]any)
	grantString := func(key string) string {
		v, _ := grant[key].(string)
		return v
	}

	cfg := &oauth2.Config{
		ClientID:     conn.ConfigString("client_id"),
		ClientSecret: conn.ConfigString("client_secret"),
		Endpoint: oauth2.Endpoint{
			AuthURL:  conn.ConfigString("auth_url"),
			TokenURL: tokenURL,
		},
		RedirectURL: grantString("redirect_uri"),
		Scopes:      scopes(conn.Configuration["scopes"]),
	}

	grantType := grantString("grant_type")
	if grantType == "" {
		if grantString("refresh_token") != "" {
			grantType = "refresh_token"
		} else {
			grantType = "authorization_code"
		}
	}

	var (
		tok *oauth2.Token
		err error
	)
	switch grantType {
	case "client_credentials":
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       cfg.Scopes,
		}
		tok, err = cc.Token(ctx)

	case "refresh_token":
		refresh := grantString("refresh_token")
		if refresh == "" {
			return fmt.Errorf("%w: refresh_token", ErrMissingConfig)
		}
		tok, err = cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()

	case "authorization_code":
		code := grantString("code")
		if code == "" {
			if cfg.Endpoint.AuthURL == "" {
				return fmt.Errorf("%w: auth_url or code", ErrMissingConfig)
			}
			authURL := cfg.AuthCodeURL(uuid.New().String(), oauth2.AccessTypeOffline)
			if !emit(&Output{Data: map[string]any{"auth_url": authURL}}) {
				return ctx.Err()
			}
			code, err = waitForInput(ctx, inputs)
			if err != nil {
				return err
			}
		}
		tok, err = cfg.Exchange(ctx, code)

	default:
		return fmt.Errorf("%w: unsupported grant_type %q", ErrMissingConfig, grantType)
	}
	if err != nil {
		return fmt.Errorf("obtaining %s token: %w", grantType, err)
	}

	done := conn.Clone()
	done.Configuration["token"] = tok.AccessToken
	if !tok.Expiry.IsZero() {
		done.Configuration["expires_at"] = float64(tok.Expiry.Unix())
	}
	if tok.RefreshToken != "" {
		done.Configuration["grant_type"] = map[string]any{
			"grant_type":    "refresh_token",
			"refresh_token": tok.RefreshToken,
		}
	}
	if done.ConfigString("token_prefix") == "" {
		done.Configuration["token_prefix"] = "Bearer"
	}
	done.Status = StatusActive

	if !emit(&Completed{Connection: done}) {
		return ctx.Err()
	}
	return nil
}

// waitForInput blocks for the next non-empty client input.
func waitForInput(ctx context.Context, inputs <-chan string) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case in, ok := <-inputs:
			if !ok {
				return "", ErrTerminated
			}
			in = strings.TrimSpace(in)
			if in == TerminateInput {
				return "", ErrTerminated
			}
			if in != "" {
				return in, nil
			}
		}
	}
}

func scopes(v any) []string {
	switch s := v.(type) {
	case string:
		return strings.Fields(strings.ReplaceAll(s, ",", " "))
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
