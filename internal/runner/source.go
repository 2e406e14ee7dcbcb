// ABOUTME: Source records describing where an app run request originated
// ABOUTME: Web, Store, Playground, and Twilio flavors with request metadata

package runner

import (
	"github.com/2389/appstream-gateway/internal/auth"
)

// SourceType identifies the frontend that started a run.
type SourceType string

const (
	SourceWeb        SourceType = "web"
	SourcePlayground SourceType = "playground"
	SourceStore      SourceType = "app_store"
	SourceTwilio     SourceType = "twilio"
	SourcePlatform   SourceType = "platform"
)

// Source describes the origin of a session for the execution engine.
type Source interface {
	Type() SourceType
	// ID is the identifier of the target the source points at (app uuid, slug, backend).
	ID() string
	// SessionUser returns the authenticated user, nil when anonymous.
	SessionUser() *auth.User
}

// RequestMeta is the transport metadata captured at connect time.
type RequestMeta struct {
	IP          string `json:"request_ip"`
	Location    string `json:"request_location"`
	UserAgent   string `json:"request_user_agent"`
	ContentType string `json:"request_content_type"`
}

// WebSource is a browser session against an app identified by uuid.
type WebSource struct {
	RequestMeta
	SessionID string     `json:"id"`
	AppUUID   string     `json:"app_uuid"`
	UserEmail string     `json:"request_user_email,omitempty"`
	User      *auth.User `json:"-"`
}

func (s *WebSource) Type() SourceType        { return SourceWeb }
func (s *WebSource) ID() string              { return s.AppUUID }
func (s *WebSource) SessionUser() *auth.User { return s.User }

// StoreSource is a browser session against a published store app identified by slug.
type StoreSource struct {
	RequestMeta
	Slug      string     `json:"slug"`
	UserEmail string     `json:"request_user_email,omitempty"`
	User      *auth.User `json:"-"`
}

func (s *StoreSource) Type() SourceType        { return SourceStore }
func (s *StoreSource) ID() string              { return s.Slug }
func (s *StoreSource) SessionUser() *auth.User { return s.User }

// PlaygroundSource targets a single processor of a provider.
// It is re-derived for every run.
type PlaygroundSource struct {
	RequestMeta
	SessionID     string     `json:"session_id"`
	ProcessorSlug string     `json:"processor_slug"`
	ProviderSlug  string     `json:"provider_slug"`
	UserEmail     string     `json:"request_user_email,omitempty"`
	User          *auth.User `json:"-"`
}

func (s *PlaygroundSource) Type() SourceType        { return SourcePlayground }
func (s *PlaygroundSource) ID() string              { return s.ProviderSlug + "/" + s.ProcessorSlug }
func (s *PlaygroundSource) SessionUser() *auth.User { return s.User }

// WithTarget returns a copy of the source bound to a new session and backend.
func (s *PlaygroundSource) WithTarget(sessionID, processorSlug, providerSlug string) *PlaygroundSource {
	cp := *s
	cp.SessionID = sessionID
	cp.ProcessorSlug = processorSlug
	cp.ProviderSlug = providerSlug
	return &cp
}

// TwilioSource is a voice call routed to an app.
type TwilioSource struct {
	AppUUID        string     `json:"app_uuid"`
	IncomingNumber string     `json:"incoming_number"`
	User           *auth.User `json:"-"`
}

func (s *TwilioSource) Type() SourceType        { return SourceTwilio }
func (s *TwilioSource) ID() string              { return s.AppUUID }
func (s *TwilioSource) SessionUser() *auth.User { return s.User }
