// ABOUTME: Contracts between the session gateway and the app execution engine
// ABOUTME: Runner streams responses for a request; Factory builds runners per session

package runner

import (
	"context"
	"errors"
)

var (
	// ErrAppNotFound is returned by a Factory when the target app cannot be resolved.
	ErrAppNotFound = errors.New("app not found")

	// ErrPermissionDenied is returned by a Factory when the caller may not run the target.
	ErrPermissionDenied = errors.New("permission denied")
)

// Request correlates one inbound run event with a unit of work.
type Request struct {
	ClientRequestID string         `json:"client_request_id,omitempty"`
	SessionID       string         `json:"session_id"`
	Input           map[string]any `json:"input"`
}

// Runner is an execution-run handle owned by exactly one session.
type Runner interface {
	// Run starts the request and returns a lazy, finite, non-restartable
	// response sequence. The channel is closed after the last response.
	// Implementations must stop sending when ctx is done.
	Run(ctx context.Context, req *Request) (<-chan *Response, error)

	// Stop asks the engine to tear the run down. It is best-effort.
	Stop(ctx context.Context) error
}

// FactoryRequest carries everything the engine needs to build a Runner.
type FactoryRequest struct {
	SessionID string
	Target    string // app uuid, store slug, or "provider/processor"
	Source    Source
	Preview   bool

	// Playground only.
	Input  map[string]any
	Config map[string]any

	// ConfigOverride adjusts app data config (the Twilio audio formats).
	ConfigOverride map[string]any
}

// Factory builds execution-run handles. It may fail on authorization or config problems.
type Factory interface {
	GetAppRunner(ctx context.Context, req *FactoryRequest) (Runner, error)
}
