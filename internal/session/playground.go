// ABOUTME: Playground session: every run builds its own runner for a processor/provider pair
// ABOUTME: Runs report the complete output as a done frame carrying the chunks

package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/2389/appstream-gateway/internal/runner"
)

// PlaygroundSession exercises a single processor without an app. The target
// is chosen per run, so each run gets a fresh runner and session id.
type PlaygroundSession struct {
	*Base
	deps   Deps
	info   Info
	source *runner.PlaygroundSource

	mu      sync.Mutex
	runner  runner.Runner
	stopped runner.Runner // stopped by Disconnect
}

// NewPlaygroundSession creates a playground session.
func NewPlaygroundSession(deps Deps, info Info) *PlaygroundSession {
	return &PlaygroundSession{
		Base: newBase(uuid.New().String(), "playground", deps.logger()),
		deps: deps,
		info: info,
		source: &runner.PlaygroundSource{
			RequestMeta: info.Request,
			UserEmail:   info.User.EmailOrEmpty(),
			User:        info.User,
		},
	}
}

// Connect checks limits. Runners are built per run.
func (s *PlaygroundSession) Connect(ctx context.Context) error {
	return s.deps.admit(ctx, s.info)
}

// Accept marks the session live on conn.
func (s *PlaygroundSession) Accept(ctx context.Context, conn Conn) {
	s.accept(ctx, conn)
}

// Receive starts a run for every frame except stop. Frames without an event
// name are treated as runs.
func (s *PlaygroundSession) Receive(msg Message) {
	if msg.Binary || !s.Connected() {
		return
	}
	f, err := ParseFrame(msg.Data)
	if err != nil {
		s.logger.Debug("ignoring malformed frame", "error", err)
		return
	}

	switch f.Event {
	case EventStop:
		s.Disconnect(CloseNormal)
	case EventRun, "":
		s.spawn(EventRun, func(ctx context.Context) {
			s.report(ctx, s.deps.Policies, &Frame{ID: f.ID, Event: EventRun}, s.run(ctx, f))
		})
	default:
		s.logger.Debug("ignoring unknown event", "event", f.Event)
	}
}

// Disconnect ends the session and stops the newest runner.
func (s *PlaygroundSession) Disconnect(code int) {
	if !s.shutdown(code, "") {
		return
	}
	s.mu.Lock()
	r := s.runner
	s.runner = nil
	s.stopped = r
	s.mu.Unlock()
	stopRunner(s.logger, r)
}

type playgroundInput struct {
	BackendSlug  string         `json:"api_backend_slug"`
	ProviderSlug string         `json:"api_provider_slug"`
	Input        map[string]any `json:"input"`
	Config       map[string]any `json:"config"`
}

func (s *PlaygroundSession) run(ctx context.Context, f *Frame) error {
	var in playgroundInput
	if err := f.decodeInput(&in); err != nil {
		return err
	}
	if in.Input == nil {
		in.Input = map[string]any{}
	}
	if in.Config == nil {
		in.Config = map[string]any{}
	}

	if err := s.deps.admit(ctx, s.info); err != nil {
		return err
	}

	sessionID := uuid.New().String()
	source := s.source.WithTarget(sessionID, in.BackendSlug, in.ProviderSlug)

	ctx, span := tracer.Start(ctx, "session.playground_run")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", s.id),
		attribute.String("playground.target", source.ID()),
	)

	r, err := s.deps.Factory.GetAppRunner(ctx, &runner.FactoryRequest{
		SessionID: sessionID,
		Target:    source.ID(),
		Source:    source,
		Input:     in.Input,
		Config:    in.Config,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return classifyFactoryError(err)
	}
	s.setRunner(r)
	defer s.releaseRunner(r)

	s.deps.recordRun(ctx, s.info, s.flavor)
	responses, err := r.Run(ctx, &runner.Request{
		ClientRequestID: f.RequestID(),
		SessionID:       sessionID,
		Input:           in.Input,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return newError(ExecutionFailure, EventRun, err)
	}
	s.dispatch(ctx, f.ID, responses, batchMode)
	return nil
}

// setRunner makes r the handle Disconnect stops. The previous handle belongs
// to its own run, which stops it when it finishes.
func (s *PlaygroundSession) setRunner(r runner.Runner) {
	s.mu.Lock()
	s.runner = r
	s.mu.Unlock()
}

// releaseRunner stops r once its run is over, unless Disconnect already did.
func (s *PlaygroundSession) releaseRunner(r runner.Runner) {
	s.mu.Lock()
	if s.runner == r {
		s.runner = nil
	}
	stopped := s.stopped == r
	s.mu.Unlock()
	if !stopped {
		stopRunner(s.logger, r)
	}
}
