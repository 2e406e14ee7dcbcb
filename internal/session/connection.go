// ABOUTME: Connection activation session driving a connections.Actor
// ABOUTME: Forwards activation events as success/error/output frames; terminate input disconnects

package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/2389/appstream-gateway/internal/connections"
)

// ErrAnonymous refuses an activation session without an authenticated user.
var ErrAnonymous = errors.New("authentication required")

// ConnectionSession activates one of the caller's connections.
type ConnectionSession struct {
	*Base
	deps   Deps
	info   Info
	connID string
	actor  *connections.Actor
}

// NewConnectionSession creates an activation session for connID.
func NewConnectionSession(deps Deps, info Info, connID string) *ConnectionSession {
	return &ConnectionSession{
		Base:   newBase(uuid.New().String(), "connection", deps.logger()),
		deps:   deps,
		info:   info,
		connID: connID,
	}
}

// Connect refuses anonymous callers and creates the activation actor.
func (s *ConnectionSession) Connect(context.Context) error {
	if s.info.User.IsAnonymous() {
		return newError(AuthorizationDenied, "connect", ErrAnonymous)
	}
	s.actor = connections.NewActor(s.info.User.ID, s.connID, s.deps.Connections, s.deps.Activation, s.logger)
	return nil
}

// Accept marks the session live on conn.
func (s *ConnectionSession) Accept(ctx context.Context, conn Conn) {
	s.accept(ctx, conn)
}

// Receive handles activate and input events.
func (s *ConnectionSession) Receive(msg Message) {
	if msg.Binary || !s.Connected() {
		return
	}
	f, err := ParseFrame(msg.Data)
	if err != nil {
		s.logger.Debug("ignoring malformed frame", "error", err)
		return
	}

	switch f.Event {
	case EventActivate:
		s.spawn(EventActivate, s.activate)

	case EventInput:
		input := f.InputString()
		if input == connections.TerminateInput {
			s.Disconnect(CloseNormal)
			return
		}
		if err := s.actor.Input(input); err != nil {
			s.logger.Warn("delivering activation input", "error", err)
		}

	default:
		s.logger.Debug("ignoring unknown event", "event", f.Event)
	}
}

// Disconnect ends the session, tells a waiting handler to terminate and
// stops the actor.
func (s *ConnectionSession) Disconnect(code int) {
	if !s.shutdown(code, "") || s.actor == nil {
		return
	}
	if err := s.actor.Input(connections.TerminateInput); err != nil {
		s.logger.Debug("delivering terminate", "error", err)
	}
	s.actor.Stop()
}

func (s *ConnectionSession) activate(ctx context.Context) {
	events, err := s.actor.Activate(ctx)
	if err != nil {
		s.logger.Error("starting activation", "error", err)
		return
	}

	for {
		var (
			ev connections.Event
			ok bool
		)
		select {
		case <-ctx.Done():
			return
		case ev, ok = <-events:
			if !ok {
				return
			}
		}
		if !s.live(ctx) {
			return
		}

		switch e := ev.(type) {
		case *connections.Completed:
			active := e.Connection.Status == connections.StatusActive
			if active {
				s.commit(ctx, e.Connection)
			}
			event := "error"
			if active {
				event = "success"
			}
			s.sendJSON(ctx, activationFrame{Event: event})
			s.actor.Stop()
			return

		case *connections.Output:
			s.sendJSON(ctx, activationOutputFrame{Event: "output", Output: nonNil(e.Data)})

		case *connections.Update:
			if e.Connection != nil {
				s.commit(ctx, e.Connection)
			}
			if e.Error != "" {
				s.sendJSON(ctx, activationFrame{Event: "error", Error: e.Error})
			}
		}

		if !s.pause(ctx) {
			return
		}
	}
}

func (s *ConnectionSession) commit(ctx context.Context, conn *connections.Connection) {
	if err := s.actor.SetConnection(ctx, conn); err != nil {
		s.logger.Error("committing connection", "error", err)
	}
}

// pause waits the configured gap between activation events.
func (s *ConnectionSession) pause(ctx context.Context) bool {
	if s.deps.ActivationPause <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.deps.ActivationPause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
