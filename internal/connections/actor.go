// ABOUTME: Connection activation actor: one goroutine per activation driving a Handler
// ABOUTME: Reachable only through Activate, Input, SetConnection and Stop

package connections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/2389/appstream-gateway/internal/store"
)

const (
	inputQueueSize  = 8
	eventBufferSize = 16
)

var (
	// ErrAlreadyActivated is returned when Activate is called twice
	ErrAlreadyActivated = errors.New("activation already started")

	// ErrActorStopped is returned by operations on a stopped actor
	ErrActorStopped = errors.New("activation actor stopped")

	// ErrInputQueueFull is returned when inputs arrive faster than the handler reads them
	ErrInputQueueFull = errors.New("activation input queue full")

	// ErrConnectionNotFound is returned when the connection does not exist or
	// belongs to another user
	ErrConnectionNotFound = errors.New("connection not found")
)

type actorState int

const (
	stateIdle actorState = iota
	stateActivating
	stateStopped
)

// Actor activates one connection for one user.
type Actor struct {
	userID   string
	connID   string
	store    store.ConnectionStore
	registry *Registry
	logger   *slog.Logger

	inputs chan string

	mu     sync.Mutex
	state  actorState
	cancel context.CancelFunc
	done   chan struct{}
}

// NewActor creates an idle actor for connID owned by userID.
func NewActor(userID, connID string, st store.ConnectionStore, registry *Registry, logger *slog.Logger) *Actor {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Actor{
		userID:   userID,
		connID:   connID,
		store:    st,
		registry: registry,
		logger:   logger.With("component", "activation", "connection_id", connID),
		inputs:   make(chan string, inputQueueSize),
		done:     make(chan struct{}),
	}
}

// Activate starts the activation and returns its events in order. The channel
// is closed when the activation finishes or the actor is stopped.
func (a *Actor) Activate(ctx context.Context) (<-chan Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case stateActivating:
		return nil, ErrAlreadyActivated
	case stateStopped:
		return nil, ErrActorStopped
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.state = stateActivating

	events := make(chan Event, eventBufferSize)
	go a.run(runCtx, events)
	return events, nil
}

// Input delivers data to the handler waiting on it.
func (a *Actor) Input(data string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == stateStopped {
		return ErrActorStopped
	}

	select {
	case a.inputs <- data:
		return nil
	default:
		return ErrInputQueueFull
	}
}

// SetConnection commits conn to the store under the actor's user.
func (a *Actor) SetConnection(ctx context.Context, conn *Connection) error {
	if conn.ID == "" {
		conn.ID = a.connID
	}
	rec, err := conn.Record(a.userID)
	if err != nil {
		return err
	}
	if err := a.store.SaveConnection(ctx, rec); err != nil {
		return fmt.Errorf("committing connection %s: %w", conn.ID, err)
	}
	a.logger.Info("connection committed", "status", conn.Status)
	return nil
}

// Stop ends the activation. Calling it more than once is a no-op.
func (a *Actor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == stateStopped {
		return
	}
	prev := a.state
	a.state = stateStopped
	if a.cancel != nil {
		a.cancel()
	}
	if prev == stateIdle {
		close(a.done)
	}
}

// Done is closed once the actor has stopped and its goroutine has exited.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

func (a *Actor) run(ctx context.Context, events chan<- Event) {
	defer close(a.done)
	defer close(events)

	ctx, span := tracer.Start(ctx, "connections.activate")
	defer span.End()
	span.SetAttributes(attribute.String("connection.id", a.connID))

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	conn, err := a.load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.Warn("activation could not load connection", "error", err)
		emit(&Update{Error: err.Error()})
		return
	}
	span.SetAttributes(
		attribute.String("connection.type", conn.TypeSlug),
		attribute.String("connection.provider", conn.ProviderSlug),
	)

	handler, ok := a.registry.Get(conn.TypeSlug)
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownType, conn.TypeSlug)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.fail(ctx, conn, err, emit)
		return
	}

	if err := a.store.UpdateConnectionStatus(ctx, conn.ID, string(StatusConnecting)); err != nil {
		a.logger.Warn("marking connection as connecting", "error", err)
	}
	conn.Status = StatusConnecting

	a.logger.Info("activation started", "type", conn.TypeSlug)
	if err := handler.Activate(ctx, conn, a.inputs, emit); err != nil {
		if ctx.Err() != nil {
			a.logger.Info("activation stopped", "reason", err)
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.fail(ctx, conn, err, emit)
		return
	}
	a.logger.Info("activation finished")
}

func (a *Actor) load(ctx context.Context) (*Connection, error) {
	rec, err := a.store.GetConnection(ctx, a.connID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading connection: %w", err)
	}
	if rec.UserID != a.userID {
		return nil, ErrConnectionNotFound
	}
	return FromRecord(rec)
}

// fail reports err and emits the connection as Failed.
func (a *Actor) fail(ctx context.Context, conn *Connection, err error, emit func(Event) bool) {
	a.logger.Error("activation failed", "error", err)

	if uerr := a.store.UpdateConnectionStatus(ctx, conn.ID, string(StatusFailed)); uerr != nil {
		a.logger.Warn("marking connection as failed", "error", uerr)
	}

	failed := conn.Clone()
	failed.Status = StatusFailed
	if emit(&Update{Error: err.Error()}) {
		emit(&Completed{Connection: failed})
	}
}
