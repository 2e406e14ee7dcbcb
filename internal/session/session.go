// ABOUTME: Session contract, shared collaborators and the base session
// ABOUTME: Base owns liveness, the newest task's cancel func and frame emission

package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/2389/appstream-gateway/internal/assets"
	"github.com/2389/appstream-gateway/internal/audio"
	"github.com/2389/appstream-gateway/internal/connections"
	"github.com/2389/appstream-gateway/internal/ratelimit"
	"github.com/2389/appstream-gateway/internal/runner"
	"github.com/2389/appstream-gateway/internal/store"
)

// stopTimeout bounds best-effort engine and actor teardown on disconnect.
const stopTimeout = 5 * time.Second

// Session is one connection's controller. The gateway calls Connect before
// accepting the transport, Accept once it is upgraded, Receive for every
// inbound frame in arrival order, and Disconnect when the transport ends.
type Session interface {
	ID() string
	Connect(ctx context.Context) error
	Accept(ctx context.Context, conn Conn)
	Receive(msg Message)
	Disconnect(code int)
	Connected() bool
	Done() <-chan struct{}
	Wait()
}

// Voice holds the audio encodings of Twilio sessions.
type Voice struct {
	// Input is what media is converted to before it is appended to the input asset.
	Input audio.EncodingInfo
	// Output is what the engine writes to the output asset.
	Output audio.EncodingInfo
}

// DefaultVoice converts telephony audio to 24kHz PCM and expects the engine
// to emit telephony audio.
func DefaultVoice() Voice {
	return Voice{
		Input:  audio.EncodingInfo{SampleRate: audio.DefaultEngineSampleRate, Format: audio.EncodingLinear16},
		Output: audio.Telephony,
	}
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Factory     runner.Factory
	Assets      *assets.Service
	Limiter     ratelimit.Limiter
	Runs        ratelimit.RunRecorder
	Connections store.ConnectionStore
	Activation  *connections.Registry
	Policies    Policies
	Voice       Voice

	// ActivationPause is the pause after each forwarded activation event.
	ActivationPause time.Duration

	Logger *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// admit refuses callers that are rate or usage limited.
func (d Deps) admit(ctx context.Context, info Info) error {
	if d.Limiter == nil {
		return nil
	}
	if d.Limiter.IsRateLimited(ctx, info.rateKey()) {
		return &Error{Kind: AuthorizationDenied, Op: "connect", Msg: "Rate limit exceeded", Err: ratelimit.ErrRateLimited}
	}
	if d.Limiter.IsUsageLimited(ctx, info.principal()) {
		return &Error{Kind: AuthorizationDenied, Op: "connect", Msg: "Usage limit reached", Err: ratelimit.ErrUsageLimited}
	}
	return nil
}

// recordRun counts a run against the caller's quota.
func (d Deps) recordRun(ctx context.Context, info Info, flavor string) {
	runsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("session.flavor", flavor)))
	if d.Runs == nil {
		return
	}
	if err := d.Runs.RecordRun(ctx, info.principal()); err != nil {
		d.logger().Warn("recording run usage", "error", err)
	}
}

// Base is the state machine every flavor shares.
type Base struct {
	id     string
	flavor string
	logger *slog.Logger

	conn      Conn
	connected atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc

	mu       sync.Mutex
	taskStop context.CancelFunc
	tasks    sync.WaitGroup
	closing  bool // set by shutdown; no tasks start after it

	closeOnce sync.Once
	done      chan struct{}
}

func newBase(id, flavor string, logger *slog.Logger) *Base {
	ctx, cancel := context.WithCancel(context.Background())
	return &Base{
		id:     id,
		flavor: flavor,
		logger: logger.With("component", "session", "flavor", flavor, "session_id", id),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the session id.
func (b *Base) ID() string {
	return b.id
}

// Connected reports the liveness flag.
func (b *Base) Connected() bool {
	return b.connected.Load()
}

// Done is closed once the session has disconnected.
func (b *Base) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until every task spawned by the session has returned.
func (b *Base) Wait() {
	b.tasks.Wait()
}

func (b *Base) accept(ctx context.Context, conn Conn) {
	b.cancel()
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.conn = conn
	b.connected.Store(true)
	activeSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("session.flavor", b.flavor)))
	b.logger.Info("session accepted")
}

// spawn runs fn as the session's newest event task. The previous task keeps
// running until it observes the liveness flag, but only the newest one is
// cancelled explicitly on shutdown.
func (b *Base) spawn(name string, fn func(ctx context.Context)) {
	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(b.ctx)
	b.taskStop = cancel
	b.tasks.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.tasks.Done()
		defer cancel()
		b.logger.Debug("task started", "task", name)
		fn(ctx)
	}()
}

// background runs fn beside the event tasks without replacing the newest one.
func (b *Base) background(fn func(ctx context.Context)) {
	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		return
	}
	b.tasks.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.tasks.Done()
		fn(b.ctx)
	}()
}

// live reports whether output for ctx may still be sent.
func (b *Base) live(ctx context.Context) bool {
	return b.connected.Load() && ctx.Err() == nil
}

// sendJSON emits v as a text frame. It returns false, without writing, once
// the session is no longer live.
func (b *Base) sendJSON(ctx context.Context, v any) bool {
	if !b.live(ctx) {
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("encoding frame", "error", err)
		return false
	}
	return b.write(false, data)
}

// sendBinary emits data as a binary frame under the same liveness rule.
func (b *Base) sendBinary(ctx context.Context, data []byte) bool {
	if !b.live(ctx) {
		return false
	}
	return b.write(true, data)
}

func (b *Base) write(binary bool, data []byte) bool {
	var err error
	if binary {
		err = b.conn.WriteBinary(data)
	} else {
		err = b.conn.WriteText(data)
	}
	if err != nil {
		b.logger.Debug("writing frame", "error", err)
		return false
	}
	return true
}

// shutdown clears the liveness flag, cancels the newest task and closes the
// connection. Only the first call does anything; it reports whether it was first.
func (b *Base) shutdown(code int, reason string) bool {
	first := false
	b.closeOnce.Do(func() {
		first = true
		wasLive := b.connected.Swap(false)

		b.mu.Lock()
		b.closing = true
		if b.taskStop != nil {
			b.taskStop()
		}
		b.mu.Unlock()
		b.cancel()

		if b.conn != nil {
			if err := b.conn.Close(code, reason); err != nil {
				b.logger.Debug("closing connection", "error", err)
			}
		}
		if wasLive {
			activeSessions.Add(context.Background(), -1, metric.WithAttributes(attribute.String("session.flavor", b.flavor)))
		}
		close(b.done)
		b.logger.Info("session disconnected", "code", code)
	})
	return first
}

// report logs an event handler's error and, when the event's policy says so,
// sends it to the client as an errors frame.
func (b *Base) report(ctx context.Context, policies Policies, f *Frame, err error) {
	if err == nil {
		return
	}
	b.logger.Error("event failed",
		"event", f.Event,
		"request_id", f.RequestID(),
		"kind", KindOf(err).String(),
		"error", err)

	if policies.For(f.Event) != Surface {
		return
	}
	msgs := []string{errorMessage(err)}
	if f.Event == EventCreateAsset {
		b.sendJSON(ctx, assetErrorFrame{Errors: msgs, ReplyTo: f.ID, RequestID: f.ID, AssetRequestID: f.ID})
		return
	}
	b.sendJSON(ctx, errorsFrame{Errors: msgs, RequestID: f.ID})
}

// stopRunner asks the engine to tear r down without holding up the caller's context.
func stopRunner(logger *slog.Logger, r runner.Runner) {
	if r == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		logger.Warn("stopping runner", "error", err)
	}
}
