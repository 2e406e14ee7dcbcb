// ABOUTME: Development echo engine implementing runner.Factory
// ABOUTME: Streams string inputs back as cumulative deltas so the gateway runs without a real engine

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/appstream-gateway/internal/assets"
	"github.com/2389/appstream-gateway/internal/runner"
)

var (
	// ErrStopped is returned by Run once the runner has been stopped.
	ErrStopped = errors.New("runner stopped")

	// ErrNoAssets is returned for voice targets when no asset service is configured.
	ErrNoAssets = errors.New("voice runs need an asset service")
)

// DefaultChunkDelay is the pause between streamed chunks used by config defaults.
const DefaultChunkDelay = 20 * time.Millisecond

// Options configures an Echo engine.
type Options struct {
	// ChunkDelay is the pause before each streamed chunk. Zero streams
	// without pausing.
	ChunkDelay time.Duration

	// Assets backs voice runs. Without it Twilio targets are refused.
	Assets *assets.Service

	Logger *slog.Logger
}

// Echo answers every run by echoing its input.
type Echo struct {
	delay  time.Duration
	assets *assets.Service
	logger *slog.Logger
}

// NewEcho creates an echo engine.
func NewEcho(opts Options) *Echo {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Echo{
		delay:  max(opts.ChunkDelay, 0),
		assets: opts.Assets,
		logger: logger.With("component", "engine"),
	}
}

// GetAppRunner builds a runner for req. Preview runs need a signed-in user.
func (e *Echo) GetAppRunner(_ context.Context, req *runner.FactoryRequest) (runner.Runner, error) {
	if req.Target == "" || req.Target == "/" {
		return nil, fmt.Errorf("%w: empty target", runner.ErrAppNotFound)
	}
	kind := sourceType(req)
	if req.Preview && (req.Source == nil || req.Source.SessionUser().IsAnonymous()) {
		return nil, fmt.Errorf("%w: preview of %s requires a signed-in user", runner.ErrPermissionDenied, req.Target)
	}
	if kind == runner.SourceTwilio && e.assets == nil {
		return nil, ErrNoAssets
	}

	e.logger.Info("runner created",
		"session_id", req.SessionID,
		"target", req.Target,
		"source", string(kind),
		"preview", req.Preview)

	return &echoRunner{
		engine: e,
		req:    req,
		logger: e.logger.With("session_id", req.SessionID),
		stop:   make(chan struct{}),
	}, nil
}

func sourceType(req *runner.FactoryRequest) runner.SourceType {
	if req.Source == nil {
		return runner.SourceWeb
	}
	return req.Source.Type()
}

type echoRunner struct {
	engine *Echo
	req    *runner.FactoryRequest
	logger *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// Run starts one echo run. The sequence ends after output_stream_end and
// the complete output, or when ctx ends or the runner is stopped.
func (r *echoRunner) Run(ctx context.Context, req *runner.Request) (<-chan *runner.Response, error) {
	select {
	case <-r.stop:
		return nil, ErrStopped
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan *runner.Response)
	em := &emitter{
		ctx:       ctx,
		out:       out,
		delay:     r.engine.delay,
		runID:     uuid.New().String(),
		requestID: req.ClientRequestID,
	}

	go func() {
		select {
		case <-r.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		defer close(out)
		defer cancel()

		r.logger.Debug("run started", "run_id", em.runID, "request_id", req.ClientRequestID)
		switch sourceType(r.req) {
		case runner.SourcePlayground:
			r.batch(em, req)
		case runner.SourceTwilio:
			r.voice(ctx, em)
		default:
			r.stream(em, req)
		}
	}()

	return out, nil
}

// Stop ends active runs and refuses new ones.
func (r *echoRunner) Stop(context.Context) error {
	r.stopOnce.Do(func() {
		close(r.stop)
		r.logger.Info("runner stopped")
	})
	return nil
}

// stream emits begin, one chunk per character of every field, end, then the
// complete output.
func (r *echoRunner) stream(em *emitter, req *runner.Request) {
	fields := echoFields(req.Input)
	if !em.send(&runner.Response{ID: em.runID, ClientRequestID: em.requestID, Type: runner.ResponseOutputStreamBegin}) {
		return
	}

	for _, key := range slices.Sorted(maps.Keys(fields)) {
		text := []rune(fields[key])
		for i := range text {
			if !em.pause() {
				return
			}
			if !em.send(runner.StreamChunk(em.runID, em.requestID, map[string]string{key: string(text[:i+1])})) {
				return
			}
		}
	}

	if !em.send(runner.StreamEnd(em.runID, em.requestID)) {
		return
	}
	em.send(runner.Output(em.runID, em.requestID, fields, chunks(fields)))
}

// batch emits only the complete output.
func (r *echoRunner) batch(em *emitter, req *runner.Request) {
	fields := echoFields(req.Input)
	if !em.pause() {
		return
	}
	em.send(runner.Output(em.runID, em.requestID, fields, chunks(fields)))
}

// echoFields renders every input value as text. Strings are kept as they
// are; anything else becomes its JSON encoding.
func echoFields(input map[string]any) map[string]string {
	out := make(map[string]string, len(input))
	for k, v := range input {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			out[k] = fmt.Sprint(v)
			continue
		}
		out[k] = string(b)
	}
	return out
}

func chunks(fields map[string]string) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// emitter sends the responses of one run.
type emitter struct {
	ctx       context.Context
	out       chan<- *runner.Response
	delay     time.Duration
	runID     string
	requestID string
}

func (e *emitter) send(resp *runner.Response) bool {
	select {
	case e.out <- resp:
		return true
	case <-e.ctx.Done():
		return false
	}
}

func (e *emitter) pause() bool {
	if e.delay <= 0 {
		return e.ctx.Err() == nil
	}
	t := time.NewTimer(e.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-e.ctx.Done():
		return false
	}
}
