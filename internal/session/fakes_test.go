// ABOUTME: Test doubles for session tests: recording Conn, scripted runners and factory
// ABOUTME: Shared helpers build Deps on top of MockStore and a fast-polling asset service

package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/appstream-gateway/internal/assets"
	"github.com/2389/appstream-gateway/internal/auth"
	"github.com/2389/appstream-gateway/internal/connections"
	"github.com/2389/appstream-gateway/internal/runner"
	"github.com/2389/appstream-gateway/internal/store"
)

const waitFor = 2 * time.Second

type fakeConn struct {
	mu         sync.Mutex
	texts      [][]byte
	binaries   [][]byte
	closed     bool
	code       int
	closes     int
	lateWrites int
}

func (c *fakeConn) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.lateWrites++
		return ErrConnClosed
	}
	c.texts = append(c.texts, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) WriteBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.lateWrites++
		return ErrConnClosed
	}
	c.binaries = append(c.binaries, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close(code int, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	if c.closed {
		return ErrConnClosed
	}
	c.closed = true
	c.code = code
	return nil
}

func (c *fakeConn) frames(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.texts))
	for _, raw := range c.texts {
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) rawTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.texts))
	for i, raw := range c.texts {
		out[i] = string(raw)
	}
	return out
}

func (c *fakeConn) binaryFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.binaries...)
}

func (c *fakeConn) textCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.texts)
}

func (c *fakeConn) lateWriteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lateWrites
}

func (c *fakeConn) closeState() (closed bool, code, closes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.code, c.closes
}

func (c *fakeConn) waitTexts(t *testing.T, n int) []map[string]any {
	t.Helper()
	require.Eventually(t, func() bool { return c.textCount() >= n }, waitFor, 5*time.Millisecond,
		"expected %d text frames", n)
	return c.frames(t)
}

func (c *fakeConn) waitClosed(t *testing.T) int {
	t.Helper()
	require.Eventually(t, func() bool {
		closed, _, _ := c.closeState()
		return closed
	}, waitFor, 5*time.Millisecond, "connection not closed")
	_, code, _ := c.closeState()
	return code
}

// fakeRunner replays script for each Run. When feed is set, Run hands it to
// the caller instead so the test controls timing.
type fakeRunner struct {
	mu       sync.Mutex
	script   []*runner.Response
	feed     chan *runner.Response
	runErr   error
	requests []*runner.Request
	stops    int
}

func (r *fakeRunner) Run(ctx context.Context, req *runner.Request) (<-chan *runner.Response, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	script, feed, runErr := r.script, r.feed, r.runErr
	r.mu.Unlock()

	if runErr != nil {
		return nil, runErr
	}
	if feed != nil {
		return feed, nil
	}

	ch := make(chan *runner.Response)
	go func() {
		defer close(ch)
		for _, resp := range script {
			select {
			case ch <- resp:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (r *fakeRunner) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *fakeRunner) stopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

func (r *fakeRunner) requestsSeen() []*runner.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*runner.Request(nil), r.requests...)
}

// fakeFactory hands out runners from newRunner, or fails with err.
type fakeFactory struct {
	mu        sync.Mutex
	err       error
	newRunner func(req *runner.FactoryRequest) *fakeRunner
	requests  []*runner.FactoryRequest
	runners   []*fakeRunner
}

func (f *fakeFactory) GetAppRunner(_ context.Context, req *runner.FactoryRequest) (runner.Runner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	r := &fakeRunner{}
	if f.newRunner != nil {
		r = f.newRunner(req)
	}
	f.runners = append(f.runners, r)
	return r, nil
}

func (f *fakeFactory) seen() ([]*runner.FactoryRequest, []*fakeRunner) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*runner.FactoryRequest(nil), f.requests...), append([]*fakeRunner(nil), f.runners...)
}

func scripted(responses ...*runner.Response) *fakeFactory {
	return &fakeFactory{newRunner: func(*runner.FactoryRequest) *fakeRunner {
		return &fakeRunner{script: responses}
	}}
}

type testEnv struct {
	deps   Deps
	store  *store.MockStore
	assets *assets.Service
}

func newTestEnv(t *testing.T, factory runner.Factory) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMockStore()
	svc := assets.NewService(st, logger)
	svc.SetPollInterval(10 * time.Millisecond)
	t.Cleanup(svc.Close)

	return &testEnv{
		store:  st,
		assets: svc,
		deps: Deps{
			Factory:     factory,
			Assets:      svc,
			Connections: st,
			Activation:  connections.DefaultRegistry(),
			Policies:    DefaultPolicies(),
			Voice:       DefaultVoice(),
			Logger:      logger,
		},
	}
}

func anonymousInfo() Info {
	return Info{
		Request:   runner.RequestMeta{IP: "203.0.113.7", UserAgent: "test"},
		VisitorID: "prid-1",
	}
}

func userInfo(id string) Info {
	info := anonymousInfo()
	info.User = &auth.User{ID: id, Username: id + "-name", Email: id + "@example.com"}
	return info
}

// accepted connects and accepts s on a new fakeConn.
func accepted(t *testing.T, s Session) *fakeConn {
	t.Helper()
	require.NoError(t, s.Connect(context.Background()))
	conn := &fakeConn{}
	s.Accept(context.Background(), conn)
	t.Cleanup(func() { s.Disconnect(CloseNormal) })
	return conn
}

func text(s string) Message {
	return Message{Data: []byte(s)}
}

func binary(s string) Message {
	return Message{Binary: true, Data: []byte(s)}
}
