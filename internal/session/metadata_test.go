// ABOUTME: Tests for connect-time metadata, frame parsing and the error taxonomy
// ABOUTME: Table tests for client IP resolution and correlation id echoing

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/appstream-gateway/internal/auth"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		realIP     string
		want       string
	}{
		{"forwarded first entry", "198.51.100.1, 10.0.0.1", "10.0.0.2:5000", "", "198.51.100.1"},
		{"peer address", "", "192.0.2.10:4242", "192.0.2.99", "192.0.2.10"},
		{"peer without port", "", "192.0.2.11", "", "192.0.2.11"},
		{"real ip fallback", "", "", "192.0.2.99", "192.0.2.99"},
		{"blank forwarded entry", " , 10.0.0.1", "192.0.2.12:1", "", "192.0.2.12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws/apps/x", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestInfoFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/twilio/app-1", nil)
	r.RemoteAddr = "192.0.2.1:999"
	r.Header.Set("User-Agent", "twilio-media")
	r.Header.Set("X-Client-Geo-Location", "SE")
	r.Header.Set("X-Twilio-Signature", "sig")
	user := &auth.User{ID: "u1", Username: "ada"}
	ctx := auth.WithVisitorID(auth.WithUser(r.Context(), user), "prid-9")

	info := InfoFromRequest(r.WithContext(ctx))
	assert.Equal(t, "192.0.2.1", info.Request.IP)
	assert.Equal(t, "SE", info.Request.Location)
	assert.Equal(t, "twilio-media", info.Request.UserAgent)
	assert.Equal(t, "sig", info.TwilioSignature)
	assert.Equal(t, user, info.User)
	assert.Equal(t, "prid-9", info.VisitorID)
}

func TestInfo_Identity(t *testing.T) {
	anon := anonymousInfo()
	assert.Equal(t, "prid-1", anon.Username())
	assert.Equal(t, "visitor:prid-1", anon.principal())
	assert.Equal(t, "203.0.113.7", anon.rateKey())

	anon.VisitorID = ""
	assert.Equal(t, "ip:203.0.113.7", anon.principal())

	user := userInfo("u1")
	assert.Equal(t, "u1-name", user.Username())
	assert.Equal(t, "u1", user.principal())
	assert.Equal(t, "u1", user.rateKey())

	user.User.Username = ""
	assert.Equal(t, "u1", user.Username())
}

func TestParseFrame_CorrelationIDs(t *testing.T) {
	tests := []struct {
		in        string
		wantID    string
		wantEvent string
	}{
		{`{"id":"abc","event":"run"}`, `"abc"`, "run"},
		{`{"id":42,"event":"run"}`, `42`, "run"},
		{`{"id":{"k":[1,2]},"event":"run"}`, `{"k":[1,2]}`, "run"},
		{`{"id":null,"event":"stop"}`, ``, "stop"},
		{`{"event":"activate"}`, ``, "activate"},
	}

	for _, tt := range tests {
		f, err := ParseFrame([]byte(tt.in))
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.wantID, string(f.ID), tt.in)
		assert.Equal(t, tt.wantEvent, f.Event, tt.in)
	}

	// Echoed ids keep their JSON type
	f, err := ParseFrame([]byte(`{"id":42}`))
	require.NoError(t, err)
	out, err := json.Marshal(doneFrame{Event: "done", RequestID: f.ID})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"done","request_id":42}`, string(out))

	out, err = json.Marshal(doneFrame{Event: "done"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"done","request_id":null}`, string(out))
}

func TestParseFrame_Malformed(t *testing.T) {
	_, err := ParseFrame([]byte(`{"event":`))
	require.Error(t, err)
	assert.Equal(t, ProtocolViolation, KindOf(err))
}

func TestFrame_Inputs(t *testing.T) {
	f, err := ParseFrame([]byte(`{"input":{"q":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"q": "hi"}, f.InputMap())

	f, err = ParseFrame([]byte(`{"input":"terminate"}`))
	require.NoError(t, err)
	assert.Equal(t, "terminate", f.InputString())
	assert.Equal(t, map[string]any{}, f.InputMap())

	f, err = ParseFrame([]byte(`{"input":[1,2]}`))
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", f.InputString())
	assert.Equal(t, map[string]any{}, f.InputMap())

	f, err = ParseFrame([]byte(`{"id":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", f.RequestID())
	assert.Equal(t, "", f.InputString())
}

func TestError_Taxonomy(t *testing.T) {
	base := errors.New("no such app")
	err := fmt.Errorf("connecting: %w", newError(ResolutionFailure, "connect", base))

	assert.Equal(t, ResolutionFailure, KindOf(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "no such app", errorMessage(err))
	assert.Equal(t, ExecutionFailure, KindOf(base))

	withMsg := &Error{Kind: AuthorizationDenied, Op: "connect", Msg: "Rate limit exceeded", Err: base}
	assert.Equal(t, "Rate limit exceeded", errorMessage(withMsg))
	assert.Equal(t, "authorization_denied", withMsg.Kind.String())
}

func TestPolicies(t *testing.T) {
	var p Policies
	assert.Equal(t, Swallow, p.For(EventRun))
	assert.Equal(t, Surface, p.For(EventCreateAsset))
	assert.Equal(t, Swallow, p.For("anything"))

	p = Policies{EventRun: Surface}
	assert.Equal(t, Surface, p.For(EventRun))
	assert.Equal(t, Swallow, p.For(EventCreateAsset))
}
