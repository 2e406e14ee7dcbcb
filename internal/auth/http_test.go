// ABOUTME: Tests for the optional HTTP auth middleware
// ABOUTME: Covers header and query tokens, anonymous fallback, and visitor cookies

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	user *User
	prid string
}

func captureHandler(c *captured) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.user = UserFromContext(r.Context())
		c.prid = VisitorIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestOptionalAuthMiddleware_BearerHeader(t *testing.T) {
	verifier := NewJWTVerifier([]byte("secret"))
	token, err := verifier.Generate(&User{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	var c captured
	h := OptionalAuthMiddleware(verifier, "")(captureHandler(&c))

	req := httptest.NewRequest(http.MethodGet, "/ws/apps/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.NotNil(t, c.user)
	assert.Equal(t, "u1", c.user.ID)
	assert.NotEmpty(t, c.prid)
}

func TestOptionalAuthMiddleware_QueryToken(t *testing.T) {
	verifier := NewJWTVerifier([]byte("secret"))
	token, err := verifier.Generate(&User{ID: "u2"}, time.Hour)
	require.NoError(t, err)

	var c captured
	h := OptionalAuthMiddleware(verifier, "")(captureHandler(&c))

	req := httptest.NewRequest(http.MethodGet, "/ws/apps/x?token="+token, nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, c.user)
	assert.Equal(t, "u2", c.user.ID)
}

func TestOptionalAuthMiddleware_InvalidTokenIsAnonymous(t *testing.T) {
	var c captured
	h := OptionalAuthMiddleware(NewJWTVerifier([]byte("secret")), "")(captureHandler(&c))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, c.user.IsAnonymous())
}

func TestOptionalAuthMiddleware_NilVerifier(t *testing.T) {
	var c captured
	h := OptionalAuthMiddleware(nil, "")(captureHandler(&c))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Nil(t, c.user)
}

func TestOptionalAuthMiddleware_VisitorCookie(t *testing.T) {
	var c captured
	h := OptionalAuthMiddleware(nil, "visitor")(captureHandler(&c))

	t.Run("existing cookie is reused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "visitor", Value: "known-prid"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "known-prid", c.prid)
		assert.Empty(t, rec.Header().Get("Set-Cookie"))
	})

	t.Run("missing cookie is minted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.NotEmpty(t, c.prid)
		assert.Contains(t, rec.Header().Get("Set-Cookie"), "visitor="+c.prid)
	})
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		token   string
		wantErr bool
	}{
		{header: "", wantErr: true},
		{header: "Basic abc", wantErr: true},
		{header: "Bearer ", wantErr: true},
		{header: "Bearer abc", token: "abc"},
	}

	for _, tt := range tests {
		token, errMsg := extractBearerToken(tt.header)
		if tt.wantErr {
			assert.NotEmpty(t, errMsg, "header %q", tt.header)
			continue
		}
		assert.Empty(t, errMsg)
		assert.Equal(t, tt.token, token)
	}
}
