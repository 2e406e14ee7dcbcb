// ABOUTME: HTTP middleware resolving the caller identity before websocket upgrade
// ABOUTME: Extracts JWT from Authorization header or token query param, assigns visitor ids

package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// DefaultVisitorCookie is the cookie holding the anonymous visitor id.
const DefaultVisitorCookie = "prid"

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// requestToken returns the token from the Authorization header, falling back to
// the "token" query parameter used by browser websocket clients.
func requestToken(r *http.Request) string {
	token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg == "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// OptionalAuthMiddleware attempts JWT auth but allows unauthenticated requests.
// A nil verifier treats every caller as anonymous. The visitor cookie is read,
// or minted and set on the response, so anonymous callers keep a stable id.
func OptionalAuthMiddleware(verifier TokenVerifier, visitorCookie string) func(http.Handler) http.Handler {
	if visitorCookie == "" {
		visitorCookie = DefaultVisitorCookie
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			prid := ""
			if c, err := r.Cookie(visitorCookie); err == nil && c.Value != "" {
				prid = c.Value
			} else {
				prid = uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     visitorCookie,
					Value:    prid,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			ctx = WithVisitorID(ctx, prid)

			if verifier != nil {
				if token := requestToken(r); token != "" {
					if user, err := verifier.Verify(token); err == nil {
						ctx = WithUser(ctx, user)
					}
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
