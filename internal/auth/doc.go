// Package auth resolves the identity behind an inbound websocket connection.
//
// # Users
//
// A User is either authenticated (carries an ID) or anonymous. Anonymous
// callers are still tracked by a visitor id ("prid") kept in a cookie so that
// assets they create can be attributed to them.
//
// # JWT Tokens
//
// Clients authenticate with HS256 JWTs signed with the configured jwt_secret.
// The "sub" claim is the user id; "email" and "username" are optional:
//
//	verifier := auth.NewJWTVerifier(secret)
//	token, err := verifier.Generate(&auth.User{ID: "u1"}, 24*time.Hour)
//	user, err := verifier.Verify(token)
//
// Browsers cannot set headers on websocket upgrades, so the token may also be
// passed as the "token" query parameter.
//
// # HTTP Middleware
//
// OptionalAuthMiddleware never rejects a request. It attaches the resolved
// User (possibly anonymous) and the visitor id to the request context; each
// session flavor decides whether anonymity is acceptable.
//
//	user := auth.UserFromContext(r.Context())
//	if user.IsAnonymous() { ... }
package auth
