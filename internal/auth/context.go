// ABOUTME: Identity context for tracking the caller through connection handlers
// ABOUTME: Provides WithUser/UserFromContext and the anonymous visitor id helpers

package auth

import (
	"context"
)

// User is the identity attached to a connection. The zero value and nil are anonymous.
type User struct {
	ID       string // subject of the verified token
	Username string
	Email    string
}

// IsAnonymous reports whether the user carries no verified identity.
func (u *User) IsAnonymous() bool {
	return u == nil || u.ID == ""
}

// EmailOrEmpty returns the email of an authenticated user, or "" for anonymous users.
func (u *User) EmailOrEmpty() string {
	if u.IsAnonymous() {
		return ""
	}
	return u.Email
}

type userContextKey struct{}

type visitorContextKey struct{}

// WithUser returns a new context with the User attached.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the User from the context, returning nil (anonymous) if not present.
func UserFromContext(ctx context.Context) *User {
	user, ok := ctx.Value(userContextKey{}).(*User)
	if !ok {
		return nil
	}
	return user
}

// WithVisitorID returns a new context carrying the anonymous visitor id.
func WithVisitorID(ctx context.Context, prid string) context.Context {
	return context.WithValue(ctx, visitorContextKey{}, prid)
}

// VisitorIDFromContext returns the anonymous visitor id, or "" if none was assigned.
func VisitorIDFromContext(ctx context.Context) string {
	prid, _ := ctx.Value(visitorContextKey{}).(string)
	return prid
}
