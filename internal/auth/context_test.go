// ABOUTME: Unit tests for identity context functions
// ABOUTME: Tests User anonymity and context propagation helpers

package auth

import (
	"context"
	"testing"
)

func TestUser_IsAnonymous(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want bool
	}{
		{name: "nil user", user: nil, want: true},
		{name: "zero user", user: &User{}, want: true},
		{name: "authenticated", user: &User{ID: "u1"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.IsAnonymous(); got != tt.want {
				t.Errorf("IsAnonymous() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUser_EmailOrEmpty(t *testing.T) {
	var anon *User
	if got := anon.EmailOrEmpty(); got != "" {
		t.Errorf("EmailOrEmpty() on nil = %q, want empty", got)
	}

	u := &User{ID: "u1", Email: "u1@example.com"}
	if got := u.EmailOrEmpty(); got != "u1@example.com" {
		t.Errorf("EmailOrEmpty() = %q, want %q", got, "u1@example.com")
	}
}

func TestUserContext_RoundTrip(t *testing.T) {
	user := &User{ID: "u1"}
	ctx := WithUser(context.Background(), user)

	if got := UserFromContext(ctx); got != user {
		t.Errorf("UserFromContext() = %v, want %v", got, user)
	}
}

func TestUserFromContext_Missing(t *testing.T) {
	if got := UserFromContext(context.Background()); got != nil {
		t.Errorf("UserFromContext() = %v, want nil", got)
	}
}

func TestVisitorID_RoundTrip(t *testing.T) {
	ctx := WithVisitorID(context.Background(), "prid-1")
	if got := VisitorIDFromContext(ctx); got != "prid-1" {
		t.Errorf("VisitorIDFromContext() = %q, want %q", got, "prid-1")
	}
	if got := VisitorIDFromContext(context.Background()); got != "" {
		t.Errorf("VisitorIDFromContext() on empty context = %q, want empty", got)
	}
}
