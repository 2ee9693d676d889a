// Package identity exposes the signed-in user to the service layer.
package identity

import (
	"context"
	"strings"

	"confessions/internal/models"
)

// Role values carried in access tokens.
const (
	RoleMember    = "member"
	RoleModerator = "moderator"
)

// User is the identity resolved for one request.
type User struct {
	ID          string
	DisplayName string
	Role        string
}

// IsModerator reports whether u may act on the moderation queue.
func (u *User) IsModerator() bool {
	return u != nil && strings.EqualFold(u.Role, RoleModerator)
}

// AsModerator converts u into the moderator recorded on audit events.
func (u *User) AsModerator() models.Moderator {
	if u == nil {
		return models.Moderator{}
	}
	return models.Moderator{ID: u.ID, DisplayName: u.DisplayName}
}

// Provider returns the current user, or nil when nobody is signed in. It is
// consulted on every call and never cached by callers.
type Provider interface {
	CurrentUser(ctx context.Context) *User
}

type ctxKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the user stored by WithUser.
func FromContext(ctx context.Context) *User {
	u, _ := ctx.Value(ctxKey{}).(*User)
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return nil
	}
	return u
}

// ContextProvider reads the user placed on the request context by the auth
// middleware.
type ContextProvider struct{}

// CurrentUser implements Provider.
func (ContextProvider) CurrentUser(ctx context.Context) *User {
	return FromContext(ctx)
}
