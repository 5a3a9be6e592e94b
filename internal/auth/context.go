package auth

import (
	"context"

	"github.com/af-corp/tiergate/internal/profile"
)

type contextKey string

const authContextKey contextKey = "tiergate_auth"

// Context is the frozen identity of one inbound request: who sent it, over
// which channel, and the capability profile resolved for it. It is built
// server-side by trusted code (channel adapters, the identity middleware)
// exactly once per request and never from anything the request body carried.
// It stays fixed across internal re-invocations such as tool loops.
type Context struct {
	SenderID string
	Channel  string
	Profile  *profile.Profile
}

// WithContext attaches the auth context to ctx.
func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

// FromContext extracts the auth context, if present.
func FromContext(ctx context.Context) (*Context, bool) {
	ac, ok := ctx.Value(authContextKey).(*Context)
	return ac, ok
}
