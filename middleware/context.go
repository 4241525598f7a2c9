package middleware

import "context"

type skipSessionContextKey struct{}
type requireSessionContextKey struct{}

// WithoutSession marks ctx so the gate sends the request unauthenticated and
// ignores expired-session statuses. Login verifiers use it.
func WithoutSession(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipSessionContextKey{}, true)
}

// RequireSession marks ctx so the gate fails with ErrNoSession instead of
// sending the request when no session is active.
func RequireSession(ctx context.Context) context.Context {
	return context.WithValue(ctx, requireSessionContextKey{}, true)
}

func skipsSession(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(skipSessionContextKey{}).(bool)
	return v
}

func requiresSession(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(requireSessionContextKey{}).(bool)
	return v
}
