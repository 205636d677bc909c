package httpx

import (
	"context"

	"github.com/caseworks/report-engine/internal/domain/auth"
)

// principalKey is an unexported context key type to avoid collisions across
// packages. Centralized here so middleware and handlers share one key.
type principalKey struct{}

// bearerKey carries the raw bearer token alongside the principal; admission
// forwards it into the job record so the worker can re-derive scope later.
type bearerKey struct{}

// requestIDKey carries the request id assigned by the RequestID middleware.
type requestIDKey struct{}

// WithCaller returns a child context carrying the authenticated caller and
// the raw bearer token the caller presented.
func WithCaller(ctx context.Context, p auth.Principal, bearer string) context.Context {
	ctx = context.WithValue(ctx, principalKey{}, p)
	return context.WithValue(ctx, bearerKey{}, bearer)
}

// CallerFrom returns the authenticated principal from the context and a
// boolean indicating presence.
func CallerFrom(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// BearerFrom returns the raw bearer token stored by the auth middleware.
func BearerFrom(ctx context.Context) string {
	if v, ok := ctx.Value(bearerKey{}).(string); ok {
		return v
	}
	return ""
}

// withRequestID returns a child context carrying the request id.
func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id assigned to this request, or "".
func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
