package testutil

import (
	"context"
	"net/http"

	"foodtrace/pkg/requestcontext"
)

// WithCaller adds a caller identity to the request context. This simulates
// what the caller-identity middleware would do for authenticated requests.
func WithCaller(req *http.Request, identity string) *http.Request {
	ctx := requestcontext.WithCaller(req.Context(), identity)
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
