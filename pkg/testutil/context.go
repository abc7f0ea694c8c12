package testutil

import (
	"context"
	"net/http"

	"docproof/pkg/domain"
	"docproof/pkg/requestcontext"
)

// WithActor places actor in the request context the way the auth middleware
// does after validating a bearer token. Blank actors are ignored.
func WithActor(req *http.Request, actor string) *http.Request {
	id, err := domain.ParseIdentity(actor)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithActor(req.Context(), id))
}

// WithRequestID sets the request ID normally assigned by middleware.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
