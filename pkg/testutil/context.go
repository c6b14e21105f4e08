package testutil

import (
	"net/http"
	"time"

	id "boardkit/pkg/domain"
	"boardkit/pkg/requestcontext"
)

// WithActor stamps the acting user onto the request context, simulating the
// actor middleware. Invalid IDs are silently ignored so tests can exercise
// the unauthenticated path with a bogus value.
func WithActor(req *http.Request, userID string) *http.Request {
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithActorID(req.Context(), parsed))
}

// WithRequestTime pins the request timestamp, making audit timestamps
// deterministic.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithRequestID stamps a correlation ID onto the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
