// Package middleware provides the request-scoped plumbing every handler
// relies on: correlation IDs, a stable per-request timestamp, and the acting
// user reference.
//
// Identity verification is an external collaborator; the actor middleware
// only parses the reference an upstream gateway injects, it does not
// authenticate it.
package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	id "boardkit/pkg/domain"
	"boardkit/pkg/requestcontext"
)

// RequestID assigns a correlation ID to each request, honoring one supplied
// by the caller via X-Request-ID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestTime captures the current time at the start of the request and
// stores it in the context, so every timestamp written during one request
// (card updates, audit entries) agrees.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		ctx := requestcontext.WithTime(r.Context(), now)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Actor extracts the acting user reference from the X-Actor-ID header.
// Absent or malformed values leave the actor unset; audit entries then
// record a nil actor rather than rejecting the mutation.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if raw := r.Header.Get("X-Actor-ID"); raw != "" {
			if actorID, err := id.ParseUserID(raw); err == nil {
				ctx = requestcontext.WithActorID(ctx, actorID)
			}
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
