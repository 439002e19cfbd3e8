package testutil

import (
	"context"
	"net/http"
	"time"

	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	"github.com/keithrawlingsbrown/stet/pkg/requestcontext"
)

// WithTenant adds a tenant ID to the request context, simulating what the
// tenant resolver middleware would do. Invalid UUIDs are silently ignored so
// tests can exercise the missing-tenant path.
func WithTenant(req *http.Request, tenantID string) *http.Request {
	parsed, err := id.ParseTenantID(tenantID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithTenantID(req.Context(), parsed))
}

// WithTenantID adds an already-parsed tenant ID to the request context.
func WithTenantID(req *http.Request, tenantID id.TenantID) *http.Request {
	return req.WithContext(requestcontext.WithTenantID(req.Context(), tenantID))
}

// WithRequester adds an authenticated service principal to the request
// context, simulating the service-auth middleware.
func WithRequester(req *http.Request, requester string) *http.Request {
	return req.WithContext(requestcontext.WithRequester(req.Context(), requester))
}

// WithRequestID adds a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithTime pins the request clock so staleness and escalation checks can be
// evaluated at a fixed instant.
func WithTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
