package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/keithrawlingsbrown/stet/pkg/requestcontext"
)

// RequestIDHeader carries the caller-supplied correlation ID; one is
// generated when absent. The resolved value is echoed on the response.
const RequestIDHeader = "X-Request-Id"

// RequestID ensures every request carries a correlation ID in context and on
// the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
