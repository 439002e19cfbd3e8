package middleware

import (
	"net/http"
	"time"

	"github.com/keithrawlingsbrown/stet/pkg/requestcontext"
)

// RequestTime captures one time.Now() at the start of the request and stores
// it in context. Every timestamp the request persists or derives (creation
// times, staleness, escalation) reads this value, so a single request is
// internally consistent and tests can pin the clock.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
