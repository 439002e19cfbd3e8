package jwtauth

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
	"github.com/keithrawlingsbrown/stet/pkg/platform/httputil"
	"github.com/keithrawlingsbrown/stet/pkg/requestcontext"
)

// TokenValidator is the verification half of the token service.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Middleware requires a valid bearer token whose tenant claim matches the
// resolved tenant, then records the calling service as the requester in
// context.
func Middleware(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "service auth missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "service auth failed",
					"request_id", requestcontext.RequestID(ctx),
					"error", err.Error(),
				)
				httputil.WriteError(w, err)
				return
			}

			if claims.TenantID != requestcontext.TenantID(ctx).String() {
				logger.WarnContext(ctx, "service token tenant mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"service", claims.Service,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "token does not grant access to this tenant"))
				return
			}

			ctx = requestcontext.WithRequester(ctx, claims.Service)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
