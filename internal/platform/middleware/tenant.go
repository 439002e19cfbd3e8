package middleware

import (
	"net/http"

	id "github.com/keithrawlingsbrown/stet/pkg/domain"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
	"github.com/keithrawlingsbrown/stet/pkg/platform/httputil"
	"github.com/keithrawlingsbrown/stet/pkg/requestcontext"
)

// TenantHeader carries the tenant partition for every v1 request.
const TenantHeader = "X-Tenant-Id"

// TenantResolver requires a well-formed X-Tenant-Id header and stores the
// parsed tenant ID in context. Requests with a missing or malformed tenant
// are rejected before any store access.
func TenantResolver(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(TenantHeader)
		if raw == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "X-Tenant-Id header is required"))
			return
		}
		tenantID, err := id.ParseTenantID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "X-Tenant-Id must be a valid UUID"))
			return
		}

		ctx := requestcontext.WithTenantID(r.Context(), tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
