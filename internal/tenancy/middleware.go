package tenancy

import (
	"encoding/json"
	"net/http"
	"strings"
)

// HeaderName is the inbound header that names the caller's tenant.
const HeaderName = "X-Tenant-ID"

// Middleware establishes the tenant scope for the request. Requests
// without a tenant header are rejected before any handler runs.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := strings.TrimSpace(r.Header.Get(HeaderName))
			if tenantID == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "tenant id not provided",
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithTenantID(r.Context(), tenantID)))
		})
	}
}
