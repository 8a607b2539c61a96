package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"cardbored-api/pkg/apierror"
	"cardbored-api/pkg/response"
)

// AdminKeyHeader carries the admin key.
const AdminKeyHeader = "X-Admin-Key"

// NewAdminKeyMiddleware guards admin routes with a shared key, read from
// X-Admin-Key or an "Authorization: Bearer" header. An empty key leaves the
// routes open, which is only sensible in development.
func NewAdminKeyMiddleware(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(AdminKeyHeader)
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if key == "" {
				response.Error(w, apierror.Unauthorized("Admin key required. Use the X-Admin-Key header."))
				return
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
				response.Error(w, apierror.Unauthorized("Invalid admin key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
