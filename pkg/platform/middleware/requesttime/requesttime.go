// Package requesttime pins a single "now" per HTTP request so record
// timestamps, event timestamps and audit entries of one request agree.
package requesttime

import (
	"net/http"
	"time"

	"docproof/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
