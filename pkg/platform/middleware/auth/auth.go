// Package auth authenticates bearer tokens and places the caller identity in
// the request context.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"docproof/pkg/domain"
	"docproof/pkg/requestcontext"
)

// TokenValidator resolves a bearer token to the caller identity.
type TokenValidator interface {
	ValidateActor(token string) (domain.Identity, error)
}

// ValidatorFunc adapts a function to TokenValidator.
type ValidatorFunc func(token string) (domain.Identity, error)

func (f ValidatorFunc) ValidateActor(token string) (domain.Identity, error) {
	return f(token)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"message":%q}`, errCode, errDesc))
}

// RequireIdentity rejects requests without a valid bearer token.
func RequireIdentity(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthenticated request - missing bearer token",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "Missing bearer token")
				return
			}

			actor, err := validator.ValidateActor(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthenticated request - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, actor)))
		})
	}
}
