package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"fintrack/internal/shared/auth"
)

type ContextKey string

const (
	IdentityKey ContextKey = "identity"
	EmailKey    ContextKey = "email"
	UIDKey      ContextKey = "uid"
)

// Auth resolves the bearer token into an identity before any protected
// handler runs. A nil verifier means the identity provider failed to start,
// and every request is refused with 503.
func Auth(verifier auth.Verifier, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				writeJSONError(w, http.StatusServiceUnavailable, "Authentication service unavailable")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSONError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			scheme, token, ok := strings.Cut(authHeader, " ")
			token = strings.TrimSpace(token)
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				writeJSONError(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				entry := log.WithError(err).WithField("path", r.URL.Path)
				if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrMissingEmail) {
					entry.Error("Token verification failed")
					writeJSONError(w, http.StatusServiceUnavailable, "Authentication service unavailable")
					return
				}
				entry.Info("Rejected token")
				writeJSONError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			ctx = context.WithValue(ctx, EmailKey, identity.Email)
			ctx = context.WithValue(ctx, UIDKey, identity.UID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EmailFromContext returns the authenticated caller's email.
func EmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailKey).(string)
	return email, ok && email != ""
}

// IdentityFromContext returns the identity attached by Auth.
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(*auth.Identity)
	return identity, ok
}
