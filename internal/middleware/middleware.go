package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	u "github.com/riteshkumar/savings-ledger/internal/utils"
)

// TokenParser resolves a bearer token to the customer id it was issued for.
type TokenParser interface {
	ParseToken(token string) (string, error)
}

type contextKey struct{}

// CustomerID returns the authenticated customer stored by Auth, or "".
func CustomerID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// WithCustomerID stores the customer id on ctx.
func WithCustomerID(ctx context.Context, customerID string) context.Context {
	return context.WithValue(ctx, contextKey{}, customerID)
}

// Recoverer turns a panic into a logged error and a generic 500.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic while serving request",
						"method", r.Method,
						"path", r.URL.Path,
						"panic", rec,
						"stack", string(debug.Stack()),
					)
					u.WriteError(w, http.StatusInternalServerError, "internal server error", "")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Auth enforces a Bearer token and injects the customer id into the context.
func Auth(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				u.WriteError(w, http.StatusUnauthorized, "missing authorization", "")
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				u.WriteError(w, http.StatusUnauthorized, "invalid authorization header", "")
				return
			}
			customerID, err := parser.ParseToken(strings.TrimSpace(parts[1]))
			if err != nil {
				u.WriteError(w, http.StatusUnauthorized, "invalid token", "")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCustomerID(r.Context(), customerID)))
		})
	}
}
