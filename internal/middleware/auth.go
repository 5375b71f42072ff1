package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/checkout-transactions/internal/auth"
	"github.com/josh-kwaku/checkout-transactions/internal/handler"
	"github.com/josh-kwaku/checkout-transactions/internal/logging"
)

// SessionAuth requires the bearer session token issued at activation and
// stores its transaction id in the request context.
func SessionAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			id, err := auth.ParseSessionToken(token, secret)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			ctx := auth.ContextWithTransactionID(r.Context(), id)
			ctx, _ = logging.WithTransaction(ctx, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
