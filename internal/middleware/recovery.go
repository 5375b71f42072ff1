package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/josh-kwaku/checkout-transactions/internal/handler"
	"github.com/josh-kwaku/checkout-transactions/internal/logging"
)

// Recovery turns a handler panic into a 500. http.ErrAbortHandler is
// re-panicked so the server still aborts the response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log := logging.FromContext(r.Context())
			log.Error("panic recovered", "error", rec, "method", r.Method, "path", r.URL.Path, "stack", string(debug.Stack()))
			handler.RespondAppError(w, handler.ErrInternalError, nil)
		}()
		next.ServeHTTP(w, r)
	})
}
