package middleware

import (
	"net/http"

	"github.com/nkiryanov/videotube/internal/handlers/render"
)

// Turn handler panic into 500 response. Panic details are logged only
func RecoverMiddleware(l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				l.Error("panic while serving request", "uri", r.RequestURI, "reason", rec)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
